package destination

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/djlord-it/easy-relay/internal/circuitbreaker"
	"github.com/djlord-it/easy-relay/internal/domain"
)

func TestGuarded_OpensAfterFailures(t *testing.T) {
	calls := 0
	inner := Func(func(context.Context, string, domain.Payload) domain.DestinationResult {
		calls++
		return domain.Failure("down")
	})

	g := NewGuarded("erp", inner, circuitbreaker.New(2, time.Minute))

	g.Attempt(context.Background(), "", testPayload())
	g.Attempt(context.Background(), "", testPayload())
	result := g.Attempt(context.Background(), "", testPayload())

	if calls != 2 {
		t.Errorf("inner called %d times, want 2", calls)
	}
	if result.Succeeded || !strings.Contains(result.Message, "circuit breaker is open") {
		t.Errorf("result = %+v, want open-circuit failure", result)
	}
}

func TestGuarded_PanicCountsAsFailure(t *testing.T) {
	inner := Func(func(context.Context, string, domain.Payload) domain.DestinationResult {
		panic("driver bug")
	})
	breakers := circuitbreaker.New(1, time.Minute)
	g := NewGuarded("erp", inner, breakers)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		g.Attempt(context.Background(), "", testPayload())
	}()

	if got := breakers.State("erp"); got != "open" {
		t.Errorf("State = %q, want open", got)
	}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		cfg     domain.DestinationConfig
		deps    Deps
		wantErr bool
	}{
		{"http", domain.DestinationConfig{Name: "api", Type: domain.DestinationTypeHTTP}, Deps{}, false},
		{"erp", domain.DestinationConfig{Name: "sap", Type: domain.DestinationTypeERP, URL: "http://erp"}, Deps{}, false},
		{"file", domain.DestinationConfig{Name: "f", Type: domain.DestinationTypeFile, Path: "/tmp/x"}, Deps{}, false},
		{"file without path", domain.DestinationConfig{Name: "f", Type: domain.DestinationTypeFile}, Deps{}, true},
		{"kafka without producer", domain.DestinationConfig{Name: "k", Type: domain.DestinationTypeKafka}, Deps{}, true},
		{"nats", domain.DestinationConfig{Name: "n", Type: domain.DestinationTypeNATS, Topic: "s"}, Deps{JetStream: &fakeJetStream{}}, false},
		{"nats without js", domain.DestinationConfig{Name: "n", Type: domain.DestinationTypeNATS}, Deps{}, true},
		{"amqp", domain.DestinationConfig{Name: "a", Type: domain.DestinationTypeAMQP}, Deps{AMQP: &fakeAMQPChannel{}}, false},
		{"amqp without channel", domain.DestinationConfig{Name: "a", Type: domain.DestinationTypeAMQP}, Deps{}, true},
		{"unknown", domain.DestinationConfig{Name: "x", Type: "smtp"}, Deps{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Build(tt.cfg, tt.deps)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d == nil {
				t.Fatal("nil destination")
			}
		})
	}
}

func TestBuild_WrapsWithBreaker(t *testing.T) {
	d, err := Build(
		domain.DestinationConfig{Name: "api", Type: domain.DestinationTypeHTTP},
		Deps{Breakers: circuitbreaker.New(3, time.Minute)},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := d.(*Guarded); !ok {
		t.Errorf("expected *Guarded, got %T", d)
	}

	d, _ = Build(
		domain.DestinationConfig{Name: "api", Type: domain.DestinationTypeHTTP},
		Deps{Breakers: circuitbreaker.New(0, time.Minute)},
	)
	if _, ok := d.(*HTTP); !ok {
		t.Errorf("disabled breaker must not wrap, got %T", d)
	}
}
