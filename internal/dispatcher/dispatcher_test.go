package dispatcher

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-relay/internal/domain"
)

const (
	primary   = domain.CategoryPrimary
	secondary = domain.CategorySecondary
)

type mockDestination struct {
	mu     sync.Mutex
	result domain.DestinationResult
	calls  int
	order  *[]string
	name   string
}

func (m *mockDestination) Attempt(ctx context.Context, endpoint string, payload domain.Payload) domain.DestinationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.order != nil {
		*m.order = append(*m.order, m.name)
	}
	return m.result
}

func dest(ok bool, msg string) *mockDestination {
	return &mockDestination{result: domain.DestinationResult{Succeeded: ok, Message: msg}}
}

func testPayload() domain.Payload {
	return domain.Payload{
		ID:                uuid.New(),
		PayloadCode:       "QR123",
		PayloadUniqueCode: "UC123",
		ScheduledAt:       time.Now().UTC(),
		ResourceCode:      domain.DefaultResourceCode,
		ResourceName:      domain.DefaultResourceName,
	}
}

func mustNew(t *testing.T, cats []domain.CategoryConfig, routes []Route) *Composite {
	t.Helper()
	c, err := New(cats, routes)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	d := dest(true, "")

	tests := []struct {
		name   string
		cats   []domain.CategoryConfig
		routes []Route
		want   error
	}{
		{"no routes", nil, nil, ErrNoRoutes},
		{
			"duplicate category",
			[]domain.CategoryConfig{{Name: primary}, {Name: primary}},
			[]Route{{Name: "a", Category: primary, Destination: d}},
			ErrDuplicateCategory,
		},
		{
			"undeclared category",
			[]domain.CategoryConfig{{Name: primary}},
			[]Route{{Name: "a", Category: secondary, Destination: d}},
			ErrUnknownCategory,
		},
		{
			"unknown policy",
			[]domain.CategoryConfig{{Name: primary, Policy: "most"}},
			[]Route{{Name: "a", Category: primary, Destination: d}},
			ErrUnknownPolicy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cats, tt.routes)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNew_NilDestination(t *testing.T) {
	if _, err := New(nil, []Route{{Name: "a", Category: primary}}); err == nil {
		t.Fatal("expected error for nil destination")
	}
}

func TestNew_DerivesCategoriesFromRoutes(t *testing.T) {
	c := mustNew(t, nil, []Route{
		{Name: "b", Category: secondary, Destination: dest(true, "")},
		{Name: "a", Category: primary, Destination: dest(true, "")},
		{Name: "c", Category: secondary, Destination: dest(true, "")},
	})

	got := c.Categories()
	if len(got) != 2 || got[0] != secondary || got[1] != primary {
		t.Errorf("Categories = %v, want [secondary primary]", got)
	}
}

func TestDispatch_InvokesAllInConfigurationOrder(t *testing.T) {
	var order []string
	a := &mockDestination{name: "api", order: &order, result: domain.Success("ok")}
	f := &mockDestination{name: "file", order: &order, result: domain.Failure("disk full")}
	s := &mockDestination{name: "erp", order: &order, result: domain.Success("posted")}

	c := mustNew(t, nil, []Route{
		{Name: "api", Category: primary, Destination: a},
		{Name: "file", Category: primary, Destination: f},
		{Name: "erp", Category: secondary, Destination: s},
	})
	out := c.Dispatch(context.Background(), "http://example.com", testPayload())

	if strings.Join(order, ",") != "api,file,erp" {
		t.Errorf("order = %v, want api,file,erp", order)
	}
	if len(out.Reports) != 3 {
		t.Fatalf("reports = %d, want 3", len(out.Reports))
	}
	for i, name := range []string{"api", "file", "erp"} {
		if out.Reports[i].Destination != name {
			t.Errorf("report %d = %q, want %q", i, out.Reports[i].Destination, name)
		}
	}
}

// Scenario: two destinations under two categories, first fails, second succeeds.
func TestDispatch_MixedCategories(t *testing.T) {
	c := mustNew(t, nil, []Route{
		{Name: "d1", Category: primary, Destination: dest(false, "err1")},
		{Name: "d2", Category: secondary, Destination: dest(true, "ok2")},
	})
	out := c.Dispatch(context.Background(), "", testPayload())

	r1, _ := out.Result(primary)
	r2, _ := out.Result(secondary)
	if r1.Succeeded || r1.Message != "err1" {
		t.Errorf("primary = %+v, want false/err1", r1)
	}
	if !r2.Succeeded || r2.Message != "ok2" {
		t.Errorf("secondary = %+v, want true/ok2", r2)
	}
	if !c.Accepts(out) {
		t.Error("expected outcome to be accepted")
	}
}

func TestDispatch_CategoryWithoutDestinationsStaysDefault(t *testing.T) {
	c := mustNew(t, []domain.CategoryConfig{{Name: primary}, {Name: secondary}}, []Route{
		{Name: "d1", Category: primary, Destination: dest(true, "ok")},
	})
	out := c.Dispatch(context.Background(), "", testPayload())

	r, ok := out.Result(secondary)
	if !ok {
		t.Fatal("secondary missing from outcome")
	}
	if r.Succeeded || r.Message != "" {
		t.Errorf("secondary = %+v, want zero value", r)
	}
}

func TestDispatch_MessageJoinPreservesOrder(t *testing.T) {
	c := mustNew(t, nil, []Route{
		{Name: "a", Category: primary, Destination: dest(false, "first")},
		{Name: "b", Category: primary, Destination: dest(true, "")},
		{Name: "c", Category: primary, Destination: dest(false, "third")},
	})
	out := c.Dispatch(context.Background(), "", testPayload())

	r, _ := out.Result(primary)
	if r.Message != "first |  | third" {
		t.Errorf("message = %q, want %q", r.Message, "first |  | third")
	}
	if got := strings.Count(r.Message, MessageDelimiter); got != 2 {
		t.Errorf("delimiters = %d, want one per additional destination", got)
	}
	if !r.Succeeded {
		t.Error("any-policy category with one success must succeed")
	}
}

func TestDispatch_SingleEmptyMessage(t *testing.T) {
	c := mustNew(t, nil, []Route{
		{Name: "a", Category: primary, Destination: dest(true, "")},
	})
	out := c.Dispatch(context.Background(), "", testPayload())

	if r, _ := out.Result(primary); r.Message != "" || !r.Succeeded {
		t.Errorf("result = %+v, want succeeded with empty message", r)
	}
}

func TestDispatch_OneDestinationInTwoCategories(t *testing.T) {
	erp := dest(true, "posted")
	c := mustNew(t, nil, []Route{
		{Name: "api", Category: primary, Destination: dest(false, "api down")},
		{Name: "erp", Category: primary, Destination: erp},
		{Name: "erp-confirm", Category: secondary, Destination: erp},
	})
	out := c.Dispatch(context.Background(), "", testPayload())

	p, _ := out.Result(primary)
	s, _ := out.Result(secondary)
	if !p.Succeeded || p.Message != "api down | posted" {
		t.Errorf("primary = %+v", p)
	}
	if !s.Succeeded || s.Message != "posted" {
		t.Errorf("secondary = %+v", s)
	}
	if erp.calls != 2 {
		t.Errorf("erp calls = %d, want one per route", erp.calls)
	}
}

func TestDispatch_AllPolicy(t *testing.T) {
	cats := []domain.CategoryConfig{{Name: primary, Policy: domain.MergePolicyAll}}

	tests := []struct {
		name    string
		results []bool
		want    bool
	}{
		{"all succeed", []bool{true, true}, true},
		{"one fails", []bool{true, false}, false},
		{"first fails", []bool{false, true}, false},
		{"single success", []bool{true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var routes []Route
			for i, ok := range tt.results {
				routes = append(routes, Route{Name: string(rune('a' + i)), Category: primary, Destination: dest(ok, "")})
			}
			out := mustNew(t, cats, routes).Dispatch(context.Background(), "", testPayload())
			if got := out.Succeeded(primary); got != tt.want {
				t.Errorf("succeeded = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccepts_RequiredCategory(t *testing.T) {
	cats := []domain.CategoryConfig{
		{Name: primary},
		{Name: secondary, Required: true},
	}
	c := mustNew(t, cats, []Route{
		{Name: "api", Category: primary, Destination: dest(true, "ok")},
		{Name: "erp", Category: secondary, Destination: dest(false, "down")},
	})

	out := c.Dispatch(context.Background(), "", testPayload())
	if c.Accepts(out) {
		t.Error("outcome with failed required category must not be accepted")
	}
}

func TestAccepts_NothingSucceeded(t *testing.T) {
	c := mustNew(t, nil, []Route{
		{Name: "a", Category: primary, Destination: dest(false, "x")},
		{Name: "b", Category: secondary, Destination: dest(false, "y")},
	})
	if c.Accepts(c.Dispatch(context.Background(), "", testPayload())) {
		t.Error("expected rejection when no category succeeded")
	}
}

func TestDispatch_PanicPropagates(t *testing.T) {
	after := dest(true, "")
	c := mustNew(t, nil, []Route{
		{Name: "boom", Category: primary, Destination: destinationFunc(func() domain.DestinationResult { panic("boom") })},
		{Name: "after", Category: primary, Destination: after},
	})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic to propagate")
		}
		if after.calls != 0 {
			t.Error("destinations after a panic must not be invoked")
		}
	}()
	c.Dispatch(context.Background(), "", testPayload())
}

type destinationFunc func() domain.DestinationResult

func (f destinationFunc) Attempt(context.Context, string, domain.Payload) domain.DestinationResult {
	return f()
}

// Merged success for a category is true iff at least one destination under it
// succeeded, and every destination message appears in order.
func TestDispatch_MergeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cats := []domain.Category{primary, secondary, "audit"}

	for iter := 0; iter < 200; iter++ {
		n := 1 + rng.Intn(6)
		var routes []Route
		want := map[domain.Category]bool{}
		msgs := map[domain.Category][]string{}

		for i := 0; i < n; i++ {
			cat := cats[rng.Intn(len(cats))]
			ok := rng.Intn(2) == 0
			msg := uuid.NewString()[:8]
			routes = append(routes, Route{Name: msg, Category: cat, Destination: dest(ok, msg)})
			want[cat] = want[cat] || ok
			msgs[cat] = append(msgs[cat], msg)
		}

		var decl []domain.CategoryConfig
		for _, c := range cats {
			decl = append(decl, domain.CategoryConfig{Name: c})
		}
		out := mustNew(t, decl, routes).Dispatch(context.Background(), "", testPayload())

		for _, c := range cats {
			r, ok := out.Result(c)
			if !ok {
				t.Fatalf("iter %d: category %q missing", iter, c)
			}
			if r.Succeeded != want[c] {
				t.Fatalf("iter %d: %q succeeded = %v, want %v", iter, c, r.Succeeded, want[c])
			}
			pos := 0
			for _, m := range msgs[c] {
				idx := strings.Index(r.Message[pos:], m)
				if idx < 0 {
					t.Fatalf("iter %d: %q message %q missing %q in order", iter, c, r.Message, m)
				}
				pos += idx + len(m)
			}
		}
	}
}

type attemptCall struct {
	destination string
	category    string
	succeeded   bool
}

type mockMetrics struct {
	mu    sync.Mutex
	calls []attemptCall
}

func (m *mockMetrics) DestinationAttempt(destination, category string, succeeded bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, attemptCall{destination, category, succeeded})
}

func TestDispatch_MetricsRecording(t *testing.T) {
	m := &mockMetrics{}
	c := mustNew(t, nil, []Route{
		{Name: "api", Category: primary, Destination: dest(true, "")},
		{Name: "erp", Category: secondary, Destination: dest(false, "")},
	}).WithMetrics(m)

	c.Dispatch(context.Background(), "", testPayload())

	if len(m.calls) != 2 {
		t.Fatalf("metrics calls = %d, want 2", len(m.calls))
	}
	if m.calls[0] != (attemptCall{"api", "primary", true}) {
		t.Errorf("first call = %+v", m.calls[0])
	}
	if m.calls[1] != (attemptCall{"erp", "secondary", false}) {
		t.Errorf("second call = %+v", m.calls[1])
	}
}
