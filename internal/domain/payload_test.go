package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseScheduledAt(t *testing.T) {
	want := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  time.Time
		err   bool
	}{
		{"rfc3339", "2024-03-01T08:30:00Z", want, false},
		{"rfc3339 offset", "2024-03-01T10:30:00+02:00", want, false},
		{"rfc3339 nano", "2024-03-01T08:30:00.000000000Z", want, false},
		{"zoneless T", "2024-03-01T08:30:00", want, false},
		{"zoneless space", "2024-03-01 08:30:00", want, false},
		{"padded", "  2024-03-01 08:30:00 ", want, false},
		{"empty", "", time.Time{}, true},
		{"garbage", "not-a-date", time.Time{}, true},
		{"date only", "2024-03-01", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScheduledAt(tt.input)
			if tt.err {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseScheduledAt(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestBuildPayload(t *testing.T) {
	req := DeliveryRequest{
		ID:                uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		PayloadCode:       "P1",
		PayloadUniqueCode: "U1",
		ScheduledAt:       "2024-03-01 08:30:00",
	}

	p, err := BuildPayload(req, DefaultRouting())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != req.ID {
		t.Errorf("ID = %v, want %v", p.ID, req.ID)
	}
	if p.PayloadCode != "P1" || p.PayloadUniqueCode != "U1" {
		t.Errorf("codes = %q/%q, want P1/U1", p.PayloadCode, p.PayloadUniqueCode)
	}
	if p.ResourceCode != "LINE01" || p.ResourceName != "Line A" {
		t.Errorf("routing = %q/%q, want LINE01/Line A", p.ResourceCode, p.ResourceName)
	}

	req.ScheduledAt = "yesterday"
	if _, err := BuildPayload(req, DefaultRouting()); err == nil {
		t.Error("expected error for malformed timestamp")
	}
}

func TestEnvelope_Next(t *testing.T) {
	env := NewEnvelope(NewDeliveryRequest("P", "U", "2024-03-01T08:30:00Z"))
	next := env.Next()

	if next.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", next.Attempt)
	}
	if next.Request != env.Request {
		t.Error("Next() must carry the same request")
	}
	if env.Attempt != 0 {
		t.Error("Next() must not mutate the original envelope")
	}
}
