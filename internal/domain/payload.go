package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultResourceCode = "LINE01"
	DefaultResourceName = "Line A"
)

// Routing is the fixed metadata stamped on every outbound payload.
type Routing struct {
	ResourceCode string
	ResourceName string
}

func DefaultRouting() Routing {
	return Routing{ResourceCode: DefaultResourceCode, ResourceName: DefaultResourceName}
}

// Payload is the record every destination receives for a request.
type Payload struct {
	ID                uuid.UUID `json:"id"`
	PayloadCode       string    `json:"payload_code"`
	PayloadUniqueCode string    `json:"payload_unique_code"`
	ScheduledAt       time.Time `json:"scheduled_at"`
	ResourceCode      string    `json:"resource_code"`
	ResourceName      string    `json:"resource_name"`
}

var scheduledAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseScheduledAt accepts RFC3339 timestamps and the zone-less
// "2006-01-02T15:04:05" / "2006-01-02 15:04:05" forms (read as UTC).
func ParseScheduledAt(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, fmt.Errorf("malformed scheduled_at: empty")
	}
	for _, layout := range scheduledAtLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("malformed scheduled_at %q", s)
}

// BuildPayload is pure; the only failure is a malformed timestamp.
func BuildPayload(req DeliveryRequest, routing Routing) (Payload, error) {
	at, err := ParseScheduledAt(req.ScheduledAt)
	if err != nil {
		return Payload{}, err
	}
	return Payload{
		ID:                req.ID,
		PayloadCode:       req.PayloadCode,
		PayloadUniqueCode: req.PayloadUniqueCode,
		ScheduledAt:       at,
		ResourceCode:      routing.ResourceCode,
		ResourceName:      routing.ResourceName,
	}, nil
}
