package janitor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

var errEmptySchedule = errors.New("empty schedule")

// ParseSchedule reads a five-field cron expression or a descriptor such as
// @daily or @every 6h. Expressions run in UTC unless they start with a
// CRON_TZ=<zone> prefix.
func ParseSchedule(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errEmptySchedule
	}
	if !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
		expr = "CRON_TZ=UTC " + expr
	}

	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("cleanup schedule: %w", err)
	}
	return sched, nil
}
