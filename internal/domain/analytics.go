package domain

import "time"

type AnalyticsConfig struct {
	Enabled   bool
	Window    time.Duration // bucket size, e.g. 1m, 5m, 1h
	Retention time.Duration // TTL, must be >= Window
}
