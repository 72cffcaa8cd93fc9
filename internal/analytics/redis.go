package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/djlord-it/easy-relay/internal/domain"
)

// RedisSink counts per-category outcomes in time buckets. Keys look like
// relay:stats:primary:success:202403010830 and expire after the retention.
type RedisSink struct {
	client *redis.Client
	config domain.AnalyticsConfig
	logger *zap.Logger
}

func NewRedisSink(client *redis.Client, config domain.AnalyticsConfig) *RedisSink {
	return &RedisSink{client: client, config: config, logger: zap.NewNop()}
}

func (s *RedisSink) WithLogger(logger *zap.Logger) *RedisSink {
	if logger != nil {
		s.logger = logger.Named("analytics")
	}
	return s
}

// Record is the best-effort form of Write used by the worker.
func (s *RedisSink) Record(ctx context.Context, outcome domain.Outcome, at time.Time) {
	if err := s.Write(ctx, outcome, at); err != nil {
		s.logger.Warn("analytics write failed", zap.Error(err))
	}
}

func (s *RedisSink) Write(ctx context.Context, outcome domain.Outcome, at time.Time) error {
	if !s.config.Enabled {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, c := range outcome.Categories() {
		key := buildKey(c, domain.StatusOf(outcome.Succeeded(c)), at, s.config.Window)
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, s.config.Retention)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}

	return nil
}

// Count returns the counter for one category and status in the bucket containing at.
func (s *RedisSink) Count(ctx context.Context, c domain.Category, status domain.Status, at time.Time) (int64, error) {
	n, err := s.client.Get(ctx, buildKey(c, status, at, s.config.Window)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func buildKey(c domain.Category, status domain.Status, t time.Time, window time.Duration) string {
	bucket := truncateToBucket(t, window)
	return fmt.Sprintf("relay:stats:%s:%s:%s", c, status, bucket)
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Minute:
		return t.Format("200601021504")
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case time.Hour:
		return t.Format("2006010215")
	default:
		return t.Format("200601021504")
	}
}
