package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/djlord-it/easy-relay/internal/domain"
)

func newTestSink(t *testing.T, cfg domain.AnalyticsConfig) (*RedisSink, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSink(client, cfg), mr
}

func mixedOutcome() domain.Outcome {
	o := domain.NewOutcome([]domain.Category{domain.CategoryPrimary, domain.CategorySecondary})
	o.Set(domain.CategoryPrimary, domain.CategoryResult{Succeeded: false, Message: "err1"})
	o.Set(domain.CategorySecondary, domain.CategoryResult{Succeeded: true, Message: "ok2"})
	return o
}

func TestTruncateToBucket(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 37, 12, 0, time.UTC)

	tests := []struct {
		window time.Duration
		want   string
	}{
		{time.Minute, "202403010837"},
		{5 * time.Minute, "202403010835"},
		{time.Hour, "2024030108"},
		{0, "202403010837"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateToBucket(at, tt.window), "window %s", tt.window)
	}
}

func TestRedisSink_CountsPerCategory(t *testing.T) {
	cfg := domain.AnalyticsConfig{Enabled: true, Window: 5 * time.Minute, Retention: time.Hour}
	sink, mr := newTestSink(t, cfg)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 8, 37, 0, 0, time.UTC)

	require.NoError(t, sink.Write(ctx, mixedOutcome(), at))
	require.NoError(t, sink.Write(ctx, mixedOutcome(), at.Add(time.Minute)))

	n, err := sink.Count(ctx, domain.CategoryPrimary, domain.StatusFailed, at)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = sink.Count(ctx, domain.CategorySecondary, domain.StatusSuccess, at)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = sink.Count(ctx, domain.CategoryPrimary, domain.StatusSuccess, at)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, time.Hour, mr.TTL("relay:stats:primary:failed:202403010835"))
}

func TestRedisSink_Disabled(t *testing.T) {
	sink, mr := newTestSink(t, domain.AnalyticsConfig{Enabled: false})

	require.NoError(t, sink.Write(context.Background(), mixedOutcome(), time.Now()))
	assert.Empty(t, mr.Keys())
}

func TestRedisSink_RecordLogsErrors(t *testing.T) {
	cfg := domain.AnalyticsConfig{Enabled: true, Window: time.Minute, Retention: time.Hour}
	sink, mr := newTestSink(t, cfg)
	core, logs := observer.New(zapcore.WarnLevel)
	sink.WithLogger(zap.New(core))

	mr.SetError("READONLY")
	sink.Record(context.Background(), mixedOutcome(), time.Now())

	assert.Equal(t, 1, logs.FilterMessage("analytics write failed").Len())
}

func TestRedisSink_CountMissingKey(t *testing.T) {
	sink, _ := newTestSink(t, domain.AnalyticsConfig{Enabled: true, Window: time.Minute})
	n, err := sink.Count(context.Background(), domain.CategoryPrimary, domain.StatusSuccess, time.Now())
	assert.False(t, errors.Is(err, redis.Nil))
	assert.NoError(t, err)
	assert.Zero(t, n)
}
