package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/djlord-it/easy-relay/internal/domain"
	"github.com/djlord-it/easy-relay/internal/ledger"
)

const (
	keyPrefix    = "relay:ledger:"
	keyUnsettled = "relay:ledger:unsettled"
	keyRecorded  = "relay:ledger:recorded"
	fieldRecord  = "record"
)

type record struct {
	RequestID         uuid.UUID                         `json:"request_id"`
	PayloadCode       string                            `json:"payload_code"`
	PayloadUniqueCode string                            `json:"payload_unique_code,omitempty"`
	ScheduledAt       string                            `json:"scheduled_at"`
	State             domain.LedgerState                `json:"state"`
	Attempt           int                               `json:"attempt"`
	Statuses          map[domain.Category]domain.Status `json:"statuses"`
	Messages          map[domain.Category]string        `json:"messages"`
	RecordedAt        time.Time                         `json:"recorded_at"`
}

// Store keeps the ledger in Redis: a hash per request with the latest
// verdict, a list with its history and two sorted sets scored by record
// time for reconciliation and pruning.
type Store struct {
	client    *redis.Client
	retention time.Duration
}

// New creates a store. A positive retention sets a TTL on request keys.
func New(client *redis.Client, retention time.Duration) *Store {
	return &Store{client: client, retention: retention}
}

func (s *Store) Append(ctx context.Context, rec domain.LedgerRecord) error {
	data, err := json.Marshal(record(rec))
	if err != nil {
		return fmt.Errorf("encode ledger record: %w", err)
	}

	id := rec.RequestID.String()
	key := requestKey(id)
	hkey := historyKey(id)
	score := float64(rec.RecordedAt.UnixMilli())

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		fieldRecord, data,
		"state", string(rec.State),
		"attempt", rec.Attempt,
	)
	pipe.RPush(ctx, hkey, data)
	if s.retention > 0 {
		pipe.Expire(ctx, key, s.retention)
		pipe.Expire(ctx, hkey, s.retention)
	}
	if rec.State == domain.LedgerStateFailed {
		pipe.ZAdd(ctx, keyUnsettled, redis.Z{Score: score, Member: id})
	} else {
		pipe.ZRem(ctx, keyUnsettled, id)
	}
	pipe.ZAdd(ctx, keyRecorded, redis.Z{Score: score, Member: id})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (domain.LedgerRecord, error) {
	data, err := s.client.HGet(ctx, requestKey(id.String()), fieldRecord).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.LedgerRecord{}, ledger.ErrNotFound
	}
	if err != nil {
		return domain.LedgerRecord{}, err
	}
	return decode(data)
}

func (s *Store) History(ctx context.Context, id uuid.UUID) ([]domain.LedgerRecord, error) {
	items, err := s.client.LRange(ctx, historyKey(id.String()), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ledger.ErrNotFound
	}

	out := make([]domain.LedgerRecord, 0, len(items))
	for _, item := range items {
		rec, err := decode([]byte(item))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ListUnsettled reads the unsettled index oldest first. Index entries whose
// request key has expired are dropped from the index.
func (s *Store) ListUnsettled(ctx context.Context, olderThan time.Time, limit int) ([]domain.LedgerRecord, error) {
	ids, err := s.client.ZRangeByScore(ctx, keyUnsettled, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(olderThan.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	var out []domain.LedgerRecord
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.client.ZRem(ctx, keyUnsettled, raw)
			continue
		}
		rec, err := s.Get(ctx, id)
		if errors.Is(err, ledger.ErrNotFound) {
			s.client.ZRem(ctx, keyUnsettled, raw)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.client.ZRangeByScore(ctx, keyRecorded, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids)*2)
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, requestKey(id), historyKey(id))
		members = append(members, id)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, keyUnsettled, members...)
	pipe.ZRem(ctx, keyRecorded, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis pipeline: %w", err)
	}
	return int64(len(ids)), nil
}

func requestKey(id string) string {
	return keyPrefix + id
}

func historyKey(id string) string {
	return keyPrefix + id + ":history"
}

func decode(data []byte) (domain.LedgerRecord, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.LedgerRecord{}, fmt.Errorf("decode ledger record: %w", err)
	}
	return domain.LedgerRecord(r), nil
}

var (
	_ ledger.Store           = (*Store)(nil)
	_ ledger.Reader          = (*Store)(nil)
	_ ledger.UnsettledLister = (*Store)(nil)
	_ ledger.Pruner          = (*Store)(nil)
)
