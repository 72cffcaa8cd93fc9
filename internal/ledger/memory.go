package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-relay/internal/domain"
)

// MemoryStore keeps the ledger in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	latest  map[uuid.UUID]domain.LedgerRecord
	history map[uuid.UUID][]domain.LedgerRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		latest:  make(map[uuid.UUID]domain.LedgerRecord),
		history: make(map[uuid.UUID][]domain.LedgerRecord),
	}
}

func (m *MemoryStore) Append(_ context.Context, rec domain.LedgerRecord) error {
	rec = clone(rec)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[rec.RequestID] = rec
	m.history[rec.RequestID] = append(m.history[rec.RequestID], rec)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (domain.LedgerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.latest[id]
	if !ok {
		return domain.LedgerRecord{}, ErrNotFound
	}
	return clone(rec), nil
}

func (m *MemoryStore) History(_ context.Context, id uuid.UUID) ([]domain.LedgerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.history[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]domain.LedgerRecord, len(h))
	for i, rec := range h {
		out[i] = clone(rec)
	}
	return out, nil
}

func (m *MemoryStore) ListUnsettled(_ context.Context, olderThan time.Time, limit int) ([]domain.LedgerRecord, error) {
	m.mu.RLock()
	var out []domain.LedgerRecord
	for _, rec := range m.latest {
		if rec.State == domain.LedgerStateFailed && rec.RecordedAt.Before(olderThan) {
			out = append(out, clone(rec))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, rec := range m.latest {
		if rec.RecordedAt.Before(before) {
			delete(m.latest, id)
			delete(m.history, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of distinct requests recorded.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.latest)
}

func clone(rec domain.LedgerRecord) domain.LedgerRecord {
	statuses := make(map[domain.Category]domain.Status, len(rec.Statuses))
	for k, v := range rec.Statuses {
		statuses[k] = v
	}
	messages := make(map[domain.Category]string, len(rec.Messages))
	for k, v := range rec.Messages {
		messages[k] = v
	}
	rec.Statuses = statuses
	rec.Messages = messages
	return rec
}
