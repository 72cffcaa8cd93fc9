package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-relay/internal/domain"
)

var ErrNotFound = errors.New("ledger: request not found")

// Store persists ledger records. Append keeps the full history and
// updates the latest state of the request.
type Store interface {
	Append(ctx context.Context, rec domain.LedgerRecord) error
}

// Reader serves lookups for the API.
type Reader interface {
	Get(ctx context.Context, id uuid.UUID) (domain.LedgerRecord, error)
	History(ctx context.Context, id uuid.UUID) ([]domain.LedgerRecord, error)
}

// UnsettledLister returns requests whose latest state is failed and whose
// last record is older than the given time, oldest first.
type UnsettledLister interface {
	ListUnsettled(ctx context.Context, olderThan time.Time, limit int) ([]domain.LedgerRecord, error)
}

// Pruner removes requests whose latest record is older than before.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}
