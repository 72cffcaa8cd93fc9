package ledger

import (
	"context"

	"go.uber.org/multierr"

	"github.com/djlord-it/easy-relay/internal/domain"
)

// Fanout appends every record to all stores and reports their combined errors.
type Fanout []Store

func (f Fanout) Append(ctx context.Context, rec domain.LedgerRecord) error {
	var err error
	for _, s := range f {
		err = multierr.Append(err, s.Append(ctx, rec))
	}
	return err
}
