package postgres

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/djlord-it/easy-relay/internal/domain"
)

const (
	tableRequests = "ledger_requests"
	tableEntries  = "ledger_entries"
)

var requestColumns = []string{
	"request_id", "payload_code", "payload_unique_code", "scheduled_at",
	"state", "attempt", "statuses", "messages", "recorded_at",
}

const upsertSuffix = `ON CONFLICT (request_id) DO UPDATE SET
    state = EXCLUDED.state,
    attempt = EXCLUDED.attempt,
    statuses = EXCLUDED.statuses,
    messages = EXCLUDED.messages,
    recorded_at = EXCLUDED.recorded_at`

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func upsertRequest(rec domain.LedgerRecord, statuses, messages string) sq.InsertBuilder {
	return builder.
		Insert(tableRequests).
		Columns(requestColumns...).
		Values(
			rec.RequestID, rec.PayloadCode, rec.PayloadUniqueCode, rec.ScheduledAt,
			string(rec.State), rec.Attempt, statuses, messages, rec.RecordedAt,
		).
		Suffix(upsertSuffix)
}

func insertEntry(rec domain.LedgerRecord, statuses, messages string) sq.InsertBuilder {
	return builder.
		Insert(tableEntries).
		Columns("request_id", "state", "attempt", "statuses", "messages", "recorded_at").
		Values(rec.RequestID, string(rec.State), rec.Attempt, statuses, messages, rec.RecordedAt)
}

func selectRequest(id uuid.UUID) sq.SelectBuilder {
	return builder.
		Select(requestColumns...).
		From(tableRequests).
		Where(sq.Eq{"request_id": id.String()})
}

func selectHistory(id uuid.UUID) sq.SelectBuilder {
	return builder.
		Select(
			"r.request_id", "r.payload_code", "r.payload_unique_code", "r.scheduled_at",
			"e.state", "e.attempt", "e.statuses", "e.messages", "e.recorded_at",
		).
		From(tableEntries + " e").
		Join(tableRequests + " r ON r.request_id = e.request_id").
		Where(sq.Eq{"e.request_id": id.String()}).
		OrderBy("e.id ASC")
}

func selectUnsettled(olderThan time.Time, limit int) sq.SelectBuilder {
	q := builder.
		Select(requestColumns...).
		From(tableRequests).
		Where(sq.Eq{"state": string(domain.LedgerStateFailed)}).
		Where(sq.Lt{"recorded_at": olderThan}).
		OrderBy("recorded_at ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}

func deleteBefore(before time.Time) sq.DeleteBuilder {
	return builder.
		Delete(tableRequests).
		Where(sq.Lt{"recorded_at": before})
}
