package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djlord-it/easy-relay/internal/domain"
)

func testRecord() domain.LedgerRecord {
	return domain.LedgerRecord{
		RequestID:   uuid.New(),
		PayloadCode: "QR123",
		ScheduledAt: "2024-03-01T08:30:00Z",
		State:       domain.LedgerStateFailed,
		Attempt:     2,
		RecordedAt:  time.Date(2024, 3, 1, 8, 31, 0, 0, time.UTC),
	}
}

func TestUpsertRequest(t *testing.T) {
	rec := testRecord()
	query, args, err := upsertRequest(rec, `{"primary":"failed"}`, `{"primary":"err1"}`).ToSql()
	require.NoError(t, err)

	assert.Contains(t, query, "INSERT INTO ledger_requests")
	assert.Contains(t, query, "$9")
	assert.Contains(t, query, "ON CONFLICT (request_id) DO UPDATE SET")
	assert.NotContains(t, query, "payload_code = EXCLUDED", "identity columns are never rewritten")
	require.Len(t, args, 9)
	assert.Equal(t, rec.RequestID, args[0])
	assert.Equal(t, "failed", args[4])
	assert.Equal(t, 2, args[5])
	assert.Equal(t, `{"primary":"failed"}`, args[6])
}

func TestInsertEntry(t *testing.T) {
	rec := testRecord()
	query, args, err := insertEntry(rec, "{}", "{}").ToSql()
	require.NoError(t, err)

	assert.Contains(t, query, "INSERT INTO ledger_entries")
	assert.Len(t, args, 6)
}

func TestSelectHistory_OrdersByInsertion(t *testing.T) {
	id := uuid.New()
	query, args, err := selectHistory(id).ToSql()
	require.NoError(t, err)

	assert.Contains(t, query, "JOIN ledger_requests r ON r.request_id = e.request_id")
	assert.Contains(t, query, "WHERE e.request_id = $1")
	assert.Contains(t, query, "ORDER BY e.id ASC")
	assert.Equal(t, []any{id.String()}, args)
}

func TestSelectUnsettled(t *testing.T) {
	cutoff := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	query, args, err := selectUnsettled(cutoff, 50).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "WHERE state = $1 AND recorded_at < $2")
	assert.Contains(t, query, "ORDER BY recorded_at ASC")
	assert.Contains(t, query, "LIMIT 50")
	assert.Equal(t, []any{"failed", cutoff}, args)

	query, _, err = selectUnsettled(cutoff, 0).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, query, "LIMIT")
}

func TestDeleteBefore(t *testing.T) {
	cutoff := time.Now()
	query, args, err := deleteBefore(cutoff).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "DELETE FROM ledger_requests WHERE recorded_at < $1", query)
	assert.Equal(t, []any{cutoff}, args)
}

func TestEncodeMaps(t *testing.T) {
	rec := testRecord()
	rec.Statuses = map[domain.Category]domain.Status{domain.CategoryPrimary: domain.StatusSuccess}
	rec.Messages = map[domain.Category]string{domain.CategoryPrimary: "ok"}

	statuses, messages, err := encodeMaps(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"primary":"success"}`, statuses)
	assert.JSONEq(t, `{"primary":"ok"}`, messages)
}
