package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/djlord-it/easy-relay/internal/domain"
	"github.com/djlord-it/easy-relay/internal/ledger"
)

// PoolConfig tunes the database/sql connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Open connects with the named driver ("postgres" for lib/pq, "pgx" for
// pgx stdlib) and verifies the connection.
func Open(ctx context.Context, driver, dsn string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Store implements the ledger contracts on PostgreSQL. ledger_requests holds
// the latest verdict per request, ledger_entries keeps every verdict.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, rec domain.LedgerRecord) error {
	statuses, messages, err := encodeMaps(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := execBuilt(ctx, tx, upsertRequest(rec, statuses, messages)); err != nil {
		return fmt.Errorf("upsert ledger request: %w", err)
	}
	if err := execBuilt(ctx, tx, insertEntry(rec, statuses, messages)); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return tx.Commit()
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (domain.LedgerRecord, error) {
	query, args, err := selectRequest(id).ToSql()
	if err != nil {
		return domain.LedgerRecord{}, fmt.Errorf("build ledger select: %w", err)
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LedgerRecord{}, ledger.ErrNotFound
	}
	return rec, err
}

func (s *Store) History(ctx context.Context, id uuid.UUID) ([]domain.LedgerRecord, error) {
	result, err := s.queryRecords(ctx, selectHistory(id))
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ledger.ErrNotFound
	}
	return result, nil
}

func (s *Store) ListUnsettled(ctx context.Context, olderThan time.Time, limit int) ([]domain.LedgerRecord, error) {
	return s.queryRecords(ctx, selectUnsettled(olderThan, limit))
}

// Prune deletes requests last recorded before the cutoff. Their entries
// go with them through the foreign key cascade.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := deleteBefore(before).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build ledger prune: %w", err)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *Store) queryRecords(ctx context.Context, b sq.SelectBuilder) ([]domain.LedgerRecord, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ledger select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.LedgerRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execBuilt(ctx context.Context, e execer, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = e.ExecContext(ctx, query, args...)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.LedgerRecord, error) {
	var (
		rec      domain.LedgerRecord
		state    string
		statuses []byte
		messages []byte
	)
	err := row.Scan(
		&rec.RequestID,
		&rec.PayloadCode,
		&rec.PayloadUniqueCode,
		&rec.ScheduledAt,
		&state,
		&rec.Attempt,
		&statuses,
		&messages,
		&rec.RecordedAt,
	)
	if err != nil {
		return domain.LedgerRecord{}, err
	}
	rec.State = domain.LedgerState(state)
	if err := json.Unmarshal(statuses, &rec.Statuses); err != nil {
		return domain.LedgerRecord{}, fmt.Errorf("decode statuses: %w", err)
	}
	if err := json.Unmarshal(messages, &rec.Messages); err != nil {
		return domain.LedgerRecord{}, fmt.Errorf("decode messages: %w", err)
	}
	rec.RecordedAt = rec.RecordedAt.UTC()
	return rec, nil
}

// encodeMaps returns JSON text; lib/pq would send []byte as bytea.
func encodeMaps(rec domain.LedgerRecord) (string, string, error) {
	statuses, err := json.Marshal(rec.Statuses)
	if err != nil {
		return "", "", fmt.Errorf("encode statuses: %w", err)
	}
	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		return "", "", fmt.Errorf("encode messages: %w", err)
	}
	return string(statuses), string(messages), nil
}

var (
	_ ledger.Store           = (*Store)(nil)
	_ ledger.Reader          = (*Store)(nil)
	_ ledger.UnsettledLister = (*Store)(nil)
	_ ledger.Pruner          = (*Store)(nil)
)
