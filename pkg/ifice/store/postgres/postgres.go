package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/cognicore/ifice/pkg/ifice/internalerr"
	"github.com/cognicore/ifice/pkg/ifice/store"
)

const uniqueViolation = "23505"

// Store implements store.Store on PostgreSQL. The counter upsert takes the
// row lock of the scope, so concurrent allocators queue on that row only.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle. It does not create tables; call
// Migrate or use Open.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects with a lib/pq DSN, verifies the connection and migrates.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS sequence_counters (
	industry_code CHAR(3) NOT NULL,
	region_code CHAR(2) NOT NULL,
	year INTEGER NOT NULL,
	current_value BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (industry_code, region_code, year)
);

CREATE TABLE IF NOT EXISTS factory_identifiers (
	id TEXT PRIMARY KEY,
	composite_id TEXT NOT NULL UNIQUE,
	legacy_id TEXT NOT NULL UNIQUE,
	industry_code CHAR(3) NOT NULL,
	region_code CHAR(2) NOT NULL,
	year INTEGER NOT NULL,
	sequence_number BIGINT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	needs_confirmation BOOLEAN NOT NULL,
	reasoning JSONB NOT NULL,
	taxonomy_version TEXT NOT NULL,
	issued_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_factory_identifiers_pending
	ON factory_identifiers (issued_at) WHERE needs_confirmation;
`

// Migrate creates the tables if they don't exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: migrate: %v", internalerr.ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const allocateQuery = `
INSERT INTO sequence_counters (industry_code, region_code, year, current_value, updated_at)
VALUES ($1, $2, $3, 1, NOW())
ON CONFLICT (industry_code, region_code, year) DO UPDATE SET
	current_value = sequence_counters.current_value + 1,
	updated_at = NOW()
RETURNING current_value`

// Allocate increments and returns the scope counter in one statement.
func (s *Store) Allocate(ctx context.Context, scope store.Scope) (int64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	var value int64
	if err := tx.QueryRowContext(ctx, allocateQuery, scope.Industry, scope.Region, scope.Year).Scan(&value); err != nil {
		return 0, unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable(err)
	}
	return value, nil
}

// Current returns the last allocated value, 0 for an unused scope.
func (s *Store) Current(ctx context.Context, scope store.Scope) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT current_value FROM sequence_counters WHERE industry_code = $1 AND region_code = $2 AND year = $3`,
		scope.Industry, scope.Region, scope.Year,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable(err)
	}
	return value, nil
}

const insertRecord = `
INSERT INTO factory_identifiers (
	id, composite_id, legacy_id, industry_code, region_code, year, sequence_number,
	confidence, needs_confirmation, reasoning, taxonomy_version, issued_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// Record inserts an issued identifier.
func (s *Store) Record(ctx context.Context, r store.Record) error {
	reasoning, err := json.Marshal(r.Reasoning)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertRecord,
		r.ID, r.CompositeID, r.LegacyID, r.Scope.Industry, r.Scope.Region, r.Scope.Year, r.Sequence,
		r.Confidence, r.NeedsConfirmation, string(reasoning), r.TaxonomyVersion, r.IssuedAt.UTC(),
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", internalerr.ErrDuplicate, r.CompositeID)
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

const selectRecord = `
SELECT id, composite_id, legacy_id, industry_code, region_code, year, sequence_number,
	confidence, needs_confirmation, reasoning, taxonomy_version, issued_at
FROM factory_identifiers`

// Get loads one record by composite ID.
func (s *Store) Get(ctx context.Context, compositeID string) (store.Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+` WHERE composite_id = $1`, compositeID)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, fmt.Errorf("%w: %s", internalerr.ErrNotFound, compositeID)
	}
	if err != nil {
		return store.Record{}, unavailable(err)
	}
	return r, nil
}

// Pending lists records flagged for review, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]store.Record, error) {
	if limit <= 0 {
		limit = store.DefaultPendingLimit
	}
	rows, err := s.db.QueryContext(ctx,
		selectRecord+` WHERE needs_confirmation ORDER BY issued_at ASC, composite_id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Confirm clears the review flag.
func (s *Store) Confirm(ctx context.Context, compositeID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE factory_identifiers SET needs_confirmation = FALSE WHERE composite_id = $1`, compositeID)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", internalerr.ErrNotFound, compositeID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (store.Record, error) {
	var (
		r         store.Record
		reasoning []byte
		issuedAt  time.Time
	)
	err := row.Scan(
		&r.ID, &r.CompositeID, &r.LegacyID, &r.Scope.Industry, &r.Scope.Region, &r.Scope.Year, &r.Sequence,
		&r.Confidence, &r.NeedsConfirmation, &reasoning, &r.TaxonomyVersion, &issuedAt,
	)
	if err != nil {
		return store.Record{}, err
	}
	if err := json.Unmarshal(reasoning, &r.Reasoning); err != nil {
		return store.Record{}, fmt.Errorf("corrupt reasoning for %s: %w", r.CompositeID, err)
	}
	r.IssuedAt = issuedAt.UTC()
	return r, nil
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
}
