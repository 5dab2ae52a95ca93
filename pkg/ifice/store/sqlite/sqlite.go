package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/cognicore/ifice/pkg/ifice/internalerr"
	"github.com/cognicore/ifice/pkg/ifice/store"
)

// timeLayout is fixed width so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements store.Store on a SQLite file. Counters survive restarts.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database with WAL mode enabled.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	// A single connection serializes writers inside this process; the busy
	// timeout covers other processes sharing the file.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", internalerr.ErrStoreUnavailable, pragma, err)
		}
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS sequence_counters (
	industry_code TEXT NOT NULL,
	region_code TEXT NOT NULL,
	year INTEGER NOT NULL,
	current_value INTEGER NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY(industry_code, region_code, year)
);

CREATE TABLE IF NOT EXISTS factory_identifiers (
	id TEXT PRIMARY KEY,
	composite_id TEXT NOT NULL UNIQUE,
	legacy_id TEXT NOT NULL UNIQUE,
	industry_code TEXT NOT NULL,
	region_code TEXT NOT NULL,
	year INTEGER NOT NULL,
	sequence_number INTEGER NOT NULL,
	confidence REAL NOT NULL,
	needs_confirmation INTEGER NOT NULL,
	reasoning TEXT NOT NULL,
	taxonomy_version TEXT NOT NULL,
	issued_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_factory_identifiers_pending
	ON factory_identifiers(needs_confirmation, issued_at);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Allocate increments and returns the scope counter in one statement. The
// row is created on first use.
func (s *Store) Allocate(ctx context.Context, scope store.Scope) (int64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable(err)
	}
	defer tx.Rollback()

	const stmt = `
INSERT INTO sequence_counters (industry_code, region_code, year, current_value, updated_at)
VALUES (?, ?, ?, 1, ?)
ON CONFLICT(industry_code, region_code, year) DO UPDATE SET
	current_value = current_value + 1,
	updated_at = excluded.updated_at
RETURNING current_value;
`
	var value int64
	err = tx.QueryRowContext(ctx, stmt,
		scope.Industry, scope.Region, scope.Year,
		time.Now().UTC().Format(timeLayout),
	).Scan(&value)
	if err != nil {
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
	err := s.db.QueryRowContext(ctx, `
SELECT current_value FROM sequence_counters
WHERE industry_code = ? AND region_code = ? AND year = ?;
`, scope.Industry, scope.Region, scope.Year).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable(err)
	}
	return value, nil
}

// Record inserts an issued identifier.
func (s *Store) Record(ctx context.Context, r store.Record) error {
	reasoning, err := json.Marshal(r.Reasoning)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO factory_identifiers (
	id, composite_id, legacy_id, industry_code, region_code, year, sequence_number,
	confidence, needs_confirmation, reasoning, taxonomy_version, issued_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		r.ID, r.CompositeID, r.LegacyID, r.Scope.Industry, r.Scope.Region, r.Scope.Year, r.Sequence,
		r.Confidence, r.NeedsConfirmation, string(reasoning), r.TaxonomyVersion,
		r.IssuedAt.UTC().Format(timeLayout),
	)
	if isConstraint(err) {
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
FROM factory_identifiers
`

// Get loads one record by composite ID.
func (s *Store) Get(ctx context.Context, compositeID string) (store.Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+"WHERE composite_id = ?;", compositeID)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, fmt.Errorf("%w: %s", internalerr.ErrNotFound, compositeID)
	}
	return r, err
}

// Pending lists records flagged for review, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]store.Record, error) {
	if limit <= 0 {
		limit = store.DefaultPendingLimit
	}
	rows, err := s.db.QueryContext(ctx, selectRecord+`
WHERE needs_confirmation = 1
ORDER BY issued_at ASC, composite_id ASC
LIMIT ?;
`, limit)
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
		`UPDATE factory_identifiers SET needs_confirmation = 0 WHERE composite_id = ?;`, compositeID)
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
		reasoning string
		issuedAt  string
	)
	err := row.Scan(
		&r.ID, &r.CompositeID, &r.LegacyID, &r.Scope.Industry, &r.Scope.Region, &r.Scope.Year, &r.Sequence,
		&r.Confidence, &r.NeedsConfirmation, &reasoning, &r.TaxonomyVersion, &issuedAt,
	)
	if err != nil {
		return store.Record{}, err
	}
	if err := json.Unmarshal([]byte(reasoning), &r.Reasoning); err != nil {
		return store.Record{}, fmt.Errorf("corrupt reasoning for %s: %w", r.CompositeID, err)
	}
	if r.IssuedAt, err = time.Parse(timeLayout, issuedAt); err != nil {
		return store.Record{}, fmt.Errorf("corrupt issued_at for %s: %w", r.CompositeID, err)
	}
	return r, nil
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

// unavailable marks driver failures; context errors pass through untouched.
func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
}
