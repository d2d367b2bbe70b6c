package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a tenant-scoped lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrSlotUnavailable is returned when a booking would exceed slot capacity
	ErrSlotUnavailable = errors.New("slot no longer available")
	// ErrStaleRecord is returned when a row changed between read and guarded write
	ErrStaleRecord = errors.New("record changed since it was read")
)

// DB wraps the shared connection pool
type DB struct {
	*sql.DB
}

// New opens a Postgres pool and verifies connectivity
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: conn}, nil
}

// WithTx runs fn inside a transaction, committing on success
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("failed to rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// trailingScanner appends extra destinations after the entity columns
type trailingScanner struct {
	row   rowScanner
	extra []any
}

func (t trailingScanner) Scan(dest ...any) error {
	return t.row.Scan(append(dest, t.extra...)...)
}

func withTrailing(row rowScanner, extra ...any) rowScanner {
	return trailingScanner{row: row, extra: extra}
}

// sqlLimit binds a non-positive limit as LIMIT NULL, which Postgres reads as no limit
func sqlLimit(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}

// Ranked is a record scored by cosine similarity (1 - pgvector cosine distance)
type Ranked[T any] struct {
	Item       T
	Similarity float64
}

// RecordRef points at a row that needs background work
type RecordRef struct {
	ID       int64
	TenantID int64
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullableInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullableTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
