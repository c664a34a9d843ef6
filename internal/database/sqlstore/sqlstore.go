// Package sqlstore implements database.Store on top of database/sql.
// Backends (postgres, mariadb, sqlite) provide the connection and a Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// Dialect captures the differences between SQL backends.
type Dialect struct {
	// Name identifies the backend in errors and logs
	Name string
	// NumberedPlaceholders rewrites "?" placeholders to "$1", "$2", ...
	NumberedPlaceholders bool
	// IsUniqueViolation reports whether err is a unique/primary key constraint violation
	IsUniqueViolation func(err error) bool
}

// Store is a database.Store backed by a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ database.Store = (*Store)(nil)

// New creates a store on an open database handle. The caller runs migrations.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB returns the underlying sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("closing %s connection: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// Rebind converts "?" placeholders for the dialect.
func (s *Store) Rebind(query string) string {
	return Rebind(s.dialect, query)
}

// Rebind converts "?" placeholders to numbered placeholders when the dialect needs them.
func Rebind(d Dialect, query string) string {
	if !d.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) isUniqueViolation(err error) bool {
	return err != nil && s.dialect.IsUniqueViolation != nil && s.dialect.IsUniqueViolation(err)
}

// withTx runs fn in a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, q queryer, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, s.Rebind(query), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
