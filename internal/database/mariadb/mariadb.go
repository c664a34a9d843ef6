package mariadb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/sqlstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// erDupEntry is the MySQL/MariaDB error number for duplicate key violations.
const erDupEntry = 1062

// Dialect is the MariaDB dialect for sqlstore.
var Dialect = sqlstore.Dialect{
	Name:              "mariadb",
	IsUniqueViolation: isUniqueViolation,
}

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	db, err := sql.Open("mysql", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Open connects, runs migrations and returns the attendance store.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*sqlstore.Store, error) {
	pool, err := NewPool(cfg)
	if err != nil {
		return nil, err
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("migrations fs: %w", err)
	}
	if _, err := sqlstore.Migrate(ctx, pool.db, Dialect, sub); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return sqlstore.New(pool.db, Dialect), nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == erDupEntry
	}
	return false
}
