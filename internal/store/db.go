package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for Postgres (pgx) or SQLite.
type DB struct {
	Client *sql.DB
	Driver string
}

// NewDB opens the database named by url. postgres:// and postgresql:// URLs
// go through pgx; sqlite://path and file: URLs through go-sqlite3. The digest
// table is created when missing.
func NewDB(url string) (*DB, error) {
	driver, dsn, err := parseURL(url)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite3" {
		// one writer at a time
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(time.Hour)

	d := &DB{Client: db, Driver: driver}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return d, fmt.Errorf("store: ping %s: %w", driver, err)
	}
	if err := d.Migrate(ctx); err != nil {
		return d, err
	}
	return d, nil
}

func parseURL(url string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "pgx", url, nil
	case strings.HasPrefix(url, "sqlite://"):
		dsn = strings.TrimPrefix(url, "sqlite://")
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
		return "sqlite3", dsn, nil
	case strings.HasPrefix(url, "file:"), url == ":memory:":
		return "sqlite3", url, nil
	}
	return "", "", fmt.Errorf("store: unsupported database url %q", url)
}

// Migrate creates the digest_log table and its lookup index.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{`
		CREATE TABLE IF NOT EXISTS digest_log (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			items       INTEGER NOT NULL,
			sent_at     TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS digest_log_user_fp ON digest_log (user_id, fingerprint, sent_at)`,
	}
	for _, stmt := range stmts {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// Healthy verifies database connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
