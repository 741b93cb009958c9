// Package audit persists one row per terminal dispatch outcome to
// PostgreSQL. It is optional: a nil *Log disables recording entirely, and
// no dispatch decision ever depends on whether a row was written.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS delivery_log (
	id           BIGSERIAL PRIMARY KEY,
	message_id   TEXT        NOT NULL,
	business_id  TEXT        NOT NULL,
	printer_id   TEXT        NOT NULL DEFAULT '',
	file_name    TEXT        NOT NULL DEFAULT '',
	outcome      TEXT        NOT NULL,
	retryable    BOOLEAN     NOT NULL DEFAULT false,
	duplicate    BOOLEAN     NOT NULL DEFAULT false,
	last_error   TEXT        NOT NULL DEFAULT '',
	duration_ms  INTEGER     NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertEntry = `
INSERT INTO delivery_log
	(message_id, business_id, printer_id, file_name, outcome, retryable, duplicate, last_error, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// Entry is one recorded dispatch outcome.
type Entry struct {
	MessageID  string
	BusinessID string
	PrinterID  string
	FileName   string
	Outcome    string
	Retryable  bool
	Duplicate  bool
	LastError  string
	DurationMs int64
}

// Log writes audit entries to a pgx connection pool.
type Log struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// New creates a Log backed by a connection pool, verifies connectivity, and
// ensures the delivery_log table exists.
func New(ctx context.Context, databaseURL string, minConns, maxConns int32, connectTimeout time.Duration, log zerolog.Logger) (*Log, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit: parse database URL: %w", err)
	}

	cfg.MinConns = minConns
	cfg.MaxConns = maxConns
	cfg.MaxConnLifetime = 1 * time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = 1 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("audit: create pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ping database: %w", err)
	}

	if _, err := pool.Exec(connectCtx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ensure schema: %w", err)
	}

	return &Log{pool: pool, log: log}, nil
}

// Record inserts one entry. Failures are logged and swallowed; the
// dispatch outcome has already been decided by the time this runs.
func (l *Log) Record(ctx context.Context, e Entry) {
	if l == nil {
		return
	}

	_, err := l.pool.Exec(ctx, insertEntry,
		e.MessageID, e.BusinessID, e.PrinterID, e.FileName,
		e.Outcome, e.Retryable, e.Duplicate, e.LastError, e.DurationMs,
	)
	if err != nil {
		l.log.Error().Err(err).
			Str("message_id", e.MessageID).
			Str("outcome", e.Outcome).
			Msg("failed to write audit entry")
	}
}

// Close releases the connection pool.
func (l *Log) Close() {
	if l == nil {
		return
	}
	l.pool.Close()
}
