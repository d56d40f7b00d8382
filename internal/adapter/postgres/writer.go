package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/guillermoBallester/tablelog/internal/core/domain"
	"github.com/guillermoBallester/tablelog/internal/core/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is where duration records land unless configured otherwise.
const DefaultTable = "public.table_log"

const insertRecord = `INSERT INTO %s
	(log_time, remote_host, user_name, database_name, duration_ms, raw_message)
	VALUES ($1, $2, $3, $4, $5, $6)`

// scopedConn is a connection that must be released exactly once.
type scopedConn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Release()
}

type connSource interface {
	acquire(ctx context.Context) (scopedConn, error)
}

type poolSource struct {
	pool *pgxpool.Pool
}

func (p poolSource) acquire(ctx context.Context) (scopedConn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Writer inserts each record in its own transaction on a dedicated pooled
// connection, independent of any transaction the caller is running.
type Writer struct {
	source    connSource
	insertSQL string
	timeout   time.Duration
}

func NewWriter(pool *pgxpool.Pool, table pgx.Identifier, timeout time.Duration) *Writer {
	return newWriter(poolSource{pool: pool}, table, timeout)
}

func newWriter(source connSource, table pgx.Identifier, timeout time.Duration) *Writer {
	return &Writer{
		source:    source,
		insertSQL: fmt.Sprintf(insertRecord, table.Sanitize()),
		timeout:   timeout,
	}
}

// Write persists rec. A connection that cannot be acquired yields
// port.ErrConnUnavailable. Any failure after BEGIN rolls back.
func (w *Writer) Write(ctx context.Context, rec domain.DurationRecord) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	conn, err := w.source.acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", port.ErrConnUnavailable, err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if w.timeout > 0 {
		// SET LOCAL scopes to this transaction only.
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", w.timeout.Milliseconds())); err != nil {
			return fmt.Errorf("setting statement timeout: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, w.insertSQL,
		rec.LogTime, rec.RemoteHost, rec.UserName, rec.DatabaseName, rec.DurationMS, rec.RawMessage,
	); err != nil {
		return fmt.Errorf("inserting table_log row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ParseTableName splits "schema.table" (or "table") into an identifier.
func ParseTableName(name string) (pgx.Identifier, error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid table name %q: expected table or schema.table", name)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid table name %q: empty identifier", name)
		}
	}
	return pgx.Identifier(parts), nil
}
