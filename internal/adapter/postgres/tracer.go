package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/guillermoBallester/tablelog/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

// DurationTracer emits a "duration: <ms> ms  statement: <sql>" log event for
// every statement that completed after at least MinDuration. A negative
// MinDuration disables it; zero reports every statement.
//
// Events go to the slog default logger at emit time unless Logger is set,
// so a hook installed after the pool is created still sees them.
type DurationTracer struct {
	MinDuration time.Duration
	Logger      *slog.Logger
}

func NewDurationTracer(minDuration time.Duration, logger *slog.Logger) *DurationTracer {
	return &DurationTracer{MinDuration: minDuration, Logger: logger}
}

func (t *DurationTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if t.MinDuration < 0 {
		return ctx
	}
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: time.Now(), sql: data.SQL})
}

func (t *DurationTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok || t.MinDuration < 0 || data.Err != nil {
		return
	}

	elapsed := time.Since(start.at)
	if elapsed < t.MinDuration {
		return
	}

	t.logger().LogAttrs(ctx, slog.LevelInfo, DurationMessage(elapsed, start.sql), connAttrs(conn)...)
}

func (t *DurationTracer) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// DurationMessage renders a duration report the way PostgreSQL's
// log_min_duration_statement does.
func DurationMessage(elapsed time.Duration, sql string) string {
	ms := float64(elapsed.Microseconds()) / 1000
	return fmt.Sprintf("duration: %.3f ms  statement: %s", ms, sql)
}

func connAttrs(conn *pgx.Conn) []slog.Attr {
	if conn == nil {
		return nil
	}
	cfg := conn.Config()
	return []slog.Attr{
		slog.String(domain.AttrRemoteHost, cfg.Host),
		slog.String(domain.AttrUserName, cfg.User),
		slog.String(domain.AttrDatabaseName, cfg.Database),
	}
}
