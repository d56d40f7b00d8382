package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/guillermoBallester/tablelog/internal/core/domain"
	"github.com/guillermoBallester/tablelog/internal/core/port"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures BreakerWriter.
type BreakerSettings struct {
	ConsecutiveFailures uint32        // trips after this many failures in a row
	OpenTimeout         time.Duration // how long to short-circuit before probing again
}

// BreakerWriter stops calling a failing AuditWriter for a while, so a
// broken store costs each log call nothing instead of a full timeout.
type BreakerWriter struct {
	next port.AuditWriter
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerWriter(next port.AuditWriter, s BreakerSettings, logger *slog.Logger) *BreakerWriter {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "table_log-writer",
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("table_log writer circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &BreakerWriter{next: next, cb: cb}
}

// Write forwards to the wrapped writer unless the breaker is open, in which
// case the write is reported as port.ErrConnUnavailable.
func (b *BreakerWriter) Write(ctx context.Context, rec domain.DurationRecord) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Write(ctx, rec)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", port.ErrConnUnavailable, err)
	}
	return err
}

// State exposes the breaker state for diagnostics.
func (b *BreakerWriter) State() gobreaker.State {
	return b.cb.State()
}
