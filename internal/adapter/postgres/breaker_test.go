package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/guillermoBallester/tablelog/internal/core/domain"
	"github.com/guillermoBallester/tablelog/internal/core/port"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWriter struct {
	calls int
	err   error
}

func (c *countingWriter) Write(context.Context, domain.DurationRecord) error {
	c.calls++
	return c.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBreakerWriter_PassesThrough(t *testing.T) {
	inner := &countingWriter{}
	b := NewBreakerWriter(inner, BreakerSettings{}, discardLogger())

	require.NoError(t, b.Write(context.Background(), domain.DurationRecord{}))
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerWriter_OpensAfterFailures(t *testing.T) {
	inner := &countingWriter{err: errors.New("connection refused")}
	b := NewBreakerWriter(inner, BreakerSettings{ConsecutiveFailures: 3, OpenTimeout: time.Minute}, discardLogger())
	ctx := context.Background()

	for range 3 {
		err := b.Write(ctx, domain.DurationRecord{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, port.ErrConnUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Write(ctx, domain.DurationRecord{})
	require.ErrorIs(t, err, port.ErrConnUnavailable)
	assert.Equal(t, 3, inner.calls, "open breaker must not call the writer")
}

func TestBreakerWriter_HalfOpenRecovers(t *testing.T) {
	inner := &countingWriter{err: errors.New("connection refused")}
	b := NewBreakerWriter(inner, BreakerSettings{ConsecutiveFailures: 1, OpenTimeout: 50 * time.Millisecond}, discardLogger())
	ctx := context.Background()

	require.Error(t, b.Write(ctx, domain.DurationRecord{}))
	require.Equal(t, gobreaker.StateOpen, b.State())

	inner.err = nil
	require.Eventually(t, func() bool {
		return b.State() == gobreaker.StateHalfOpen
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, b.Write(ctx, domain.DurationRecord{}))
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
