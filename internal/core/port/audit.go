package port

import (
	"context"
	"errors"

	"github.com/guillermoBallester/tablelog/internal/core/domain"
)

// ErrConnUnavailable is returned by an AuditWriter that could not obtain a
// connection. Callers treat it as a silent skip.
var ErrConnUnavailable = errors.New("audit connection unavailable")

// AuditWriter persists one duration record as one append-only row.
type AuditWriter interface {
	Write(ctx context.Context, rec domain.DurationRecord) error
}

// RejectEntry describes a qualifying event that did not produce a row.
type RejectEntry struct {
	Record domain.DurationRecord
	Reason string
	Err    error
}

// RejectRecorder records qualifying events that were not persisted.
type RejectRecorder interface {
	Record(ctx context.Context, entry RejectEntry)
	Close() error
}

// NoopRejectRecorder discards all entries.
type NoopRejectRecorder struct{}

func (NoopRejectRecorder) Record(context.Context, RejectEntry) {}
func (NoopRejectRecorder) Close() error                        { return nil }
