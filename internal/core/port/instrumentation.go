package port

import "context"

// Instrumentation records pipeline metrics.
type Instrumentation interface {
	IncrementEvents(ctx context.Context)
	IncrementMatched(ctx context.Context)
	IncrementWritten(ctx context.Context)
	IncrementWriteErrors(ctx context.Context)
	IncrementParseMisses(ctx context.Context)
	RecordWriteDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) IncrementEvents(context.Context)              {}
func (NoopInstrumentation) IncrementMatched(context.Context)             {}
func (NoopInstrumentation) IncrementWritten(context.Context)             {}
func (NoopInstrumentation) IncrementWriteErrors(context.Context)         {}
func (NoopInstrumentation) IncrementParseMisses(context.Context)         {}
func (NoopInstrumentation) RecordWriteDuration(context.Context, float64) {}
