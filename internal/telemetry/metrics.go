package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	Events        metric.Int64Counter
	Matched       metric.Int64Counter
	Written       metric.Int64Counter
	WriteErrors   metric.Int64Counter
	ParseMisses   metric.Int64Counter
	WriteDuration metric.Float64Histogram
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return newInstrumentsFromMeter(noop.NewMeterProvider().Meter(scopeName))
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	events, _ := meter.Int64Counter("tablelog.events",
		metric.WithDescription("Log events seen while the pipeline was enabled"),
	)
	matched, _ := meter.Int64Counter("tablelog.events.matched",
		metric.WithDescription("Log events recognised as duration reports"),
	)
	written, _ := meter.Int64Counter("tablelog.rows.written",
		metric.WithDescription("Rows inserted into the log table"),
	)
	writeErrors, _ := meter.Int64Counter("tablelog.write.errors",
		metric.WithDescription("Failed log table writes"),
	)
	parseMisses, _ := meter.Int64Counter("tablelog.parse.misses",
		metric.WithDescription("Duration reports without a parsable duration"),
	)
	writeDuration, _ := meter.Float64Histogram("tablelog.write.duration",
		metric.WithDescription("Log table write duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		Events:        events,
		Matched:       matched,
		Written:       written,
		WriteErrors:   writeErrors,
		ParseMisses:   parseMisses,
		WriteDuration: writeDuration,
	}
}

func (i *Instruments) IncrementEvents(ctx context.Context)      { i.Events.Add(ctx, 1) }
func (i *Instruments) IncrementMatched(ctx context.Context)     { i.Matched.Add(ctx, 1) }
func (i *Instruments) IncrementWritten(ctx context.Context)     { i.Written.Add(ctx, 1) }
func (i *Instruments) IncrementWriteErrors(ctx context.Context) { i.WriteErrors.Add(ctx, 1) }
func (i *Instruments) IncrementParseMisses(ctx context.Context) { i.ParseMisses.Add(ctx, 1) }

func (i *Instruments) RecordWriteDuration(ctx context.Context, ms float64) {
	i.WriteDuration.Record(ctx, ms)
}
