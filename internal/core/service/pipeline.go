package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/guillermoBallester/tablelog/internal/core/domain"
	"github.com/guillermoBallester/tablelog/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Outcome describes what the pipeline did with one event.
type Outcome int

const (
	OutcomeDisabled    Outcome = iota // toggle off
	OutcomeSkipped                    // not a duration report
	OutcomeRejected                   // qualifying, but no duration could be parsed
	OutcomeUnavailable                // no connection; write skipped
	OutcomeFailed                     // write attempted and failed
	OutcomeWritten                    // one row persisted
)

var outcomeNames = [...]string{"disabled", "skipped", "rejected", "unavailable", "failed", "written"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Pipeline runs filter, parse, timestamp and write for each log event.
type Pipeline struct {
	toggle  port.Toggle
	clock   *domain.Clock
	writer  port.AuditWriter
	rejects port.RejectRecorder
	logger  *slog.Logger
	tracer  trace.Tracer
	inst    port.Instrumentation
}

func NewPipeline(toggle port.Toggle, clock *domain.Clock, writer port.AuditWriter, rejects port.RejectRecorder, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *Pipeline {
	if clock == nil {
		clock = domain.NewClock("UTC")
	}
	if rejects == nil {
		rejects = port.NoopRejectRecorder{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &Pipeline{
		toggle:  toggle,
		clock:   clock,
		writer:  writer,
		rejects: rejects,
		logger:  logger,
		tracer:  tracer,
		inst:    inst,
	}
}

// Enabled reads the toggle. It is consulted on every event.
func (p *Pipeline) Enabled() bool {
	return p.toggle.Enabled()
}

// Process handles one event to completion. It never returns an error:
// failures are logged, counted and reported through the Outcome.
func (p *Pipeline) Process(ctx context.Context, ev domain.LogEvent) Outcome {
	// log_time is the wall clock when the event is handled, taken for
	// every event before the toggle is read.
	logTime := p.clock.Now()

	if !p.toggle.Enabled() {
		return OutcomeDisabled
	}
	p.inst.IncrementEvents(ctx)

	if !domain.IsDurationReport(ev.Message) {
		return OutcomeSkipped
	}
	p.inst.IncrementMatched(ctx)

	rec, err := domain.ParseRecord(ev, logTime)
	if err != nil {
		p.inst.IncrementParseMisses(ctx)
		p.logger.DebugContext(ctx, "duration report without parsable duration",
			slog.String("error.type", "parse_error"),
			slog.String("raw_message", domain.Truncate(ev.Message, domain.MaxRawMessageLen)),
		)
		p.rejects.Record(ctx, port.RejectEntry{
			Record: domain.DurationRecord{
				LogTime:      logTime,
				RemoteHost:   ev.RemoteHost,
				UserName:     ev.UserName,
				DatabaseName: ev.DatabaseName,
				RawMessage:   domain.Truncate(ev.Message, domain.MaxRawMessageLen),
			},
			Reason: OutcomeRejected.String(),
			Err:    err,
		})
		return OutcomeRejected
	}

	return p.write(ctx, rec)
}

func (p *Pipeline) write(ctx context.Context, rec domain.DurationRecord) Outcome {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Write",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation.name", "insert"),
			attribute.String("db.namespace", rec.DatabaseName),
			attribute.Float64("tablelog.duration_ms", rec.DurationMS),
		),
	)
	defer span.End()

	start := time.Now()
	err := p.writer.Write(ctx, rec)
	p.inst.RecordWriteDuration(ctx, float64(time.Since(start).Microseconds())/1000)

	if err == nil {
		p.inst.IncrementWritten(ctx)
		return OutcomeWritten
	}

	outcome := OutcomeFailed
	level := slog.LevelWarn
	if errors.Is(err, port.ErrConnUnavailable) {
		outcome = OutcomeUnavailable
		level = slog.LevelDebug
	} else {
		p.inst.IncrementWriteErrors(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	p.logger.LogAttrs(ctx, level, "table_log write skipped",
		slog.String("outcome", outcome.String()),
		slog.String("error.message", err.Error()),
	)
	p.rejects.Record(ctx, port.RejectEntry{Record: rec, Reason: outcome.String(), Err: err})

	return outcome
}
