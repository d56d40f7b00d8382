package hook

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/guillermoBallester/tablelog/internal/core/domain"
	"github.com/guillermoBallester/tablelog/internal/core/service"
)

// Processor is the pipeline run for each intercepted event.
type Processor interface {
	Enabled() bool
	Process(ctx context.Context, ev domain.LogEvent) service.Outcome
}

// Handler intercepts every record, runs the pipeline, then forwards the
// record unchanged to the handler that was installed before it.
type Handler struct {
	next   slog.Handler
	proc   Processor
	attrs  []slog.Attr
	groups []string

	runs *tracker
}

// NewHandler wraps next. A nil next drops records after processing.
func NewHandler(next slog.Handler, proc Processor) *Handler {
	return &Handler{
		next: next,
		proc: proc,
		runs: newTracker(),
	}
}

// Next returns the handler records are forwarded to.
func (h *Handler) Next() slog.Handler { return h.next }

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.next != nil && h.next.Enabled(ctx, level) {
		return true
	}
	return !Suppressed(ctx) && h.proc.Enabled()
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if !Suppressed(ctx) && h.proc.Enabled() {
		h.process(ctx, r)
	}

	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *Handler) process(ctx context.Context, r slog.Record) {
	if !h.runs.enter() {
		return
	}
	defer h.runs.exit()

	defer func() {
		if v := recover(); v != nil {
			h.report(ctx, fmt.Sprintf("%v", v))
		}
	}()

	h.proc.Process(detach(ctx), h.event(r))
}

// report sends a pipeline failure straight to the next handler.
func (h *Handler) report(ctx context.Context, panicValue string) {
	if h.next == nil || !h.next.Enabled(ctx, slog.LevelError) {
		return
	}
	rec := slog.NewRecord(time.Now(), slog.LevelError, "table_log pipeline panic", 0)
	rec.AddAttrs(slog.String("panic", panicValue))
	_ = h.next.Handle(Suppress(ctx), rec)
}

func (h *Handler) event(r slog.Record) domain.LogEvent {
	ev := domain.LogEvent{
		Time:     r.Time,
		Message:  r.Message,
		Severity: r.Level,
	}
	for _, a := range h.attrs {
		applyAttr(&ev, a)
	}
	if len(h.groups) == 0 {
		r.Attrs(func(a slog.Attr) bool {
			applyAttr(&ev, a)
			return true
		})
	}
	return ev
}

func applyAttr(ev *domain.LogEvent, a slog.Attr) {
	switch a.Key {
	case domain.AttrRemoteHost:
		ev.RemoteHost = a.Value.Resolve().String()
	case domain.AttrUserName:
		ev.UserName = a.Value.Resolve().String()
	case domain.AttrDatabaseName:
		ev.DatabaseName = a.Value.Resolve().String()
	}
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	if h.next != nil {
		h2.next = h.next.WithAttrs(attrs)
	}
	// Connection attributes are only recognised at the top level.
	if len(h.groups) == 0 {
		h2.attrs = append(slices.Clip(h.attrs), attrs...)
	}
	return h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	if h.next != nil {
		h2.next = h.next.WithGroup(name)
	}
	h2.groups = append(slices.Clip(h.groups), name)
	return h2
}

func (h *Handler) clone() *Handler {
	h2 := *h
	return &h2
}
