package hook

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/guillermoBallester/tablelog/internal/core/domain"
	"github.com/guillermoBallester/tablelog/internal/core/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- test doubles ---

// recordingHandler keeps every record it receives.
type recordingHandler struct {
	mu      sync.Mutex
	level   slog.Level
	records []slog.Record
}

func (r *recordingHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= r.level }

func (r *recordingHandler) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *recordingHandler) WithGroup(string) slog.Handler      { return r }

func (r *recordingHandler) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Message
	}
	return out
}

type fakeProcessor struct {
	mu      sync.Mutex
	enabled bool
	events  []domain.LogEvent
	onEvent func(ctx context.Context, ev domain.LogEvent)
}

func (f *fakeProcessor) Enabled() bool { return f.enabled }

func (f *fakeProcessor) Process(ctx context.Context, ev domain.LogEvent) service.Outcome {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
	if f.onEvent != nil {
		f.onEvent(ctx, ev)
	}
	return service.OutcomeWritten
}

func (f *fakeProcessor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// --- tests ---

func TestHandler_ForwardsAfterProcessing(t *testing.T) {
	next := &recordingHandler{}
	var forwardedBeforeProcess int
	proc := &fakeProcessor{enabled: true}
	proc.onEvent = func(context.Context, domain.LogEvent) {
		forwardedBeforeProcess = len(next.messages())
	}

	logger := slog.New(NewHandler(next, proc))
	logger.Info("duration: 1.5 ms  statement: SELECT 1")

	assert.Equal(t, 0, forwardedBeforeProcess, "record must reach the next handler only after processing")
	assert.Equal(t, []string{"duration: 1.5 ms  statement: SELECT 1"}, next.messages())
	assert.Equal(t, 1, proc.count())
}

func TestHandler_DisabledForwardsUnchanged(t *testing.T) {
	var direct, hooked bytes.Buffer
	opts := &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}
	proc := &fakeProcessor{enabled: false}

	slog.New(slog.NewJSONHandler(&direct, opts)).Info("duration: 2 ms", slog.String("user_name", "app"))
	slog.New(NewHandler(slog.NewJSONHandler(&hooked, opts), proc)).Info("duration: 2 ms", slog.String("user_name", "app"))

	assert.Equal(t, direct.String(), hooked.String())
	assert.Zero(t, proc.count())
}

func TestHandler_ExtractsConnectionContext(t *testing.T) {
	proc := &fakeProcessor{enabled: true}
	logger := slog.New(NewHandler(&recordingHandler{}, proc)).
		With(slog.String(domain.AttrRemoteHost, "10.1.1.1"))

	logger.Warn("duration: 3 ms",
		slog.String(domain.AttrUserName, "alice"),
		slog.String(domain.AttrDatabaseName, "sales"),
	)

	require.Equal(t, 1, proc.count())
	ev := proc.events[0]
	assert.Equal(t, "duration: 3 ms", ev.Message)
	assert.Equal(t, slog.LevelWarn, ev.Severity)
	assert.Equal(t, "10.1.1.1", ev.RemoteHost)
	assert.Equal(t, "alice", ev.UserName)
	assert.Equal(t, "sales", ev.DatabaseName)
	assert.False(t, ev.Time.IsZero())
}

func TestHandler_GroupedAttrsIgnored(t *testing.T) {
	proc := &fakeProcessor{enabled: true}
	logger := slog.New(NewHandler(&recordingHandler{}, proc)).WithGroup("client")

	logger.Info("duration: 3 ms", slog.String(domain.AttrUserName, "alice"))

	require.Equal(t, 1, proc.count())
	assert.Empty(t, proc.events[0].UserName)
}

func TestHandler_RespectsNextLevel(t *testing.T) {
	next := &recordingHandler{level: slog.LevelInfo}
	proc := &fakeProcessor{enabled: true}
	logger := slog.New(NewHandler(next, proc))

	logger.Debug("duration: 4 ms")

	assert.Equal(t, 1, proc.count(), "pipeline sees events below the next handler's level")
	assert.Empty(t, next.messages(), "next handler must not receive records it has not enabled")
}

func TestHandler_RecursionSuppressed(t *testing.T) {
	slot := NewVarSlot(&recordingHandler{})
	proc := &fakeProcessor{enabled: true}
	// The processor logs a new duration report, as a slow INSERT would.
	proc.onEvent = func(ctx context.Context, _ domain.LogEvent) {
		slot.Logger().InfoContext(ctx, "duration: 900 ms  statement: INSERT INTO table_log ...")
	}
	inst := Install(slot, proc)
	defer inst.Uninstall()

	slot.Logger().Info("duration: 1 ms  statement: SELECT 1")

	assert.Equal(t, 1, proc.count())
	next := inst.Previous().(*recordingHandler)
	assert.Equal(t, []string{
		"duration: 900 ms  statement: INSERT INTO table_log ...",
		"duration: 1 ms  statement: SELECT 1",
	}, next.messages())
}

func TestHandler_NestedDepth(t *testing.T) {
	slot := NewVarSlot(&recordingHandler{})
	proc := &fakeProcessor{enabled: true}
	var depth int
	proc.onEvent = func(ctx context.Context, _ domain.LogEvent) { depth = Depth(ctx) }
	inst := Install(slot, proc)
	defer inst.Uninstall()

	slot.Logger().Info("duration: 1 ms")

	assert.Equal(t, 1, depth)
	assert.Equal(t, 2, Depth(Suppress(Suppress(context.Background()))))
}

func TestHandler_ConcurrentEmitters(t *testing.T) {
	const emitters = 100
	next := &recordingHandler{}
	proc := &fakeProcessor{enabled: true}
	proc.onEvent = func(context.Context, domain.LogEvent) { time.Sleep(20 * time.Millisecond) }
	logger := slog.New(NewHandler(next, proc))

	var wg sync.WaitGroup
	for range emitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("duration: 1 ms")
		}()
	}
	wg.Wait()

	assert.Equal(t, emitters, proc.count(), "every concurrent event is processed")
	assert.Len(t, next.messages(), emitters)
}

func TestHandler_CancelledEmitterContext(t *testing.T) {
	proc := &fakeProcessor{enabled: true}
	var procErr error
	var hasDeadline bool
	proc.onEvent = func(ctx context.Context, _ domain.LogEvent) {
		procErr = ctx.Err()
		_, hasDeadline = ctx.Deadline()
	}
	logger := slog.New(NewHandler(&recordingHandler{}, proc))

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	cancel()
	logger.InfoContext(ctx, "duration: 5 ms")

	require.Equal(t, 1, proc.count())
	assert.NoError(t, procErr, "the write must not inherit the emitter's cancellation")
	assert.False(t, hasDeadline)
}

func TestHandler_PanicContained(t *testing.T) {
	next := &recordingHandler{}
	proc := &fakeProcessor{enabled: true}
	proc.onEvent = func(context.Context, domain.LogEvent) { panic("boom") }

	logger := slog.New(NewHandler(next, proc))
	require.NotPanics(t, func() { logger.Info("duration: 1 ms") })

	assert.Equal(t, []string{"table_log pipeline panic", "duration: 1 ms"}, next.messages())
}

func TestHandler_EnabledWhenPipelineOn(t *testing.T) {
	next := &recordingHandler{level: slog.LevelError}
	ctx := context.Background()

	on := NewHandler(next, &fakeProcessor{enabled: true})
	off := NewHandler(next, &fakeProcessor{enabled: false})

	assert.True(t, on.Enabled(ctx, slog.LevelDebug))
	assert.False(t, off.Enabled(ctx, slog.LevelDebug))
	assert.True(t, off.Enabled(ctx, slog.LevelError))
	assert.False(t, on.Enabled(Suppress(ctx), slog.LevelDebug))
}

func TestHandler_NilNext(t *testing.T) {
	proc := &fakeProcessor{enabled: true}
	logger := slog.New(NewHandler(nil, proc))

	require.NotPanics(t, func() { logger.With("k", "v").WithGroup("g").Info("duration: 1 ms") })
	assert.Equal(t, 1, proc.count())
}
