package hook

import (
	"context"
	"log/slog"
	"sync"
)

// Installation is the state of one installed pipeline: the slot it was
// installed into and the handler that occupied the slot before it.
type Installation struct {
	mu      sync.Mutex
	slot    Slot
	prev    slog.Handler
	handler *Handler
	active  bool
}

// Install puts a pipeline Handler at the head of slot, keeping the current
// handler as the next link of the chain. Installing twice into the same
// slot stacks two handlers; callers install once.
func Install(slot Slot, proc Processor) *Installation {
	prev := slot.Handler()
	h := NewHandler(prev, proc)
	slot.SetHandler(h)
	return &Installation{
		slot:    slot,
		prev:    prev,
		handler: h,
		active:  true,
	}
}

// Previous returns the handler that was in the slot before Install.
func (i *Installation) Previous() slog.Handler { return i.prev }

// Handler returns the installed pipeline handler.
func (i *Installation) Handler() *Handler { return i.handler }

// Uninstall restores the previous handler. Later calls do nothing.
func (i *Installation) Uninstall() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.active {
		return
	}
	i.slot.SetHandler(i.prev)
	i.active = false
}

// Shutdown uninstalls the handler, then waits until every pipeline run that
// already started has finished, or ctx is done. Loggers still holding the
// handler keep forwarding, but no longer process events.
func (i *Installation) Shutdown(ctx context.Context) error {
	i.Uninstall()
	return i.handler.runs.drain(ctx)
}
