package hook

import (
	"log/slog"
	"sync"
)

// Slot is a replaceable "current handler" reference.
type Slot interface {
	Handler() slog.Handler
	SetHandler(h slog.Handler)
}

// DefaultSlot is the process-wide slog default logger.
//
// The previous handler must not be slog's built-in default handler: that
// handler writes through the log package, which slog.SetDefault redirects
// back into the new handler. Set a concrete handler first.
type DefaultSlot struct{}

func (DefaultSlot) Handler() slog.Handler { return slog.Default().Handler() }

func (DefaultSlot) SetHandler(h slog.Handler) { slog.SetDefault(slog.New(h)) }

// VarSlot is a standalone slot for hosts that hand out their own loggers.
type VarSlot struct {
	mu sync.RWMutex
	h  slog.Handler
}

func NewVarSlot(h slog.Handler) *VarSlot {
	return &VarSlot{h: h}
}

func (s *VarSlot) Handler() slog.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.h
}

func (s *VarSlot) SetHandler(h slog.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h = h
}

// Logger returns a logger bound to the slot's current handler.
func (s *VarSlot) Logger() *slog.Logger {
	return slog.New(s.Handler())
}
