package port

// Toggle reports whether the pipeline is switched on. Implementations must
// read the current value on every call.
type Toggle interface {
	Enabled() bool
}

// StaticToggle is a fixed Toggle.
type StaticToggle bool

func (s StaticToggle) Enabled() bool { return bool(s) }
