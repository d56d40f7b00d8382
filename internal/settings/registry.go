// Package settings holds named, reloadable string settings. Readers always
// see the values of the last successful reload; a reload never blocks them.
package settings

import (
	"fmt"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
)

// EnableSetting switches the table log pipeline on and off.
const EnableSetting = "table_log.enable"

// Setting is the declaration of one named value.
type Setting struct {
	Name        string
	Default     string
	Description string
}

// Source produces the current raw values. Names it does not return fall
// back to their defaults.
type Source interface {
	Load() (map[string]string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (map[string]string, error)

func (f SourceFunc) Load() (map[string]string, error) { return f() }

type Registry struct {
	mu     sync.Mutex // serializes Define and Reload
	defs   map[string]Setting
	source Source
	values atomic.Pointer[map[string]string]
}

// NewRegistry returns an empty registry. A nil source means defaults only.
func NewRegistry(source Source) *Registry {
	r := &Registry{defs: make(map[string]Setting), source: source}
	empty := map[string]string{}
	r.values.Store(&empty)
	return r
}

// Define declares a setting. Its value is the default until the next reload
// provides one.
func (r *Registry) Define(s Setting) error {
	if s.Name == "" {
		return fmt.Errorf("setting name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.defs[s.Name]; ok {
		return fmt.Errorf("setting %q already defined", s.Name)
	}
	r.defs[s.Name] = s

	next := maps.Clone(*r.values.Load())
	next[s.Name] = s.Default
	r.values.Store(&next)
	return nil
}

// Get returns the current value, or "" for an undefined name.
func (r *Registry) Get(name string) string {
	return (*r.values.Load())[name]
}

// Settings lists the declared settings sorted by name.
func (r *Registry) Settings() []Setting {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Setting, 0, len(r.defs))
	for _, s := range r.defs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reload reads the source and publishes a new value set. On error the
// previous values stay in effect. Unknown names are returned so the caller
// can report them.
func (r *Registry) Reload() (unknown []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw := map[string]string{}
	if r.source != nil {
		raw, err = r.source.Load()
		if err != nil {
			return nil, fmt.Errorf("loading settings: %w", err)
		}
	}

	next := make(map[string]string, len(r.defs))
	for name, s := range r.defs {
		if v, ok := raw[name]; ok {
			next[name] = v
		} else {
			next[name] = s.Default
		}
	}
	for name := range raw {
		if _, ok := r.defs[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)

	r.values.Store(&next)
	return unknown, nil
}

// Toggle reads an on/off setting. Only the exact value "on" enables it.
type Toggle struct {
	reg  *Registry
	name string
}

func NewToggle(reg *Registry, name string) *Toggle {
	return &Toggle{reg: reg, name: name}
}

func (t *Toggle) Enabled() bool {
	return t.reg.Get(t.name) == "on"
}
