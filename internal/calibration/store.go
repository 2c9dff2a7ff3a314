package calibration

import (
	"sync/atomic"
)

// Store holds the engine's live Params as a whole-value, lock-free
// swap (spec §3: "replacements are whole-value swaps, no partial
// updates"). The stress engine reads through Store on every snapshot;
// a calibration batch job publishes a new Report's Params once fit
// completes, without blocking readers.
type Store struct {
	current atomic.Pointer[Params]
}

// NewStore creates a Store seeded with the given initial Params
// (typically DefaultParams(), or whatever was loaded from config).
func NewStore(initial Params) *Store {
	s := &Store{}
	p := initial
	s.current.Store(&p)
	return s
}

// Get returns the currently active Params.
func (s *Store) Get() Params {
	return *s.current.Load()
}

// Set atomically replaces the active Params.
func (s *Store) Set(p Params) {
	clone := p
	s.current.Store(&clone)
}
