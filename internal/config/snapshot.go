package config

import "sync/atomic"

// Snapshot holds the current Settings with atomic whole-value replacement.
// Readers always observe a complete, validated Settings value.
type Snapshot struct {
	v atomic.Pointer[Settings]
}

// NewSnapshot creates a Snapshot holding initial, or defaults if initial is
// nil or invalid.
func NewSnapshot(initial *Settings) *Snapshot {
	s := &Snapshot{}
	if initial == nil || initial.Validate() != nil {
		initial = DefaultSettings()
	}
	v := *initial
	s.v.Store(&v)
	return s
}

// Load returns a copy of the current settings.
func (s *Snapshot) Load() Settings {
	return *s.v.Load()
}

// Store replaces the current settings. Invalid settings are rejected and
// the previous value is kept.
func (s *Snapshot) Store(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.v.Store(&next)
	return nil
}

// Update applies fn to a copy of the current settings and stores the result.
// It retries if another writer replaced the value concurrently.
func (s *Snapshot) Update(fn func(*Settings)) (Settings, error) {
	for {
		cur := s.v.Load()
		next := *cur
		fn(&next)
		if err := next.Validate(); err != nil {
			return *cur, err
		}
		if s.v.CompareAndSwap(cur, &next) {
			return next, nil
		}
	}
}
