// Package schedule decides when a time announcement is due.
package schedule

import (
	"fmt"
	"time"

	"github.com/jmylchreest/voiceclock/internal/clock"
	"github.com/jmylchreest/voiceclock/internal/config"
)

// Slot identifies a boundary minute by hour and minute.
type Slot struct {
	Hour   int `json:"hour" yaml:"hour"`
	Minute int `json:"minute" yaml:"minute"`
}

// String formats the slot as HH:MM.
func (s Slot) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// IsBoundary reports whether minute is an exact multiple of interval.
func IsBoundary(minute int, interval config.Interval) bool {
	if interval <= 0 {
		return false
	}
	return minute%interval.Minutes() == 0
}

// Last records the most recently announced boundary.
// The zero value means nothing has been announced yet.
type Last struct {
	Slot Slot
	// At is the start of the announced minute.
	At time.Time
}

// IsZero reports whether no boundary has been announced.
func (l Last) IsZero() bool {
	return l.At.IsZero()
}

// Covers reports whether the minute starting at minuteStart has already
// been announced, i.e. it is not strictly after the last announcement.
func (l Last) Covers(minuteStart time.Time) bool {
	if l.IsZero() {
		return false
	}
	return !minuteStart.After(l.At)
}

// Decision is the result of evaluating a tick.
type Decision struct {
	Due  bool
	Slot Slot
	// At is the start of the due minute.
	At time.Time
}

// Evaluate decides whether tick falls on a boundary of interval that has
// not been announced yet. Only the current tick is considered: boundaries
// that passed between ticks are never reported.
func Evaluate(tick clock.Tick, interval config.Interval, last Last) Decision {
	if !IsBoundary(tick.Minute, interval) {
		return Decision{}
	}

	minuteStart := tick.MinuteStart()
	if last.Covers(minuteStart) {
		return Decision{}
	}

	return Decision{
		Due:  true,
		Slot: Slot{Hour: tick.Hour, Minute: tick.Minute},
		At:   minuteStart,
	}
}

// Next returns the first boundary of interval strictly after t.
func Next(t time.Time, interval config.Interval) time.Time {
	step := time.Duration(interval.Minutes()) * time.Minute
	start := t.Truncate(time.Minute)
	next := start.Add(time.Minute)
	for !IsBoundary(next.Minute(), interval) {
		next = next.Add(time.Minute)
		if next.Sub(start) > step {
			break
		}
	}
	return next
}
