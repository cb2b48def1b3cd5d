// Package model defines the records voiceclock persists and exchanges.
package model

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"
)

// Outcome describes what happened at a boundary.
type Outcome string

// Announcement outcomes.
const (
	OutcomePlayed  Outcome = "played"  // Clip handed to the speaker
	OutcomeMuted   Outcome = "muted"   // Boundary consumed while muted
	OutcomeMissing Outcome = "missing" // No clip for the slot
	OutcomeFailed  Outcome = "failed"  // Player returned an error
	OutcomeForced  Outcome = "forced"  // Played on request, outside the schedule
)

// Outcomes returns every outcome in display order.
func Outcomes() []Outcome {
	return []Outcome{OutcomePlayed, OutcomeForced, OutcomeMuted, OutcomeMissing, OutcomeFailed}
}

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	for _, v := range Outcomes() {
		if o == v {
			return true
		}
	}
	return false
}

// Announcement is one history entry.
type Announcement struct {
	ID       string  `json:"id" yaml:"id"`
	Slot     string  `json:"slot" yaml:"slot"` // HH:MM, 24-hour
	Hour     int     `json:"hour" yaml:"hour"`
	Minute   int     `json:"minute" yaml:"minute"`
	Language string  `json:"language" yaml:"language"`
	Interval int     `json:"interval,omitempty" yaml:"interval,omitempty"`
	Path     string  `json:"path,omitempty" yaml:"path,omitempty"`
	Outcome  Outcome `json:"outcome" yaml:"outcome"`
	Error    string  `json:"error,omitempty" yaml:"error,omitempty"`

	// Timestamp is the unix time of the announced minute.
	Timestamp int64 `json:"timestamp" yaml:"timestamp"`
	// RecordedAt is when the entry was written (unix milliseconds).
	RecordedAt int64 `json:"recorded_at" yaml:"recorded_at"`
}

// Validation errors.
var (
	ErrEmptyID          = errors.New("id cannot be empty")
	ErrInvalidSlot      = errors.New("slot out of range")
	ErrEmptyLanguage    = errors.New("language cannot be empty")
	ErrInvalidOutcome   = errors.New("unknown outcome")
	ErrInvalidTimestamp = errors.New("timestamp must be greater than 0")
)

// NewAnnouncement creates an Announcement for the minute starting at at.
func NewAnnouncement(hour, minute int, language string, at time.Time) (*Announcement, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ULID: %w", err)
	}

	return &Announcement{
		ID:         id.String(),
		Slot:       fmt.Sprintf("%02d:%02d", hour, minute),
		Hour:       hour,
		Minute:     minute,
		Language:   language,
		Timestamp:  at.Unix(),
		RecordedAt: time.Now().UnixMilli(),
	}, nil
}

// Validate checks that the announcement has all required fields.
func (a *Announcement) Validate() error {
	if a.ID == "" {
		return ErrEmptyID
	}
	if a.Hour < 0 || a.Hour > 23 || a.Minute < 0 || a.Minute > 59 {
		return ErrInvalidSlot
	}
	if a.Language == "" {
		return ErrEmptyLanguage
	}
	if !a.Outcome.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, a.Outcome)
	}
	if a.Timestamp <= 0 {
		return ErrInvalidTimestamp
	}
	return nil
}

// SetError records err and its outcome.
func (a *Announcement) SetError(outcome Outcome, err error) {
	a.Outcome = outcome
	if err != nil {
		a.Error = err.Error()
	}
}

// Played reports whether audio was handed to the speaker.
func (a *Announcement) Played() bool {
	return a.Outcome == OutcomePlayed || a.Outcome == OutcomeForced
}

// TimestampTime returns the announced minute as a time.Time.
func (a *Announcement) TimestampTime() time.Time {
	return time.Unix(a.Timestamp, 0)
}

// RecordedAtTime returns when the entry was written.
func (a *Announcement) RecordedAtTime() time.Time {
	return time.UnixMilli(a.RecordedAt)
}

// RelativeTime returns a human-readable age, e.g. "5 minutes ago".
func (a *Announcement) RelativeTime() string {
	return humanize.Time(a.TimestampTime())
}

// ULIDTime extracts the creation time encoded in the ID.
func (a *Announcement) ULIDTime() (time.Time, error) {
	id, err := ulid.Parse(a.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid announcement id: %w", err)
	}
	return ulid.Time(id.Time()), nil
}

// Clone returns a copy of the announcement.
func (a *Announcement) Clone() *Announcement {
	clone := *a
	return &clone
}
