// Package announce turns due boundaries into played announcements.
package announce

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/voiceclock/internal/assets"
	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/model"
	"github.com/jmylchreest/voiceclock/internal/schedule"
)

// Resolver maps a boundary to a clip path.
type Resolver interface {
	Resolve(hour, minute int, lang config.Language) (string, error)
}

// Player starts playback of a clip without waiting for it to finish.
type Player interface {
	Play(path string) error
}

// Notifier surfaces announcements and problems to the user.
// Implementations must be safe for concurrent use.
type Notifier interface {
	NotifyAnnouncement(a *model.Announcement)
	NotifyMissingAsset(err error)
	NotifyPlaybackError(path string, err error)
}

// Recorder receives every finished announcement (history, state file,
// D-Bus signal). Errors are logged and otherwise ignored.
type Recorder interface {
	Record(a *model.Announcement) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(a *model.Announcement) error

// Record calls f(a).
func (f RecorderFunc) Record(a *model.Announcement) error {
	return f(a)
}

// Dispatcher plays the clip for a due boundary, at most once per boundary.
type Dispatcher struct {
	mu   sync.Mutex
	last schedule.Last

	logger    *slog.Logger
	resolver  Resolver
	player    Player
	notifier  Notifier
	recorders []Recorder

	// Outstanding playback goroutines
	wg sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithNotifier sets the notifier.
func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithRecorder adds a recorder. Recorders run in the order they were added.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorders = append(d.recorders, r)
		}
	}
}

// WithLast seeds the last announced boundary, e.g. from a previous run.
func WithLast(last schedule.Last) Option {
	return func(d *Dispatcher) { d.last = last }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(resolver Resolver, player Player, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:   slog.Default(),
		resolver: resolver,
		player:   player,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Last returns the most recently announced boundary.
func (d *Dispatcher) Last() schedule.Last {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// claim advances Last to the decision's boundary. It returns false if the
// boundary was already announced.
func (d *Dispatcher) claim(dec schedule.Decision) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.last.Covers(dec.At) {
		return false
	}
	d.last = schedule.Last{Slot: dec.Slot, At: dec.At}
	return true
}

// Dispatch announces a due boundary using settings s. It returns false
// when nothing was done because the decision is not due or the boundary
// was already announced.
//
// The boundary is consumed even if the clip is missing or s is muted.
// Playback runs in its own goroutine; its outcome is recorded when the
// player returns.
func (d *Dispatcher) Dispatch(dec schedule.Decision, s config.Settings) bool {
	if !dec.Due || !d.claim(dec) {
		return false
	}

	a, err := model.NewAnnouncement(dec.Slot.Hour, dec.Slot.Minute, string(s.Language), dec.At)
	if err != nil {
		d.logger.Error("failed to create announcement record", "slot", dec.Slot.String(), "error", err)
		return true
	}
	a.Interval = int(s.Interval)

	path, err := d.resolver.Resolve(dec.Slot.Hour, dec.Slot.Minute, s.Language)
	if err != nil {
		d.resolveFailed(a, err)
		return true
	}
	a.Path = path

	if s.Muted {
		a.Outcome = model.OutcomeMuted
		d.logger.Info("boundary reached while muted", "slot", a.Slot, "language", a.Language)
		d.record(a)
		return true
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.play(a, model.OutcomePlayed)
	}()

	return true
}

// AnnounceNow plays the clip nearest to now (rounded down to the quarter
// hour) regardless of interval, mute and Last, which it leaves unchanged.
func (d *Dispatcher) AnnounceNow(now time.Time, s config.Settings) (*model.Announcement, error) {
	hour, minute := now.Hour(), assets.Bucket(now.Minute())
	at := now.Truncate(time.Minute).Add(-time.Duration(now.Minute()-minute) * time.Minute)

	a, err := model.NewAnnouncement(hour, minute, string(s.Language), at)
	if err != nil {
		return nil, err
	}
	a.Interval = int(s.Interval)

	path, err := d.resolver.Resolve(hour, minute, s.Language)
	if err != nil {
		d.resolveFailed(a, err)
		return a, err
	}
	a.Path = path

	if err := d.play(a, model.OutcomeForced); err != nil {
		return a, err
	}
	return a, nil
}

// Wait blocks until outstanding playback goroutines have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) resolveFailed(a *model.Announcement, err error) {
	if errors.Is(err, assets.ErrMissingAsset) {
		a.SetError(model.OutcomeMissing, err)
		d.logger.Warn("missing audio asset", "slot", a.Slot, "language", a.Language, "error", err)
		if d.notifier != nil {
			d.notifier.NotifyMissingAsset(err)
		}
	} else {
		a.SetError(model.OutcomeFailed, err)
		d.logger.Error("failed to resolve audio asset", "slot", a.Slot, "language", a.Language, "error", err)
	}
	d.record(a)
}

// play hands a clip to the player and records the result.
func (d *Dispatcher) play(a *model.Announcement, success model.Outcome) error {
	err := d.player.Play(a.Path)
	if err != nil {
		a.SetError(model.OutcomeFailed, err)
		d.logger.Warn("playback failed", "slot", a.Slot, "path", a.Path, "error", err)
		if d.notifier != nil {
			d.notifier.NotifyPlaybackError(a.Path, err)
		}
	} else {
		a.Outcome = success
		d.logger.Info("announced", "slot", a.Slot, "language", a.Language, "path", a.Path, "outcome", a.Outcome)
		if d.notifier != nil {
			d.notifier.NotifyAnnouncement(a)
		}
	}

	d.record(a)
	return err
}

func (d *Dispatcher) record(a *model.Announcement) {
	for _, r := range d.recorders {
		if err := r.Record(a.Clone()); err != nil {
			d.logger.Warn("failed to record announcement", "id", a.ID, "error", err)
		}
	}
}
