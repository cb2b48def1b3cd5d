package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/voiceclock/internal/assets"
	"github.com/jmylchreest/voiceclock/internal/clock"
	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/dbus"
	"github.com/jmylchreest/voiceclock/internal/model"
	"github.com/jmylchreest/voiceclock/internal/schedule"
	"github.com/jmylchreest/voiceclock/internal/store"
)

// Announcer plays the current time outside the schedule.
type Announcer interface {
	AnnounceNow(ctx context.Context) (*model.Announcement, error)
}

// AssetIndex reports on the clip library.
type AssetIndex interface {
	Root() string
	Verify(langs ...config.Language) []assets.Missing
}

// PlaybackState reports whether a clip is playing.
type PlaybackState interface {
	Playing() bool
}

// Components are the parts a Controller drives. Only Settings is required.
type Components struct {
	Settings      *config.Snapshot
	SettingsStore *config.SettingsStore
	Announcer     Announcer
	Assets        AssetIndex
	Playback      PlaybackState
	History       *store.Store
	State         *store.StateRecorder
	Notifier      *InternalNotifier
	Clock         clock.Clock
}

// Controller implements the daemon side of the control service and
// applies settings reloaded from disk.
type Controller struct {
	mu     sync.Mutex // serializes settings writers
	logger *slog.Logger

	version   string
	startedAt time.Time
	c         Components

	onExternalChange func(config.Settings)
}

var _ dbus.Controller = (*Controller)(nil)

// NewController creates a Controller.
func NewController(c Components, version string, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if c.Settings == nil {
		c.Settings = config.NewSnapshot(nil)
	}
	if c.Clock == nil {
		c.Clock = clock.SystemClock{}
	}

	startedAt := time.Now()
	if c.State != nil {
		if st := c.State.State(); st.StartedAt > 0 {
			startedAt = time.Unix(st.StartedAt, 0)
		}
	}

	return &Controller{
		logger:    logger,
		version:   version,
		startedAt: startedAt,
		c:         c,
	}
}

// SetExternalChangeCallback sets the callback invoked when settings
// change on disk.
func (c *Controller) SetExternalChangeCallback(callback func(config.Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExternalChange = callback
}

// Settings returns the settings in effect.
func (c *Controller) Settings() config.Settings {
	return c.c.Settings.Load()
}

// UpdateSettings applies fn, persists the result and publishes it.
// Invalid results are rejected and nothing changes.
func (c *Controller) UpdateSettings(fn func(*config.Settings)) (config.Settings, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.c.Settings.Load()
	next := cur
	fn(&next)
	if err := next.Validate(); err != nil {
		return cur, false, err
	}
	if next == cur {
		return cur, false, nil
	}

	if c.c.SettingsStore != nil {
		if err := c.c.SettingsStore.Save(&next); err != nil {
			return cur, false, err
		}
	}
	if err := c.c.Settings.Store(next); err != nil {
		return cur, false, err
	}

	c.logger.Info("settings updated", "language", next.Language, "interval", int(next.Interval), "muted", next.Muted)
	if c.c.Notifier != nil {
		c.c.Notifier.NotifySettingsSaved(next)
	}
	return next, true, nil
}

// ApplySettings publishes settings read from disk. It returns false if
// they match what is already in effect.
func (c *Controller) ApplySettings(next config.Settings) (bool, error) {
	c.mu.Lock()
	cur := c.c.Settings.Load()
	if next == cur {
		c.mu.Unlock()
		return false, nil
	}
	if err := c.c.Settings.Store(next); err != nil {
		c.mu.Unlock()
		return false, err
	}
	callback := c.onExternalChange
	c.mu.Unlock()

	c.logger.Info("settings reloaded", "language", next.Language, "interval", int(next.Interval), "muted", next.Muted)
	if c.c.Notifier != nil {
		c.c.Notifier.NotifySettingsSaved(next)
	}
	if callback != nil {
		callback(next)
	}
	return true, nil
}

// SettingsError handles a settings file that failed to load. The previous
// settings stay in effect.
func (c *Controller) SettingsError(err error) {
	c.logger.Warn("keeping previous settings", "error", err)
	c.recordError(err)
	if c.c.Notifier != nil {
		c.c.Notifier.NotifySettingsError(err)
	}
}

// AnnounceNow plays the current time immediately.
func (c *Controller) AnnounceNow(ctx context.Context) (*model.Announcement, error) {
	if c.c.Announcer == nil {
		return nil, errors.New("announcements unavailable")
	}
	return c.c.Announcer.AnnounceNow(ctx)
}

// Status reports the daemon state.
func (c *Controller) Status() dbus.Status {
	s := c.Settings()

	st := dbus.Status{
		Version:   c.version,
		StartedAt: c.startedAt.Unix(),
		Language:  string(s.Language),
		Interval:  uint32(s.Interval),
		Muted:     s.Muted,
	}

	if now, err := c.c.Clock.Now(); err == nil {
		st.NextAt = schedule.Next(now, s.Interval).Unix()
	}

	if c.c.Playback != nil {
		st.Playing = c.c.Playback.Playing()
	}
	if c.c.Assets != nil {
		st.AssetRoot = c.c.Assets.Root()
		st.MissingClips = uint32(len(c.c.Assets.Verify(s.Language)))
	}
	if c.c.History != nil {
		st.HistoryLength = uint32(c.c.History.Count())
	}

	var last *model.Announcement
	if c.c.State != nil {
		rs := c.c.State.State()
		last = rs.LastAnnouncement
		st.LastError = rs.LastError
		st.LastErrorAt = rs.LastErrorAt
	}
	if last == nil && c.c.History != nil {
		last = c.c.History.Latest()
	}
	if last != nil {
		st.LastSlot = last.Slot
		st.LastOutcome = string(last.Outcome)
		st.LastAt = last.Timestamp
	}

	return st
}

func (c *Controller) recordError(err error) {
	if c.c.State == nil {
		return
	}
	if serr := c.c.State.RecordError(err); serr != nil {
		c.logger.Debug("failed to save runtime state", "error", serr)
	}
}
