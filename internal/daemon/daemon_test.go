package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/voiceclock/internal/assets"
	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/dbus"
	"github.com/jmylchreest/voiceclock/internal/model"
	"github.com/jmylchreest/voiceclock/internal/store"
)

type fakeSender struct {
	mu     sync.Mutex
	toasts []dbus.Toast
	nextID uint32
	err    error
}

func (f *fakeSender) Notify(t dbus.Toast) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.toasts = append(f.toasts, t)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeSender) sent() []dbus.Toast {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dbus.Toast(nil), f.toasts...)
}

func announcement(t *testing.T, hour, minute int) *model.Announcement {
	t.Helper()
	a, err := model.NewAnnouncement(hour, minute, "en", time.Date(2026, 3, 14, hour, minute, 0, 0, time.Local))
	require.NoError(t, err)
	a.Outcome = model.OutcomePlayed
	return a
}

func TestInternalNotifier_Levels(t *testing.T) {
	sender := &fakeSender{}
	n := NewInternalNotifier(sender, nil)

	n.Notify("a", "Info", "", NotificationLevelInfo)
	n.Notify("b", "Warn", "", NotificationLevelWarning)
	n.Notify("c", "Err", "", NotificationLevelError)

	toasts := sender.sent()
	require.Len(t, toasts, 3)
	assert.Equal(t, dbus.UrgencyLow, toasts[0].Urgency)
	assert.Equal(t, "dialog-information", toasts[0].Icon)
	assert.Equal(t, dbus.UrgencyNormal, toasts[1].Urgency)
	assert.Equal(t, dbus.UrgencyCritical, toasts[2].Urgency)
	assert.Equal(t, "dialog-error", toasts[2].Icon)
	assert.Equal(t, dbus.AppID, toasts[0].AppName)
	assert.True(t, toasts[0].Transient)
}

func TestInternalNotifier_RateLimit(t *testing.T) {
	sender := &fakeSender{}
	n := NewInternalNotifier(sender, nil)

	for range 3 {
		n.NotifyMissingAsset(errors.New("no 03_45 clip"))
	}
	assert.Len(t, sender.sent(), 1)

	n.SetMinInterval(0)
	n.NotifyMissingAsset(errors.New("no 03_45 clip"))
	assert.Len(t, sender.sent(), 2)
}

func TestInternalNotifier_Announcement(t *testing.T) {
	sender := &fakeSender{}
	n := NewInternalNotifier(sender, nil)

	n.NotifyAnnouncement(announcement(t, 12, 30))
	n.NotifyAnnouncement(announcement(t, 12, 45))

	toasts := sender.sent()
	require.Len(t, toasts, 2)
	assert.Equal(t, "It's 12:30", toasts[0].Summary)
	assert.Equal(t, "It's 12:45", toasts[1].Summary)
	assert.Zero(t, toasts[0].ReplacesID)
	assert.Equal(t, uint32(1), toasts[1].ReplacesID, "each announcement replaces the previous toast")
}

func TestInternalNotifier_ApplyConfig(t *testing.T) {
	sender := &fakeSender{}
	n := NewInternalNotifier(sender, nil)

	n.ApplyConfig(config.NotificationsConfig{
		Enabled:       false,
		SettingsSaved: false,
		Timeout:       config.Duration(2 * time.Second),
	})

	n.NotifyAnnouncement(announcement(t, 9, 0))
	n.NotifySettingsSaved(*config.DefaultSettings())
	assert.Empty(t, sender.sent())

	// Errors are always reported
	n.NotifyPlaybackError("/assets/en/09_00.ogg", errors.New("device busy"))
	toasts := sender.sent()
	require.Len(t, toasts, 1)
	assert.Contains(t, toasts[0].Body, "09_00.ogg")
	assert.Equal(t, 2*time.Second, toasts[0].Timeout)
}

func TestInternalNotifier_SenderError(t *testing.T) {
	sender := &fakeSender{err: errors.New("no notification server")}
	n := NewInternalNotifier(sender, nil)

	assert.NotPanics(t, func() {
		n.NotifyAnnouncement(announcement(t, 9, 0))
		n.NotifyStartup("dev", *config.DefaultSettings())
	})

	quiet := NewInternalNotifier(nil, nil)
	assert.NotPanics(t, func() { quiet.NotifyConfigReloaded() })
}

func TestInternalNotifier_SettingsSaved(t *testing.T) {
	sender := &fakeSender{}
	n := NewInternalNotifier(sender, nil)

	n.NotifySettingsSaved(config.Settings{Language: config.LanguageBangla, Interval: config.Interval15, Muted: true})

	toasts := sender.sent()
	require.Len(t, toasts, 1)
	assert.Equal(t, "Settings Saved", toasts[0].Summary)
	assert.Contains(t, toasts[0].Body, "Bangla")
	assert.Contains(t, toasts[0].Body, "Every 15 minutes")
	assert.Contains(t, toasts[0].Body, "muted")
}

// touch rewrites path with data and pushes its mtime forward so pollers
// notice regardless of filesystem timestamp granularity.
func touch(t *testing.T, path string, data string, offset time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	ts := time.Now().Add(offset)
	require.NoError(t, os.Chtimes(path, ts, ts))
}

func TestSettingsWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	touch(t, path, "language = \"en\"\ninterval = 60\n", -time.Hour)

	settingsStore, err := config.NewSettingsStore(path)
	require.NoError(t, err)

	w := NewSettingsWatcher(settingsStore, nil)
	w.SetPollInterval(20 * time.Millisecond)
	assert.Equal(t, path, w.Path())

	reloaded := make(chan config.Settings, 4)
	failures := make(chan error, 4)
	w.SetReloadCallback(func(s config.Settings) { reloaded <- s })
	w.SetErrorCallback(func(err error) { failures <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	touch(t, path, "language = \"bn\"\ninterval = 15\nmuted = true\n", time.Minute)
	select {
	case s := <-reloaded:
		assert.Equal(t, config.Settings{Language: config.LanguageBangla, Interval: config.Interval15, Muted: true}, s)
	case <-time.After(2 * time.Second):
		t.Fatal("settings not reloaded")
	}

	touch(t, path, "language = \"fr\"\ninterval = 15\n", 2*time.Minute)
	select {
	case err := <-failures:
		assert.ErrorIs(t, err, config.ErrInvalidLanguage)
	case <-time.After(2 * time.Second):
		t.Fatal("invalid settings not reported")
	}
}

func TestConfigWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voiceclockd.toml")
	touch(t, path, "[audio]\nvolume = 100\n", -time.Hour)

	w, err := NewConfigWatcher(path, nil)
	require.NoError(t, err)
	w.SetPollInterval(20 * time.Millisecond)

	reloaded := make(chan *config.DaemonConfig, 4)
	failures := make(chan error, 4)
	w.SetReloadCallback(func(cfg *config.DaemonConfig) { reloaded <- cfg })
	w.SetErrorCallback(func(err error) { failures <- err })

	initial := config.DefaultDaemonConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx, initial))
	defer w.Stop()
	assert.Same(t, initial, w.GetCurrentConfig())

	touch(t, path, "[audio]\nvolume = 40\n", time.Minute)
	select {
	case cfg := <-reloaded:
		assert.Equal(t, 40, cfg.Audio.Volume)
		assert.Same(t, cfg, w.GetCurrentConfig())
	case <-time.After(2 * time.Second):
		t.Fatal("config not reloaded")
	}

	touch(t, path, "[audio]\nvolume = 400\n", 2*time.Minute)
	select {
	case err := <-failures:
		assert.Error(t, err)
		assert.Equal(t, 40, w.GetCurrentConfig().Audio.Volume, "previous config kept")
	case <-time.After(2 * time.Second):
		t.Fatal("invalid config not reported")
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	settingsStore, err := config.NewSettingsStore(filepath.Join(t.TempDir(), "settings.toml"))
	require.NoError(t, err)

	w := NewSettingsWatcher(settingsStore, nil)
	w.Stop()

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

type fakeAnnouncer struct {
	a   *model.Announcement
	err error
}

func (f *fakeAnnouncer) AnnounceNow(context.Context) (*model.Announcement, error) {
	return f.a, f.err
}

type fakeAssets struct {
	missing []assets.Missing
}

func (f *fakeAssets) Root() string { return "/assets" }

func (f *fakeAssets) Verify(langs ...config.Language) []assets.Missing {
	var out []assets.Missing
	for _, m := range f.missing {
		for _, l := range langs {
			if m.Language == l {
				out = append(out, m)
			}
		}
	}
	return out
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() (time.Time, error) { return c.t, nil }

type playing bool

func (p playing) Playing() bool { return bool(p) }

func newController(t *testing.T) (*Controller, *config.SettingsStore, *fakeSender) {
	t.Helper()
	settingsStore, err := config.NewSettingsStore(filepath.Join(t.TempDir(), "settings.toml"))
	require.NoError(t, err)

	sender := &fakeSender{}
	c := NewController(Components{
		Settings:      config.NewSnapshot(nil),
		SettingsStore: settingsStore,
		Notifier:      NewInternalNotifier(sender, nil),
	}, "1.2.3", nil)
	return c, settingsStore, sender
}

func TestController_UpdateSettings(t *testing.T) {
	c, settingsStore, sender := newController(t)

	next, changed, err := c.UpdateSettings(func(s *config.Settings) {
		s.Language = config.LanguageBangla
		s.Interval = config.Interval30
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, config.LanguageBangla, next.Language)
	assert.Equal(t, next, c.Settings())

	onDisk, err := settingsStore.Load()
	require.NoError(t, err)
	assert.Equal(t, next, *onDisk)
	assert.Len(t, sender.sent(), 1, "settings saved toast")

	// No change, no write, no toast
	same, changed, err := c.UpdateSettings(func(s *config.Settings) { s.Interval = config.Interval30 })
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, next, same)
	assert.Len(t, sender.sent(), 1)
}

func TestController_UpdateSettingsInvalid(t *testing.T) {
	c, settingsStore, _ := newController(t)

	cur, changed, err := c.UpdateSettings(func(s *config.Settings) { s.Interval = 20 })
	assert.ErrorIs(t, err, config.ErrInvalidInterval)
	assert.False(t, changed)
	assert.Equal(t, *config.DefaultSettings(), cur)
	assert.Equal(t, *config.DefaultSettings(), c.Settings())

	_, err = os.Stat(settingsStore.Path())
	assert.True(t, os.IsNotExist(err), "nothing written")
}

func TestController_ApplySettings(t *testing.T) {
	c, _, _ := newController(t)

	var external []config.Settings
	c.SetExternalChangeCallback(func(s config.Settings) { external = append(external, s) })

	changed, err := c.ApplySettings(*config.DefaultSettings())
	require.NoError(t, err)
	assert.False(t, changed)

	muted := *config.DefaultSettings()
	muted.Muted = true
	changed, err = c.ApplySettings(muted)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, c.Settings().Muted)
	assert.Equal(t, []config.Settings{muted}, external)

	_, err = c.ApplySettings(config.Settings{Language: "xx", Interval: config.Interval60})
	assert.Error(t, err)
	assert.True(t, c.Settings().Muted, "previous settings kept")
}

func TestController_SettingsError(t *testing.T) {
	dir := t.TempDir()
	state, err := store.NewStateRecorder(filepath.Join(dir, "state.json"), time.Now())
	require.NoError(t, err)

	sender := &fakeSender{}
	c := NewController(Components{
		State:    state,
		Notifier: NewInternalNotifier(sender, nil),
	}, "dev", nil)

	c.SettingsError(config.ErrInvalidLanguage)

	assert.Equal(t, config.ErrInvalidLanguage.Error(), state.State().LastError)
	require.Len(t, sender.sent(), 1)
	assert.Equal(t, "Settings Error", sender.sent()[0].Summary)
}

func TestController_AnnounceNow(t *testing.T) {
	c, _, _ := newController(t)
	_, err := c.AnnounceNow(context.Background())
	assert.Error(t, err)

	want := announcement(t, 10, 15)
	c = NewController(Components{Announcer: &fakeAnnouncer{a: want}}, "dev", nil)
	got, err := c.AnnounceNow(context.Background())
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestController_Status(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)
	state, err := store.NewStateRecorder(filepath.Join(dir, "state.json"), started)
	require.NoError(t, err)

	history := store.NewStore(nil, 0)
	last := announcement(t, 12, 15)
	require.NoError(t, history.Record(last))
	require.NoError(t, state.Record(last))

	c := NewController(Components{
		Settings: config.NewSnapshot(&config.Settings{Language: config.LanguageBangla, Interval: config.Interval15}),
		Assets: &fakeAssets{missing: []assets.Missing{
			{Language: config.LanguageBangla, Clip: "03_45"},
			{Language: config.LanguageEnglish, Clip: "01_00"},
		}},
		Playback: playing(true),
		History:  history,
		State:    state,
		Clock:    fixedClock{t: time.Date(2026, 3, 14, 12, 20, 0, 0, time.Local)},
	}, "1.2.3", nil)

	st := c.Status()
	assert.Equal(t, "1.2.3", st.Version)
	assert.Equal(t, started.Unix(), st.StartedAt)
	assert.Equal(t, "bn", st.Language)
	assert.Equal(t, uint32(15), st.Interval)
	assert.True(t, st.Playing)
	assert.Equal(t, "/assets", st.AssetRoot)
	assert.Equal(t, uint32(1), st.MissingClips)
	assert.Equal(t, uint32(1), st.HistoryLength)
	assert.Equal(t, "12:15", st.LastSlot)
	assert.Equal(t, "played", st.LastOutcome)
	assert.Equal(t, time.Date(2026, 3, 14, 12, 30, 0, 0, time.Local).Unix(), st.NextAt)
}
