package announce

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/voiceclock/internal/assets"
	"github.com/jmylchreest/voiceclock/internal/clock"
	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/model"
	"github.com/jmylchreest/voiceclock/internal/schedule"
)

// fakeResolver serves every clip except those listed as missing.
type fakeResolver struct {
	missing map[string]bool // "bn/03_45"
}

func (r *fakeResolver) Resolve(hour, minute int, lang config.Language) (string, error) {
	clip := assets.ClipName(hour, minute)
	if r.missing[string(lang)+"/"+clip] {
		return "", &assets.MissingAssetError{Hour: hour, Minute: minute, Language: lang, Clip: clip}
	}
	return filepath.Join("/assets", string(lang), clip+".ogg"), nil
}

type fakePlayer struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (p *fakePlayer) Play(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
	return p.err
}

func (p *fakePlayer) played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

type fakeNotifier struct {
	mu        sync.Mutex
	announced []string
	missing   []error
	failed    []error
}

func (n *fakeNotifier) NotifyAnnouncement(a *model.Announcement) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.announced = append(n.announced, a.Slot)
}

func (n *fakeNotifier) NotifyMissingAsset(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.missing = append(n.missing, err)
}

func (n *fakeNotifier) NotifyPlaybackError(_ string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, err)
}

type collector struct {
	mu      sync.Mutex
	records []*model.Announcement
}

func (c *collector) Record(a *model.Announcement) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, a)
	return nil
}

func (c *collector) all() []*model.Announcement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*model.Announcement(nil), c.records...)
}

type harness struct {
	resolver  *fakeResolver
	player    *fakePlayer
	notifier  *fakeNotifier
	history   *collector
	settings  *config.Snapshot
	scheduler *Scheduler
}

func newHarness(t *testing.T, s config.Settings) *harness {
	t.Helper()

	h := &harness{
		resolver: &fakeResolver{missing: map[string]bool{}},
		player:   &fakePlayer{},
		notifier: &fakeNotifier{},
		history:  &collector{},
		settings: config.NewSnapshot(&s),
	}
	d := NewDispatcher(h.resolver, h.player, WithNotifier(h.notifier), WithRecorder(h.history))
	h.scheduler = NewScheduler(clock.NewSampler(&scriptedClock{}, time.Second, nil), nil, h.settings, d, nil)
	return h
}

// tick feeds one tick through the scheduler and waits for playback.
func (h *harness) tick(hour, minute, second int) bool {
	fired := h.scheduler.HandleTick(clock.NewTick(time.Date(2026, 3, 14, hour, minute, second, 0, time.Local)))
	h.scheduler.Dispatcher().Wait()
	return fired
}

func settings(lang config.Language, interval config.Interval, muted bool) config.Settings {
	return config.Settings{Language: lang, Interval: interval, Muted: muted}
}

func TestDispatch_OneAnnouncementPerBoundary(t *testing.T) {
	h := newHarness(t, settings(config.LanguageEnglish, config.Interval30, false))

	assert.False(t, h.tick(12, 29, 50))
	assert.True(t, h.tick(12, 30, 2))
	assert.False(t, h.tick(12, 30, 15))

	assert.Equal(t, []string{"/assets/en/12_30.ogg"}, h.player.played())
	assert.Equal(t, schedule.Slot{Hour: 12, Minute: 30}, h.scheduler.Dispatcher().Last().Slot)

	records := h.history.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.OutcomePlayed, records[0].Outcome)
	assert.Equal(t, "12:30", records[0].Slot)
	assert.Equal(t, "en", records[0].Language)
	assert.Equal(t, 30, records[0].Interval)
	assert.Equal(t, []string{"12:30"}, h.notifier.announced)
}

func TestDispatch_MutedConsumesBoundary(t *testing.T) {
	h := newHarness(t, settings(config.LanguageEnglish, config.Interval15, true))

	assert.True(t, h.tick(9, 15, 0))

	assert.Empty(t, h.player.played())
	assert.Equal(t, schedule.Slot{Hour: 9, Minute: 15}, h.scheduler.Dispatcher().Last().Slot)
	assert.Empty(t, h.notifier.announced, "no toast while muted")

	records := h.history.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.OutcomeMuted, records[0].Outcome)
}

func TestDispatch_MuteThenUnmuteSameBoundary(t *testing.T) {
	h := newHarness(t, settings(config.LanguageEnglish, config.Interval30, true))

	assert.True(t, h.tick(12, 30, 0))
	_, err := h.settings.Update(func(s *config.Settings) { s.Muted = false })
	require.NoError(t, err)
	assert.False(t, h.tick(12, 30, 20))
	assert.False(t, h.tick(12, 30, 40))

	assert.Empty(t, h.player.played())

	// The next boundary plays normally
	assert.True(t, h.tick(13, 0, 5))
	assert.Equal(t, []string{"/assets/en/01_00.ogg"}, h.player.played())
}

func TestDispatch_MissingAssetSkipsOnlyThatBoundary(t *testing.T) {
	h := newHarness(t, settings(config.LanguageBangla, config.Interval15, false))
	h.resolver.missing["bn/03_45"] = true

	assert.True(t, h.tick(3, 45, 0))
	require.Len(t, h.notifier.missing, 1)
	assert.ErrorIs(t, h.notifier.missing[0], assets.ErrMissingAsset)
	assert.Empty(t, h.player.played())

	// Still consumed: no retry within the minute
	assert.False(t, h.tick(3, 45, 30))

	assert.True(t, h.tick(4, 0, 0))
	assert.Equal(t, []string{"/assets/bn/04_00.ogg"}, h.player.played())

	records := h.history.all()
	require.Len(t, records, 2)
	assert.Equal(t, model.OutcomeMissing, records[0].Outcome)
	assert.Contains(t, records[0].Error, "03_45")
	assert.Equal(t, model.OutcomePlayed, records[1].Outcome)
}

func TestDispatch_IntervalChangeNotRetroactive(t *testing.T) {
	h := newHarness(t, settings(config.LanguageEnglish, config.Interval60, false))

	assert.True(t, h.tick(12, 0, 3))
	h.tick(12, 5, 0)

	require.NoError(t, h.settings.Store(settings(config.LanguageEnglish, config.Interval15, false)))
	for minute := 7; minute < 15; minute++ {
		assert.False(t, h.tick(12, minute, 0), "minute %d", minute)
	}
	assert.True(t, h.tick(12, 15, 0))

	assert.Equal(t, []string{"/assets/en/12_00.ogg", "/assets/en/12_15.ogg"}, h.player.played())
}

func TestDispatch_SwitchToUnannouncedIntervalStartsAtNextBoundary(t *testing.T) {
	// Hourly, nothing announced yet, switch to 15 at 12:07
	h := newHarness(t, settings(config.LanguageEnglish, config.Interval60, false))
	h.tick(11, 58, 0)

	require.NoError(t, h.settings.Store(settings(config.LanguageEnglish, config.Interval15, false)))
	assert.False(t, h.tick(12, 7, 0))
	assert.True(t, h.tick(12, 15, 0))
	assert.Equal(t, []string{"/assets/en/12_15.ogg"}, h.player.played())
}

func TestDispatch_LanguageChangeUsesNewLanguage(t *testing.T) {
	h := newHarness(t, settings(config.LanguageEnglish, config.Interval30, false))

	h.tick(10, 0, 0)
	require.NoError(t, h.settings.Store(settings(config.LanguageBangla, config.Interval30, false)))
	assert.False(t, h.tick(10, 0, 30), "language change does not re-announce")
	h.tick(10, 30, 0)

	assert.Equal(t, []string{"/assets/en/10_00.ogg", "/assets/bn/10_30.ogg"}, h.player.played())
}

func TestDispatch_PlaybackFailure(t *testing.T) {
	h := newHarness(t, settings(config.LanguageEnglish, config.Interval15, false))
	h.player.err = errors.New("no audio device")

	assert.True(t, h.tick(8, 45, 0))

	require.Len(t, h.notifier.failed, 1)
	assert.Empty(t, h.notifier.announced)
	assert.Equal(t, schedule.Slot{Hour: 8, Minute: 45}, h.scheduler.Dispatcher().Last().Slot)

	records := h.history.all()
	require.Len(t, records, 1)
	assert.Equal(t, model.OutcomeFailed, records[0].Outcome)
	assert.Equal(t, "no audio device", records[0].Error)

	// No retry
	assert.False(t, h.tick(8, 45, 10))
	assert.Len(t, h.player.played(), 1)
}

func TestDispatch_ManyTicksPerBoundary(t *testing.T) {
	h := newHarness(t, settings(config.LanguageEnglish, config.Interval15, false))

	for minute := range 60 {
		for sec := 0; sec < 60; sec += 5 {
			h.tick(14, minute, sec)
		}
	}

	assert.Equal(t, []string{
		"/assets/en/02_00.ogg",
		"/assets/en/02_15.ogg",
		"/assets/en/02_30.ogg",
		"/assets/en/02_45.ogg",
	}, h.player.played())
}

func TestDispatch_NotDue(t *testing.T) {
	d := NewDispatcher(&fakeResolver{}, &fakePlayer{})
	assert.False(t, d.Dispatch(schedule.Decision{}, *config.DefaultSettings()))
	assert.True(t, d.Last().IsZero())
}

func TestDispatch_RecorderErrorsIgnored(t *testing.T) {
	player := &fakePlayer{}
	failing := RecorderFunc(func(*model.Announcement) error { return errors.New("disk full") })
	after := &collector{}
	d := NewDispatcher(&fakeResolver{}, player, WithRecorder(failing), WithRecorder(after))

	at := time.Date(2026, 3, 14, 6, 0, 0, 0, time.Local)
	assert.True(t, d.Dispatch(schedule.Decision{Due: true, Slot: schedule.Slot{Hour: 6}, At: at}, *config.DefaultSettings()))
	d.Wait()

	assert.Len(t, player.played(), 1)
	assert.Len(t, after.all(), 1)
}

func TestDispatch_WithLastRestoresBoundary(t *testing.T) {
	at := time.Date(2026, 3, 14, 6, 0, 0, 0, time.Local)
	player := &fakePlayer{}
	d := NewDispatcher(&fakeResolver{}, player, WithLast(schedule.Last{Slot: schedule.Slot{Hour: 6}, At: at}))

	assert.False(t, d.Dispatch(schedule.Decision{Due: true, Slot: schedule.Slot{Hour: 6}, At: at}, *config.DefaultSettings()))
	assert.Empty(t, player.played())
}

func TestAnnounceNow(t *testing.T) {
	tests := []struct {
		name     string
		minute   int
		muted    bool
		wantClip string
	}{
		{"rounds down to quarter", 37, false, "02_30"},
		{"on the hour", 0, false, "02_00"},
		{"ignores mute", 59, true, "02_45"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			player := &fakePlayer{}
			history := &collector{}
			d := NewDispatcher(&fakeResolver{}, player, WithRecorder(history))

			s := settings(config.LanguageEnglish, config.Interval60, tt.muted)
			a, err := d.AnnounceNow(time.Date(2026, 3, 14, 14, tt.minute, 12, 0, time.Local), s)
			require.NoError(t, err)

			assert.Equal(t, model.OutcomeForced, a.Outcome)
			assert.Equal(t, []string{fmt.Sprintf("/assets/en/%s.ogg", tt.wantClip)}, player.played())
			assert.True(t, d.Last().IsZero(), "forced announcements leave Last alone")
			assert.Len(t, history.all(), 1)
		})
	}
}

func TestAnnounceNow_DoesNotConsumeBoundary(t *testing.T) {
	h := newHarness(t, settings(config.LanguageEnglish, config.Interval30, false))

	_, err := h.scheduler.Dispatcher().AnnounceNow(time.Date(2026, 3, 14, 12, 30, 1, 0, time.Local), h.settings.Load())
	require.NoError(t, err)
	assert.True(t, h.tick(12, 30, 5))

	assert.Len(t, h.player.played(), 2)
}

func TestAnnounceNow_Missing(t *testing.T) {
	resolver := &fakeResolver{missing: map[string]bool{"bn/05_15": true}}
	notifier := &fakeNotifier{}
	player := &fakePlayer{}
	d := NewDispatcher(resolver, player, WithNotifier(notifier))

	a, err := d.AnnounceNow(time.Date(2026, 3, 14, 5, 20, 0, 0, time.Local), settings(config.LanguageBangla, config.Interval15, false))
	assert.ErrorIs(t, err, assets.ErrMissingAsset)
	require.NotNil(t, a)
	assert.Equal(t, model.OutcomeMissing, a.Outcome)
	assert.Len(t, notifier.missing, 1)
	assert.Empty(t, player.played())
}

func TestScheduler_RunAndAnnounceNow(t *testing.T) {
	clk := &scriptedClock{times: []time.Time{time.Date(2026, 3, 14, 12, 30, 5, 0, time.Local)}}
	s0 := settings(config.LanguageEnglish, config.Interval30, false)
	player := &fakePlayer{}
	history := &collector{}
	d := NewDispatcher(&fakeResolver{}, player, WithRecorder(history))
	sched := NewScheduler(clock.NewSampler(clk, time.Hour, nil), clk, config.NewSnapshot(&s0), d, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	a, err := sched.AnnounceNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeForced, a.Outcome)

	require.Eventually(t, func() bool { return !d.Last().IsZero() }, 2*time.Second, 5*time.Millisecond,
		"startup tick should be evaluated")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	// Startup tick at 12:30:05 plus the forced one
	assert.Equal(t, []string{"/assets/en/12_30.ogg", "/assets/en/12_30.ogg"}, player.played())
	assert.Equal(t, schedule.Slot{Hour: 12, Minute: 30}, d.Last().Slot)

	_, err = sched.AnnounceNow(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

// scriptedClock returns scripted times, repeating the last one.
type scriptedClock struct {
	mu    sync.Mutex
	times []time.Time
}

func (c *scriptedClock) Now() (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.times) == 0 {
		return time.Date(2026, 3, 14, 0, 0, 30, 0, time.Local), nil
	}
	t := c.times[0]
	if len(c.times) > 1 {
		c.times = c.times[1:]
	}
	return t, nil
}
