package store

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/voiceclock/internal/model"
)

func TestNewStore(t *testing.T) {
	s := NewStore(nil, 0)
	require.NotNil(t, s)
	assert.Equal(t, 0, s.Count())
	assert.Nil(t, s.Latest())
}

func TestStore_Add(t *testing.T) {
	s := NewStore(nil, 0)

	require.NoError(t, s.Add(testAnnouncement("a1", 12, 0, model.OutcomePlayed)))
	assert.Equal(t, 1, s.Count())

	// Same ID is ignored
	require.NoError(t, s.Add(testAnnouncement("a1", 12, 0, model.OutcomePlayed)))
	assert.Equal(t, 1, s.Count())

	got := s.GetByID("a1")
	require.NotNil(t, got)
	assert.Equal(t, "12:00", got.Slot)
	assert.Nil(t, s.GetByID("nope"))
}

func TestStore_AddInvalid(t *testing.T) {
	s := NewStore(nil, 0)

	bad := testAnnouncement("", 12, 0, model.OutcomePlayed)
	assert.ErrorIs(t, s.Add(bad), model.ErrEmptyID)

	bad = testAnnouncement("a1", 12, 0, "exploded")
	assert.ErrorIs(t, s.Add(bad), model.ErrInvalidOutcome)

	assert.Equal(t, 0, s.Count())
}

func TestStore_Record(t *testing.T) {
	s := NewStore(nil, 0)

	a := testAnnouncement("a1", 8, 45, model.OutcomeForced)
	require.NoError(t, s.Record(&a))

	latest := s.Latest()
	require.NotNil(t, latest)
	assert.Equal(t, model.OutcomeForced, latest.Outcome)

	// Latest returns a copy
	latest.Outcome = model.OutcomeFailed
	assert.Equal(t, model.OutcomeForced, s.Latest().Outcome)
}

func TestStore_All(t *testing.T) {
	s := NewStore(nil, 0)
	require.NoError(t, s.Add(testAnnouncement("a2", 12, 15, model.OutcomePlayed)))
	require.NoError(t, s.Add(testAnnouncement("a1", 12, 0, model.OutcomePlayed)))
	require.NoError(t, s.Add(testAnnouncement("a3", 12, 30, model.OutcomePlayed)))

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, "a3", all[0].ID, "newest first")
	assert.Equal(t, "a1", all[2].ID)
}

func TestStore_Filter(t *testing.T) {
	now := time.Now()
	recent := func(id string, ago time.Duration, outcome model.Outcome, lang string) model.Announcement {
		a := testAnnouncement(id, 12, 0, outcome)
		a.Timestamp = now.Add(-ago).Unix()
		a.RecordedAt = now.Add(-ago).UnixMilli()
		a.Language = lang
		return a
	}

	s := NewStore(nil, 0)
	require.NoError(t, s.Add(recent("old", 48*time.Hour, model.OutcomePlayed, "en")))
	require.NoError(t, s.Add(recent("muted", 2*time.Hour, model.OutcomeMuted, "en")))
	require.NoError(t, s.Add(recent("bangla", time.Hour, model.OutcomePlayed, "bn")))
	require.NoError(t, s.Add(recent("newest", time.Minute, model.OutcomePlayed, "en")))

	tests := []struct {
		name string
		opts FilterOptions
		want []string
	}{
		{"everything", FilterOptions{}, []string{"newest", "bangla", "muted", "old"}},
		{"since", FilterOptions{Since: 24 * time.Hour}, []string{"newest", "bangla", "muted"}},
		{"outcome", FilterOptions{Outcome: model.OutcomeMuted}, []string{"muted"}},
		{"language", FilterOptions{Language: "bn"}, []string{"bangla"}},
		{"limit", FilterOptions{Limit: 2}, []string{"newest", "bangla"}},
		{"ascending", FilterOptions{Order: "asc", Limit: 2}, []string{"old", "muted"}},
		{"combined", FilterOptions{Outcome: model.OutcomePlayed, Language: "en", Since: time.Hour * 3}, []string{"newest"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Filter(tt.opts)
			ids := make([]string, len(got))
			for i, a := range got {
				ids[i] = a.ID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_LimitCompactsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)

	s := NewStore(p, 5)
	defer s.Close()

	base := time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local)
	for i := range 5 + compactSlack + 1 {
		a := testAnnouncement("x"+strconv.Itoa(i), 0, 0, model.OutcomePlayed)
		a.Timestamp = base.Add(time.Duration(i) * 15 * time.Minute).Unix()
		require.NoError(t, s.Add(a))
	}

	assert.Equal(t, 5, s.Count())

	loaded, err := ReadHistory(path)
	require.NoError(t, err)
	assert.Len(t, loaded, 5)
	assert.Equal(t, "x"+strconv.Itoa(5+compactSlack), s.Latest().ID)
}

func TestStore_Prune(t *testing.T) {
	now := time.Now()
	s := NewStore(nil, 0)
	for i, ago := range []time.Duration{72 * time.Hour, 30 * time.Hour, 3 * time.Hour, time.Hour, time.Minute} {
		a := testAnnouncement("p"+strconv.Itoa(i), 12, 0, model.OutcomePlayed)
		a.Timestamp = now.Add(-ago).Unix()
		require.NoError(t, s.Add(a))
	}

	events := s.Subscribe()

	removed, err := s.Prune(24*time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 3, s.Count())

	select {
	case e := <-events:
		assert.Equal(t, ChangeTypePrune, e.Type)
		assert.Equal(t, 2, e.Count)
	case <-time.After(time.Second):
		t.Fatal("expected prune event")
	}

	removed, err = s.Prune(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, "p4", s.Latest().ID)

	removed, err = s.Prune(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestStore_Subscribe(t *testing.T) {
	s := NewStore(nil, 0)
	ch := s.Subscribe()

	require.NoError(t, s.Add(testAnnouncement("a1", 12, 0, model.OutcomePlayed)))

	select {
	case event := <-ch:
		assert.Equal(t, ChangeTypeAdd, event.Type)
		assert.Equal(t, 1, event.Count)
	case <-time.After(time.Second):
		t.Fatal("expected change event")
	}
}

func TestStore_Unsubscribe(t *testing.T) {
	s := NewStore(nil, 0)
	ch := s.Subscribe()
	s.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")
}

func TestStore_Clear(t *testing.T) {
	s := NewStore(nil, 0)
	require.NoError(t, s.Add(testAnnouncement("a1", 12, 0, model.OutcomePlayed)))
	require.NoError(t, s.Add(testAnnouncement("a2", 12, 15, model.OutcomePlayed)))

	require.NoError(t, s.Clear())
	assert.Equal(t, 0, s.Count())
	assert.Nil(t, s.GetByID("a1"))
}

func TestStore_Close(t *testing.T) {
	s := NewStore(nil, 0)
	ch := s.Subscribe()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, ok := <-ch
	assert.False(t, ok)

	assert.ErrorIs(t, s.Add(testAnnouncement("a1", 12, 0, model.OutcomePlayed)), ErrStoreClosed)
	assert.ErrorIs(t, s.Clear(), ErrStoreClosed)
	_, err := s.Prune(time.Hour, 0)
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestStore_HydrateSkipsKnown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)

	s := NewStore(p, 0)
	defer s.Close()
	require.NoError(t, s.Add(testAnnouncement("a1", 12, 0, model.OutcomePlayed)))

	require.NoError(t, s.Hydrate())
	assert.Equal(t, 1, s.Count())
}

func TestFileWatcher_Rehydrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	writer, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer writer.Close()

	reader, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	s := NewStore(reader, 0)
	defer s.Close()

	fw, err := NewFileWatcher(s, path, nil)
	require.NoError(t, err)
	require.NoError(t, fw.Start())
	defer fw.Stop()

	require.NoError(t, writer.Append(testAnnouncement("a1", 12, 0, model.OutcomePlayed)))

	require.Eventually(t, func() bool { return s.Count() == 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestFileWatcher_ReloadsReplacedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	writer, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer writer.Close()
	require.NoError(t, writer.Append(testAnnouncement("a1", 12, 0, model.OutcomePlayed)))
	require.NoError(t, writer.Append(testAnnouncement("a2", 12, 15, model.OutcomePlayed)))

	reader, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	s := NewStore(reader, 0)
	defer s.Close()
	require.NoError(t, s.Hydrate())
	require.Equal(t, 2, s.Count())

	fw, err := NewFileWatcher(s, path, nil)
	require.NoError(t, err)
	require.NoError(t, fw.Start())
	defer fw.Stop()

	// Another process prunes the file
	require.NoError(t, writer.Rewrite([]model.Announcement{testAnnouncement("a2", 12, 15, model.OutcomePlayed)}))

	require.Eventually(t, func() bool { return s.Count() == 1 }, 3*time.Second, 20*time.Millisecond)
	assert.Nil(t, s.GetByID("a1"))
}

func TestFileWatcher_StopIdempotent(t *testing.T) {
	s := NewStore(nil, 0)
	fw, err := NewFileWatcher(s, filepath.Join(t.TempDir(), "history.jsonl"), nil)
	require.NoError(t, err)
	require.NoError(t, fw.Start())
	require.NoError(t, fw.Stop())
	require.NoError(t, fw.Stop())
}

func TestStore_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)

	s := NewStore(p, 0)
	defer s.Close()
	require.NoError(t, s.Add(testAnnouncement("a1", 12, 0, model.OutcomePlayed)))
	require.NoError(t, s.Add(testAnnouncement("a2", 12, 15, model.OutcomeMuted)))

	other, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, other.Clear())

	ch := s.Subscribe()
	require.NoError(t, s.Reload())
	assert.Equal(t, 0, s.Count())

	select {
	case ev := <-ch:
		assert.Equal(t, ChangeTypeReload, ev.Type)
	default:
		t.Fatal("expected a reload event")
	}

	// Appends now land in the new file
	require.NoError(t, s.Add(testAnnouncement("a3", 12, 30, model.OutcomePlayed)))
	as, err := ReadHistory(path)
	require.NoError(t, err)
	require.Len(t, as, 1)
	assert.Equal(t, "a3", as[0].ID)
}

func TestRuntimeState_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	state, err := LoadRuntimeState(path)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, state.SchemaVersion)
	assert.Nil(t, state.LastAnnouncement)

	a := testAnnouncement("a1", 12, 30, model.OutcomePlayed)
	state.LastAnnouncement = &a
	state.StartedAt = 1773489600
	require.NoError(t, SaveRuntimeState(path, state))

	loaded, err := LoadRuntimeState(path)
	require.NoError(t, err)
	require.NotNil(t, loaded.LastAnnouncement)
	assert.Equal(t, "12:30", loaded.LastAnnouncement.Slot)
	assert.Equal(t, int64(1773489600), loaded.StartedAt)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestRuntimeState_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	state, err := LoadRuntimeState(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultRuntimeState(), state)
}

func TestStateRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	prev := DefaultRuntimeState()
	carried := testAnnouncement("prev", 11, 0, model.OutcomePlayed)
	prev.LastAnnouncement = &carried
	prev.LastError = "stale"
	require.NoError(t, SaveRuntimeState(path, prev))

	started := time.Date(2026, 3, 14, 11, 5, 0, 0, time.Local)
	r, err := NewStateRecorder(path, started)
	require.NoError(t, err)

	st := r.State()
	assert.Equal(t, started.Unix(), st.StartedAt)
	assert.Equal(t, os.Getpid(), st.PID)
	require.NotNil(t, st.LastAnnouncement)
	assert.Equal(t, "prev", st.LastAnnouncement.ID)
	assert.Empty(t, st.LastError, "errors from a previous run are not carried over")

	failed := testAnnouncement("a1", 11, 15, model.OutcomeFailed)
	failed.Error = "speaker unavailable"
	require.NoError(t, r.Record(&failed))

	onDisk, err := LoadRuntimeState(path)
	require.NoError(t, err)
	assert.Equal(t, "a1", onDisk.LastAnnouncement.ID)
	assert.Equal(t, "speaker unavailable", onDisk.LastError)
	assert.Equal(t, failed.RecordedAtTime().Unix(), onDisk.LastErrorAt)

	require.NoError(t, r.RecordError(assert.AnError))
	require.NoError(t, r.Stopped())

	onDisk, err = LoadRuntimeState(path)
	require.NoError(t, err)
	assert.Equal(t, assert.AnError.Error(), onDisk.LastError)
	assert.Zero(t, onDisk.PID)
}
