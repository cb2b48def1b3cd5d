package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/voiceclock/internal/model"
)

func TestNewJSONLPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "voiceclock_schema_version")
	assert.Equal(t, path, p.Path())
}

func TestNewJSONLPersistence_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "nested", "history.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	_, err = os.Stat(filepath.Dir(path))
	require.NoError(t, err)
}

func TestJSONLPersistence_AppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)

	require.NoError(t, p.Append(testAnnouncement("a1", 12, 0, model.OutcomePlayed)))
	require.NoError(t, p.Append(testAnnouncement("a2", 12, 30, model.OutcomeMuted)))

	loaded, err := p.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "a1", loaded[0].ID)
	assert.Equal(t, model.OutcomeMuted, loaded[1].Outcome)
	assert.Equal(t, "12:30", loaded[1].Slot)

	// Appends still land at the end after a Load
	require.NoError(t, p.Append(testAnnouncement("a3", 13, 0, model.OutcomePlayed)))
	require.NoError(t, p.Close())

	p2, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p2.Close()

	loaded, err = p2.Load()
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
}

func TestJSONLPersistence_Rewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	for i, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, p.Append(testAnnouncement(id, 9, i*15, model.OutcomePlayed)))
	}

	require.NoError(t, p.Rewrite([]model.Announcement{testAnnouncement("a3", 9, 30, model.OutcomePlayed)}))

	loaded, err := p.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "a3", loaded[0].ID)

	// The reopened handle keeps appending
	require.NoError(t, p.Append(testAnnouncement("a4", 9, 45, model.OutcomePlayed)))
	loaded, err = p.Load()
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestJSONLPersistence_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Append(testAnnouncement("a1", 12, 0, model.OutcomePlayed)))
	require.NoError(t, p.Clear())

	loaded, err := p.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "voiceclock_schema_version", "header survives a clear")
}

func TestJSONLPersistence_Closed(t *testing.T) {
	p, err := NewJSONLPersistence(filepath.Join(t.TempDir(), "history.jsonl"))
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Load()
	assert.ErrorIs(t, err, ErrPersistenceClosed)
	assert.ErrorIs(t, p.Append(testAnnouncement("a1", 12, 0, model.OutcomePlayed)), ErrPersistenceClosed)
	assert.ErrorIs(t, p.Rewrite(nil), ErrPersistenceClosed)
	assert.ErrorIs(t, p.Clear(), ErrPersistenceClosed)
}

func TestJSONLPersistence_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestJSONLPersistence_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	content := `{"voiceclock_schema_version":1,"created_at":1773489600}
{"id":"valid1","slot":"12:00","hour":12,"minute":0,"language":"en","outcome":"played","timestamp":1773489600,"recorded_at":1773489600000}
{invalid json}
{"slot":"12:15"}
{"id":"valid2","slot":"12:15","hour":12,"minute":15,"language":"en","outcome":"muted","timestamp":1773490500,"recorded_at":1773490500000}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	loaded, err := p.Load()
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestJSONLPersistence_SchemaVersionCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	content := `{"voiceclock_schema_version":999,"created_at":1773489600}
{"id":"a1","slot":"12:00","hour":12,"minute":0,"language":"en","outcome":"played","timestamp":1773489600}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported schema version")
}

func TestReadHistory(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		loaded, err := ReadHistory(filepath.Join(dir, "absent.jsonl"))
		require.NoError(t, err)
		assert.Empty(t, loaded)
	})

	t.Run("written by the daemon", func(t *testing.T) {
		path := filepath.Join(dir, "history.jsonl")
		p, err := NewJSONLPersistence(path)
		require.NoError(t, err)
		require.NoError(t, p.Append(testAnnouncement("a1", 7, 45, model.OutcomeMissing)))

		loaded, err := ReadHistory(path)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, model.OutcomeMissing, loaded[0].Outcome)
		require.NoError(t, p.Close())
	})
}

func TestStoreWithPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)

	s := NewStore(p, 0)
	require.NoError(t, s.Add(testAnnouncement("a1", 12, 0, model.OutcomePlayed)))
	require.NoError(t, s.Add(testAnnouncement("a2", 12, 15, model.OutcomePlayed)))
	require.NoError(t, s.Close())

	p2, err := NewJSONLPersistence(path)
	require.NoError(t, err)

	s2 := NewStore(p2, 0)
	require.NoError(t, s2.Hydrate())
	assert.Equal(t, 2, s2.Count())
	require.NoError(t, s2.Close())
}

func testAnnouncement(id string, hour, minute int, outcome model.Outcome) model.Announcement {
	at := time.Date(2026, 3, 14, hour, minute, 0, 0, time.Local)
	return model.Announcement{
		ID:         id,
		Slot:       fmt.Sprintf("%02d:%02d", hour, minute),
		Hour:       hour,
		Minute:     minute,
		Language:   "en",
		Interval:   15,
		Path:       "/assets/en/clip.ogg",
		Outcome:    outcome,
		Timestamp:  at.Unix(),
		RecordedAt: at.UnixMilli(),
	}
}
