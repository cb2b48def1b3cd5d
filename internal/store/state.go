package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/model"
)

// HistoryPath returns the path to the announcement history file.
func HistoryPath() (string, error) {
	dataDir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "history.jsonl"), nil
}

// StateFilePath returns the path to the runtime state file.
func StateFilePath() (string, error) {
	dataDir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "state.json"), nil
}

// CurrentSchemaVersion is the current version of the state schema.
const CurrentSchemaVersion = 1

// RuntimeState is written by voiceclockd and read by the CLI.
// This is persisted to ~/.local/share/voiceclock/state.json
type RuntimeState struct {
	StartedAt int64 `json:"started_at,omitempty"` // Unix timestamp
	PID       int   `json:"pid,omitempty"`

	LastAnnouncement *model.Announcement `json:"last_announcement,omitempty"`

	LastError   string `json:"last_error,omitempty"`
	LastErrorAt int64  `json:"last_error_at,omitempty"`

	SchemaVersion int `json:"schema_version"`
}

// DefaultRuntimeState returns an empty state at the current schema version.
func DefaultRuntimeState() *RuntimeState {
	return &RuntimeState{SchemaVersion: CurrentSchemaVersion}
}

// SetError records err as the most recent failure. A nil err is ignored.
func (s *RuntimeState) SetError(err error) {
	if err == nil {
		return
	}
	s.LastError = err.Error()
	s.LastErrorAt = time.Now().Unix()
}

// stateFileMutex protects concurrent access to the state file.
var stateFileMutex sync.RWMutex

// LoadRuntimeState reads the state file at path.
// If the file doesn't exist or is corrupt, returns a default state.
func LoadRuntimeState(path string) (*RuntimeState, error) {
	stateFileMutex.RLock()
	defer stateFileMutex.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRuntimeState(), nil
		}
		return nil, err
	}

	var state RuntimeState
	if err := json.Unmarshal(data, &state); err != nil {
		return DefaultRuntimeState(), nil
	}

	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentSchemaVersion
	}

	return &state, nil
}

// SaveRuntimeState writes state to path atomically.
func SaveRuntimeState(path string, state *RuntimeState) error {
	stateFileMutex.Lock()
	defer stateFileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentSchemaVersion
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}

// StateRecorder keeps the runtime state file in step with dispatched
// announcements.
type StateRecorder struct {
	mu    sync.Mutex
	path  string
	state *RuntimeState
}

// NewStateRecorder starts a new daemon run, stamping the start time and pid.
// The previous run's last announcement is carried over.
func NewStateRecorder(path string, now time.Time) (*StateRecorder, error) {
	prev, err := LoadRuntimeState(path)
	if err != nil {
		return nil, err
	}

	state := DefaultRuntimeState()
	state.StartedAt = now.Unix()
	state.PID = os.Getpid()
	state.LastAnnouncement = prev.LastAnnouncement

	r := &StateRecorder{path: path, state: state}
	if err := SaveRuntimeState(path, state); err != nil {
		return nil, err
	}
	return r, nil
}

// State returns a copy of the current state.
func (r *StateRecorder) State() RuntimeState {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := *r.state
	if s.LastAnnouncement != nil {
		s.LastAnnouncement = s.LastAnnouncement.Clone()
	}
	return s
}

// Record stores a as the last announcement, and its error if it failed.
func (r *StateRecorder) Record(a *model.Announcement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.LastAnnouncement = a.Clone()
	if a.Error != "" {
		r.state.LastError = a.Error
		r.state.LastErrorAt = a.RecordedAtTime().Unix()
	}
	return SaveRuntimeState(r.path, r.state)
}

// RecordError stores err as the last error.
func (r *StateRecorder) RecordError(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.SetError(err)
	return SaveRuntimeState(r.path, r.state)
}

// Stopped clears the pid so readers can tell the daemon has exited.
func (r *StateRecorder) Stopped() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.PID = 0
	return SaveRuntimeState(r.path, r.state)
}
