package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/voiceclock/internal/model"
)

// SchemaVersion is the current history file schema version.
const SchemaVersion = 1

// maxLineSize bounds a single history line.
const maxLineSize = 64 * 1024

// Persistence defines the interface for history storage.
type Persistence interface {
	// Load reads all announcements from storage.
	Load() ([]model.Announcement, error)

	// Append adds an announcement to storage.
	Append(a model.Announcement) error

	// Rewrite replaces the entire storage file (used after prune).
	Rewrite(as []model.Announcement) error

	// Clear removes all stored announcements.
	Clear() error

	// Close releases file handles and resources.
	Close() error
}

// schemaHeader is the first line of the JSONL file.
type schemaHeader struct {
	VoiceclockSchemaVersion int   `json:"voiceclock_schema_version"`
	CreatedAt               int64 `json:"created_at"`
}

// ErrPersistenceClosed is returned when operations are attempted on a closed persistence.
var ErrPersistenceClosed = errors.New("persistence is closed")

// JSONLPersistence implements Persistence using a JSONL file.
type JSONLPersistence struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	closed bool
}

// NewJSONLPersistence opens (creating if needed) the history file at path.
func NewJSONLPersistence(path string) (*JSONLPersistence, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	p := &JSONLPersistence{
		path: path,
		file: file,
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := p.writeHeader(); err != nil {
			_ = file.Close()
			return nil, err
		}
	}

	return p, nil
}

// Path returns the history file path.
func (p *JSONLPersistence) Path() string {
	return p.path
}

func (p *JSONLPersistence) writeHeader() error {
	data, err := json.Marshal(schemaHeader{
		VoiceclockSchemaVersion: SchemaVersion,
		CreatedAt:               time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	_, err = p.file.Write(append(data, '\n'))
	return err
}

// Load reads all announcements from storage. Malformed lines are skipped.
func (p *JSONLPersistence) Load() ([]model.Announcement, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.file == nil {
		return nil, ErrPersistenceClosed
	}
	if err := p.reopenIfReplaced(); err != nil {
		return nil, err
	}

	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", p.path, err)
	}

	announcements, err := readAnnouncements(p.file)
	if err != nil {
		return announcements, err
	}

	// Seek back to end for appending
	if _, err := p.file.Seek(0, io.SeekEnd); err != nil {
		return announcements, err
	}
	return announcements, nil
}

// readAnnouncements parses a history stream.
func readAnnouncements(r io.Reader) ([]model.Announcement, error) {
	var announcements []model.Announcement

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if lineNum == 1 {
			var header schemaHeader
			if err := json.Unmarshal(line, &header); err == nil && header.VoiceclockSchemaVersion > 0 {
				if header.VoiceclockSchemaVersion > SchemaVersion {
					return nil, fmt.Errorf("unsupported schema version %d (max: %d)",
						header.VoiceclockSchemaVersion, SchemaVersion)
				}
				continue
			}
		}

		var a model.Announcement
		if err := json.Unmarshal(line, &a); err != nil {
			continue
		}
		if a.ID != "" {
			announcements = append(announcements, a)
		}
	}

	if err := scanner.Err(); err != nil {
		return announcements, fmt.Errorf("error reading history: %w", err)
	}
	return announcements, nil
}

// Append adds an announcement to storage.
func (p *JSONLPersistence) Append(a model.Announcement) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.file == nil {
		return ErrPersistenceClosed
	}
	if err := p.reopenIfReplaced(); err != nil {
		return err
	}

	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if _, err := p.file.Write(append(data, '\n')); err != nil {
		return err
	}
	return p.file.Sync()
}

// Rewrite replaces the entire storage file.
func (p *JSONLPersistence) Rewrite(as []model.Announcement) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPersistenceClosed
	}

	return p.replace(func(w io.Writer) error {
		for _, a := range as {
			data, err := json.Marshal(a)
			if err != nil {
				return err
			}
			if _, err := w.Write(append(data, '\n')); err != nil {
				return err
			}
		}
		return nil
	})
}

// Clear removes all stored announcements.
func (p *JSONLPersistence) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPersistenceClosed
	}

	return p.replace(func(io.Writer) error { return nil })
}

// replace writes a fresh file via a temp file and rename, then reopens it
// for appending. Caller must hold p.mu.
func (p *JSONLPersistence) replace(body func(w io.Writer) error) error {
	tmpPath := p.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	header, err := json.Marshal(schemaHeader{
		VoiceclockSchemaVersion: SchemaVersion,
		CreatedAt:               time.Now().Unix(),
	})
	if err == nil {
		_, err = tmp.Write(append(header, '\n'))
	}
	if err == nil {
		err = body(tmp)
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if p.file != nil {
		_ = p.file.Close()
		p.file = nil
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}

	file, err := os.OpenFile(p.path, os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to reopen history file: %w", err)
	}
	p.file = file
	return nil
}

// reopenIfReplaced switches to the file now at p.path when another process
// has replaced or removed the one held open. Caller must hold p.mu.
func (p *JSONLPersistence) reopenIfReplaced() error {
	held, err := p.file.Stat()
	if err != nil {
		return err
	}
	current, err := os.Stat(p.path)
	if err == nil && os.SameFile(held, current) {
		return nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	file, err := os.OpenFile(p.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to reopen history file: %w", err)
	}
	_ = p.file.Close()
	p.file = file

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return p.writeHeader()
	}
	return nil
}

// Close releases file handles and resources.
func (p *JSONLPersistence) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.file != nil {
		err := p.file.Close()
		p.file = nil
		return err
	}
	return nil
}

// ReadHistory reads a history file without opening it for writing, for
// readers such as the CLI. A missing file yields no announcements.
func ReadHistory(path string) ([]model.Announcement, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return readAnnouncements(f)
}
