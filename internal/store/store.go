// Package store keeps the announcement history and the runtime state
// shared between voiceclockd and the CLI.
package store

import (
	"slices"
	"sync"
	"time"

	"github.com/jmylchreest/voiceclock/internal/model"
)

// ChangeType indicates the type of store change.
type ChangeType int

const (
	// ChangeTypeAdd indicates announcements were added.
	ChangeTypeAdd ChangeType = iota
	// ChangeTypeClear indicates all announcements were cleared.
	ChangeTypeClear
	// ChangeTypePrune indicates announcements were pruned.
	ChangeTypePrune
	// ChangeTypeReload indicates the contents were replaced from disk.
	ChangeTypeReload
)

// ChangeEvent signals store content changes.
type ChangeEvent struct {
	Type  ChangeType
	Count int
}

// FilterOptions specifies criteria for filtering announcements.
type FilterOptions struct {
	Since    time.Duration // Only announcements newer than now-since (0=all)
	Outcome  model.Outcome // Exact outcome ("" = any)
	Language string        // Exact language ("" = any)
	Limit    int           // Maximum results (0=unlimited)
	Order    string        // "asc" or "desc" (default: "desc")
}

// compactSlack is how far the file may grow past the limit before it is
// rewritten.
const compactSlack = 100

// Store manages the announcement history with thread-safe operations.
type Store struct {
	mu    sync.RWMutex
	items []model.Announcement
	index map[string]int // id -> slice index

	persistence Persistence

	// Maximum entries kept (0 = unlimited)
	limit int

	subscribers []chan ChangeEvent
	closed      bool
}

// NewStore creates a new Store keeping at most limit entries.
// If persistence is not nil, it will be used to persist announcements.
func NewStore(persistence Persistence, limit int) *Store {
	return &Store{
		items:       make([]model.Announcement, 0),
		index:       make(map[string]int),
		persistence: persistence,
		limit:       max(0, limit),
	}
}

// SetLimit changes the maximum number of entries kept.
func (s *Store) SetLimit(limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limit = max(0, limit)
}

// Add appends an announcement. Announcements already present (same ID)
// are ignored.
func (s *Store) Add(a model.Announcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if err := a.Validate(); err != nil {
		return err
	}
	if _, exists := s.index[a.ID]; exists {
		return nil
	}

	s.index[a.ID] = len(s.items)
	s.items = append(s.items, a)

	if s.persistence != nil {
		if err := s.persistence.Append(a); err != nil {
			return err
		}
	}

	if err := s.enforceLimit(); err != nil {
		return err
	}

	s.notifyChange(ChangeEvent{Type: ChangeTypeAdd, Count: 1})
	return nil
}

// Record adds a finished announcement to the history.
func (s *Store) Record(a *model.Announcement) error {
	return s.Add(*a)
}

// enforceLimit drops the oldest entries past the limit, rewriting the file
// once it has grown compactSlack entries beyond it. Caller must hold s.mu.
func (s *Store) enforceLimit() error {
	if s.limit == 0 || len(s.items) <= s.limit+compactSlack {
		return nil
	}

	s.items = slices.Clone(s.items[len(s.items)-s.limit:])
	s.reindex()

	if s.persistence != nil {
		return s.persistence.Rewrite(s.items)
	}
	return nil
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.items))
	for i, a := range s.items {
		s.index[a.ID] = i
	}
}

// All returns all announcements, newest first.
func (s *Store) All() []model.Announcement {
	return s.Filter(FilterOptions{})
}

// Filter returns announcements matching the criteria.
func (s *Store) Filter(opts FilterOptions) []model.Announcement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return FilterAnnouncements(s.items, opts)
}

// FilterAnnouncements applies opts to as without modifying it.
func FilterAnnouncements(as []model.Announcement, opts FilterOptions) []model.Announcement {
	var cutoff int64
	if opts.Since > 0 {
		cutoff = time.Now().Add(-opts.Since).Unix()
	}

	out := make([]model.Announcement, 0, len(as))
	for _, a := range as {
		if cutoff > 0 && a.Timestamp < cutoff {
			continue
		}
		if opts.Outcome != "" && a.Outcome != opts.Outcome {
			continue
		}
		if opts.Language != "" && a.Language != opts.Language {
			continue
		}
		out = append(out, a)
	}

	slices.SortStableFunc(out, func(x, y model.Announcement) int {
		c := compareAnnouncements(x, y)
		if opts.Order != "asc" {
			c = -c
		}
		return c
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// compareAnnouncements orders by announced minute, then by write time.
func compareAnnouncements(x, y model.Announcement) int {
	switch {
	case x.Timestamp < y.Timestamp:
		return -1
	case x.Timestamp > y.Timestamp:
		return 1
	case x.RecordedAt < y.RecordedAt:
		return -1
	case x.RecordedAt > y.RecordedAt:
		return 1
	default:
		return 0
	}
}

// Latest returns the most recently recorded announcement, or nil.
func (s *Store) Latest() *model.Announcement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.items) == 0 {
		return nil
	}
	return s.items[len(s.items)-1].Clone()
}

// GetByID returns an announcement by its ULID.
func (s *Store) GetByID(id string) *model.Announcement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx, ok := s.index[id]; ok {
		return s.items[idx].Clone()
	}
	return nil
}

// Count returns the total number of announcements.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Prune removes announcements older than olderThan and keeps at most
// keep of the rest (0 = no cap). Returns the number removed.
func (s *Store) Prune(olderThan time.Duration, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	kept := s.items
	if olderThan > 0 {
		cutoff := time.Now().Add(-olderThan).Unix()
		kept = slices.DeleteFunc(slices.Clone(kept), func(a model.Announcement) bool {
			return a.Timestamp < cutoff
		})
	}
	if keep > 0 && len(kept) > keep {
		kept = kept[len(kept)-keep:]
	}

	removed := len(s.items) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	s.items = slices.Clone(kept)
	s.reindex()

	if s.persistence != nil {
		if err := s.persistence.Rewrite(s.items); err != nil {
			return removed, err
		}
	}

	s.notifyChange(ChangeEvent{Type: ChangeTypePrune, Count: removed})
	return removed, nil
}

// Subscribe returns a channel that receives change events.
func (s *Store) Subscribe() <-chan ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan ChangeEvent, 10)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscription.
func (s *Store) Unsubscribe(ch <-chan ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close releases resources and closes all subscriber channels.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil

	if s.persistence != nil {
		return s.persistence.Close()
	}
	return nil
}

// Hydrate loads announcements from persistence into the store.
func (s *Store) Hydrate() error {
	if s.persistence == nil {
		return nil
	}

	loaded, err := s.persistence.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	added := 0
	for _, a := range loaded {
		if _, exists := s.index[a.ID]; exists {
			continue
		}
		s.index[a.ID] = len(s.items)
		s.items = append(s.items, a)
		added++
	}
	if s.limit > 0 && len(s.items) > s.limit {
		s.items = slices.Clone(s.items[len(s.items)-s.limit:])
		s.reindex()
	}
	if added > 0 {
		s.notifyChange(ChangeEvent{Type: ChangeTypeAdd, Count: added})
	}
	s.mu.Unlock()

	return nil
}

// Reload replaces the store contents with what persistence holds, dropping
// entries another process removed from the file.
func (s *Store) Reload() error {
	if s.persistence == nil {
		return nil
	}

	loaded, err := s.persistence.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	items := make([]model.Announcement, 0, len(loaded))
	seen := make(map[string]bool, len(loaded))
	for _, a := range loaded {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		items = append(items, a)
	}
	if s.limit > 0 && len(items) > s.limit {
		items = items[len(items)-s.limit:]
	}

	s.items = items
	s.reindex()
	s.notifyChange(ChangeEvent{Type: ChangeTypeReload, Count: len(items)})
	return nil
}

// Clear removes all announcements from the store.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	count := len(s.items)
	s.items = make([]model.Announcement, 0)
	s.index = make(map[string]int)

	if s.persistence != nil {
		if err := s.persistence.Clear(); err != nil {
			return err
		}
	}

	s.notifyChange(ChangeEvent{Type: ChangeTypeClear, Count: count})
	return nil
}

// notifyChange sends a change event to all subscribers (non-blocking).
// Caller must hold s.mu.
func (s *Store) notifyChange(event ChangeEvent) {
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip
		}
	}
}

// Errors
var (
	ErrStoreClosed = storeError("store is closed")
)

type storeError string

func (e storeError) Error() string {
	return string(e)
}
