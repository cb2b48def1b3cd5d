package core

import (
	"strings"

	"github.com/jmylchreest/voiceclock/internal/model"
)

// LookupByID finds an announcement by its ID or a unique ID prefix.
// Returns nil if nothing or more than one announcement matches.
func LookupByID(as []model.Announcement, id string) *model.Announcement {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return nil
	}

	var found *model.Announcement
	for i := range as {
		if as[i].ID == id {
			return &as[i]
		}
		if strings.HasPrefix(as[i].ID, id) {
			if found != nil {
				return nil
			}
			found = &as[i]
		}
	}
	return found
}

// LookupByIndex finds an announcement by its 1-based index.
func LookupByIndex(as []model.Announcement, index int) *model.Announcement {
	idx := index - 1
	if idx < 0 || idx >= len(as) {
		return nil
	}
	return &as[idx]
}

// Search finds announcements whose slot, clip path or error contains term.
// Case-insensitive.
func Search(as []model.Announcement, term string) []model.Announcement {
	if term == "" {
		return as
	}

	term = strings.ToLower(term)
	var result []model.Announcement
	for _, a := range as {
		if strings.Contains(a.Slot, term) ||
			strings.Contains(strings.ToLower(a.Path), term) ||
			strings.Contains(strings.ToLower(a.Error), term) {
			result = append(result, a)
		}
	}
	return result
}

// OutcomeCounts tallies announcements by outcome.
func OutcomeCounts(as []model.Announcement) map[model.Outcome]int {
	counts := make(map[model.Outcome]int, len(model.Outcomes()))
	for _, a := range as {
		counts[a.Outcome]++
	}
	return counts
}
