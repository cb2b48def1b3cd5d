package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/jmylchreest/voiceclock/internal/model"
)

// SortField represents a field to sort by.
type SortField string

const (
	SortByTimestamp SortField = "timestamp"
	SortBySlot      SortField = "slot"
	SortByOutcome   SortField = "outcome"
)

// SortOrder represents ascending or descending order.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortOptions specifies sorting criteria.
type SortOptions struct {
	Field SortField
	Order SortOrder
}

// DefaultSortOptions returns default sort options (newest first).
func DefaultSortOptions() SortOptions {
	return SortOptions{
		Field: SortByTimestamp,
		Order: SortDesc,
	}
}

// outcomeRank orders outcomes as Outcomes lists them.
func outcomeRank(o model.Outcome) int {
	return slices.Index(model.Outcomes(), o)
}

// Sort sorts announcements in place. Ties keep their relative order.
func Sort(as []model.Announcement, opts SortOptions) {
	slices.SortStableFunc(as, func(x, y model.Announcement) int {
		var c int
		switch opts.Field {
		case SortBySlot:
			c = strings.Compare(x.Slot, y.Slot)
		case SortByOutcome:
			c = cmp.Compare(outcomeRank(x.Outcome), outcomeRank(y.Outcome))
		default:
			c = cmp.Or(cmp.Compare(x.Timestamp, y.Timestamp), cmp.Compare(x.RecordedAt, y.RecordedAt))
		}
		if opts.Order == SortDesc {
			return -c
		}
		return c
	})
}

// ParseSortField parses a sort field string.
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "timestamp", "time", "t":
		return SortByTimestamp, nil
	case "slot", "s":
		return SortBySlot, nil
	case "outcome", "o":
		return SortByOutcome, nil
	default:
		return "", fmt.Errorf("invalid sort field: %s (use timestamp, slot or outcome)", s)
	}
}

// ParseSortOrder parses a sort order string.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending", "a":
		return SortAsc, nil
	case "", "desc", "descending", "d":
		return SortDesc, nil
	default:
		return "", fmt.Errorf("invalid sort order: %s (use asc or desc)", s)
	}
}
