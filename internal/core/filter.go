// Package core provides filtering, sorting, and lookup over announcement history.
package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/model"
)

// FilterOp represents a comparison operator.
type FilterOp string

const (
	FilterOpEqual     FilterOp = "="  // Exact match
	FilterOpNotEqual  FilterOp = "!=" // Not equal
	FilterOpContains  FilterOp = "~"  // Contains substring
	FilterOpRegex     FilterOp = "~=" // Regex match
	FilterOpGreater   FilterOp = ">"  // Greater than
	FilterOpLess      FilterOp = "<"  // Less than
	FilterOpGreaterEq FilterOp = ">=" // Greater than or equal
	FilterOpLessEq    FilterOp = "<=" // Less than or equal
)

// FilterCondition represents a single filter condition.
type FilterCondition struct {
	Field    string   // slot, hour, minute, language, outcome, interval, path, error, timestamp
	Operator FilterOp // Comparison operator
	Value    string   // Value to compare against

	// Parsed values
	regex       *regexp.Regexp
	intVal      int
	timestampOp time.Time
}

// FilterExpr is a set of conditions ANDed together.
type FilterExpr struct {
	Conditions []FilterCondition
}

// ParseDuration parses a duration string with extended formats.
// Supports: 48h, 7d, 1w, 0 (all time)
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	if s == "0" || s == "" {
		return 0, nil
	}

	if daysStr, found := strings.CutSuffix(s, "d"); found {
		days, err := strconv.Atoi(daysStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	if weeksStr, found := strings.CutSuffix(s, "w"); found {
		weeks, err := strconv.Atoi(weeksStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(weeks) * 7 * 24 * time.Hour, nil
	}

	return time.ParseDuration(s)
}

// ParseOutcome parses an outcome name.
func ParseOutcome(s string) (model.Outcome, error) {
	o := model.Outcome(strings.ToLower(strings.TrimSpace(s)))
	if !o.Valid() {
		return "", fmt.Errorf("invalid outcome: %s (use played, forced, muted, missing or failed)", s)
	}
	return o, nil
}

// ParseFilter parses a filter expression string into a FilterExpr.
// Format: "field=value,field2~value2,field3>value3"
//
// Supported fields: slot, hour, minute, language, outcome, interval, path, error, timestamp
// Supported operators: = (equal), != (not equal), ~ (contains), ~= (regex), >, <, >=, <=
//
// Examples:
//   - "outcome=missing" - boundaries without a clip
//   - "language=bn,hour>=18" - Bangla announcements in the evening
//   - "slot~:30" - half-hour boundaries
//   - "error~=(?i)device" - playback errors mentioning the device
//   - "timestamp>1d" - the last day
func ParseFilter(expr string) (*FilterExpr, error) {
	if expr == "" {
		return &FilterExpr{}, nil
	}

	filter := &FilterExpr{
		Conditions: make([]FilterCondition, 0),
	}

	for part := range strings.SplitSeq(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		cond, err := parseCondition(part)
		if err != nil {
			return nil, err
		}
		filter.Conditions = append(filter.Conditions, cond)
	}

	return filter, nil
}

// parseCondition parses a single condition like "outcome=missing".
func parseCondition(s string) (FilterCondition, error) {
	// Longest operators first
	operators := []FilterOp{
		FilterOpNotEqual,
		FilterOpGreaterEq,
		FilterOpLessEq,
		FilterOpRegex,
		FilterOpEqual,
		FilterOpContains,
		FilterOpGreater,
		FilterOpLess,
	}

	for _, op := range operators {
		idx := strings.Index(s, string(op))
		if idx > 0 {
			cond := FilterCondition{
				Field:    strings.ToLower(strings.TrimSpace(s[:idx])),
				Operator: op,
				Value:    strings.TrimSpace(s[idx+len(op):]),
			}
			if err := cond.init(); err != nil {
				return FilterCondition{}, err
			}
			return cond, nil
		}
	}

	return FilterCondition{}, fmt.Errorf("invalid filter condition: %s (missing operator)", s)
}

// init normalizes the field and pre-parses the value.
func (c *FilterCondition) init() error {
	switch c.Field {
	case "slot", "time":
		c.Field = "slot"
	case "hour", "minute":
		n, err := strconv.Atoi(c.Value)
		if err != nil {
			return fmt.Errorf("invalid %s value: %s", c.Field, c.Value)
		}
		c.intVal = n
	case "interval":
		i, err := config.ParseInterval(c.Value)
		if err != nil {
			return err
		}
		c.intVal = i.Minutes()
	case "language", "lang":
		c.Field = "language"
		if c.Operator == FilterOpEqual || c.Operator == FilterOpNotEqual {
			lang, err := config.ParseLanguage(c.Value)
			if err != nil {
				return err
			}
			c.Value = string(lang)
		}
	case "outcome", "result":
		c.Field = "outcome"
		if c.Operator == FilterOpEqual || c.Operator == FilterOpNotEqual {
			o, err := ParseOutcome(c.Value)
			if err != nil {
				return err
			}
			c.Value = string(o)
		}
	case "path", "clip":
		c.Field = "path"
	case "error", "err":
		c.Field = "error"
	case "timestamp", "ts", "age":
		c.Field = "timestamp"
		dur, err := ParseDuration(c.Value)
		if err != nil {
			return fmt.Errorf("invalid timestamp value: %w", err)
		}
		c.timestampOp = time.Now().Add(-dur)
	default:
		return fmt.Errorf("unknown filter field: %s", c.Field)
	}

	if c.Operator == FilterOpRegex {
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return fmt.Errorf("invalid regex: %w", err)
		}
		c.regex = re
	}

	return nil
}

// Match tests if an announcement matches every condition.
func (f *FilterExpr) Match(a model.Announcement) bool {
	for _, cond := range f.Conditions {
		if !cond.Match(a) {
			return false
		}
	}
	return true
}

// Match tests if an announcement matches this single condition.
func (c *FilterCondition) Match(a model.Announcement) bool {
	switch c.Field {
	case "slot":
		return c.matchString(a.Slot)
	case "hour":
		return c.matchInt(a.Hour)
	case "minute":
		return c.matchInt(a.Minute)
	case "interval":
		return c.matchInt(a.Interval)
	case "language":
		return c.matchString(a.Language)
	case "outcome":
		return c.matchString(string(a.Outcome))
	case "path":
		return c.matchString(a.Path)
	case "error":
		return c.matchString(a.Error)
	case "timestamp":
		return c.matchTimestamp(a.TimestampTime())
	default:
		return false
	}
}

func (c *FilterCondition) matchString(fieldValue string) bool {
	switch c.Operator {
	case FilterOpEqual:
		return fieldValue == c.Value
	case FilterOpNotEqual:
		return fieldValue != c.Value
	case FilterOpContains:
		return strings.Contains(strings.ToLower(fieldValue), strings.ToLower(c.Value))
	case FilterOpRegex:
		return c.regex != nil && c.regex.MatchString(fieldValue)
	default:
		return false
	}
}

func (c *FilterCondition) matchInt(fieldValue int) bool {
	switch c.Operator {
	case FilterOpEqual:
		return fieldValue == c.intVal
	case FilterOpNotEqual:
		return fieldValue != c.intVal
	case FilterOpGreater:
		return fieldValue > c.intVal
	case FilterOpLess:
		return fieldValue < c.intVal
	case FilterOpGreaterEq:
		return fieldValue >= c.intVal
	case FilterOpLessEq:
		return fieldValue <= c.intVal
	default:
		return false
	}
}

// matchTimestamp compares against now minus the parsed duration, so
// "timestamp>1h" means newer than an hour ago.
func (c *FilterCondition) matchTimestamp(fieldValue time.Time) bool {
	switch c.Operator {
	case FilterOpGreater:
		return fieldValue.After(c.timestampOp)
	case FilterOpLess:
		return fieldValue.Before(c.timestampOp)
	case FilterOpGreaterEq:
		return !fieldValue.Before(c.timestampOp)
	case FilterOpLessEq:
		return !fieldValue.After(c.timestampOp)
	default:
		return false
	}
}

// FilterWithExpr returns the announcements matching expr.
func FilterWithExpr(as []model.Announcement, expr *FilterExpr) []model.Announcement {
	if expr == nil || len(expr.Conditions) == 0 {
		return as
	}

	result := make([]model.Announcement, 0, len(as))
	for _, a := range as {
		if expr.Match(a) {
			result = append(result, a)
		}
	}
	return result
}
