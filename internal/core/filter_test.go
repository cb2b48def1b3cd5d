package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/voiceclock/internal/model"
)

func sampleHistory() []model.Announcement {
	now := time.Now()
	return []model.Announcement{
		{ID: "1", Slot: "09:00", Hour: 9, Minute: 0, Language: "en", Interval: 60, Outcome: model.OutcomePlayed,
			Path: "/clips/en/09_00.ogg", Timestamp: now.Add(-3 * time.Hour).Unix()},
		{ID: "2", Slot: "09:15", Hour: 9, Minute: 15, Language: "bn", Interval: 15, Outcome: model.OutcomeMissing,
			Error: "missing audio asset for 09:15 (bn): no 09_15 clip", Timestamp: now.Add(-2 * time.Hour).Unix()},
		{ID: "3", Slot: "18:30", Hour: 18, Minute: 30, Language: "bn", Interval: 30, Outcome: model.OutcomeFailed,
			Path: "/clips/bn/06_30.ogg", Error: "audio device busy", Timestamp: now.Add(-30 * time.Minute).Unix()},
		{ID: "4", Slot: "18:45", Hour: 18, Minute: 45, Language: "en", Interval: 15, Outcome: model.OutcomeMuted,
			Timestamp: now.Add(-10 * time.Minute).Unix()},
	}
}

func ids(as []model.Announcement) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.ID)
	}
	return out
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{"", []string{"1", "2", "3", "4"}},
		{"outcome=missing", []string{"2"}},
		{"outcome!=played", []string{"2", "3", "4"}},
		{"language=bangla", []string{"2", "3"}},
		{"lang=bn,hour>=18", []string{"3"}},
		{"hour<10", []string{"1", "2"}},
		{"minute=45", []string{"4"}},
		{"interval=15m", []string{"2", "4"}},
		{"slot~:30", []string{"3"}},
		{"error~=(?i)DEVICE", []string{"3"}},
		{"path~/en/", []string{"1"}},
		{"timestamp>1h", []string{"3", "4"}},
		{"ts<=1h", []string{"1", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expr, err := ParseFilter(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(FilterWithExpr(sampleHistory(), expr)))
		})
	}
}

func TestParseFilter_Errors(t *testing.T) {
	for _, expr := range []string{
		"volume=10",
		"outcome=exploded",
		"language=fr",
		"hour=noon",
		"interval=45",
		"error~=(",
		"timestamp>soon",
		"outcome",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseFilter(expr)
			assert.Error(t, err)
		})
	}
}

func TestFilterWithExpr_Nil(t *testing.T) {
	as := sampleHistory()
	assert.Len(t, FilterWithExpr(as, nil), len(as))
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		hasError bool
	}{
		{"0", 0, false},
		{"", 0, false},
		{"1h", time.Hour, false},
		{"30m", 30 * time.Minute, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"invalid", 0, true},
		{"xd", 0, true},
		{"xw", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseDuration(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestParseOutcome(t *testing.T) {
	o, err := ParseOutcome(" Missing ")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeMissing, o)

	_, err = ParseOutcome("skipped")
	assert.Error(t, err)
}
