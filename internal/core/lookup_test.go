package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/voiceclock/internal/model"
)

func TestLookupByID(t *testing.T) {
	as := []model.Announcement{
		{ID: "01HQZX0000AAAA"},
		{ID: "01HQZX0000AABB"},
		{ID: "01HQZY0000CCCC"},
	}

	tests := []struct {
		name string
		id   string
		want string
	}{
		{"exact", "01HQZX0000AAAA", "01HQZX0000AAAA"},
		{"unique prefix", "01hqzy", "01HQZY0000CCCC"},
		{"ambiguous prefix", "01HQZX", ""},
		{"unknown", "01ZZZ", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LookupByID(as, tt.id)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestLookupByIndex(t *testing.T) {
	as := sampleHistory()

	got := LookupByIndex(as, 1)
	require.NotNil(t, got)
	assert.Equal(t, "1", got.ID)

	assert.Nil(t, LookupByIndex(as, 0))
	assert.Nil(t, LookupByIndex(as, len(as)+1))
}

func TestSearch(t *testing.T) {
	as := sampleHistory()

	assert.Len(t, Search(as, ""), len(as))
	assert.Equal(t, []string{"3"}, ids(Search(as, "Busy")))
	assert.Equal(t, []string{"1"}, ids(Search(as, "09_00")))
	assert.Equal(t, []string{"3", "4"}, ids(Search(as, "18:")))
	assert.Empty(t, Search(as, "nothing"))
}

func TestOutcomeCounts(t *testing.T) {
	counts := OutcomeCounts(sampleHistory())
	assert.Equal(t, 1, counts[model.OutcomePlayed])
	assert.Equal(t, 1, counts[model.OutcomeMissing])
	assert.Equal(t, 0, counts[model.OutcomeForced])
}
