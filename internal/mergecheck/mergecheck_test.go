package mergecheck

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyloop/internal/runstate"
	"storyloop/internal/status"
	"storyloop/internal/story"
)

func TestAdvance(t *testing.T) {
	tests := []struct {
		count    int
		interval time.Duration
		final    bool
		wantErr  bool
	}{
		{count: 0, interval: 2 * Day},
		{count: 1, interval: 4 * Day},
		{count: 2, interval: 8 * Day},
		{count: 3, final: true},
		{count: 4, wantErr: true},
		{count: -1, wantErr: true},
	}

	for _, tt := range tests {
		interval, final, err := Advance(tt.count)
		if tt.wantErr {
			assert.Error(t, err, "count %d", tt.count)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.interval, interval, "count %d", tt.count)
		assert.Equal(t, tt.final, final, "count %d", tt.count)
	}
}

func TestSchedule(t *testing.T) {
	merged := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := Schedule(merged)

	assert.Equal(t, []time.Time{
		merged.Add(1 * Day),
		merged.Add(3 * Day),
		merged.Add(7 * Day),
		merged.Add(15 * Day),
	}, got)
}

func TestRecheck_FullSequence(t *testing.T) {
	merged := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &story.Story{ID: "G", Status: status.StatusMerged}
	StartMonitoring(s, merged)

	require.NotNil(t, s.NextMergedCheck)
	seen := []time.Time{*s.NextMergedCheck}
	for i := 0; i < 3; i++ {
		require.NoError(t, Recheck(s))
		assert.Equal(t, i+1, s.MergedCheckCount)
		seen = append(seen, *s.NextMergedCheck)
	}

	assert.Equal(t, Schedule(merged), seen)
	assert.False(t, s.MergedCheckFinalState)

	require.NoError(t, Recheck(s))
	assert.True(t, s.MergedCheckFinalState)
	assert.Equal(t, 4, s.MergedCheckCount)

	assert.Error(t, Recheck(s))
}

func TestRecheck_ScenarioFromMergeDay(t *testing.T) {
	merged := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &story.Story{ID: "G", Status: status.StatusMerged}
	StartMonitoring(s, merged)

	now := time.Date(2026, 1, 2, 0, 0, 1, 0, time.UTC)
	assert.True(t, Due(s, runstate.Preferences{}, now))

	require.NoError(t, Recheck(s))
	assert.Equal(t, 1, s.MergedCheckCount)
	assert.Equal(t, time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC), *s.NextMergedCheck)
}

func TestRecheck_RejectsNonMerged(t *testing.T) {
	s := &story.Story{ID: "A", Status: status.StatusPushed}
	assert.Error(t, Recheck(s))
}

func TestDue(t *testing.T) {
	next := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	merged := &story.Story{ID: "G", Status: status.StatusMerged, NextMergedCheck: &next}

	before := next.Add(-time.Second)
	after := next.Add(time.Second)

	disabled := runstate.Preferences{}
	disabled.SetMergeBackoff(false)

	onlyOther := runstate.Preferences{}
	onlyOther.SetBackoffStoryIDs([]string{"other"})

	onlyG := runstate.Preferences{}
	onlyG.SetBackoffStoryIDs([]string{"G"})

	assert.False(t, Due(merged, runstate.Preferences{}, before), "not yet due")
	assert.True(t, Due(merged, runstate.Preferences{}, next), "due exactly at schedule")
	assert.True(t, Due(merged, runstate.Preferences{}, after))
	assert.False(t, Due(merged, disabled, after), "backoff disabled")
	assert.False(t, Due(merged, onlyOther, after), "filtered out by id list")
	assert.True(t, Due(merged, onlyG, after))
	assert.False(t, Due(merged, onlyG, before), "id list never adds eligibility")

	final := merged.Clone()
	final.MergedCheckFinalState = true
	assert.False(t, Due(final, runstate.Preferences{}, after))
}
