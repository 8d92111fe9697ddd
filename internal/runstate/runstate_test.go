package runstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestState_MarkCheckedIdempotent(t *testing.T) {
	s := New()
	s.MarkChecked("b")
	s.MarkChecked("a")
	s.MarkChecked("b")

	assert.Equal(t, []string{"a", "b"}, s.StoriesCheckedThisRun)
	assert.True(t, s.IsChecked("a"))
	assert.False(t, s.IsChecked("c"))
}

func TestState_RecordTransition(t *testing.T) {
	s := New()
	s.RecordTransition(true)
	assert.True(t, s.LastIterationHadStateChange)
	s.RecordTransition(false)
	assert.False(t, s.LastIterationHadStateChange)
}

func TestState_BeginOnlyWhenNull(t *testing.T) {
	s := New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, s.Begin(now))
	require.NotNil(t, s.RunID)
	assert.Equal(t, now, *s.RunID)

	assert.False(t, s.Begin(now.Add(time.Hour)))
	assert.Equal(t, now, *s.RunID)
}

func TestState_ResetPreservesPreferences(t *testing.T) {
	s := New()
	s.Begin(time.Now())
	s.MarkChecked("a")
	s.Preferences.SkipPushedTasks = true
	s.Preferences.SetMergeBackoff(false)
	s.Preferences.SetBackoffStoryIDs([]string{"m1"})
	s.Preferences.PrioritizeTask = []string{"x", "y"}

	s.Reset()

	assert.Nil(t, s.RunID)
	assert.Empty(t, s.StoriesCheckedThisRun)
	assert.True(t, s.Preferences.SkipPushedTasks)
	assert.False(t, s.Preferences.MergeBackoffEnabled())
	require.NotNil(t, s.Preferences.MergeBackoffStoryIDs)
	assert.Equal(t, []string{"m1"}, *s.Preferences.MergeBackoffStoryIDs)
	assert.Equal(t, []string{"x", "y"}, s.Preferences.PrioritizeTask)
}

func TestPreferences_MergeBackoffDefault(t *testing.T) {
	var p Preferences
	assert.True(t, p.MergeBackoffEnabled())

	p.SetMergeBackoff(false)
	assert.False(t, p.MergeBackoffEnabled())
}

func TestPreferences_NilFilterSurvivesYAML(t *testing.T) {
	s := New()
	data, err := yaml.Marshal(s)
	require.NoError(t, err)

	var back State
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Nil(t, back.Preferences.MergeBackoffStoryIDs)

	s.Preferences.SetBackoffStoryIDs([]string{})
	data, err = yaml.Marshal(s)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &back))
	require.NotNil(t, back.Preferences.MergeBackoffStoryIDs)
	assert.Empty(t, *back.Preferences.MergeBackoffStoryIDs)
}

func TestPreferences_BackoffAllows(t *testing.T) {
	var p Preferences
	assert.True(t, p.BackoffAllows("any"))

	p.SetBackoffStoryIDs([]string{})
	assert.False(t, p.BackoffAllows("any"))

	p.SetBackoffStoryIDs([]string{"a"})
	assert.True(t, p.BackoffAllows("a"))
	assert.False(t, p.BackoffAllows("b"))
}

func TestState_Normalize(t *testing.T) {
	s := &State{StoriesCheckedThisRun: []string{"c", "a", "c", "b"}}
	s.Normalize()
	assert.Equal(t, []string{"a", "b", "c"}, s.StoriesCheckedThisRun)
}

func TestState_CloneIsDeep(t *testing.T) {
	s := New()
	s.Begin(time.Now())
	s.MarkChecked("a")
	s.Preferences.SetBackoffStoryIDs([]string{"a"})

	c := s.Clone()
	c.MarkChecked("b")
	(*c.Preferences.MergeBackoffStoryIDs)[0] = "z"

	assert.Equal(t, []string{"a"}, s.StoriesCheckedThisRun)
	assert.Equal(t, "a", (*s.Preferences.MergeBackoffStoryIDs)[0])
}
