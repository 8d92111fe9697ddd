// Package runstate tracks per-run bookkeeping and persistent operator preferences.
//
// A run is one sweep of iterations. During a run every story the driver acts on
// is marked checked so it is not selected again until the run resets. Operator
// preferences live alongside the run bookkeeping but survive resets.
package runstate

import (
	"sort"
	"time"
)

// Preferences is operator intent. [State.Reset] never touches it.
type Preferences struct {
	// SkipPushedTasks excludes every pushed story from selection.
	SkipPushedTasks bool `yaml:"skip_pushed_tasks" json:"skip_pushed_tasks" mapstructure:"skip_pushed_tasks"`

	// EnableMergeBackoff enables post-merge rechecks. Nil means the default (true).
	EnableMergeBackoff *bool `yaml:"enable_merge_backoff,omitempty" json:"enable_merge_backoff,omitempty" mapstructure:"enable_merge_backoff"`

	// MergeBackoffStoryIDs, when non-nil, restricts post-merge rechecks to these ids.
	MergeBackoffStoryIDs *[]string `yaml:"merge_backoff_story_ids,omitempty" json:"merge_backoff_story_ids,omitempty" mapstructure:"merge_backoff_story_ids"`

	// PrioritizeTask lists ids forced ahead of normal ranking, in order.
	PrioritizeTask []string `yaml:"prioritize_task,omitempty" json:"prioritize_task,omitempty" mapstructure:"prioritize_task"`
}

// MergeBackoffEnabled resolves the tri-state flag to its effective value.
func (p Preferences) MergeBackoffEnabled() bool {
	return p.EnableMergeBackoff == nil || *p.EnableMergeBackoff
}

// SetMergeBackoff sets the merge-backoff flag explicitly.
func (p *Preferences) SetMergeBackoff(enabled bool) {
	p.EnableMergeBackoff = &enabled
}

// SetBackoffStoryIDs restricts post-merge rechecks to ids. Passing nil removes
// the restriction.
func (p *Preferences) SetBackoffStoryIDs(ids []string) {
	if ids == nil {
		p.MergeBackoffStoryIDs = nil
		return
	}
	list := append([]string{}, ids...)
	p.MergeBackoffStoryIDs = &list
}

// BackoffAllows reports whether id passes the mergeBackoffStoryIds filter.
// A nil filter admits every id; an empty non-nil filter admits none.
func (p Preferences) BackoffAllows(id string) bool {
	if p.MergeBackoffStoryIDs == nil {
		return true
	}
	for _, allowed := range *p.MergeBackoffStoryIDs {
		if allowed == id {
			return true
		}
	}
	return false
}

// State is the Run State record.
type State struct {
	// RunID identifies the current run; nil means the next iteration must
	// initialise a new run.
	RunID *time.Time `yaml:"run_id" json:"run_id"`

	// StoriesCheckedThisRun holds the ids acted on during the current run,
	// kept sorted for stable persistence.
	StoriesCheckedThisRun []string `yaml:"stories_checked_this_run" json:"stories_checked_this_run"`

	LastIterationHadStateChange bool   `yaml:"last_iteration_had_state_change" json:"last_iteration_had_state_change"`
	CurrentIterationLogPath     string `yaml:"current_iteration_log_path,omitempty" json:"current_iteration_log_path,omitempty"`

	Preferences Preferences `yaml:"preferences" json:"preferences"`
}

// New returns a fresh state that needs initialisation.
func New() *State {
	return &State{StoriesCheckedThisRun: []string{}}
}

// Begin starts a run at now if none is active. It reports whether a new run
// was started.
func (s *State) Begin(now time.Time) bool {
	if s.RunID != nil {
		return false
	}
	t := now.UTC()
	s.RunID = &t
	if s.StoriesCheckedThisRun == nil {
		s.StoriesCheckedThisRun = []string{}
	}
	return true
}

// MarkChecked records that id was acted on in this run. Idempotent.
func (s *State) MarkChecked(id string) {
	i := sort.SearchStrings(s.StoriesCheckedThisRun, id)
	if i < len(s.StoriesCheckedThisRun) && s.StoriesCheckedThisRun[i] == id {
		return
	}
	s.StoriesCheckedThisRun = append(s.StoriesCheckedThisRun, "")
	copy(s.StoriesCheckedThisRun[i+1:], s.StoriesCheckedThisRun[i:])
	s.StoriesCheckedThisRun[i] = id
}

// IsChecked reports whether id was already acted on in this run.
func (s *State) IsChecked(id string) bool {
	i := sort.SearchStrings(s.StoriesCheckedThisRun, id)
	return i < len(s.StoriesCheckedThisRun) && s.StoriesCheckedThisRun[i] == id
}

// RecordTransition stores whether the latest iteration changed a story's
// status or reviewer activity.
func (s *State) RecordTransition(changed bool) {
	s.LastIterationHadStateChange = changed
}

// Reset ends the current run: the run id and checked set are cleared.
// Preferences are left untouched.
func (s *State) Reset() {
	s.RunID = nil
	s.StoriesCheckedThisRun = []string{}
}

// Normalize sorts and de-duplicates the checked set after loading a record
// written by another tool.
func (s *State) Normalize() {
	ids := append([]string(nil), s.StoriesCheckedThisRun...)
	s.StoriesCheckedThisRun = []string{}
	for _, id := range ids {
		s.MarkChecked(id)
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := *s
	if s.RunID != nil {
		t := *s.RunID
		c.RunID = &t
	}
	c.StoriesCheckedThisRun = append([]string{}, s.StoriesCheckedThisRun...)
	if s.Preferences.EnableMergeBackoff != nil {
		v := *s.Preferences.EnableMergeBackoff
		c.Preferences.EnableMergeBackoff = &v
	}
	if s.Preferences.MergeBackoffStoryIDs != nil {
		c.Preferences.SetBackoffStoryIDs(*s.Preferences.MergeBackoffStoryIDs)
	}
	c.Preferences.PrioritizeTask = append([]string(nil), s.Preferences.PrioritizeTask...)
	return &c
}
