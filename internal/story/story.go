// Package story defines the Story record and the in-memory Story Store snapshot.
//
// A [Backlog] is the full mapping of story id to [Story]. It is read from and
// written to persistence as one unit (see the store package) and is mutated only
// by the transition engine.
//
// Key types:
//   - [Story] is one unit of backlog work tracked through the lifecycle
//   - [Backlog] is the id-keyed collection with deterministic iteration order
//   - [Attempt] records one worker-reported implementation strategy
package story

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"storyloop/internal/status"
)

// MaxMergedChecks is the largest value mergedCheckCount can reach: four
// post-merge rechecks, the last of which is final.
const MaxMergedChecks = 4

// EscalationBlocked is the advisory annotation attached after repeated
// failed implementation strategies.
const EscalationBlocked = "blocked"

// ErrInvalidStory is wrapped by every [Story.Validate] failure.
var ErrInvalidStory = errors.New("invalid story")

// Attempt is one failed implementation strategy reported by the worker.
//
// The signature is opaque: the worker decides what counts as a different
// approach, the core only compares signatures for equality.
type Attempt struct {
	Signature string    `yaml:"signature" json:"signature"`
	Iteration string    `yaml:"iteration" json:"iteration"`
	At        time.Time `yaml:"at" json:"at"`
}

// Story is one unit of backlog work.
type Story struct {
	ID       string        `yaml:"id" json:"id"`
	Title    string        `yaml:"title,omitempty" json:"title,omitempty"`
	Status   status.Status `yaml:"status" json:"status"`
	Priority int           `yaml:"priority" json:"priority"`

	// LastActivityBy is meaningful only while Status is pushed.
	LastActivityBy status.Activity `yaml:"last_activity_by,omitempty" json:"last_activity_by,omitempty"`

	BranchName string `yaml:"branch_name,omitempty" json:"branch_name,omitempty"`
	PRNumber   *int   `yaml:"pr_number,omitempty" json:"pr_number,omitempty"`
	PRURL      string `yaml:"pr_url,omitempty" json:"pr_url,omitempty"`
	SkipReason string `yaml:"skip_reason,omitempty" json:"skip_reason,omitempty"`

	MergedAt              *time.Time `yaml:"merged_at,omitempty" json:"merged_at,omitempty"`
	NextMergedCheck       *time.Time `yaml:"next_merged_check,omitempty" json:"next_merged_check,omitempty"`
	MergedCheckCount      int        `yaml:"merged_check_count,omitempty" json:"merged_check_count,omitempty"`
	MergedCheckFinalState bool       `yaml:"merged_check_final_state,omitempty" json:"merged_check_final_state,omitempty"`

	LastReviewerPing *time.Time `yaml:"last_reviewer_ping,omitempty" json:"last_reviewer_ping,omitempty"`

	IterationLogs  []string `yaml:"iteration_logs,omitempty" json:"iteration_logs,omitempty"`
	RelatedStories []string `yaml:"related_stories,omitempty" json:"related_stories,omitempty"`
	RelatedPRs     []int    `yaml:"related_prs,omitempty" json:"related_prs,omitempty"`
	IssueNumber    *int     `yaml:"issue_number,omitempty" json:"issue_number,omitempty"`

	Attempts   []Attempt `yaml:"attempts,omitempty" json:"attempts,omitempty"`
	RetryCount int       `yaml:"retry_count,omitempty" json:"retry_count,omitempty"`
	Escalation string    `yaml:"escalation,omitempty" json:"escalation,omitempty"`
}

// New creates a pending story with the given id and priority.
func New(id string, priority int) *Story {
	return &Story{
		ID:       id,
		Status:   status.StatusPending,
		Priority: priority,
	}
}

// IsTerminal reports whether the story is permanently excluded from selection:
// skipped, invalid, or merged with its final check performed.
func (s *Story) IsTerminal() bool {
	if s.Status.IsTerminal() {
		return true
	}
	return s.Status == status.StatusMerged && s.MergedCheckFinalState
}

// Activity returns the normalized reviewer-activity marker.
func (s *Story) Activity() status.Activity {
	return s.LastActivityBy.Normalize()
}

// DistinctStrategies counts the distinct attempt signatures recorded so far.
func (s *Story) DistinctStrategies() int {
	seen := make(map[string]bool, len(s.Attempts))
	for _, a := range s.Attempts {
		if a.Signature == "" {
			continue
		}
		seen[a.Signature] = true
	}
	return len(seen)
}

// Validate checks the record-level invariants of a story.
func (s *Story) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidStory)
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("%w: %s: status %q", ErrInvalidStory, s.ID, s.Status)
	}
	if !s.LastActivityBy.IsValid() {
		return fmt.Errorf("%w: %s: activity %q", ErrInvalidStory, s.ID, s.LastActivityBy)
	}
	if s.Status.IsTerminal() && s.SkipReason == "" {
		return fmt.Errorf("%w: %s: %s requires a skip reason", ErrInvalidStory, s.ID, s.Status)
	}
	if s.MergedCheckCount < 0 || s.MergedCheckCount > MaxMergedChecks {
		return fmt.Errorf("%w: %s: merged check count %d out of range", ErrInvalidStory, s.ID, s.MergedCheckCount)
	}
	if s.Status == status.StatusMerged && !s.MergedCheckFinalState && s.NextMergedCheck == nil {
		return fmt.Errorf("%w: %s: merged story without next check", ErrInvalidStory, s.ID)
	}
	return nil
}

// Clone returns a deep copy of the story.
func (s *Story) Clone() *Story {
	c := *s
	c.PRNumber = cloneInt(s.PRNumber)
	c.IssueNumber = cloneInt(s.IssueNumber)
	c.MergedAt = cloneTime(s.MergedAt)
	c.NextMergedCheck = cloneTime(s.NextMergedCheck)
	c.LastReviewerPing = cloneTime(s.LastReviewerPing)
	c.IterationLogs = append([]string(nil), s.IterationLogs...)
	c.RelatedStories = append([]string(nil), s.RelatedStories...)
	c.RelatedPRs = append([]int(nil), s.RelatedPRs...)
	c.Attempts = append([]Attempt(nil), s.Attempts...)
	return &c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Backlog maps story id to story.
type Backlog map[string]*Story

// IDs returns all story ids in ascending order.
func (b Backlog) IDs() []string {
	ids := make([]string, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sorted returns the stories ordered by id.
func (b Backlog) Sorted() []*Story {
	ids := b.IDs()
	out := make([]*Story, len(ids))
	for i, id := range ids {
		out[i] = b[id]
	}
	return out
}

// Get returns the story with the given id.
func (b Backlog) Get(id string) (*Story, bool) {
	s, ok := b[id]
	return s, ok
}

// Add inserts a new story. Existing ids are never overwritten.
func (b Backlog) Add(s *Story) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, exists := b[s.ID]; exists {
		return fmt.Errorf("story already exists: %s", s.ID)
	}
	b[s.ID] = s
	return nil
}

// Validate checks every story in the backlog and that map keys match ids.
func (b Backlog) Validate() error {
	for _, id := range b.IDs() {
		s := b[id]
		if s == nil {
			return fmt.Errorf("%w: %s: nil record", ErrInvalidStory, id)
		}
		if s.ID != id {
			return fmt.Errorf("%w: key %s holds story %s", ErrInvalidStory, id, s.ID)
		}
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the backlog.
func (b Backlog) Clone() Backlog {
	out := make(Backlog, len(b))
	for id, s := range b {
		out[id] = s.Clone()
	}
	return out
}

// AllTerminal reports whether every story is terminal. An empty backlog is
// trivially terminal.
func (b Backlog) AllTerminal() bool {
	for _, s := range b {
		if !s.IsTerminal() {
			return false
		}
	}
	return true
}

// CountByStatus tallies stories per status.
func (b Backlog) CountByStatus() map[status.Status]int {
	counts := make(map[status.Status]int, len(status.All))
	for _, s := range b {
		counts[s.Status]++
	}
	return counts
}
