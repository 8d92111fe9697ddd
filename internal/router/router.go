// Package router selects the next story to work on and describes what the
// worker may do with it.
//
// Selection is a pure function of the backlog, the run state and the clock:
// identical inputs always yield the identical story, which makes re-running an
// iteration from the same snapshot after a crash safe.
//
// Candidates are ranked into urgency buckets before their own priority is
// consulted:
//
//	0  pushed, reviewer spoke last   (a human is waiting)
//	1  committed                     (must be published)
//	2  pushed, bot or nobody last    (merge-readiness / new-comment check)
//	3  merged, recheck due           (post-merge monitoring)
//	4  pending                       (new work)
//
// Ties inside a bucket go to the lowest priority value, then to the lowest id.
//
// Key types:
//   - [Selection] is the chosen story with its bucket and why it was chosen
//   - [Directive] is what the worker receives: story id, action and legal outcomes
package router

import (
	"errors"
	"time"

	"storyloop/internal/mergecheck"
	"storyloop/internal/runstate"
	"storyloop/internal/status"
	"storyloop/internal/story"
)

// Sentinel errors for directive routing.
var (
	// ErrStoryTerminal indicates the story is skipped, invalid or finally
	// merged. Callers should skip the story rather than treat this as a failure.
	ErrStoryTerminal = errors.New("story is terminal, no action available")

	// ErrUnknownStatus indicates a status value outside the closed set.
	// It can only surface if a record bypassed validation.
	ErrUnknownStatus = errors.New("unknown status value")
)

// Bucket is an urgency tier. Lower is more urgent.
type Bucket int

const (
	BucketReviewerWaiting Bucket = iota
	BucketPublish
	BucketReviewCheck
	BucketMergeRecheck
	BucketNewWork

	// NoBucket marks a story that passes the candidate filter but has nothing
	// to do right now.
	NoBucket Bucket = -1
)

var bucketNames = map[Bucket]string{
	BucketReviewerWaiting: "reviewer-waiting",
	BucketPublish:         "publish",
	BucketReviewCheck:     "review-check",
	BucketMergeRecheck:    "merge-recheck",
	BucketNewWork:         "new-work",
	NoBucket:              "none",
}

func (b Bucket) String() string {
	if name, ok := bucketNames[b]; ok {
		return name
	}
	return "unknown"
}

// Reason says why a story was selected.
type Reason string

const (
	ReasonPrioritized Reason = "prioritized"
	ReasonRanked      Reason = "ranked"
)

// Selection is the outcome of [Select].
type Selection struct {
	Story  *story.Story
	Bucket Bucket
	Reason Reason
}

// BucketOf assigns s its urgency bucket, or [NoBucket] when it has nothing to
// do at now. It does not apply the per-run candidate filter.
func BucketOf(s *story.Story, prefs runstate.Preferences, now time.Time) Bucket {
	switch s.Status {
	case status.StatusPushed:
		if s.Activity() == status.ActivityReviewer {
			return BucketReviewerWaiting
		}
		return BucketReviewCheck
	case status.StatusCommitted:
		return BucketPublish
	case status.StatusMerged:
		if mergecheck.Due(s, prefs, now) {
			return BucketMergeRecheck
		}
		return NoBucket
	case status.StatusPending:
		return BucketNewWork
	}
	return NoBucket
}

// IsCandidate applies the candidate filter: terminal stories, stories already
// checked this run, and pushed stories under skip-pushed mode are excluded.
func IsCandidate(s *story.Story, run *runstate.State) bool {
	if s.IsTerminal() {
		return false
	}
	if run.IsChecked(s.ID) {
		return false
	}
	if run.Preferences.SkipPushedTasks && s.Status == status.StatusPushed {
		return false
	}
	return true
}

// Candidates returns every selectable story with its bucket, in ranking order.
func Candidates(backlog story.Backlog, run *runstate.State, now time.Time) []Selection {
	var out []Selection
	for _, s := range backlog.Sorted() {
		if !IsCandidate(s, run) {
			continue
		}
		b := BucketOf(s, run.Preferences, now)
		if b == NoBucket {
			continue
		}
		out = append(out, Selection{Story: s, Bucket: b, Reason: ReasonRanked})
	}
	sortSelections(out)
	return out
}

// Select picks at most one story. The prioritized list is walked first; the
// first listed id that is still a candidate wins. Otherwise the best-ranked
// candidate is returned. ok is false when nothing is selectable.
func Select(backlog story.Backlog, run *runstate.State, now time.Time) (Selection, bool) {
	candidates := Candidates(backlog, run, now)
	if len(candidates) == 0 {
		return Selection{}, false
	}

	for _, id := range run.Preferences.PrioritizeTask {
		for _, c := range candidates {
			if c.Story.ID == id {
				c.Reason = ReasonPrioritized
				return c, true
			}
		}
	}

	return candidates[0], true
}

func sortSelections(sel []Selection) {
	// Insertion sort keeps this allocation-free and stable; backlogs are small.
	for i := 1; i < len(sel); i++ {
		for j := i; j > 0 && less(sel[j], sel[j-1]); j-- {
			sel[j], sel[j-1] = sel[j-1], sel[j]
		}
	}
}

func less(a, b Selection) bool {
	if a.Bucket != b.Bucket {
		return a.Bucket < b.Bucket
	}
	if a.Story.Priority != b.Story.Priority {
		return a.Story.Priority < b.Story.Priority
	}
	return a.Story.ID < b.Story.ID
}
