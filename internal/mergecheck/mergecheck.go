// Package mergecheck computes the post-merge recheck schedule.
//
// A merged story is rechecked at merge+1d, +3d, +7d and +15d; the fourth
// recheck is final. Intervals double between checks and are anchored to the
// previously scheduled time rather than to when a recheck actually ran, so a
// late iteration does not shift the rest of the timetable.
package mergecheck

import (
	"fmt"
	"time"

	"storyloop/internal/runstate"
	"storyloop/internal/status"
	"storyloop/internal/story"
)

// Day is the scheduling unit.
const Day = 24 * time.Hour

// InitialDelay is the gap between a merge and its first recheck.
const InitialDelay = Day

// FinalCount is the check count at which the next recheck becomes final.
const FinalCount = 3

// intervals[count] is the wait scheduled after recheck number count+1.
var intervals = [FinalCount]time.Duration{2 * Day, 4 * Day, 8 * Day}

// Advance returns the interval to wait after a recheck performed at the given
// count, or final=true when that recheck ends monitoring.
func Advance(count int) (time.Duration, bool, error) {
	switch {
	case count < 0 || count > FinalCount:
		return 0, false, fmt.Errorf("merge check count out of range: %d", count)
	case count == FinalCount:
		return 0, true, nil
	}
	return intervals[count], false, nil
}

// InitialCheck returns the first recheck time for a story merged at mergedAt.
func InitialCheck(mergedAt time.Time) time.Time {
	return mergedAt.Add(InitialDelay)
}

// StartMonitoring stamps the merge fields on s. Called when a story enters
// the merged status.
func StartMonitoring(s *story.Story, mergedAt time.Time) {
	at := mergedAt.UTC()
	next := InitialCheck(at)
	s.MergedAt = &at
	s.NextMergedCheck = &next
	s.MergedCheckCount = 0
	s.MergedCheckFinalState = false
}

// Recheck records one performed recheck on s: the count increments and the
// next check is scheduled, or monitoring ends.
func Recheck(s *story.Story) error {
	if s.Status != status.StatusMerged {
		return fmt.Errorf("story %s is %s, not merged", s.ID, s.Status)
	}
	if s.MergedCheckFinalState {
		return fmt.Errorf("story %s already had its final merge check", s.ID)
	}
	if s.NextMergedCheck == nil {
		return fmt.Errorf("story %s has no scheduled merge check", s.ID)
	}

	interval, final, err := Advance(s.MergedCheckCount)
	if err != nil {
		return fmt.Errorf("story %s: %w", s.ID, err)
	}

	s.MergedCheckCount++
	if final {
		s.MergedCheckFinalState = true
		return nil
	}
	next := s.NextMergedCheck.Add(interval)
	s.NextMergedCheck = &next
	return nil
}

// Due reports whether a merged story is eligible for a recheck at now under the
// operator preferences. The id filter only narrows the time-based rule.
func Due(s *story.Story, prefs runstate.Preferences, now time.Time) bool {
	if !prefs.MergeBackoffEnabled() {
		return false
	}
	if s.Status != status.StatusMerged || s.MergedCheckFinalState || s.NextMergedCheck == nil {
		return false
	}
	if s.NextMergedCheck.After(now) {
		return false
	}
	return prefs.BackoffAllows(s.ID)
}

// Schedule returns every recheck time for a story merged at mergedAt.
func Schedule(mergedAt time.Time) []time.Time {
	out := make([]time.Time, 0, FinalCount+1)
	next := InitialCheck(mergedAt)
	out = append(out, next)
	for count := 0; count < FinalCount; count++ {
		interval, _, _ := Advance(count)
		next = next.Add(interval)
		out = append(out, next)
	}
	return out
}
