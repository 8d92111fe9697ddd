// Package transition validates and applies worker outcomes to stories.
//
// Every edge of the story lifecycle is listed in [Legal]. An outcome that is
// not legal for the story's current state is rejected before anything is
// touched, as is collaborator unavailability. Accepted outcomes update the
// story, append the iteration to its audit trail, mark it checked for the run
// and record whether its status or reviewer activity changed.
//
// Recoverable failures (tests, push/merge operations) never move a story. Three
// distinct failed strategies, or a worker-reported retry count of three, attach
// an advisory escalation instead of a status change.
package transition

import (
	"fmt"
	"time"

	"storyloop/internal/mergecheck"
	"storyloop/internal/runstate"
	"storyloop/internal/status"
	"storyloop/internal/story"
)

// DefaultEscalationThreshold is the number of distinct failed strategies (or
// retries) after which a story is annotated as blocked.
const DefaultEscalationThreshold = 3

// Result describes an applied transition.
type Result struct {
	StoryID      string
	Kind         Kind
	From         status.Status
	To           status.Status
	FromActivity status.Activity
	ToActivity   status.Activity

	// Changed is true iff status or reviewer activity changed.
	Changed   bool
	Failure   FailureKind
	Escalated bool

	// FollowUps holds the ids of stories created by this transition.
	FollowUps []string
}

// Engine applies outcomes to a backlog.
type Engine struct {
	EscalationThreshold int
}

// NewEngine creates an engine with the default escalation threshold.
func NewEngine() *Engine {
	return &Engine{EscalationThreshold: DefaultEscalationThreshold}
}

// Apply validates outcome against the story id and applies it to backlog and
// run. On error neither backlog nor run is modified.
func (e *Engine) Apply(backlog story.Backlog, run *runstate.State, id string, outcome Outcome, iterationID string, now time.Time) (Result, error) {
	current, ok := backlog.Get(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownStory, id)
	}

	if outcome.Kind == KindUnavailable {
		if outcome.Reason != "" {
			return Result{}, fmt.Errorf("%w: %s", ErrCollaboratorUnavailable, outcome.Reason)
		}
		return Result{}, ErrCollaboratorUnavailable
	}
	if !outcome.Kind.IsValid() {
		return Result{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidOutcome, outcome.Kind)
	}
	if !Allowed(current, outcome.Kind) {
		return Result{}, fmt.Errorf("%w: %s cannot report %s while %s", ErrIllegalTransition, id, outcome.Kind, describe(current))
	}

	now = now.UTC()
	s := current.Clone()
	res := Result{
		StoryID:      id,
		Kind:         outcome.Kind,
		From:         s.Status,
		FromActivity: activityOf(s),
		Failure:      Classify(outcome.Kind),
	}

	var followUps []*story.Story
	if err := e.apply(s, outcome, now); err != nil {
		return Result{}, err
	}
	if outcome.Kind == KindRechecked && len(outcome.FollowUps) > 0 {
		var err error
		followUps, err = buildFollowUps(backlog, s, outcome.FollowUps)
		if err != nil {
			return Result{}, err
		}
	}

	if outcome.ReviewerPinged && current.Status == status.StatusPushed {
		ping := now
		s.LastReviewerPing = &ping
	}
	if iterationID != "" && !lastIs(s.IterationLogs, iterationID) {
		s.IterationLogs = append(s.IterationLogs, iterationID)
	}

	res.To = s.Status
	res.ToActivity = activityOf(s)
	res.Changed = res.From != res.To || res.FromActivity != res.ToActivity

	if res.Changed {
		// Forward progress clears failure bookkeeping from the previous state.
		s.Attempts = nil
		s.RetryCount = 0
		s.Escalation = ""
	} else if outcome.Kind == KindTestsFailed {
		res.Escalated = e.recordAttempt(s, outcome, iterationID, now)
	}

	if err := s.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidOutcome, err)
	}

	backlog[id] = s
	for _, f := range followUps {
		backlog[f.ID] = f
		res.FollowUps = append(res.FollowUps, f.ID)
	}
	run.MarkChecked(id)
	run.RecordTransition(res.Changed)
	return res, nil
}

func (e *Engine) apply(s *story.Story, o Outcome, now time.Time) error {
	switch o.Kind {
	case KindCommitted:
		s.Status = status.StatusCommitted
		return assignBranch(s, o.BranchName)

	case KindPublished:
		if o.PRNumber == nil {
			return fmt.Errorf("%w: %s published without a PR number", ErrInvalidOutcome, s.ID)
		}
		if err := assignBranch(s, o.BranchName); err != nil {
			return err
		}
		if err := assignPR(s, *o.PRNumber, o.PRURL); err != nil {
			return err
		}
		s.Status = status.StatusPushed
		s.LastActivityBy = status.ActivityBot

	case KindMerged:
		mergedAt := now
		if o.MergedAt != nil {
			mergedAt = o.MergedAt.UTC()
		}
		s.Status = status.StatusMerged
		s.LastActivityBy = ""
		mergecheck.StartMonitoring(s, mergedAt)

	case KindFeedbackAddressed:
		s.LastActivityBy = status.ActivityBot

	case KindReviewerCommented:
		s.LastActivityBy = status.ActivityReviewer

	case KindDuplicateFound:
		terminate(s, status.StatusSkipped, o.Reason, "duplicate open pull request for the same issue")

	case KindAlreadyDone:
		terminate(s, status.StatusInvalid, o.Reason, "equivalent work already completed elsewhere")

	case KindClosedWithoutMerge:
		terminate(s, status.StatusInvalid, o.Reason, "pull request closed without merge")

	case KindRechecked:
		if err := mergecheck.Recheck(s); err != nil {
			return fmt.Errorf("%w: %v", ErrIllegalTransition, err)
		}

	case KindTestsFailed, KindOperationFailed, KindNoNewActivity:
		// Self-loops: the story stays where it is.
	}
	return nil
}

// recordAttempt stores a failed strategy and reports whether the story is
// escalated as a result.
func (e *Engine) recordAttempt(s *story.Story, o Outcome, iterationID string, now time.Time) bool {
	if o.StrategySignature != "" {
		s.Attempts = append(s.Attempts, story.Attempt{
			Signature: o.StrategySignature,
			Iteration: iterationID,
			At:        now,
		})
	}
	if o.RetryCount > s.RetryCount {
		s.RetryCount = o.RetryCount
	}

	threshold := e.EscalationThreshold
	if threshold <= 0 {
		threshold = DefaultEscalationThreshold
	}
	if s.Escalation == "" && (s.DistinctStrategies() >= threshold || s.RetryCount >= threshold) {
		s.Escalation = story.EscalationBlocked
		return true
	}
	return false
}

func terminate(s *story.Story, to status.Status, reason, fallback string) {
	if reason == "" {
		reason = fallback
	}
	s.Status = to
	s.SkipReason = reason
	s.LastActivityBy = ""
}

func assignBranch(s *story.Story, branch string) error {
	if branch == "" {
		return nil
	}
	if s.BranchName != "" && s.BranchName != branch {
		return fmt.Errorf("%w: %s already has branch %s", ErrInvalidOutcome, s.ID, s.BranchName)
	}
	s.BranchName = branch
	return nil
}

func assignPR(s *story.Story, number int, url string) error {
	if s.PRNumber != nil && *s.PRNumber != number {
		return fmt.Errorf("%w: %s already has PR #%d", ErrInvalidOutcome, s.ID, *s.PRNumber)
	}
	if s.PRURL != "" && url != "" && s.PRURL != url {
		return fmt.Errorf("%w: %s already has PR url %s", ErrInvalidOutcome, s.ID, s.PRURL)
	}
	n := number
	s.PRNumber = &n
	if url != "" {
		s.PRURL = url
	}
	return nil
}

func activityOf(s *story.Story) status.Activity {
	if s.Status != status.StatusPushed {
		return status.ActivityNone
	}
	return s.Activity()
}

func describe(s *story.Story) string {
	switch {
	case s.IsTerminal():
		return "terminal"
	case s.Status == status.StatusPushed:
		return fmt.Sprintf("%s(%s)", s.Status, s.Activity())
	}
	return string(s.Status)
}

func lastIs(list []string, v string) bool {
	return len(list) > 0 && list[len(list)-1] == v
}
