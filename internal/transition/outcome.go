package transition

import (
	"time"

	"storyloop/internal/status"
	"storyloop/internal/story"
)

// Kind is the trigger reported by the worker for one iteration.
type Kind string

// Outcome kinds. Each is legal only from the states listed in [Legal].
const (
	KindCommitted          Kind = "committed"
	KindTestsFailed        Kind = "tests_failed"
	KindDuplicateFound     Kind = "duplicate_found"
	KindAlreadyDone        Kind = "already_done"
	KindPublished          Kind = "published"
	KindOperationFailed    Kind = "operation_failed"
	KindMerged             Kind = "merged"
	KindFeedbackAddressed  Kind = "feedback_addressed"
	KindNoNewActivity      Kind = "no_new_activity"
	KindReviewerCommented  Kind = "reviewer_commented"
	KindClosedWithoutMerge Kind = "closed_without_merge"
	KindRechecked          Kind = "rechecked"

	// KindUnavailable reports that a collaborator (host API, auth, rate limit)
	// could not be reached. It is accepted from every state and never mutates.
	KindUnavailable Kind = "collaborator_unavailable"
)

// AllKinds lists every outcome kind.
var AllKinds = []Kind{
	KindCommitted,
	KindTestsFailed,
	KindDuplicateFound,
	KindAlreadyDone,
	KindPublished,
	KindOperationFailed,
	KindMerged,
	KindFeedbackAddressed,
	KindNoNewActivity,
	KindReviewerCommented,
	KindClosedWithoutMerge,
	KindRechecked,
	KindUnavailable,
}

// IsValid reports whether k is a known outcome kind.
func (k Kind) IsValid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// FollowUp describes a new pending story discovered during a merge recheck.
type FollowUp struct {
	// ID is optional; the engine derives one from the parent when empty.
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Priority    *int   `json:"priority,omitempty" yaml:"priority,omitempty"`
	IssueNumber *int   `json:"issue_number,omitempty" yaml:"issue_number,omitempty"`
}

// Outcome is what the worker reports back for a directive.
type Outcome struct {
	Kind Kind `json:"kind"`

	// Identifiers minted by the worker. Once set on a story they never change.
	BranchName string     `json:"branch_name,omitempty"`
	PRNumber   *int       `json:"pr_number,omitempty"`
	PRURL      string     `json:"pr_url,omitempty"`
	MergedAt   *time.Time `json:"merged_at,omitempty"`

	// Reason becomes the skip reason on terminal transitions.
	Reason string `json:"reason,omitempty"`

	FollowUps []FollowUp `json:"follow_ups,omitempty"`

	// StrategySignature and RetryCount are supplied by the worker on failed
	// attempts. The engine compares signatures only for equality.
	StrategySignature string `json:"strategy_signature,omitempty"`
	RetryCount        int    `json:"retry_count,omitempty"`

	// ReviewerPinged is set when the worker posted an overdue-reviewer notice.
	ReviewerPinged bool `json:"reviewer_pinged,omitempty"`
}

// Legal returns the outcome kinds the worker may report for s in its current
// state. Terminal stories have none. [KindUnavailable] is always accepted and
// is not listed.
func Legal(s *story.Story) []Kind {
	if s.IsTerminal() {
		return nil
	}
	switch s.Status {
	case status.StatusPending:
		return []Kind{KindCommitted, KindTestsFailed, KindDuplicateFound, KindAlreadyDone}
	case status.StatusCommitted:
		return []Kind{KindPublished, KindOperationFailed}
	case status.StatusPushed:
		common := []Kind{KindMerged, KindNoNewActivity, KindClosedWithoutMerge, KindOperationFailed}
		if s.Activity() == status.ActivityReviewer {
			return append([]Kind{KindFeedbackAddressed, KindAlreadyDone, KindTestsFailed}, common...)
		}
		return append([]Kind{KindReviewerCommented}, common...)
	case status.StatusMerged:
		return []Kind{KindRechecked, KindOperationFailed}
	}
	return nil
}

// Allowed reports whether k is a legal outcome for s.
func Allowed(s *story.Story, k Kind) bool {
	for _, legal := range Legal(s) {
		if legal == k {
			return true
		}
	}
	return false
}
