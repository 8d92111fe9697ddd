package router

import (
	"fmt"

	"storyloop/internal/status"
	"storyloop/internal/story"
	"storyloop/internal/transition"
)

// Action names what the worker is asked to do with the selected story.
type Action string

const (
	// ActionImplement asks for an implementation that passes the acceptance tests.
	ActionImplement Action = "implement"

	// ActionPublish asks for the branch to be pushed and a pull request opened.
	ActionPublish Action = "publish"

	// ActionAddressFeedback asks for the reviewer's latest comments to be handled.
	ActionAddressFeedback Action = "address_feedback"

	// ActionReviewCheck asks for a merge-readiness and new-comment check.
	ActionReviewCheck Action = "review_check"

	// ActionMergeRecheck asks for a post-merge follow-up check.
	ActionMergeRecheck Action = "merge_recheck"
)

// Directive is the instruction handed to the worker for one iteration.
type Directive struct {
	StoryID       string            `json:"story_id"`
	Action        Action            `json:"action"`
	LegalOutcomes []transition.Kind `json:"legal_outcomes"`

	// Story is a copy of the record so the worker can read branch and PR
	// identifiers. Changes to it are ignored.
	Story *story.Story `json:"story"`
}

// ActionFor maps a story's state to the worker action.
//
// Returns [ErrStoryTerminal] for skipped, invalid and finally merged stories,
// and [ErrUnknownStatus] for anything outside the closed status set.
func ActionFor(s *story.Story) (Action, error) {
	if !s.Status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s.Status)
	}
	if s.IsTerminal() {
		return "", ErrStoryTerminal
	}

	switch s.Status {
	case status.StatusPending:
		return ActionImplement, nil
	case status.StatusCommitted:
		return ActionPublish, nil
	case status.StatusPushed:
		if s.Activity() == status.ActivityReviewer {
			return ActionAddressFeedback, nil
		}
		return ActionReviewCheck, nil
	case status.StatusMerged:
		return ActionMergeRecheck, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s.Status)
}

// DirectiveFor builds the worker directive for s.
func DirectiveFor(s *story.Story) (Directive, error) {
	action, err := ActionFor(s)
	if err != nil {
		return Directive{}, err
	}
	return Directive{
		StoryID:       s.ID,
		Action:        action,
		LegalOutcomes: transition.Legal(s),
		Story:         s.Clone(),
	}, nil
}

// Permits reports whether the directive allows the worker to report k.
// Collaborator unavailability is always permitted.
func (d Directive) Permits(k transition.Kind) bool {
	if k == transition.KindUnavailable {
		return true
	}
	for _, legal := range d.LegalOutcomes {
		if legal == k {
			return true
		}
	}
	return false
}
