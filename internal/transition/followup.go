package transition

import (
	"fmt"

	"storyloop/internal/story"
)

// buildFollowUps creates pending stories linked to parent. parent is updated
// in place with the new ids; backlog is only read.
func buildFollowUps(backlog story.Backlog, parent *story.Story, reqs []FollowUp) ([]*story.Story, error) {
	taken := make(map[string]bool, len(reqs))
	out := make([]*story.Story, 0, len(reqs))
	seq := 0

	for _, fu := range reqs {
		id := fu.ID
		if id == "" {
			for {
				seq++
				id = fmt.Sprintf("%s-followup-%d", parent.ID, seq)
				if _, exists := backlog[id]; !exists && !taken[id] {
					break
				}
			}
		} else if _, exists := backlog[id]; exists || taken[id] {
			return nil, fmt.Errorf("%w: follow-up id %s already exists", ErrInvalidOutcome, id)
		}
		taken[id] = true

		priority := parent.Priority
		if fu.Priority != nil {
			priority = *fu.Priority
		}
		child := story.New(id, priority)
		child.Title = fu.Title
		child.RelatedStories = []string{parent.ID}

		switch {
		case fu.IssueNumber != nil:
			n := *fu.IssueNumber
			child.IssueNumber = &n
		case parent.IssueNumber != nil:
			n := *parent.IssueNumber
			child.IssueNumber = &n
		}
		if parent.PRNumber != nil {
			child.RelatedPRs = []int{*parent.PRNumber}
		}

		if err := child.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOutcome, err)
		}
		parent.RelatedStories = append(parent.RelatedStories, id)
		out = append(out, child)
	}
	return out, nil
}
