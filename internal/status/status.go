// Package status defines the closed set of story statuses and reviewer-activity
// markers used throughout storyloop.
//
// Both [Status] and [Activity] are string-backed so they read naturally in the
// persisted YAML/JSON records, but they refuse to decode any value outside their
// declared set. An unrecognized status in the backlog is therefore a load error,
// never a silently ignored state.
//
// Story lifecycle:
//
//	pending -> committed -> pushed -> merged
//	    \           \          \
//	     skipped/invalid (terminal)
package status

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Status is the lifecycle position of a story.
type Status string

const (
	// StatusPending means no implementation has been committed yet.
	StatusPending Status = "pending"

	// StatusCommitted means the change is committed locally but not yet public.
	StatusCommitted Status = "committed"

	// StatusPushed means a branch is pushed and a pull request is open.
	StatusPushed Status = "pushed"

	// StatusMerged means the pull request was merged. Merged stories are
	// still rechecked on a widening schedule until their final check.
	StatusMerged Status = "merged"

	// StatusSkipped is terminal: duplicate work was found for the same issue.
	StatusSkipped Status = "skipped"

	// StatusInvalid is terminal: the work was done elsewhere or the PR was
	// closed without merge.
	StatusInvalid Status = "invalid"
)

// All lists every legal status in lifecycle order.
var All = []Status{
	StatusPending,
	StatusCommitted,
	StatusPushed,
	StatusMerged,
	StatusSkipped,
	StatusInvalid,
}

// IsValid reports whether s is one of the six legal statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCommitted, StatusPushed, StatusMerged, StatusSkipped, StatusInvalid:
		return true
	}
	return false
}

// IsTerminal reports whether s can never be selected or mutated again.
//
// Merged stories are not terminal by status alone; their terminality depends on
// the final-check flag carried by the story record.
func (s Status) IsTerminal() bool {
	return s == StatusSkipped || s == StatusInvalid
}

// ParseStatus converts a raw string into a [Status], rejecting unknown values.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid status: %q", raw)
	}
	return s, nil
}

// UnmarshalYAML rejects values outside the closed status set.
func (s *Status) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = parsed
	return nil
}

// UnmarshalJSON rejects values outside the closed status set.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Activity records who spoke last on a published pull request.
// It only has meaning while the story is [StatusPushed].
type Activity string

const (
	ActivityNone     Activity = "none"
	ActivityBot      Activity = "bot"
	ActivityReviewer Activity = "reviewer"
)

// IsValid reports whether a is a known activity marker. The empty string is
// accepted and treated as [ActivityNone].
func (a Activity) IsValid() bool {
	switch a {
	case "", ActivityNone, ActivityBot, ActivityReviewer:
		return true
	}
	return false
}

// Normalize maps the empty marker to [ActivityNone].
func (a Activity) Normalize() Activity {
	if a == "" {
		return ActivityNone
	}
	return a
}

// ParseActivity converts a raw string into an [Activity], rejecting unknown values.
func ParseActivity(raw string) (Activity, error) {
	a := Activity(raw)
	if !a.IsValid() {
		return "", fmt.Errorf("invalid activity: %q", raw)
	}
	return a.Normalize(), nil
}

// UnmarshalYAML rejects unknown activity markers.
func (a *Activity) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseActivity(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*a = parsed
	return nil
}

// UnmarshalJSON rejects unknown activity markers.
func (a *Activity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseActivity(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
