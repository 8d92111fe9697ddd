// Package worker provides the collaborators that act on directives.
//
// The core never decides how a story is implemented or how review comments are
// handled; it hands a [router.Directive] to a worker and receives a
// [transition.Outcome]. [CommandWorker] runs an external program that reads the
// directive as JSON on stdin and streams JSON lines on stdout; the last
// "outcome" line is the result.
//
// Key types:
//   - [CommandWorker]: runs an external worker process
//   - [Parser]: parses the worker's JSON-lines stream
//   - [Event]: parsed stream event with convenience methods
//   - [TrustFilter], [TestRunner]: collaborators consumed by worker implementations
//
// For testing, use [MockWorker] which answers directives without spawning
// processes.
package worker

import "storyloop/internal/transition"

// StreamEvent is one raw JSON line from the worker's stdout.
type StreamEvent struct {
	Type    string              `json:"type"`
	Level   string              `json:"level,omitempty"`
	Message string              `json:"message,omitempty"`
	Outcome *transition.Outcome `json:"outcome,omitempty"`
}

// EventType is the kind of a stream event.
type EventType string

const (
	// EventTypeLog carries free-form progress text.
	EventTypeLog EventType = "log"

	// EventTypeOutcome carries the worker's result. Only the last one counts.
	EventTypeOutcome EventType = "outcome"
)

// Event is a parsed stream event.
type Event struct {
	Raw     *StreamEvent
	Type    EventType
	Level   string
	Message string
	Outcome *transition.Outcome
}

// NewEventFromStream creates an [Event] from a raw [StreamEvent].
func NewEventFromStream(raw *StreamEvent) Event {
	e := Event{
		Raw:     raw,
		Type:    EventType(raw.Type),
		Level:   raw.Level,
		Message: raw.Message,
	}
	if e.Type == EventTypeOutcome {
		e.Outcome = raw.Outcome
	}
	return e
}

// IsOutcome reports whether the event carries a usable outcome.
func (e Event) IsOutcome() bool {
	return e.Type == EventTypeOutcome && e.Outcome != nil && e.Outcome.Kind != ""
}

// IsText reports whether the event carries log text.
func (e Event) IsText() bool {
	return e.Type == EventTypeLog && e.Message != ""
}
