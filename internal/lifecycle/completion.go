package lifecycle

import (
	"time"

	"storyloop/internal/router"
	"storyloop/internal/runstate"
	"storyloop/internal/story"
)

// DecisionKind distinguishes the two ways a run can end.
type DecisionKind string

const (
	// DecisionRunReset means active work remains; the next iteration starts a
	// new run.
	DecisionRunReset DecisionKind = "run_reset"

	// DecisionGlobalCompletion means every story is terminal; the driver stops.
	DecisionGlobalCompletion DecisionKind = "global_completion"
)

// Decision is the verdict of [Detect].
type Decision struct {
	Kind DecisionKind

	// Remaining counts non-terminal stories.
	Remaining int

	// Waiting is set on a reset that still leaves nothing selectable at the
	// current time, e.g. merged stories whose recheck is not yet due.
	Waiting bool
}

// Detect decides what an empty selection means. It must only be called after
// [router.Select] returned nothing. run is not modified.
func Detect(backlog story.Backlog, run *runstate.State, now time.Time) Decision {
	remaining := 0
	for _, s := range backlog {
		if !s.IsTerminal() {
			remaining++
		}
	}
	if remaining == 0 {
		return Decision{Kind: DecisionGlobalCompletion}
	}

	fresh := run.Clone()
	fresh.Reset()
	_, selectable := router.Select(backlog, fresh, now)

	return Decision{
		Kind:      DecisionRunReset,
		Remaining: remaining,
		Waiting:   !selectable,
	}
}

// Apply performs the run-state side of the decision. Global completion leaves
// the run untouched.
func (d Decision) Apply(run *runstate.State) {
	if d.Kind != DecisionRunReset {
		return
	}
	run.Reset()
	run.RecordTransition(false)
}
