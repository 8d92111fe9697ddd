package worker

import (
	"context"
	"fmt"
	"sync"

	"storyloop/internal/router"
	"storyloop/internal/transition"
)

// MockWorker answers directives from a script keyed by action.
//
// Calls are recorded in order. An action with no scripted outcome yields an
// error, which the executor reports as collaborator unavailability.
type MockWorker struct {
	mu       sync.Mutex
	Outcomes map[router.Action]transition.Outcome
	Err      error
	Calls    []router.Directive
}

// NewMockWorker returns a worker scripted with outcomes.
func NewMockWorker(outcomes map[router.Action]transition.Outcome) *MockWorker {
	return &MockWorker{Outcomes: outcomes}
}

// Execute records d and returns the scripted outcome for its action.
func (m *MockWorker) Execute(ctx context.Context, d router.Directive) (transition.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, d)
	if m.Err != nil {
		return transition.Outcome{}, m.Err
	}
	o, ok := m.Outcomes[d.Action]
	if !ok {
		return transition.Outcome{}, fmt.Errorf("no scripted outcome for %s", d.Action)
	}
	return o, nil
}
