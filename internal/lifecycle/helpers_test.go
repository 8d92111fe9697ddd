package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storyloop/internal/router"
	"storyloop/internal/store"
	"storyloop/internal/story"
	"storyloop/internal/transition"
)

// MockWorker records directives and answers them with Respond.
type MockWorker struct {
	Directives []router.Directive
	Respond    func(d router.Directive) (transition.Outcome, error)
}

func (m *MockWorker) Execute(ctx context.Context, d router.Directive) (transition.Outcome, error) {
	m.Directives = append(m.Directives, d)
	return m.Respond(d)
}

// happyPathWorker drives every story forward along the normal lifecycle.
func happyPathWorker() *MockWorker {
	pr := 0
	return &MockWorker{Respond: func(d router.Directive) (transition.Outcome, error) {
		switch d.Action {
		case router.ActionImplement:
			return transition.Outcome{Kind: transition.KindCommitted, BranchName: "story/" + d.StoryID}, nil
		case router.ActionPublish:
			pr++
			n := pr
			return transition.Outcome{Kind: transition.KindPublished, PRNumber: &n}, nil
		case router.ActionReviewCheck, router.ActionAddressFeedback:
			return transition.Outcome{Kind: transition.KindMerged}, nil
		case router.ActionMergeRecheck:
			return transition.Outcome{Kind: transition.KindRechecked}, nil
		}
		return transition.Outcome{}, fmt.Errorf("unexpected action %s", d.Action)
	}}
}

// steppingClock returns a clock that advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	t := start.Add(-step)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

// sequentialIDs returns a generator for iter-1, iter-2, ...
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("iter-%d", n)
	}
}

// seedStore creates a file store holding stories.
func seedStore(t *testing.T, stories ...*story.Story) *store.FileStore {
	t.Helper()
	st := store.NewFileStore(filepath.Join(t.TempDir(), "state.yaml"))
	snap := store.NewSnapshot()
	for _, s := range stories {
		snap.Stories[s.ID] = s
	}
	require.NoError(t, st.Commit(context.Background(), snap))
	return st
}

func newTestExecutor(t *testing.T, st store.Store, w Worker) *Executor {
	t.Helper()
	e := NewExecutor(st, w)
	e.SetClock(steppingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute))
	e.SetIDGenerator(sequentialIDs())
	e.SetLogDir(filepath.Join(t.TempDir(), "logs"))
	return e
}

func load(t *testing.T, st store.Store) *store.Snapshot {
	t.Helper()
	snap, err := st.Load(context.Background())
	require.NoError(t, err)
	return snap
}
