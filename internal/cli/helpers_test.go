package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storyloop/internal/config"
	"storyloop/internal/output"
	"storyloop/internal/router"
	"storyloop/internal/store"
	"storyloop/internal/story"
	"storyloop/internal/transition"
	"storyloop/internal/worker"
)

// testEnv bundles an App backed by a temp-dir file store.
type testEnv struct {
	App    *App
	Store  *store.FileStore
	Worker *worker.MockWorker
	Out    *bytes.Buffer
}

// newTestEnv creates an App whose store holds stories and whose worker
// answers every action along the happy path.
func newTestEnv(t *testing.T, stories ...*story.Story) *testEnv {
	t.Helper()

	dir := t.TempDir()
	st := store.NewFileStore(filepath.Join(dir, "state.yaml"))
	if len(stories) > 0 {
		snap := store.NewSnapshot()
		for _, s := range stories {
			require.NoError(t, snap.Stories.Add(s))
		}
		require.NoError(t, st.Commit(context.Background(), snap))
	}

	pr := 42
	w := worker.NewMockWorker(map[router.Action]transition.Outcome{
		router.ActionImplement:       {Kind: transition.KindCommitted, BranchName: "story/branch"},
		router.ActionPublish:         {Kind: transition.KindPublished, PRNumber: &pr},
		router.ActionReviewCheck:     {Kind: transition.KindMerged},
		router.ActionAddressFeedback: {Kind: transition.KindFeedbackAddressed},
		router.ActionMergeRecheck:    {Kind: transition.KindRechecked},
	})

	cfg := config.DefaultConfig()
	cfg.Driver.LogDir = filepath.Join(dir, "logs")

	out := &bytes.Buffer{}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	return &testEnv{
		App: &App{
			Config:    cfg,
			Store:     st,
			Worker:    w,
			Printer:   output.NewPrinterWithWriter(out),
			StorePath: st.Path(),
			Now:       func() time.Time { return clock },
		},
		Store:  st,
		Worker: w,
		Out:    out,
	}
}

// execute runs the root command with args and returns its error.
func (e *testEnv) execute(args ...string) error {
	rootCmd := NewRootCommand(e.App)
	rootCmd.SetOut(e.Out)
	rootCmd.SetErr(e.Out)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func (e *testEnv) load(t *testing.T) *store.Snapshot {
	t.Helper()
	snap, err := e.Store.Load(context.Background())
	require.NoError(t, err)
	return snap
}
