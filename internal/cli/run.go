package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"storyloop/internal/lifecycle"
)

var errNoWorker = errors.New("no worker configured (set worker.command or STORYLOOP_WORKER_COMMAND)")

func newRunCommand(app *App) *cobra.Command {
	var maxIterations int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the driver loop",
		Long: `Run up to --max-iterations iterations. Each iteration selects one story,
asks the worker to act on it and commits the reported outcome.

The loop stops early when every story is terminal, or when work remains
but nothing is due yet (for example merged stories awaiting a recheck).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Worker == nil {
				return fail(app, errNoWorker)
			}
			if maxIterations <= 0 {
				maxIterations = app.Config.Driver.MaxIterations
			}

			e := app.newExecutor()
			e.SetProgressCallback(func(index int, r lifecycle.IterationResult) {
				app.Printer.Iteration(index, r)
			})

			start := time.Now()
			summary, err := e.RunLoop(cmd.Context(), maxIterations)
			app.Printer.Summary(summary, time.Since(start))
			if err != nil {
				return fail(app, err)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&maxIterations, "max-iterations", "n", 0, "iteration budget (default from driver.max_iterations)")
	return cmd
}
