// Package cli implements the storyloop command-line interface.
//
// Commands share an [App] holding the configuration, the story store, the
// worker and the printer. [NewRootCommand] builds the command tree from an
// App so tests can inject a temp-dir store and a mock worker; [Execute] wires
// the real dependencies from configuration and calls os.Exit.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"storyloop/internal/config"
	"storyloop/internal/lifecycle"
	"storyloop/internal/output"
	"storyloop/internal/store"
	"storyloop/internal/telemetry"
	"storyloop/internal/transition"
	"storyloop/internal/worker"
)

// Version is set at build time.
var Version = "dev"

// App holds the dependencies shared by every command.
type App struct {
	Config  *config.Config
	Store   store.Store
	Worker  lifecycle.Worker
	Printer *output.Printer

	// StorePath is the state file watched by `status --watch`.
	StorePath string

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// newExecutor builds an executor from the app's configuration.
func (a *App) newExecutor() *lifecycle.Executor {
	e := lifecycle.NewExecutor(a.Store, a.Worker)
	e.SetLogDir(a.Config.Driver.LogDir)

	engine := transition.NewEngine()
	engine.EscalationThreshold = a.Config.Driver.EscalationThreshold
	e.SetEngine(engine)

	if a.Now != nil {
		e.SetClock(a.Now)
	}
	return e
}

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "storyloop",
		Short: "Drive a story backlog through implement, publish, review and merge",
		Long: `storyloop picks the most urgent story from the backlog, hands a directive
to the configured worker and records the reported outcome. Each invocation
of "storyloop run" performs a bounded number of such iterations.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newRunCommand(app),
		newNextCommand(app),
		newStatusCommand(app),
		newImportCommand(app),
		newPrefsCommand(app),
		newResetRunCommand(app),
	)

	return rootCmd
}

// ExecuteResult is the outcome of running the CLI.
type ExecuteResult struct {
	ExitCode int
	Err      error
}

// RunWithConfig wires real dependencies from cfg and executes the command
// line in args.
func RunWithConfig(ctx context.Context, cfg *config.Config, args []string) ExecuteResult {
	if err := telemetry.Init(ctx, cfg.TelemetrySettings(), "storyloop", Version); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry disabled: %v\n", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	path := cfg.StorePath()
	st, err := store.Open(cfg.Store.Backend, path)
	if err != nil {
		return ExecuteResult{ExitCode: ExitFailure, Err: err}
	}
	st = telemetry.WrapStore(st)
	defer st.Close()

	printer := output.NewPrinter()
	printer.SetTruncateLength(cfg.Output.TruncateLength)

	app := &App{
		Config:    cfg,
		Store:     st,
		Printer:   printer,
		StorePath: path,
	}
	if cfg.Worker.Command != "" {
		w := worker.NewCommandWorker(cfg.Worker.Command, cfg.Worker.Args...)
		w.Dir = cfg.Worker.Dir
		if cfg.Worker.TestCommand != "" {
			w.Tests = &worker.CommandTestRunner{
				Command: cfg.Worker.TestCommand,
				Args:    cfg.Worker.TestArgs,
				Dir:     cfg.Worker.Dir,
			}
		}
		app.Worker = w
	}

	rootCmd := NewRootCommand(app)
	rootCmd.SetArgs(args)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if code, ok := IsExitError(err); ok {
			return ExecuteResult{ExitCode: code, Err: err}
		}
		return ExecuteResult{ExitCode: ExitFailure, Err: err}
	}
	return ExecuteResult{ExitCode: ExitOK}
}

// Execute loads configuration, runs the CLI and exits the process.
func Execute() {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	result := RunWithConfig(ctx, cfg, os.Args[1:])
	stop()

	if result.Err != nil {
		if _, ok := IsExitError(result.Err); !ok {
			fmt.Fprintf(os.Stderr, "Error: %v\n", result.Err)
		}
	}
	os.Exit(result.ExitCode)
}
