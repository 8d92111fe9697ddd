package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

const watchDebounce = 300 * time.Millisecond

func newStatusCommand(app *App) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show every story and the operator preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := showStatus(ctx, app); err != nil {
				return fail(app, err)
			}
			if !watch {
				return nil
			}

			app.Printer.Info("Watching %s for changes... (Press Ctrl+C to exit)", app.StorePath)
			err := watchStore(ctx, app.StorePath, watchDebounce, func() {
				if err := showStatus(ctx, app); err != nil {
					app.Printer.Error("%v", err)
				}
			})
			if err != nil {
				return fail(app, err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "redisplay whenever the store changes")
	return cmd
}

func showStatus(ctx context.Context, app *App) error {
	snap, err := app.Store.Load(ctx)
	if err != nil {
		return err
	}
	app.Printer.Backlog(snap.Stories, app.now())
	app.Printer.Preferences(snap.Run.Preferences)
	return nil
}

// watchStore calls onChange, debounced, whenever the file at path (or its
// SQLite journal) is written or replaced. It returns when ctx is done.
func watchStore(ctx context.Context, path string, debounce time.Duration, onChange func()) error {
	if path == "" {
		return fmt.Errorf("no store path to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// The file store replaces the file by rename, so watch the directory.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating store directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("error watching directory: %w", err)
	}
	base := filepath.Base(path)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if name := filepath.Base(event.Name); name != base && !strings.HasPrefix(name, base+"-") {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		}
	}
}
