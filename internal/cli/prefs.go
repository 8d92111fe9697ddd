package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"storyloop/internal/runstate"
	"storyloop/internal/store"
)

var errAllWithIDs = errors.New("--all cannot be combined with story ids")

func newPrefsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change operator preferences",
		Long: `Preferences steer selection and survive run resets.

  skip-pushed on|off     exclude every pushed story from selection
  merge-backoff on|off   enable post-merge rechecks
  backoff-ids [id...]    restrict post-merge rechecks to these ids (--all removes the restriction)
  prioritize [id...]     force these ids ahead of normal ranking, in order (no ids clears)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := app.Store.Load(cmd.Context())
			if err != nil {
				return fail(app, err)
			}
			app.Printer.Preferences(snap.Run.Preferences)
			return nil
		},
	}

	cmd.AddCommand(
		newToggleCommand(app, "skip-pushed", "Exclude pushed stories from selection", func(p *runstate.Preferences, on bool) {
			p.SkipPushedTasks = on
		}),
		newToggleCommand(app, "merge-backoff", "Enable or disable post-merge rechecks", func(p *runstate.Preferences, on bool) {
			p.SetMergeBackoff(on)
		}),
		newBackoffIDsCommand(app),
		newPrioritizeCommand(app),
	)
	return cmd
}

func newToggleCommand(app *App, name, short string, set func(*runstate.Preferences, bool)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " on|off",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseToggle(args[0])
			if err != nil {
				return fail(app, err)
			}
			return updatePreferences(cmd.Context(), app, func(p *runstate.Preferences, _ *store.Snapshot) {
				set(p, on)
			})
		},
	}
}

func newBackoffIDsCommand(app *App) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "backoff-ids [id...]",
		Short: "Restrict post-merge rechecks to the given stories",
		Long: `Restrict post-merge rechecks to the given story ids. With no ids, no
merged story is rechecked. Use --all to remove the restriction.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return fail(app, errAllWithIDs)
			}
			return updatePreferences(cmd.Context(), app, func(p *runstate.Preferences, snap *store.Snapshot) {
				if all {
					p.SetBackoffStoryIDs(nil)
					return
				}
				warnUnknown(app, snap, args)
				p.SetBackoffStoryIDs(append([]string{}, args...))
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "recheck every merged story")
	return cmd
}

func newPrioritizeCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "prioritize [id...]",
		Short: "Force stories ahead of normal ranking",
		Long: `Set the ordered list of story ids that preempt normal ranking. The first
listed id that is still selectable wins. With no ids the list is cleared.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return updatePreferences(cmd.Context(), app, func(p *runstate.Preferences, snap *store.Snapshot) {
				warnUnknown(app, snap, args)
				p.PrioritizeTask = dedupe(args)
			})
		},
	}
}

func updatePreferences(ctx context.Context, app *App, fn func(*runstate.Preferences, *store.Snapshot)) error {
	var prefs runstate.Preferences
	err := store.Update(ctx, app.Store, func(snap *store.Snapshot) error {
		fn(&snap.Run.Preferences, snap)
		prefs = snap.Run.Preferences
		return nil
	})
	if err != nil {
		return fail(app, err)
	}
	app.Printer.Preferences(prefs)
	return nil
}

// warnUnknown reports ids not in the backlog. They are still stored: the
// preference lists are advisory.
func warnUnknown(app *App, snap *store.Snapshot, ids []string) {
	var unknown []string
	for _, id := range ids {
		if _, ok := snap.Stories.Get(id); !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		app.Printer.Warn("Unknown story ids: %s", strings.Join(unknown, ", "))
	}
}

func parseToggle(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
	return v, nil
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
