package cli

import (
	"github.com/spf13/cobra"

	"storyloop/internal/store"
)

func newResetRunCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-run",
		Short: "Forget which stories were checked in the current run",
		Long: `Clear the current run so every eligible story can be selected again.
Operator preferences are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := store.Update(cmd.Context(), app.Store, func(snap *store.Snapshot) error {
				snap.Run.Reset()
				return nil
			})
			if err != nil {
				return fail(app, err)
			}
			app.Printer.Success("Run reset")
			return nil
		},
	}
}
