package cli

import (
	"github.com/spf13/cobra"

	"storyloop/internal/backlog"
)

func newImportCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Add stories from a CSV, YAML or TOML backlog file",
		Long: `Create a pending story for every entry in the file. Stories whose id
already exists are left untouched and reported as skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := backlog.ReadFromFile(args[0])
			if err != nil {
				return fail(app, err)
			}
			res, err := backlog.Import(cmd.Context(), app.Store, m)
			if err != nil {
				return fail(app, err)
			}
			app.Printer.ImportResult(res)
			return nil
		},
	}
}
