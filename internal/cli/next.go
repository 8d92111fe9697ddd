package cli

import (
	"github.com/spf13/cobra"
)

func newNextCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show which story the next iteration would act on",
		Long: `Preview the next selection without calling the worker or writing
anything to the store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.newExecutor().Preview(cmd.Context())
			if err != nil {
				return fail(app, err)
			}
			if !p.Selected {
				app.Printer.NothingSelected(p.Decision)
				return nil
			}
			app.Printer.Selection(p.Selection, p.Directive)
			return nil
		},
	}
}
