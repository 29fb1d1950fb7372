package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newReindexCmd(load AppLoader) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "reindex [item_seq...]",
		Short: "Rebuild vector points from the metadata store",
		Long: `Re-embeds the stored sections of the given products, or of every product when
none are given, and upserts their vector points. Use it to repair the index after a
failed vector write.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(ctx context.Context, app *App) error {
				report, err := app.Pipeline.Reconcile(ctx, args)
				if report == nil {
					return err
				}
				if asJSON {
					if perr := printJSON(cmd, report); perr != nil {
						return perr
					}
				} else {
					printReport(cmd, report)
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the report as JSON")
	return cmd
}
