package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"druginfo-rag/internal/indexer"
	"druginfo-rag/internal/record"
)

func newIngestCmd(load AppLoader) *cobra.Command {
	var (
		recreate bool
		alias    string
		workers  int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest drug label records from a JSON file",
		Long: `Reads records grouped by alias ({"alias": [item, ...]}), a plain item array,
or a raw API response envelope, and writes them to the metadata store and vector index.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raws, err := record.LoadFile(args[0])
			if err != nil {
				return err
			}
			if alias != "" {
				for i := range raws {
					if raws[i].Alias == "" {
						raws[i].Alias = alias
					}
				}
			}

			return withApp(cmd, load, func(ctx context.Context, app *App) error {
				report, err := app.Pipeline.Ingest(ctx, raws, indexer.Options{
					RecreateIndex: recreate,
					Workers:       workers,
				})
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
	cmd.Flags().BoolVar(&recreate, "recreate-index", false, "drop and recreate the vector collection first")
	cmd.Flags().StringVar(&alias, "alias", "", "alias for records that are not grouped under one")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "products written concurrently (default INGEST_WORKERS)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the report as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, report *indexer.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Records: %d\n", len(report.Outcomes))
	for _, s := range []indexer.Status{
		indexer.StatusSuccess,
		indexer.StatusSkippedMalformed,
		indexer.StatusFailedEmbedding,
		indexer.StatusFailedStore,
		indexer.StatusCancelled,
	} {
		if n := report.Count(s); n > 0 {
			fmt.Fprintf(out, "  %-18s %d\n", s, n)
		}
	}
	for _, o := range report.Outcomes {
		if o.Status != indexer.StatusSuccess {
			fmt.Fprintf(out, "  [%d] %s %s: %s\n", o.Index, o.ItemSeq, o.Status, o.Error)
		}
	}
}
