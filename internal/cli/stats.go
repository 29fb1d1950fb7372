package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"druginfo-rag/internal/record"
)

func newStatsCmd(load AppLoader) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show ingestion coverage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(ctx context.Context, app *App) error {
				stats, err := app.Pipeline.CoverageStats(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, stats)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Products:            %d\n", stats.ProductsIndexed)
				fmt.Fprintf(out, "Products w/o chunks: %d\n", stats.ProductsWith0Chunks)
				fmt.Fprintf(out, "Chunks:              %d\n", stats.Chunks)
				for _, kind := range record.AllSections() {
					fmt.Fprintf(out, "  %-14s %d\n", kind, stats.ChunksPerSection[kind.String()])
				}
				ls := stats.ChunkLengthStats
				fmt.Fprintf(out, "Chunk length:        min %d, max %d, mean %.2f, p95 %d\n", ls.Min, ls.Max, ls.Mean, ls.P95)
				fmt.Fprintf(out, "Chunker version:     %s\n", stats.ChunkerVersion)
				fmt.Fprintf(out, "Embedding model:     %s\n", stats.EmbeddingModel)
				fmt.Fprintf(out, "Index version:       %s\n", stats.IndexVersion)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
