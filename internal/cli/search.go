package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"druginfo-rag/internal/rag"
)

func newSearchCmd(load AppLoader) *cobra.Command {
	var (
		section     string
		alias       string
		ingredients []string
		k           int
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search drug label sections",
		Long: `Embeds the query and returns the most similar label passages among products
matching every supplied filter.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(ctx context.Context, app *App) error {
				res, err := app.Retriever.Search(ctx, rag.Query{
					Text:        args[0],
					Section:     section,
					Alias:       alias,
					Ingredients: ingredients,
					K:           k,
				})
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				if asJSON {
					return printJSON(cmd, res)
				}
				printPassages(cmd, res)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&section, "section", "s", "", "restrict to one section kind")
	cmd.Flags().StringVarP(&alias, "alias", "a", "", "restrict to products with a matching alias")
	cmd.Flags().StringArrayVarP(&ingredients, "ingredient", "i", nil, "require an ingredient (repeatable)")
	cmd.Flags().IntVarP(&k, "limit", "k", rag.DefaultK, "number of passages")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func printPassages(cmd *cobra.Command, res *rag.Result) {
	out := cmd.OutOrStdout()
	if res.NoMatchingProducts {
		fmt.Fprintln(out, "No products match the alias filter.")
		return
	}
	if len(res.Passages) == 0 {
		fmt.Fprintln(out, "No results found.")
		return
	}

	fmt.Fprintln(out, "Results:")
	for i, p := range res.Passages {
		fmt.Fprintf(out, "  [%d] %s (%s) %s#%d (%.3f)\n", i+1, p.ItemName, p.ItemSeq, p.Section, p.PartIdx, p.Score)
		if len(p.Ingredients) > 0 {
			fmt.Fprintf(out, "      Ingredients: %s\n", strings.Join(p.Ingredients, ", "))
		}
		fmt.Fprintf(out, "      %s\n", snippet(p.Text, 160))
	}
}

// snippet shortens text to at most n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}
