package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the druginfo command tree. load supplies the wired App to each
// subcommand; nil selects LoadApp.
func NewRootCmd(load AppLoader) *cobra.Command {
	if load == nil {
		load = LoadApp
	}

	var configFile string
	root := &cobra.Command{
		Use:   "druginfo",
		Short: "Drug label retrieval service",
		Long: `druginfo ingests over-the-counter drug label records into a metadata store
and a vector index, and answers filtered semantic searches over label sections.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				return os.Setenv("CONFIG_FILE", configFile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file (environment variables take precedence)")

	root.AddCommand(
		newServeCmd(load),
		newIngestCmd(load),
		newSearchCmd(load),
		newReindexCmd(load),
		newStatsCmd(load),
	)
	return root
}

// Execute runs the command tree with the given arguments and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root := NewRootCmd(nil)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// withApp runs fn with a loaded App, releasing it afterwards.
func withApp(cmd *cobra.Command, load AppLoader, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, release, err := load(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, app)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
