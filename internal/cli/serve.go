package cli

import (
	"context"
	"errors"
	"log/slog"
	nethttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"druginfo-rag/internal/http"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(load AppLoader) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(ctx context.Context, app *App) error {
				if port == "" {
					port = app.Config.APIPort
				}
				return serve(ctx, app, ":"+port)
			})
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default API_PORT)")
	return cmd
}

// serve runs the API until ctx is cancelled or SIGINT/SIGTERM arrives.
func serve(ctx context.Context, app *App, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Vectors.EnsureCollection(ctx, app.Config.QdrantCollection, app.Config.QdrantVectorSize); err != nil {
		return err
	}

	router := http.NewRouter(&http.Deps{
		Searcher:   app.Retriever,
		RAGEngine:  app.Engine,
		Catalog:    app.Catalog,
		Ingester:   app.Pipeline,
		Stats:      app.Pipeline,
		DB:         app.DB,
		Vectors:    app.Vectors,
		Collection: app.Config.QdrantCollection,
		Metrics:    app.Metrics.Handler(),
		APIKey:     app.Config.APIKey,
	})

	srv := &nethttp.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
