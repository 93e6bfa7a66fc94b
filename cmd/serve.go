package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sammcj/llmem/catalog"
	"github.com/sammcj/llmem/logging"
	"github.com/sammcj/llmem/server"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the estimate HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
				logging.DebugLogger.Debug().Msgf(format, args...)
			}))
			defer undo()
			if err != nil {
				logging.ErrorLogger.Error().Err(err).Msg("Failed to set GOMAXPROCS")
			}

			addr := a.cfg.ListenAddress
			if listen != "" {
				addr = listen
			}

			if err := os.MkdirAll(a.cfg.ModelsDir, 0755); err != nil {
				return fmt.Errorf("failed to create models directory: %w", err)
			}
			models, err := catalog.Load(a.cfg.ModelsDir)
			if err != nil {
				return err
			}
			logging.InfoLogger.Info().Str("dir", models.Dir()).Int("models", models.Len()).Msg("Model catalog loaded")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			metrics := server.NewMetrics()
			if a.cfg.WatchModels {
				err := models.Watch(ctx, func(count int) {
					metrics.CatalogModels.Set(float64(count))
				})
				if err != nil {
					logging.ErrorLogger.Error().Err(err).Msg("Model catalog will not reload on changes")
				}
			}

			srv := server.New(server.Options{
				Estimator:   a.estimator(),
				Catalog:     models,
				Metrics:     metrics,
				Version:     Version,
				CORSOrigins: a.cfg.CORSOrigins,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "%s listening on http://%s\n", server.ServiceName, addr)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (default from config, 127.0.0.1:15050)")
	return cmd
}
