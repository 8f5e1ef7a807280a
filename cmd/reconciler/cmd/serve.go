package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-pv-reconciliation/cmd/reconciler/config"
	"golang-pv-reconciliation/internal/api"
	"golang-pv-reconciliation/internal/parsers"
	"golang-pv-reconciliation/internal/reconciler"
	"golang-pv-reconciliation/internal/store"
	"golang-pv-reconciliation/pkg/logger"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation HTTP API",
	Long: `Serve exposes reconciliation over HTTP. Datasets are posted either as
JSON rows or as multipart file uploads. With --db, runs can be stored and
browsed under /api/v1/runs.

Examples:
  reconciler serve
  reconciler serve --addr :8080 --db runs.db
  RECONCILER_SERVE_ADDR=127.0.0.1:9000 reconciler serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().Int("max-upload-mb", 32, "maximum request body size in MiB")
	serveCmd.Flags().String("strategy", "tier-first", "default matching strategy: tier-first or record-first")

	// Keys are namespaced so they do not clash with the reconcile flags
	viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("serve.max-upload-mb", serveCmd.Flags().Lookup("max-upload-mb"))
	viper.BindPFlag("serve.strategy", serveCmd.Flags().Lookup("strategy"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, cleanup, err := newAPIServer(ctx, logger.GetGlobalLogger())
	if err != nil {
		return err
	}
	defer cleanup()

	return server.Start(ctx)
}

// newAPIServer wires the API server from the viper settings. The returned
// cleanup closes the run store, if one was opened.
func newAPIServer(ctx context.Context, log logger.Logger) (*api.Server, func(), error) {
	serverConfig, err := config.CreateServerConfig(viper.GetString("serve.addr"), viper.GetInt("serve.max-upload-mb"))
	if err != nil {
		return nil, nil, err
	}

	matchingConfig, err := config.CreateMatchingConfig(viper.GetString("serve.strategy"))
	if err != nil {
		return nil, nil, err
	}

	det, err := newDetector(log)
	if err != nil {
		return nil, nil, err
	}

	service, err := reconciler.NewReconciliationService(matchingConfig, reconciler.DefaultConfig(),
		reconciler.WithLogger(log),
		reconciler.WithDetector(det),
	)
	if err != nil {
		return nil, nil, err
	}

	reader, err := parsers.NewTableReader(nil, log)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var runs api.RunRepository
	if dsn := viper.GetString("db"); dsn != "" {
		runStore, err := store.Open(ctx, dsn, log)
		if err != nil {
			return nil, nil, err
		}
		runs = runStore
		cleanup = func() {
			if err := runStore.Close(); err != nil {
				log.WithError(err).Warn("Failed to close run store")
			}
		}
	} else {
		log.Info("No --db given; run history is disabled")
	}

	server, err := api.NewServer(serverConfig, service, reader, runs, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return server, cleanup, nil
}
