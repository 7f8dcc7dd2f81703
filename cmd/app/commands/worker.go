package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"FMPull/internal/di"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run queue workers and the HTTP API",
	Long: `Worker consumes fetch jobs from the Redis queue (queue.backend=redis) and
serves the HTTP API:

  GET  /health
  GET  /metrics
  GET  /api/series
  POST /api/fetch

It stops gracefully on SIGINT or SIGTERM.

Example:
  fmpull worker --config configs/config.yaml`,
	RunE: runWorker,
}

var workerPort int

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().IntVar(&workerPort, "port", 0, "override server.port")
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if workerPort > 0 {
		cfg.Server.Port = workerPort
	}

	app, cleanup, err := di.InitializeWorker(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()

	return app.Run(cmd.Context())
}
