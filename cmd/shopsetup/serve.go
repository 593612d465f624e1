package main

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Yslas262/shopify-setup/internal/config"
	"github.com/Yslas262/shopify-setup/internal/home"
	"github.com/Yslas262/shopify-setup/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the shopsetup server",
	Long: `Start the shopsetup HTTP server.

The server provides:
  - /health            - Basic server health check
  - /ready             - Readiness check (pings the admin API)
  - /api/setup/run     - Run the full store setup
  - /api/setup/resume  - Resume a failed run
  - /api/setup/steps   - Step catalog and single-step execution

Examples:
  shopsetup serve                    # Start on default port 8780
  shopsetup serve --port 3000        # Start on custom port
  shopsetup serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		logger := newLogger(cfg.Logging)

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}

		host := serveHost
		if host == "" {
			host = cfg.Server.Host
		}
		port := servePort
		if port == "" {
			port = strconv.Itoa(cfg.Server.Port)
		}

		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			Home:          h,
			ConfigManager: cm,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

// newLogger builds the structured logger from the logging config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: from config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: from config)")

	rootCmd.AddCommand(serveCmd)
}
