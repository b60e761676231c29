package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailbrief/config"
	"mailbrief/internal/bootstrap"
	"mailbrief/pkg/logger"

	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

var logLevel string

func main() {
	root := &cobra.Command{
		Use:   "mailbrief",
		Short: "Triage unread mail with a language model",
		Long: "mailbrief fetches unread mail, asks a language model which messages need attention,\n" +
			"and walks you through marking them read and sending the suggested replies.\n" +
			"Run `mailbrief serve` for the HTTP backend.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	root.AddCommand(serveCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			return runAPI(cmd.Context(), cfg)
		},
	}
}

func loadConfig(console bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		// The logger is not configured yet; print plainly.
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger.Init(logger.Config{
		Level:   logger.ParseLevel(level),
		Output:  os.Stderr,
		Service: "mailbrief",
		Console: console,
	})
	return cfg, nil
}

func runCLI(ctx context.Context) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	report, err := bootstrap.RunCLI(ctx, cfg, os.Stdin, os.Stdout)
	if err != nil {
		logger.WithError(err).Error("Triage failed")
		return err
	}
	if failed := report.Failed(); failed > 0 {
		return fmt.Errorf("%d actions failed", failed)
	}
	return nil
}

func runAPI(ctx context.Context, cfg *config.Config) error {
	app, cleanup, err := bootstrap.NewAPI(cfg)
	if err != nil {
		logger.Error("Failed to initialize API: %v", err)
		return err
	}
	defer cleanup()

	// Graceful shutdown with timeout
	go func() {
		<-ctx.Done()

		logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("Error shutting down: %v", err)
		} else {
			logger.Info("API server shut down gracefully")
		}
	}()

	addr := ":" + cfg.Port
	logger.Info("Starting API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Error("Failed to start server: %v", err)
		return err
	}
	return nil
}
