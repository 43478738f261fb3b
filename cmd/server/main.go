package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MegaGrindStone/data-analyzer-ui/internal/handlers"
	"github.com/MegaGrindStone/data-analyzer-ui/internal/services"
	"github.com/MegaGrindStone/data-analyzer-ui/internal/stream"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags flagValues

	cmd := &cobra.Command{
		Use:   "data-analyzer",
		Short: "Web UI for uploading a dataset, reading its summary and charts, and chatting about it",
		Long: `Serves the Data Analyzer web UI.

Uploaded CSV and Excel files are handed to the analysis backend, which produces
the summary, the charts and the streamed chat answers shown by the UI.

Configuration is read from <user config dir>/data-analyzer/config.yaml (or --config),
then from the environment (PORT, BACKEND_URL, DB_PATH, LOG_LEVEL, LOG_FORMAT, also
loaded from a .env file), then from the flags below.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "Path of the YAML config file")
	f.StringVar(&flags.port, "port", "", "Port to listen on")
	f.StringVar(&flags.backendURL, "backend-url", "", "Base URL of the analysis backend")
	f.StringVar(&flags.dbPath, "db-path", "", "Path of the session database")
	f.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&flags.logFormat, "log-format", "", "Log format (text, json)")
	f.DurationVar(&flags.backendTimeout, "backend-timeout", 0, "Timeout of upload, summary and visualization requests (0 disables it)")
	f.StringVar(&flags.malformed, "malformed", "", "What to do with malformed stream records (skip, abort)")

	return cmd
}

func loadConfig(cmd *cobra.Command, flags flagValues) (config, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return config{}, fmt.Errorf("error getting user config dir: %w", err)
	}

	cfg := defaultConfig(cfgDir)

	cfgFilePath := flags.configPath
	if cfgFilePath == "" {
		cfgFilePath = filepath.Join(cfgDir, appDirName, "config.yaml")
	}
	if err := cfg.loadFile(cfgFilePath, flags.configPath != ""); err != nil {
		return config{}, err
	}

	// A missing .env file is fine; the process environment is used as it is.
	_ = godotenv.Load()
	cfg.applyEnv(os.Getenv)

	cfg.applyFlags(cmd.Flags().Changed, flags)

	if err := cfg.validate(); err != nil {
		return config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config) error {
	logger := cfg.logger(os.Stderr)
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("error creating database directory: %w", err)
	}
	boltDB, err := services.NewBoltDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer boltDB.Close()

	backend := services.NewBackend(cfg.BackendURL, cfg.Backend.Timeout, logger)

	m, err := handlers.NewMain(backend, boltDB, services.NewConversations(), logger,
		stream.WithPolicy(cfg.malformedPolicy()))
	if err != nil {
		return err
	}

	// Create custom server. SSE connections stay open, so there is no write timeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting",
			slog.String("addr", srv.Addr),
			slog.String("backendURL", cfg.BackendURL))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		logger.Info("Start shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Gracefully shutdown the server
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				return fmt.Errorf("forcing server close: %w", err)
			}
		}
	}

	return nil
}
