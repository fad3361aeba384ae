// Command server runs the flame graph rendering service: an HTTP API
// that renders uploaded profiles, stores the SVGs and indexes them in a
// database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flamegen/internal/pipeline"
	"github.com/flamegen/internal/repository"
	"github.com/flamegen/internal/server"
	"github.com/flamegen/internal/storage"
	"github.com/flamegen/pkg/config"
	"github.com/flamegen/pkg/telemetry"
	"github.com/flamegen/pkg/utils"
	"github.com/flamegen/pkg/version"
)

var (
	configPath string
	verbose    bool
)

func binName() string {
	return filepath.Base(os.Args[0])
}

var rootCmd = &cobra.Command{
	Use:   "flamegen-server",
	Short: "A flame graph rendering service",
	Long: `flamegen-server exposes flame graph rendering over HTTP. Uploaded folded
stack profiles are rendered to interactive SVG, persisted to object
storage and indexed in a database for later retrieval.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.String(binName()))
	},
}

func init() {
	bin := binName()
	rootCmd.Example = `  # Start with the default configuration
  ` + bin + `

  # Start with a config file
  ` + bin + ` -c /etc/flamegen/config.yaml`

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	rootCmd.AddCommand(versionCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	logLevel := utils.LevelInfo
	if verbose {
		logLevel = utils.LevelDebug
	}
	logger := utils.NewDefaultLogger(logLevel, os.Stderr)
	utils.SetGlobalLogger(logger)

	logger.Info("Starting flamegen server...")
	logger.Info("Version: %s, Commit: %s, Built: %s", version.Version, version.GitCommit, version.BuildTime)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Info("Database: %s (%s)", cfg.Database.Type, cfg.Database.Database)
	logger.Info("Storage: %s", cfg.Storage.Type)

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	db, err := repository.NewGormDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repository.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	store, err := storage.NewStore(&cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	defaults := &pipeline.Options{
		Title:    cfg.Render.Title,
		Width:    cfg.Render.Width,
		MinWidth: cfg.Render.MinWidth,
	}

	srv := server.NewServer(cfg.Server.Port, repository.NewGormGraphRepository(db), store, defaults, db, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal %v, shutting down...", sig)
	case err := <-errChan:
		if err != nil {
			logger.Error("Server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown: %v", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("Error during telemetry shutdown: %v", err)
	}
	if err := repository.Close(db); err != nil {
		logger.Error("Error closing database: %v", err)
	}

	logger.Info("Server stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
