package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"artspire/internal/config"
	"artspire/internal/logger"
	"artspire/internal/recommendations"
	"artspire/pkg/logging"
	"artspire/pkg/models"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "recommendations-service",
		Short: "Recommendations service for the art platform",
		Long:  "Recommendations service answers similar-art requests over RabbitMQ from a cached similarity index",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(importCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(earlyLog *logging.EarlyLog) (*config.Config, error) {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the recommendations service",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			cfg, err := loadConfig(earlyLog)
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging.Level)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting Recommendations Service")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.Fatalf("Failed to initialize application: %v", err)
			}

			runErr := app.Run(ctx)
			if err := app.Shutdown(context.Background()); err != nil {
				log.ErrorwCtx(ctx, "Shutdown error", "error", err)
			}
			if runErr != nil {
				log.ErrorwCtx(ctx, "Application error", "error", runErr)
				return runErr
			}
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	var (
		file   string
		action string
	)

	cmd := &cobra.Command{
		Use:   "import-index",
		Short: "Load similarity entries from a JSON file into the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			cfg, err := loadConfig(earlyLog)
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging.Level)
			if err != nil {
				return err
			}
			defer log.Sync()

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", file, err)
			}
			defer f.Close()

			entries, err := recommendations.ReadEntries(f)
			if err != nil {
				return err
			}

			app := NewApp(cfg, log)
			defer app.Shutdown(context.Background())

			importer, err := app.InitImporter(cmd.Context())
			if err != nil {
				return err
			}
			if err := importer.Import(cmd.Context(), entries, action); err != nil {
				return err
			}

			log.Infow("Similarity index imported", "entries", len(entries), "action", action)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON file with similarity entries")
	cmd.Flags().StringVar(&action, "action", models.ActionUpsert, "Import action: replace or upsert")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
