package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Shugur-Network/aisbridge/internal/application"
	"github.com/Shugur-Network/aisbridge/internal/config"
	"github.com/Shugur-Network/aisbridge/internal/logger"
	"github.com/Shugur-Network/aisbridge/internal/metrics"
	"go.uber.org/zap"

	"github.com/spf13/cobra"
)

var (
	cfgFile string         // Path to custom config file (optional)
	cfg     *config.Config // Global reference to loaded configuration
)

// rootCmd defines the main CLI command for aisbridge
var rootCmd = &cobra.Command{
	Use:   "aisbridge",
	Short: "aisbridge forwards live AIS vessel positions into the tracking pipeline",
	Long: `aisbridge subscribes to the aisstream.io feed for every vessel in the carrier
registry and turns each position report into one position record per tracked device.`,
	Example: `
  aisbridge start --stream-url wss://stream.aisstream.io/v0/stream
  aisbridge start --log-level debug --metrics-port 2112
  aisbridge start --config /path/to/config.yaml`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		if cfgFile != "" {
			absPath, err := filepath.Abs(cfgFile)
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}
			cfgFile = absPath
		}

		var err error
		cfg, err = config.Load(cfgFile, nil)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		// Command line flags win over file and environment.
		flags := cmd.Flags()
		if flags.Changed("stream-url") {
			cfg.Stream.URL, _ = flags.GetString("stream-url")
		}
		if flags.Changed("db-url") {
			cfg.Database.URL, _ = flags.GetString("db-url")
			cfg.Database.Enabled = true
		}
		if flags.Changed("metrics-port") {
			cfg.Metrics.Port, _ = flags.GetInt("metrics-port")
		}
		if flags.Changed("log-level") {
			level, _ := flags.GetString("log-level")
			if err := logger.UpdateLevel(level); err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			cfg.Logging.Level = level
		}

		return cfg.Validate()
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			fmt.Fprintf(os.Stderr, "Error displaying help: %v\n", err)
		}
	},
}

// Execute runs the root command with the provided context
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to custom config file (optional)")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("stream-url", "", "AIS stream WebSocket endpoint")
	rootCmd.PersistentFlags().Int("metrics-port", 2112, "Port for Prometheus metrics server")
	rootCmd.PersistentFlags().String("db-url", "", "PostgreSQL connection URL for the carrier registry")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of aisbridge",
		Run: func(cmd *cobra.Command, args []string) {
			if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
				fmt.Println(GetFullVersionInfo())
			} else {
				fmt.Println(GetVersionWithPrefix())
			}
		},
	}
	versionCmd.Flags().BoolP("detailed", "d", false, "Show detailed version information")
	rootCmd.AddCommand(versionCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the AIS bridge",
		Long:  "Start ingesting the AIS stream with the specified configuration",
		RunE:  runStart,
	})
}

// runStart blocks until the command context is cancelled, then shuts the node down.
func runStart(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if cfgFile != "" {
		logger.Info("Using config file", zap.String("config_file", cfgFile))
	}

	metrics.RegisterMetrics()

	logger.Info("Starting aisbridge...",
		zap.String("version", version),
		zap.Bool("stream_configured", cfg.Stream.Configured()),
		zap.Bool("database", cfg.Database.Enabled))
	app, err := application.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize aisbridge", zap.Error(err))
		return err
	}

	if err := app.Start(ctx); err != nil {
		logger.Error("Failed to start aisbridge", zap.Error(err))
		app.Shutdown()
		return err
	}
	logger.Info("aisbridge started successfully")

	<-ctx.Done()
	logger.Info("Shutdown signal received, initiating graceful shutdown...")
	app.Shutdown()
	return nil
}
