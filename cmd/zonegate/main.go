// Command zonegate answers questions about whether vehicles may enter
// low- and zero-emission zones.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"zonegate/internal/config"
	"zonegate/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "zonegate",
	Short: "zonegate - vehicle access checks for low and zero emission zones",
	Long: `zonegate is a conversational assistant for LEZ/ZEZ access questions.

A language model reads the question and phrases the answer; whether a vehicle
may enter a zone is decided by deterministic rules only.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return initLogger(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// initLogger builds the zap logger and installs it behind the category
// loggers. The chat REPL keeps the terminal clean by logging warnings only.
func initLogger(cmd *cobra.Command) error {
	zc := zap.NewProductionConfig()
	if cfg.Logging.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	if cmd.Name() == "chat" && level < zapcore.WarnLevel {
		level = zapcore.WarnLevel
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if cfg.Logging.Output != "" {
		zc.OutputPaths = []string{cfg.Logging.Output}
	}

	logger, err = zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logging.Use(logger, logging.Config{
		Level:      level.String(),
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		Categories: cfg.Logging.Categories,
	})
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "zonegate.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
