/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ssargent/datapak/pkg/config"
	"github.com/ssargent/datapak/pkg/di"
	"github.com/ssargent/datapak/pkg/report"
)

var container *di.Container

// SetContainer sets the dependency injection container
func SetContainer(c *di.Container) {
	container = c
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "datapak",
	Short: "datapak - pack datasets into a transactional KV store",
	Long: `datapak packs a directory of dataset files (images, annotations, anything)
into a single ordered key-value store for fast random access during training,
and recovers the original files from it.

Examples:
  datapak init --source ./images --config ./datapak.yaml
  datapak write --config ./datapak.yaml
  datapak verify --config ./datapak.yaml
  datapak recover --config ./datapak.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.GetDefaultConfigPath(), "Path to the YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Override logging.level from the config")
}

// loadConfig reads the --config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if container == nil {
		return nil, fmt.Errorf("dependency container not initialized")
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLogger builds the run logger; a job name is attached when the config
// expands to several datasets.
func newLogger(cfg *config.Config, job string) (*slog.Logger, error) {
	logger, err := container.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if job != "" {
		logger = logger.With("dataset", job)
	}
	return logger, nil
}

// finishRun renders the summary, writes the metrics textfile and applies
// strict mode.
func finishRun(cfg *config.Config, job string, sum *report.Summary, runErr error) error {
	if sum != nil {
		if job != "" {
			fmt.Fprintf(container.Stdout(), "dataset %s\n", job)
		}
		if err := report.Render(container.Stdout(), sum); err != nil {
			return err
		}
	}
	if err := container.GetMetrics().WriteTextfile(cfg.MetricsFile); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	if runErr != nil {
		return runErr
	}
	if cfg.Strict && sum != nil && sum.Failed() > 0 {
		return fmt.Errorf("strict mode: %d entries failed", sum.Failed())
	}
	return nil
}
