/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/ssargent/datapak/pkg/codec"
	"github.com/ssargent/datapak/pkg/config"
	"github.com/ssargent/datapak/pkg/recovery"
	"github.com/ssargent/datapak/pkg/scan"
	"github.com/ssargent/datapak/pkg/store"
)

// recoverCmd represents the recover command
var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Recover the original files from the store",
	Long: `Decode every entry in the store at store_path, verify its checksum and
write it under destination_root at its original relative path.

Files that already exist are skipped unless overwrite is set.

Examples:
  datapak recover --config ./datapak.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachJob(cmd, func(ctx context.Context, job string, cfg *config.Config) error {
			return runRecover(ctx, job, cfg, false)
		})
	},
}

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every entry in the store without writing files",
	Long: `Decode every entry in the store and verify its checksum. Nothing is
written; the summary lists corrupt records.

Examples:
  datapak verify --config ./datapak.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachJob(cmd, func(ctx context.Context, job string, cfg *config.Config) error {
			return runRecover(ctx, job, cfg, true)
		})
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(verifyCmd)
}

func forEachJob(cmd *cobra.Command, fn func(ctx context.Context, job string, cfg *config.Config) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	jobs, err := cfg.Jobs()
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := fn(cmd.Context(), job.Name, job.Config); err != nil {
			return err
		}
	}
	return nil
}

// openForRead opens an existing store read-only and returns its metadata.
// A store whose first write run never completed has committed batches but no
// metadata; it is read with the configured key scheme and checksum.
func openForRead(cfg *config.Config, job string) (*store.Store, *codec.StoreMeta, error) {
	logger, err := newLogger(cfg, job)
	if err != nil {
		return nil, nil, err
	}
	st, err := container.OpenStore(cfg.StorePath, store.Options{ReadOnly: true, Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	meta, err := st.Meta()
	if errors.Is(err, store.ErrNotFound) {
		meta = fallbackMeta(cfg)
		logger.Warn("store has no metadata, reading with configured settings",
			"store", cfg.StorePath,
			"key_scheme", meta.KeyScheme,
			"checksum", meta.Checksum)
		return st, meta, nil
	}
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return st, meta, nil
}

func fallbackMeta(cfg *config.Config) *codec.StoreMeta {
	return codec.NewStoreMeta(cfg.Scheme(), cfg.ChecksumAlgorithm())
}

func runRecover(ctx context.Context, job string, cfg *config.Config, verifyOnly bool) error {
	if verifyOnly {
		if cfg.StorePath == "" {
			return &config.ConfigError{Field: "store_path", Reason: "required"}
		}
	} else if err := cfg.RequireRecover(); err != nil {
		return err
	}
	logger, err := newLogger(cfg, job)
	if err != nil {
		return err
	}

	st, meta, err := openForRead(cfg, job)
	if err != nil {
		return err
	}
	defer st.Close()

	sc, err := scan.NewScanner(st, meta.KeyScheme)
	if err != nil {
		return err
	}
	defer sc.Close()

	r, err := recovery.New(recovery.Options{
		DestinationRoot: cfg.DestinationRoot,
		Overwrite:       cfg.Overwrite,
		Checksum:        meta.Checksum,
		VerifyOnly:      verifyOnly,
		Logger:          logger,
		Metrics:         container.GetMetrics(),
	})
	if err != nil {
		return err
	}

	sum, err := r.Recover(ctx, sc)
	return finishRun(cfg, job, sum, err)
}
