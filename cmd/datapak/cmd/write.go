/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ssargent/datapak/pkg/config"
	"github.com/ssargent/datapak/pkg/enumerate"
	"github.com/ssargent/datapak/pkg/pack"
	"github.com/ssargent/datapak/pkg/store"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Pack a dataset into the store",
	Long: `Pack every file under source_root (or every path in list_file) into the
store at store_path, in atomic batches of batch_size entries.

Re-running a write over an unchanged dataset is safe: existing keys are
handled by duplicate_policy.

Examples:
  datapak write --config ./datapak.yaml
  datapak write --config ./datapak.yaml --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		jobs, err := cfg.Jobs()
		if err != nil {
			return err
		}
		for _, job := range jobs {
			if err := runWrite(cmd.Context(), job.Name, job.Config); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)
}

func runWrite(ctx context.Context, job string, cfg *config.Config) error {
	if err := cfg.RequireWrite(); err != nil {
		return err
	}
	logger, err := newLogger(cfg, job)
	if err != nil {
		return err
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	src, err := enumerate.New(enumerate.Options{
		Root:          cfg.SourceRoot,
		ListFile:      cfg.ListFile,
		Include:       cfg.Include,
		Exclude:       cfg.Exclude,
		MaxEntryBytes: cfg.MaxEntryBytes,
		Checksum:      cfg.ChecksumAlgorithm(),
		Workers:       workers,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer src.Close()

	if dir := filepath.Dir(cfg.StorePath); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	st, err := container.OpenStore(cfg.StorePath, store.Options{Sync: cfg.Sync, Logger: logger})
	if err != nil {
		return err
	}
	defer st.Close()

	m := container.GetMetrics()
	w, err := pack.NewWriter(st, pack.Options{
		BatchSize:     cfg.BatchSize,
		Policy:        cfg.Policy(),
		KeyScheme:     cfg.Scheme(),
		Checksum:      cfg.ChecksumAlgorithm(),
		ProgressEvery: cfg.ProgressEvery,
		Logger:        logger,
		Metrics:       m,
	})
	if err != nil {
		return err
	}

	sum, err := w.Write(ctx, src)
	if err == nil {
		if meta, merr := st.Meta(); merr == nil {
			m.UpdateStoreStats(meta.EntryCount, st.DiskUsage())
		}
	}
	return finishRun(cfg, job, sum, err)
}
