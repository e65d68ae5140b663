/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/datapak/pkg/config"
	"github.com/ssargent/datapak/pkg/scan"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the relative paths stored in the store",
	Long: `Print the relative path of every entry, one per line, in key order. The
output can be fed back to write through list_file.

Examples:
  datapak list --config ./datapak.yaml
  datapak list --config ./datapak.yaml --prefix train/ --output train.lst`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		output, _ := cmd.Flags().GetString("output")
		return forEachJob(cmd, func(ctx context.Context, job string, cfg *config.Config) error {
			return runList(cfg, job, prefix, output)
		})
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().String("prefix", "", "Only list paths with this prefix")
	listCmd.Flags().StringP("output", "o", "", "Write the list to a file instead of stdout")
}

func runList(cfg *config.Config, job, prefix, output string) error {
	st, _, err := openForRead(cfg, job)
	if err != nil {
		return err
	}
	defer st.Close()

	reader, err := scan.OpenWithFallback(st, fallbackMeta(cfg))
	if err != nil {
		return err
	}
	paths, err := reader.List(prefix, 0)
	if err != nil {
		return err
	}

	var w io.Writer = container.Stdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create list file: %w", err)
		}
		defer f.Close()
		w = f
	}

	bw := bufio.NewWriter(w)
	for _, p := range paths {
		if _, err := fmt.Fprintln(bw, p); err != nil {
			return err
		}
	}
	return bw.Flush()
}
