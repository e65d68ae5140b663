/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/ssargent/datapak/pkg/codec"
)

// Set at build time with -ldflags "-X github.com/ssargent/datapak/cmd/datapak/cmd.version=..."
var (
	version = "dev"
	commit  = ""
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("datapak %s\n", version)
		if c := buildCommit(); c != "" {
			cmd.Printf("commit: %s\n", c)
		}
		cmd.Printf("record format: v%d\n", codec.FormatVersion)
		cmd.Printf("checksums: %v\n", codec.Algorithms)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func buildCommit() string {
	if commit != "" {
		return commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return ""
}
