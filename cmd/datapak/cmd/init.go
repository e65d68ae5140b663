/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/datapak/pkg/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Write a config file with default settings for packing --source, and a
generated API key for the serve command.

Examples:
  datapak init --source ./images --config ./datapak.yaml
  datapak init --source ./images --config ./datapak.yaml --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		source, _ := cmd.Flags().GetString("source")
		force, _ := cmd.Flags().GetBool("force")

		if config.ConfigExists(path) && !force {
			return fmt.Errorf("config already exists at %s (use --force to replace it)", path)
		}
		cfg, err := config.BootstrapConfig(path, source)
		if err != nil {
			return err
		}

		cmd.Printf("Wrote %s\n", path)
		cmd.Printf("Store path: %s\n", cfg.StorePath)
		cmd.Printf("\nPack the dataset with:\n  datapak write --config %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("source", "./data", "Dataset directory to pack")
	initCmd.Flags().Bool("force", false, "Replace an existing config file")
}
