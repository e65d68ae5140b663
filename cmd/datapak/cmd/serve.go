/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/datapak/pkg/api"
	"github.com/ssargent/datapak/pkg/scan"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the store read-only over HTTP",
	Long: `Start a read-only REST API over the store at store_path.

Routes:
  GET /metrics
  GET /api/v1/health
  GET /api/v1/stats
  GET /api/v1/entries?prefix=&limit=
  GET /api/v1/entries/{path}
  GET /api/v1/index/{ordinal}

When serve.api_key is set every /api/v1 request needs an X-API-Key header.

Examples:
  datapak serve --config ./datapak.yaml
  datapak serve --config ./datapak.yaml --addr 127.0.0.1:9300`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Serve.Addr = addr
		}
		logger, err := newLogger(cfg, "")
		if err != nil {
			return err
		}

		st, _, err := openForRead(cfg, "")
		if err != nil {
			return err
		}
		defer st.Close()

		reader, err := scan.OpenWithFallback(st, fallbackMeta(cfg))
		if err != nil {
			return err
		}

		server := api.NewServer(reader, api.ServerConfig{
			Addr:      cfg.Serve.Addr,
			APIKey:    cfg.Serve.APIKey,
			DiskUsage: st.DiskUsage,
		}, container.GetMetrics(), logger)

		cmd.Printf("Serving %s on %s\n", cfg.StorePath, cfg.Serve.Addr)
		return server.ListenAndServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (overrides serve.addr)")
}
