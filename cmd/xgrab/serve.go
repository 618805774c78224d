package main

import (
	"github.com/spf13/cobra"

	"github.com/ManuGH/xgrab/internal/daemon"
	"github.com/ManuGH/xgrab/internal/version"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP daemon",
		Long:  "Run the daemon: observation ingestion, catalog, transfers, health and metrics endpoints.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			return daemon.Run(cmd.Context(), daemon.Options{ConfigPath: path, Version: version.Version})
		},
	}
}
