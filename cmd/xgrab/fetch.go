// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/xgrab/internal/catalog"
	"github.com/ManuGH/xgrab/internal/config"
	"github.com/ManuGH/xgrab/internal/fetch"
	"github.com/ManuGH/xgrab/internal/hls"
	"github.com/ManuGH/xgrab/internal/orchestrator"
	"github.com/ManuGH/xgrab/internal/transfer"
)

func newFetchCmd() *cobra.Command {
	var (
		output  string
		batch   int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "fetch <playlist-url>",
		Short: "Download an HLS playlist into one file",
		Long: "Resolve a master or media playlist, download every segment in bounded batches " +
			"and write the concatenation atomically. Nothing is persisted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, name := config.DefaultOutputDir, ""
			if output != "" {
				dir, name = filepath.Dir(output), filepath.Base(output)
			}
			sink, err := orchestrator.NewFileSink(dir)
			if err != nil {
				return err
			}

			client := fetch.NewClient(fetch.NewHTTPClient(timeout))
			size := fetch.ClampBatchSize(batch)
			orch := orchestrator.New(
				catalog.New(nil),
				transfer.NewTracker(nil),
				hls.NewResolver(client),
				client,
				sink,
				orchestrator.WithBatchSize(func() int { return size }),
			)
			defer func() { _ = orch.Close(cmd.Context()) }()

			started := time.Now()
			job, err := orch.Transfer(cmd.Context(), orchestrator.TransferRequest{
				Locator:    args[0],
				OutputName: name,
			})
			switch {
			case job.Status == transfer.StatusCancelled:
				return fmt.Errorf("transfer cancelled after %d/%d segments", job.Downloaded, job.Total)
			case err != nil:
				return fmt.Errorf("transfer %s: %w", job.Status, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d segments -> %s (%s)\n",
				job.Status, job.Downloaded, job.Total, filepath.Join(dir, job.OutputName),
				time.Since(started).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default "+config.DefaultOutputDir+"/video_m3u8_<unixms>.ts)")
	cmd.Flags().IntVar(&batch, "batch", fetch.DefaultBatchSize, "segments fetched concurrently (1-20)")
	cmd.Flags().DurationVar(&timeout, "timeout", config.DefaultHTTPTimeout, "per-request timeout")
	return cmd
}
