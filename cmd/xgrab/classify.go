package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/xgrab/internal/classify"
	"github.com/ManuGH/xgrab/internal/config"
	"github.com/ManuGH/xgrab/internal/fetch"
	"github.com/ManuGH/xgrab/internal/media"
)

func newClassifyCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "classify <url>",
		Short: "Probe a URL with HEAD and print how it would be catalogued",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if ref, isPage := classify.PageShortCode(args[0]); isPage {
				fmt.Fprintf(out, "page:       %s (code %s)\n", ref.PageURL, ref.Code)
				return nil
			}
			prober := fetch.NewProber(fetch.NewHTTPClient(timeout), 0)
			obs, err := prober.Observe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, ok := classify.Classify(obs)
			if !ok {
				fmt.Fprintf(out, "not media (content-type %q)\n", obs.Header("Content-Type"))
				return nil
			}
			fmt.Fprintf(out, "kind:       %s\n", res.Kind)
			fmt.Fprintf(out, "provenance: %s\n", res.Provenance)
			fmt.Fprintf(out, "size:       %s\n", media.FormatSize(res.SizeBytes))
			if res.ContentType != "" {
				fmt.Fprintf(out, "type:       %s\n", res.ContentType)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", config.DefaultHTTPTimeout, "request timeout")
	return cmd
}
