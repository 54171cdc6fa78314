package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/chartsync/internal/pipeline"
)

var scrapeOutput string

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape the Songs by Level page into a CSV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("scrape"); err != nil {
			return err
		}

		out := scrapeOutput
		if out == "" {
			out = cfg.Files.SongsCSV
		}

		rep, err := pipeline.New(cfg, newWikiClient(cfg), nil).Scrape(ctx, out)
		if rep != nil {
			pipeline.RenderSummary(cmd.OutOrStdout(), rep)
		}
		return atStage(rep, err)
	},
}

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeOutput, "output", "o", "", "CSV output path (default files.songs_csv)")
	rootCmd.AddCommand(scrapeCmd)
}
