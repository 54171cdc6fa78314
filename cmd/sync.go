package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/chartsync/internal/pipeline"
	"github.com/sells-group/chartsync/internal/store"
)

var (
	syncSkipScrape  bool
	syncCSV         string
	syncExport      string
	syncDryRun      bool
	syncPreviewRows int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Scrape, map and upsert charts into the songs table",
	Long: "Runs the full pipeline: scrape the wiki into a CSV (unless --skip-scrape), map the rows\n" +
		"to song records and upsert them in batches. --dry-run stops before the upsert and\n" +
		"prints a preview of the records instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mode := "sync"
		if syncDryRun {
			mode = "scrape"
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		var st store.Upserter
		if !syncDryRun {
			s, err := store.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck
			st = s
		}

		p := pipeline.New(cfg, newWikiClient(cfg), st)
		rep, err := p.Run(ctx, pipeline.Options{
			SkipScrape: syncSkipScrape,
			CSVPath:    syncCSV,
			ExportPath: syncExport,
			DryRun:     syncDryRun,
		})
		if rep != nil {
			if syncDryRun && err == nil {
				pipeline.RenderPreview(cmd.OutOrStdout(), rep.Records, syncPreviewRows)
			}
			pipeline.RenderSummary(cmd.OutOrStdout(), rep)
		}
		return atStage(rep, err)
	},
}

func init() {
	f := syncCmd.Flags()
	f.BoolVar(&syncSkipScrape, "skip-scrape", false, "reuse the CSV from a previous scrape")
	f.StringVar(&syncCSV, "csv", "", "songs CSV path (default files.songs_csv)")
	f.StringVar(&syncExport, "export", "", "also write the mapped record set to this CSV")
	f.BoolVar(&syncDryRun, "dry-run", false, "map and preview without writing to the store")
	f.IntVar(&syncPreviewRows, "preview", pipeline.DefaultPreviewRows, "records shown by --dry-run (0 for all)")
	rootCmd.AddCommand(syncCmd)
}
