package pipeline

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sells-group/chartsync/internal/model"
)

// DefaultPreviewRows is how many records a dry run prints.
const DefaultPreviewRows = 20

// RenderSummary writes a per-stage table and the run counters to w.
func RenderSummary(w io.Writer, rep *model.RunReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("run %s (%s)", rep.RunID, rep.Status)
	t.AppendHeader(table.Row{"Stage", "Status", "Duration", "Error"})
	for _, s := range rep.Stages {
		dur := ""
		if s.Status != model.StageStatusSkipped {
			dur = fmt.Sprintf("%dms", s.Duration)
		}
		errText := s.Error
		if s.Kind != "" {
			errText = s.Kind
		}
		t.AppendRow(table.Row{s.State, s.Status, dur, errText})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()

	c := table.NewWriter()
	c.SetOutputMirror(w)
	c.AppendHeader(table.Row{"Counter", "Value"})
	if !rep.SkipScrape {
		c.AppendRow(table.Row{"scraped", rep.Scraped})
		c.AppendRow(table.Row{"skipped rows", rep.SkippedRows})
	}
	c.AppendRows([]table.Row{
		{"read", rep.Read},
		{"mapped", rep.Mapped},
		{"rejected", rep.Rejected},
		{"excluded", rep.Excluded},
		{"duplicates", rep.Duplicates},
	})
	if !rep.DryRun {
		c.AppendRows([]table.Row{
			{"batches", rep.Batches},
			{"written", rep.Written},
			{"retried", rep.Retried},
		})
	}
	c.SetStyle(table.StyleRounded)
	c.Render()
}

// RenderPreview writes up to limit records as a table. limit <= 0 prints all.
func RenderPreview(w io.Writer, recs []model.SongRecord, limit int) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Title", "Artist", "Difficulty", "Level", "Constant", "Version"})

	shown := recs
	if limit > 0 && len(recs) > limit {
		shown = recs[:limit]
	}
	for _, r := range shown {
		constant := r.ConstantString()
		if constant == "" {
			constant = "NULL"
		}
		t.AppendRow(table.Row{r.Title, r.Artist, r.Difficulty, r.Level, constant, r.Version})
	}
	if len(shown) < len(recs) {
		t.AppendFooter(table.Row{fmt.Sprintf("... %d more", len(recs)-len(shown))})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
