// Package pipeline sequences scrape, map and upsert into one sync run.
package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/chartsync/internal/config"
	"github.com/sells-group/chartsync/internal/extract"
	"github.com/sells-group/chartsync/internal/mapper"
	"github.com/sells-group/chartsync/internal/model"
	"github.com/sells-group/chartsync/internal/resilience"
	"github.com/sells-group/chartsync/internal/songcsv"
	"github.com/sells-group/chartsync/internal/store"
	"github.com/sells-group/chartsync/internal/syncerr"
	"github.com/sells-group/chartsync/internal/wiki"
)

// Options select the path through the state machine for one run.
type Options struct {
	// SkipScrape reuses the CSV from a previous scrape instead of calling the wiki.
	SkipScrape bool
	// CSVPath overrides files.songs_csv.
	CSVPath string
	// ExportPath, if set, receives the final mapped record set as CSV.
	ExportPath string
	// DryRun stops after MAP; nothing is written to the store.
	DryRun bool
}

// Pipeline runs the sync. It holds no per-run state and may be reused.
type Pipeline struct {
	cfg   *config.Config
	wiki  wiki.Client
	store store.Upserter
}

// New creates a Pipeline. st may be nil when every run is a dry run.
func New(cfg *config.Config, wikiClient wiki.Client, st store.Upserter) *Pipeline {
	return &Pipeline{cfg: cfg, wiki: wikiClient, store: st}
}

// Scrape runs only the SCRAPE stage, writing the songs CSV to csvPath.
func (p *Pipeline) Scrape(ctx context.Context, csvPath string) (*model.RunReport, error) {
	r := p.newRun(Options{CSVPath: csvPath})
	r.enter(model.StateStart)
	if err := r.stage(model.StateScrape, func() error { return p.scrape(ctx, r) }); err != nil {
		return r.fail(err)
	}
	return r.done(), nil
}

// Run executes START → (SCRAPE | SKIP_SCRAPE) → MAP → UPSERT → DONE. Any
// failing stage aborts the run; the returned report names it.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*model.RunReport, error) {
	r := p.newRun(opts)
	r.enter(model.StateStart)

	if opts.SkipScrape {
		// Checked before anything else so a missing file costs no network calls.
		err := r.stage(model.StateSkipScrape, func() error {
			if _, err := os.Stat(r.report.CSVPath); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return syncerr.E(syncerr.MissingInput, eris.Wrapf(err,
						"pipeline: --skip-scrape needs %s from a previous scrape", r.report.CSVPath))
				}
				return syncerr.E(syncerr.IO, eris.Wrapf(err, "pipeline: stat %s", r.report.CSVPath))
			}
			r.log.Info("pipeline: reusing existing csv", zap.String("path", r.report.CSVPath))
			return nil
		})
		if err != nil {
			return r.fail(err)
		}
	} else {
		if err := r.stage(model.StateScrape, func() error { return p.scrape(ctx, r) }); err != nil {
			return r.fail(err)
		}
	}

	if err := r.stage(model.StateMap, func() error { return p.mapRows(r) }); err != nil {
		return r.fail(err)
	}

	if opts.DryRun {
		r.skip(model.StateUpsert)
	} else if err := r.stage(model.StateUpsert, func() error { return p.upsert(ctx, r) }); err != nil {
		return r.fail(err)
	}

	return r.done(), nil
}

func (p *Pipeline) scrape(ctx context.Context, r *run) error {
	page := p.cfg.Wiki.Page

	infos, err := p.wiki.PageInfo(ctx, page)
	if err != nil {
		return err
	}
	if len(infos) == 0 || infos[0].Missing {
		return syncerr.Errorf(syncerr.Fetch, "pipeline: wiki page %q does not exist", page)
	}
	info := infos[0]
	r.log.Info("pipeline: page found",
		zap.String("title", info.Title),
		zap.Int64("rev_id", info.LastRevID),
		zap.Time("touched", info.Touched),
		zap.String("redirect_from", info.RedirectFrom),
	)

	parsed, err := p.wiki.Parse(ctx, page)
	if err != nil {
		return err
	}
	r.report.Page = &model.PageSnapshot{
		Title:   parsed.Title,
		PageID:  parsed.PageID,
		RevID:   parsed.RevID,
		Touched: info.Touched,
	}

	tbl, err := extract.Parse(parsed.HTML)
	if err != nil {
		return err
	}
	rows := slices.Collect(tbl.Rows())
	r.report.SkippedRows = tbl.Skipped()
	if tbl.Skipped() > 0 {
		r.log.Warn("pipeline: skipped incomplete table rows", zap.Int("skipped", tbl.Skipped()))
	}
	if len(rows) == 0 {
		// Keep the previous CSV rather than replacing it with an empty one.
		return syncerr.Errorf(syncerr.Extraction,
			"pipeline: %d table(s) matched %q but no song rows were extracted", tbl.Tables(), tbl.Selector())
	}

	n, err := songcsv.WriteAll(r.report.CSVPath, rows)
	if err != nil {
		return err
	}
	r.report.Scraped = n
	r.log.Info("pipeline: csv written",
		zap.String("path", r.report.CSVPath),
		zap.Int("rows", n),
		zap.Int("tables", tbl.Tables()),
	)
	return nil
}

func (p *Pipeline) mapRows(r *run) error {
	rows, err := songcsv.Read(r.report.CSVPath)
	if err != nil {
		return err
	}
	r.report.Read = len(rows)

	opts := mapper.DefaultOptions()
	opts.MaxConstant = p.cfg.Mapping.MaxConstant
	res := mapper.MapAll(rows, opts)

	r.report.Mapped = len(res.Records)
	r.report.Rejected = len(res.Rejections)
	r.report.Excluded = res.Excluded
	r.report.Duplicates = res.Duplicates
	r.report.Records = res.Records

	for _, rej := range res.Rejections {
		r.log.Warn("pipeline: row rejected",
			zap.Int("line", rej.Index+2),
			zap.String("song", rej.Row.Song),
			zap.String("difficulty", rej.Row.Difficulty),
			zap.Error(rej.Err),
		)
	}
	if len(res.Rejections) > 0 && p.cfg.Mapping.Strict {
		first := res.Rejections[0]
		return syncerr.E(syncerr.Mapping, eris.Wrapf(first.Err,
			"pipeline: %d row(s) rejected (mapping.strict); first at line %d", len(res.Rejections), first.Index+2))
	}

	r.log.Info("pipeline: rows mapped",
		zap.Int("read", len(rows)),
		zap.Int("records", len(res.Records)),
		zap.Int("rejected", len(res.Rejections)),
		zap.Int("excluded", res.Excluded),
		zap.Int("duplicates", res.Duplicates),
	)

	if r.report.ExportPath != "" {
		out := make([]model.SongRow, len(res.Records))
		for i, rec := range res.Records {
			out[i] = mapper.ToRow(rec)
		}
		if _, err := songcsv.WriteAll(r.report.ExportPath, out); err != nil {
			return err
		}
		r.log.Info("pipeline: export written", zap.String("path", r.report.ExportPath), zap.Int("rows", len(out)))
	}
	return nil
}

func (p *Pipeline) upsert(ctx context.Context, r *run) error {
	if p.store == nil {
		return syncerr.New(syncerr.Config, "pipeline: no store configured")
	}
	u := p.cfg.Upsert
	res, err := store.Sync(ctx, p.store, r.report.Records, store.SyncOptions{
		BatchSize: u.BatchSize,
		Retry: resilience.FromRetryConfig(u.Retry.MaxAttempts, u.Retry.InitialBackoffMs, u.Retry.MaxBackoffMs,
			u.Retry.Multiplier, u.Retry.JitterFraction),
		BatchTimeout: time.Duration(u.TimeoutSecs) * time.Second,
	})
	if res != nil {
		r.report.Batches = res.Batches
		r.report.Written = res.Written
		r.report.Retried = res.Retried
	}
	return err
}
