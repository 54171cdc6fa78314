package pipeline

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/chartsync/internal/model"
	"github.com/sells-group/chartsync/internal/syncerr"
)

// run carries the state of one pass through the state machine.
type run struct {
	report *model.RunReport
	log    *zap.Logger
}

func (p *Pipeline) newRun(opts Options) *run {
	csvPath := opts.CSVPath
	if csvPath == "" {
		csvPath = p.cfg.Files.SongsCSV
	}
	exportPath := opts.ExportPath
	if exportPath == "" {
		exportPath = p.cfg.Files.ExportCSV
	}

	id := uuid.New().String()
	return &run{
		report: &model.RunReport{
			RunID:      id,
			Status:     model.RunStatusRunning,
			SkipScrape: opts.SkipScrape,
			DryRun:     opts.DryRun,
			StartedAt:  time.Now().UTC(),
			CSVPath:    csvPath,
			ExportPath: exportPath,
		},
		log: zap.L().With(zap.String("run_id", id)),
	}
}

func (r *run) enter(s model.State) {
	r.report.States = append(r.report.States, s)
	r.log.Debug("pipeline: state", zap.String("state", string(s)))
}

// stage enters s, runs fn and records its outcome.
func (r *run) stage(s model.State, fn func() error) error {
	r.enter(s)

	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()

	res := model.StageResult{State: s, Duration: duration}
	if err != nil {
		res.Status = model.StageStatusFailed
		res.Kind = syncerr.KindOf(err).String()
		res.Error = err.Error()
		r.log.Error("pipeline: stage failed",
			zap.String("stage", string(s)),
			zap.String("kind", res.Kind),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
	} else {
		res.Status = model.StageStatusComplete
		r.log.Info("pipeline: stage complete",
			zap.String("stage", string(s)),
			zap.Int64("duration_ms", duration),
		)
	}
	r.report.Stages = append(r.report.Stages, res)
	return err
}

func (r *run) skip(s model.State) {
	r.report.Stages = append(r.report.Stages, model.StageResult{State: s, Status: model.StageStatusSkipped})
	r.log.Info("pipeline: stage skipped", zap.String("stage", string(s)))
}

func (r *run) fail(err error) (*model.RunReport, error) {
	r.report.Status = model.RunStatusFailed
	r.report.FinishedAt = time.Now().UTC()
	if n := len(r.report.States); n > 0 {
		r.report.FailedStage = r.report.States[n-1]
	}
	r.report.Error = err.Error()
	return r.report, err
}

func (r *run) done() *model.RunReport {
	r.enter(model.StateDone)
	r.report.Status = model.RunStatusComplete
	r.report.FinishedAt = time.Now().UTC()
	r.log.Info("pipeline: run complete",
		zap.Int("mapped", r.report.Mapped),
		zap.Int64("written", r.report.Written),
		zap.Duration("elapsed", r.report.FinishedAt.Sub(r.report.StartedAt)),
	)
	return r.report
}
