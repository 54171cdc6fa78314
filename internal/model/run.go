package model

import "time"

// State is a step of the sync state machine:
// START → (SCRAPE | SKIP_SCRAPE) → MAP → UPSERT → DONE.
type State string

const (
	StateStart      State = "START"
	StateScrape     State = "SCRAPE"
	StateSkipScrape State = "SKIP_SCRAPE"
	StateMap        State = "MAP"
	StateUpsert     State = "UPSERT"
	StateDone       State = "DONE"
)

// RunStatus is the outcome of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageResult records one visited stage.
type StageResult struct {
	State    State       `json:"state"`
	Status   StageStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Kind     string      `json:"kind,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// PageSnapshot identifies the wiki revision a run scraped.
type PageSnapshot struct {
	Title   string    `json:"title"`
	PageID  int64     `json:"page_id"`
	RevID   int64     `json:"rev_id"`
	Touched time.Time `json:"touched,omitzero"`
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	RunID       string        `json:"run_id"`
	Status      RunStatus     `json:"status"`
	SkipScrape  bool          `json:"skip_scrape"`
	DryRun      bool          `json:"dry_run"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at,omitzero"`
	States      []State       `json:"states"`
	Stages      []StageResult `json:"stages"`
	FailedStage State         `json:"failed_stage,omitempty"`
	Error       string        `json:"error,omitempty"`

	Page       *PageSnapshot `json:"page,omitempty"`
	CSVPath    string        `json:"csv_path"`
	ExportPath string        `json:"export_path,omitempty"`

	Scraped     int   `json:"scraped"`
	SkippedRows int   `json:"skipped_rows"`
	Read        int   `json:"read"`
	Mapped      int   `json:"mapped"`
	Rejected    int   `json:"rejected"`
	Excluded    int   `json:"excluded"`
	Duplicates  int   `json:"duplicates"`
	Batches     int   `json:"batches"`
	Written     int64 `json:"written"`
	Retried     int   `json:"retried"`

	// Records is the final mapped record set, kept for previews.
	Records []SongRecord `json:"-"`
}
