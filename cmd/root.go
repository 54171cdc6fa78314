package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/chartsync/internal/config"
	"github.com/sells-group/chartsync/internal/model"
	"github.com/sells-group/chartsync/internal/syncerr"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "chartsync",
	Short: "Arcaea chart constant sync",
	Long:  "Scrapes the Arcaea Fandom Songs by Level page into a CSV and upserts the charts into the songs table.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return syncerr.E(syncerr.Config, eris.Wrap(err, "load config"))
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return syncerr.E(syncerr.Config, eris.Wrap(err, "init logger"))
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// stageError marks the pipeline state an error came from.
type stageError struct {
	stage model.State
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func atStage(rep *model.RunReport, err error) error {
	if rep == nil || rep.FailedStage == "" {
		return err
	}
	return &stageError{stage: rep.FailedStage, err: err}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fields := []zap.Field{zap.String("kind", syncerr.KindOf(err).String())}
		var se *stageError
		if errors.As(err, &se) {
			fields = append(fields, zap.String("stage", string(se.stage)))
		}
		fields = append(fields, zap.Error(err))
		if cfg == nil {
			// No logger yet; config loading itself failed.
			fmt.Fprintf(os.Stderr, "chartsync: %s: %v\n", syncerr.KindOf(err), err)
		}
		zap.L().Error("chartsync: failed", fields...)
		_ = zap.L().Sync()
		os.Exit(1)
	}
}
