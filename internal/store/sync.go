package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/chartsync/internal/model"
	"github.com/sells-group/chartsync/internal/resilience"
	"github.com/sells-group/chartsync/internal/syncerr"
)

// DefaultBatchSize keeps each request well under PostgREST's body limits.
const DefaultBatchSize = 500

// SyncOptions configures Sync.
type SyncOptions struct {
	// BatchSize is the number of records per Upsert call. Default 500.
	BatchSize int
	// Retry governs each batch. Default is 2 attempts; AuthError is never retried.
	Retry resilience.RetryConfig
	// BatchTimeout bounds each attempt. 0 means no limit beyond ctx.
	BatchTimeout time.Duration
}

// SyncResult summarizes a Sync.
type SyncResult struct {
	Records  int           `json:"records"`
	Batches  int           `json:"batches"`
	Written  int64         `json:"written"`
	Retried  int           `json:"retried"`
	Duration time.Duration `json:"duration_ns"`
}

// Sync authenticates once and upserts records in fixed-size batches, each
// retried independently. The first batch that still fails aborts the sync with
// an UpsertError naming the batch and its key range; batches before it stay
// committed.
func Sync(ctx context.Context, u Upserter, records []model.SongRecord, opts SyncOptions) (*SyncResult, error) {
	start := time.Now()
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	retry := opts.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 2
	}
	if retry.ShouldRetry == nil {
		retry.ShouldRetry = func(err error) bool { return !syncerr.Is(err, syncerr.Auth) }
	}

	res := &SyncResult{Records: len(records)}
	defer func() { res.Duration = time.Since(start) }()

	if err := u.Authenticate(ctx); err != nil {
		if syncerr.Is(err, syncerr.Auth) {
			return res, err
		}
		return res, syncerr.E(syncerr.Upsert, eris.Wrap(err, "store: authenticate"))
	}

	total := (len(records) + size - 1) / size
	for i := 0; i < total; i++ {
		lo := i * size
		hi := min(lo+size, len(records))
		batch := records[lo:hi]
		keyRange := fmt.Sprintf("%s..%s", batch[0].Key(), batch[len(batch)-1].Key())

		attempts := 0
		r := retry
		r.OnRetry = func(attempt int, err error) {
			res.Retried++
			zap.L().Warn("store: retrying batch",
				zap.Int("batch", i+1),
				zap.Int("attempt", attempt),
				zap.String("keys", keyRange),
				zap.Error(err),
			)
		}

		n, err := resilience.DoVal(ctx, r, func(ctx context.Context) (int64, error) {
			attempts++
			if opts.BatchTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.BatchTimeout)
				defer cancel()
			}
			return u.Upsert(ctx, batch)
		})
		if err != nil {
			kind := syncerr.Upsert
			if syncerr.Is(err, syncerr.Auth) {
				kind = syncerr.Auth
			}
			return res, syncerr.E(kind, eris.Wrapf(err,
				"store: batch %d/%d (%d records, keys %s) failed after %d attempt(s)",
				i+1, total, len(batch), keyRange, attempts))
		}

		res.Batches++
		res.Written += n
		zap.L().Info("store: batch upserted",
			zap.Int("batch", i+1),
			zap.Int("of", total),
			zap.Int("size", len(batch)),
			zap.Int64("written", n),
		)
	}
	return res, nil
}
