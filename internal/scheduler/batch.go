package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/ResumeVault/internal/model"
)

// BatchReport summarizes a BatchReanalyze run.
type BatchReport struct {
	Total     int
	Batches   int
	Qualified int
	Rejected  int
	Failed    int
	Skipped   int
	Outcomes  []Outcome
	// Err is set when the context ended before every batch ran.
	Err error
}

func (r *BatchReport) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch {
	case o.Skipped:
		r.Skipped++
	case o.Err != nil || o.Status == model.StatusFailed:
		r.Failed++
	case o.Status == model.StatusQualified:
		r.Qualified++
	case o.Status == model.StatusRejected:
		r.Rejected++
	}
}

// BatchReanalyze reprocesses ids in batches of Options.BatchSize, pausing
// between batches. Members of a batch share the worker pool; one failure
// never stops the others.
func (s *Scheduler) BatchReanalyze(ctx context.Context, ids []int64) BatchReport {
	report := BatchReport{Total: len(ids)}
	for start := 0; start < len(ids); start += s.opts.BatchSize {
		if start > 0 && s.opts.BatchPause > 0 {
			if err := pause(ctx, s.opts.BatchPause); err != nil {
				report.Err = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			report.Err = err
			break
		}
		end := min(start+s.opts.BatchSize, len(ids))
		batch := ids[start:end]
		outcomes := make([]Outcome, len(batch))

		var g errgroup.Group
		for i, id := range batch {
			g.Go(func() error {
				outcomes[i] = s.Process(ctx, id)
				return nil
			})
		}
		_ = g.Wait()

		report.Batches++
		for _, o := range outcomes {
			report.add(o)
		}
		s.logger.Info("reanalysis batch finished",
			zap.Int("batch", report.Batches),
			zap.Int("size", len(batch)),
			zap.Int("done", end),
			zap.Int("total", len(ids)))
	}
	s.logger.Info("reanalysis finished",
		zap.Int("total", report.Total),
		zap.Int("qualified", report.Qualified),
		zap.Int("rejected", report.Rejected),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))
	return report
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
