package scheduler

import "context"

// InlineDispatcher hands uploads and reanalysis requests straight to an
// in-process Scheduler.
type InlineDispatcher struct {
	Scheduler *Scheduler
}

// Dispatch submits one document.
func (d InlineDispatcher) Dispatch(ctx context.Context, id int64) error {
	d.Scheduler.Submit(ctx, id)
	return nil
}

// DispatchBatch submits a batch reanalysis.
func (d InlineDispatcher) DispatchBatch(ctx context.Context, ids []int64) error {
	d.Scheduler.SubmitBatch(ctx, ids)
	return nil
}
