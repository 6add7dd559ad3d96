package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// ProcessDocumentTask is scheduled each time a resume is uploaded or
	// reanalyzed individually.
	ProcessDocumentTask = "document:process"
	// ReanalyzeBatchTask reprocesses many documents in paced batches.
	ReanalyzeBatchTask = "document:reanalyze-batch"
)

// ProcessPayload names the document the worker should run.
type ProcessPayload struct {
	DocumentID int64 `json:"document_id"`
}

// BatchPayload lists the documents of one reanalysis request.
type BatchPayload struct {
	DocumentIDs []int64 `json:"document_ids"`
}

// NewProcessTask builds a process task. Failures are recorded on the
// document by the pipeline, so asynq does not retry.
func NewProcessTask(id int64) (*asynq.Task, error) {
	data, err := json.Marshal(ProcessPayload{DocumentID: id})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ProcessDocumentTask, data, asynq.MaxRetry(0), asynq.Timeout(10*time.Minute)), nil
}

// NewBatchTask builds a batch reanalysis task.
func NewBatchTask(ids []int64) (*asynq.Task, error) {
	data, err := json.Marshal(BatchPayload{DocumentIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ReanalyzeBatchTask, data, asynq.MaxRetry(0), asynq.Timeout(2*time.Hour)), nil
}

// Enqueuer is the part of *asynq.Client the dispatcher uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher sends pipeline work to the asynq worker.
type Dispatcher struct {
	client Enqueuer
}

// NewDispatcher wraps an asynq client.
func NewDispatcher(client Enqueuer) *Dispatcher {
	return &Dispatcher{client: client}
}

// Dispatch enqueues one document.
func (d *Dispatcher) Dispatch(ctx context.Context, id int64) error {
	task, err := NewProcessTask(id)
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue process task: %w", err)
	}
	return nil
}

// DispatchBatch enqueues a batch reanalysis.
func (d *Dispatcher) DispatchBatch(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	task, err := NewBatchTask(ids)
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue batch task: %w", err)
	}
	return nil
}
