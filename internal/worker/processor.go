package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/ResumeVault/internal/logger"
	"github.com/dharsanguruparan/ResumeVault/internal/queue"
	"github.com/dharsanguruparan/ResumeVault/internal/scheduler"
)

// Pipeline is the scheduler API the worker drives.
type Pipeline interface {
	Process(ctx context.Context, id int64) scheduler.Outcome
	BatchReanalyze(ctx context.Context, ids []int64) scheduler.BatchReport
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	pipeline Pipeline
	logger   *zap.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(pipeline Pipeline, log *zap.Logger) *Processor {
	return &Processor{pipeline: pipeline, logger: logger.OrNop(log)}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ProcessDocumentTask, p.handleProcess)
	mux.HandleFunc(queue.ReanalyzeBatchTask, p.handleBatch)
	return mux
}

// handleProcess runs one document. Pipeline failures are already recorded on
// the document, so they are logged rather than returned to asynq.
func (p *Processor) handleProcess(ctx context.Context, task *asynq.Task) error {
	var payload queue.ProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	out := p.pipeline.Process(ctx, payload.DocumentID)
	fields := []zap.Field{zap.Int64(logger.FieldDocumentID, out.ID), zap.Stringer(logger.FieldStatus, out.Status)}
	switch {
	case out.Skipped:
		p.logger.Info("document skipped", fields...)
	case out.Err != nil:
		p.logger.Warn("document failed", append(fields, zap.Error(out.Err))...)
	default:
		p.logger.Info("document processed", fields...)
	}
	return nil
}

func (p *Processor) handleBatch(ctx context.Context, task *asynq.Task) error {
	var payload queue.BatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	report := p.pipeline.BatchReanalyze(ctx, payload.DocumentIDs)
	if report.Err != nil {
		return fmt.Errorf("batch reanalysis interrupted after %d batches: %w", report.Batches, report.Err)
	}
	return nil
}
