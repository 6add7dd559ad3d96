// Package scheduler runs the per-document processing pipeline on a bounded
// pool: download, extract, evaluate with the language model, normalize and
// persist.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dharsanguruparan/ResumeVault/internal/extract"
	"github.com/dharsanguruparan/ResumeVault/internal/llm"
	"github.com/dharsanguruparan/ResumeVault/internal/logger"
	"github.com/dharsanguruparan/ResumeVault/internal/model"
	"github.com/dharsanguruparan/ResumeVault/internal/normalize"
	"github.com/dharsanguruparan/ResumeVault/internal/objectstore"
	"github.com/dharsanguruparan/ResumeVault/internal/repository"
)

// ErrNoText is the failure recorded for documents without a usable text layer.
var ErrNoText = errors.New("no text layer")

// failureWriteTimeout bounds the write of a failure record.
const failureWriteTimeout = 5 * time.Second

// Store is the subset of repository.Store the pipeline writes through.
type Store interface {
	GetDocument(ctx context.Context, id int64) (*model.Document, error)
	MarkProcessing(ctx context.Context, id int64) error
	MarkStatus(ctx context.Context, id int64, status model.Status) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	SaveResult(ctx context.Context, id int64, profile model.Profile, parseResult json.RawMessage, status model.Status) error
	SetPortrait(ctx context.Context, id int64, url string) error
	UpsertEvaluation(ctx context.Context, eval *model.Evaluation) error
	ActiveRubric(ctx context.Context) (*model.Rubric, error)
}

// Extractor reads text and an optional portrait out of document bytes.
type Extractor interface {
	ExtractContext(ctx context.Context, data []byte) (extract.Result, error)
}

// Deps are the collaborators of a Scheduler.
type Deps struct {
	Store      Store
	Objects    objectstore.Store
	Extractor  Extractor
	LLM        llm.Completer
	Normalizer *normalize.Normalizer
	Logger     *zap.Logger
}

// Options tune the pool and the pipeline.
type Options struct {
	Workers        int           `mapstructure:"workers"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchPause     time.Duration `mapstructure:"batch_pause"`
	MinTextLength  int           `mapstructure:"min_text_length"`
	ReasonLimit    int           `mapstructure:"reason_limit"`
	ExtractTimeout time.Duration `mapstructure:"extract_timeout"`
	// Bucket is used to recover object keys from legacy file URLs.
	Bucket string `mapstructure:"-"`
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Workers:        3,
		BatchSize:      10,
		BatchPause:     2 * time.Second,
		MinTextLength:  10,
		ReasonLimit:    500,
		ExtractTimeout: 30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.BatchPause < 0 {
		o.BatchPause = 0
	}
	if o.MinTextLength <= 0 {
		o.MinTextLength = d.MinTextLength
	}
	if o.ReasonLimit <= 0 {
		o.ReasonLimit = d.ReasonLimit
	}
	if o.ExtractTimeout <= 0 {
		o.ExtractTimeout = d.ExtractTimeout
	}
	return o
}

// Outcome is the result of one pipeline run.
type Outcome struct {
	ID     int64
	Status model.Status
	// Skipped is set when the document was absent, soft-deleted or already
	// being processed.
	Skipped bool
	Err     error
}

// Scheduler bounds concurrent pipeline runs to Options.Workers.
type Scheduler struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	sem    *semaphore.Weighted
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[int64]struct{}

	portraitKey func(ext string) string
}

// New constructs a Scheduler. A nil Normalizer uses the default tier tables.
func New(deps Deps, opts Options) *Scheduler {
	opts = opts.withDefaults()
	if deps.Normalizer == nil {
		deps.Normalizer = normalize.New(nil, deps.Logger)
	}
	return &Scheduler{
		deps:     deps,
		opts:     opts,
		logger:   logger.OrNop(deps.Logger),
		sem:      semaphore.NewWeighted(int64(opts.Workers)),
		inflight: make(map[int64]struct{}),
		portraitKey: func(ext string) string {
			return fmt.Sprintf("avatars/%s.%s", uuid.NewString(), ext)
		},
	}
}

// Options returns the effective options.
func (s *Scheduler) Options() Options { return s.opts }

// Submit runs the pipeline for id in the background. The run outlives the
// caller's context cancellation.
func (s *Scheduler) Submit(ctx context.Context, id int64) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Process(ctx, id)
	}()
}

// SubmitBatch runs BatchReanalyze for ids in the background.
func (s *Scheduler) SubmitBatch(ctx context.Context, ids []int64) {
	ctx = context.WithoutCancel(ctx)
	ids = append([]int64(nil), ids...)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.BatchReanalyze(ctx, ids)
	}()
}

// Wait blocks until every submitted run has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) claim(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id int64) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// Process runs the pipeline for id synchronously once a pool slot is free.
func (s *Scheduler) Process(ctx context.Context, id int64) Outcome {
	if !s.claim(id) {
		s.logger.Info("document already in flight", zap.Int64(logger.FieldDocumentID, id))
		return Outcome{ID: id, Skipped: true}
	}
	defer s.release(id)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Outcome{ID: id, Err: fmt.Errorf("acquire worker: %w", err)}
	}
	defer s.sem.Release(1)

	return s.run(ctx, id)
}

func (s *Scheduler) run(ctx context.Context, id int64) (out Outcome) {
	log := s.logger.With(zap.Int64(logger.FieldDocumentID, id))
	out.ID = id

	// The failure record is written even when ctx is already done, otherwise
	// a cancelled run would leave the document in Processing.
	failure := func(err error) Outcome {
		reason := logger.TruncateForLog(err.Error(), s.opts.ReasonLimit)
		log.Warn("processing failed", zap.String("reason", reason))
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
		defer cancel()
		if markErr := s.deps.Store.MarkFailed(markCtx, id, reason); markErr != nil {
			log.Error("mark failed", zap.Error(markErr))
		}
		return Outcome{ID: id, Status: model.StatusFailed, Err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			out = failure(fmt.Errorf("panic: %v", r))
		}
	}()

	doc, err := s.deps.Store.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Outcome{ID: id, Skipped: true}
		}
		log.Error("load document", zap.Error(err))
		return Outcome{ID: id, Err: fmt.Errorf("load document: %w", err)}
	}
	if doc.IsDeleted {
		return Outcome{ID: id, Skipped: true}
	}

	if model.IsManual(doc.FileKey) || model.IsManual(doc.FileURL) {
		if doc.Status != model.StatusQualified {
			if err := s.deps.Store.MarkStatus(ctx, id, model.StatusQualified); err != nil {
				return Outcome{ID: id, Status: doc.Status, Err: fmt.Errorf("mark manual qualified: %w", err)}
			}
		}
		return Outcome{ID: id, Status: model.StatusQualified}
	}

	if err := s.deps.Store.MarkProcessing(ctx, id); err != nil {
		return failure(err)
	}
	rubric, err := s.deps.Store.ActiveRubric(ctx)
	if err != nil {
		return failure(err)
	}

	key := doc.FileKey
	if key == "" {
		key = objectstore.KeyFromURL(doc.FileURL, s.opts.Bucket)
	}
	data, err := s.deps.Objects.Get(ctx, key)
	if err != nil {
		return failure(fmt.Errorf("download document: %w", err))
	}

	extractCtx, cancel := context.WithTimeout(ctx, s.opts.ExtractTimeout)
	extracted, err := s.deps.Extractor.ExtractContext(extractCtx, data)
	cancel()
	if err != nil {
		return failure(fmt.Errorf("extract document: %w", err))
	}
	text := strings.TrimSpace(extracted.Text)
	if utf8.RuneCountInString(text) < s.opts.MinTextLength {
		return failure(ErrNoText)
	}

	system, user := llm.BuildPrompts(rubric.Content, text)
	raw, err := s.deps.LLM.Complete(ctx, system, user)
	if err != nil {
		return failure(fmt.Errorf("llm: %w", err))
	}
	result := s.deps.Normalizer.Normalize(raw)

	status := model.StatusRejected
	if result.Qualified {
		status = model.StatusQualified
	}
	if err := s.deps.Store.SaveResult(ctx, id, result.Profile, result.JSON(), status); err != nil {
		return failure(err)
	}

	if p := extracted.Portrait; p != nil {
		url, err := s.deps.Objects.Put(ctx, s.portraitKey(p.Ext), p.Data, p.ContentType())
		if err != nil {
			return failure(fmt.Errorf("upload portrait: %w", err))
		}
		if err := s.deps.Store.SetPortrait(ctx, id, url); err != nil {
			return failure(err)
		}
	}

	eval := &model.Evaluation{
		DocumentID: id,
		RubricID:   rubric.ID,
		Score:      result.Score,
		Qualified:  result.Qualified,
		Reason:     result.Reason,
	}
	if err := s.deps.Store.UpsertEvaluation(ctx, eval); err != nil {
		return failure(err)
	}

	log.Info("document processed", zap.Stringer(logger.FieldStatus, status), zap.Bool("portrait", extracted.Portrait != nil))
	return Outcome{ID: id, Status: status}
}
