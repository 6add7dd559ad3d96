package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dharsanguruparan/ResumeVault/internal/extract"
	"github.com/dharsanguruparan/ResumeVault/internal/model"
	"github.com/dharsanguruparan/ResumeVault/internal/objectstore"
	"github.com/dharsanguruparan/ResumeVault/internal/repository"
)

const resumeText = "Zhang San, Tsinghua University, Go and PostgreSQL engineer."

const qualifiedReply = "```json\n" + `{"is_qualified": true, "name": "张三", "university": "清华大学", "skills": ["Go", "PostgreSQL"], "score": "88", "reason": "strong backend"}` + "\n```"

type fakeExtractor struct {
	calls    atomic.Int32
	portrait *extract.Portrait
	panicOn  string
}

func (f *fakeExtractor) ExtractContext(ctx context.Context, data []byte) (extract.Result, error) {
	f.calls.Add(1)
	switch string(data) {
	case "corrupt":
		return extract.Result{}, errors.New("malformed pdf")
	case "scanned":
		return extract.Result{Text: "  \n "}, nil
	case f.panicOn:
		panic("parser blew up")
	}
	return extract.Result{Text: string(data), Portrait: f.portrait}, nil
}

type fakeLLM struct {
	calls  atomic.Int32
	reply  string
	err    error
	gate   chan struct{}
	active atomic.Int32
	peak   atomic.Int32
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.reply, f.err
}

type fixture struct {
	store     *repository.MemoryStore
	objects   *objectstore.Memory
	extractor *fakeExtractor
	llm       *fakeLLM
	sched     *Scheduler
	rubric    *model.Rubric
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		store:     repository.NewMemoryStore(),
		objects:   objectstore.NewMemory(""),
		extractor: &fakeExtractor{},
		llm:       &fakeLLM{reply: qualifiedReply},
	}
	f.rubric = &model.Rubric{Name: "backend", Content: "Go, SQL"}
	if err := f.store.CreateRubric(context.Background(), f.rubric); err != nil {
		t.Fatalf("create rubric: %v", err)
	}
	if err := f.store.ActivateRubric(context.Background(), f.rubric.ID); err != nil {
		t.Fatalf("activate rubric: %v", err)
	}
	f.sched = New(Deps{
		Store:     f.store,
		Objects:   f.objects,
		Extractor: f.extractor,
		LLM:       f.llm,
	}, opts)
	return f
}

func (f *fixture) upload(t *testing.T, body string) int64 {
	t.Helper()
	ctx := context.Background()
	key := "uploads/" + body + ".pdf"
	url, err := f.objects.Put(ctx, key, []byte(body), "application/pdf")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	doc := &model.Document{FileKey: key, FileURL: url, FileName: body + ".pdf"}
	if err := f.store.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create: %v", err)
	}
	return doc.ID
}

func (f *fixture) get(t *testing.T, id int64) *model.Document {
	t.Helper()
	doc, err := f.store.GetDocument(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return doc
}

func TestProcessHappyPath(t *testing.T) {
	f := newFixture(t, Options{})
	f.extractor.portrait = &extract.Portrait{Data: []byte{0xff, 0xd8}, Ext: "jpg"}
	id := f.upload(t, resumeText)

	out := f.sched.Process(context.Background(), id)
	if out.Err != nil || out.Status != model.StatusQualified {
		t.Fatalf("unexpected outcome %+v", out)
	}
	doc := f.get(t, id)
	if doc.Status != model.StatusQualified || doc.Name != "张三" || doc.Tier != "985/211" {
		t.Fatalf("unexpected document %+v", doc)
	}
	if len(doc.Skills) != 2 || doc.Skills[0] != "go" || doc.Skills[1] != "postgresql" {
		t.Fatalf("unexpected skills %v", doc.Skills)
	}
	if !strings.Contains(doc.PortraitURL, "/avatars/") || !strings.HasSuffix(doc.PortraitURL, ".jpg") {
		t.Fatalf("unexpected portrait url %q", doc.PortraitURL)
	}
	if ct := f.objects.ContentType(objectstore.KeyFromURL(doc.PortraitURL, f.objects.Bucket())); ct != "image/jpeg" {
		t.Fatalf("unexpected portrait content type %q", ct)
	}
	var parsed map[string]any
	if err := json.Unmarshal(doc.ParseResult, &parsed); err != nil {
		t.Fatalf("parse result is not json: %v", err)
	}

	evals, _ := f.store.ListEvaluations(context.Background(), id)
	if len(evals) != 1 || evals[0].RubricID != f.rubric.ID || evals[0].Score == nil || *evals[0].Score != 88 || !evals[0].Qualified {
		t.Fatalf("unexpected evaluations %+v", evals)
	}
}

func TestProcessRejected(t *testing.T) {
	f := newFixture(t, Options{})
	f.llm.reply = `{"is_qualified": "否", "name": "李四", "score": 120}`
	id := f.upload(t, resumeText)

	if out := f.sched.Process(context.Background(), id); out.Status != model.StatusRejected {
		t.Fatalf("expected rejected, got %+v", out)
	}
	evals, _ := f.store.ListEvaluations(context.Background(), id)
	if len(evals) != 1 || *evals[0].Score != 100 {
		t.Fatalf("expected clamped score, got %+v", evals)
	}
}

func TestProcessManualRecordSkipsPipeline(t *testing.T) {
	f := newFixture(t, Options{})
	doc := &model.Document{FileKey: model.ManualScheme + "entry", Profile: model.Profile{Name: "王五"}}
	if err := f.store.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create: %v", err)
	}

	out := f.sched.Process(context.Background(), doc.ID)
	if out.Status != model.StatusQualified || out.Err != nil {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if f.get(t, doc.ID).Status != model.StatusQualified {
		t.Fatalf("expected manual record qualified")
	}
	if f.extractor.calls.Load() != 0 || f.llm.calls.Load() != 0 {
		t.Fatalf("manual record must not reach extractor or llm")
	}
}

func TestProcessShortTextFails(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.upload(t, "scanned")

	out := f.sched.Process(context.Background(), id)
	if out.Status != model.StatusFailed || !errors.Is(out.Err, ErrNoText) {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if doc := f.get(t, id); doc.FailureReason != "no text layer" {
		t.Fatalf("unexpected reason %q", doc.FailureReason)
	}
	if f.llm.calls.Load() != 0 {
		t.Fatalf("llm must not be called without text")
	}
}

func TestProcessWithoutActiveRubricFails(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.store.DeleteRubric(context.Background(), f.rubric.ID); err != nil {
		t.Fatalf("delete rubric: %v", err)
	}
	id := f.upload(t, resumeText)

	out := f.sched.Process(context.Background(), id)
	if !errors.Is(out.Err, repository.ErrNoActiveRubric) {
		t.Fatalf("expected ErrNoActiveRubric, got %+v", out)
	}
	if doc := f.get(t, id); doc.Status != model.StatusFailed || doc.FailureReason != "no active rubric" {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestProcessLLMFailureKeepsEarlierFields(t *testing.T) {
	f := newFixture(t, Options{ReasonLimit: 20})
	id := f.upload(t, resumeText)
	if out := f.sched.Process(context.Background(), id); out.Err != nil {
		t.Fatalf("first run: %+v", out)
	}

	f.llm.err = errors.New(strings.Repeat("x", 100))
	out := f.sched.Process(context.Background(), id)
	if out.Status != model.StatusFailed {
		t.Fatalf("expected failure, got %+v", out)
	}
	doc := f.get(t, id)
	if doc.Name != "张三" || len(doc.Skills) != 2 {
		t.Fatalf("earlier fields should be kept: %+v", doc)
	}
	if got := []rune(doc.FailureReason); len(got) != 23 {
		t.Fatalf("expected reason truncated to 20 runes plus ellipsis, got %q", doc.FailureReason)
	}
}

func TestProcessRecoversFromPanic(t *testing.T) {
	f := newFixture(t, Options{})
	f.extractor.panicOn = "explode"
	id := f.upload(t, "explode")

	out := f.sched.Process(context.Background(), id)
	if out.Status != model.StatusFailed || out.Err == nil || !strings.Contains(out.Err.Error(), "parser blew up") {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if f.get(t, id).Status != model.StatusFailed {
		t.Fatalf("expected failed status after panic")
	}
}

func TestProcessSkipsMissingAndDeleted(t *testing.T) {
	f := newFixture(t, Options{})
	if out := f.sched.Process(context.Background(), 4242); !out.Skipped {
		t.Fatalf("expected skip for unknown id, got %+v", out)
	}
	id := f.upload(t, resumeText)
	if _, err := f.store.SoftDelete(context.Background(), model.DeleteCriteria{Name: ""}); err == nil {
		t.Fatalf("expected empty criteria rejected")
	}
	doc := f.get(t, id)
	doc.Name = "gone"
	if err := f.store.SaveResult(context.Background(), id, doc.Profile, nil, model.StatusPending); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := f.store.SoftDelete(context.Background(), model.DeleteCriteria{Name: "gone"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if out := f.sched.Process(context.Background(), id); !out.Skipped {
		t.Fatalf("expected skip for deleted document, got %+v", out)
	}
	if f.extractor.calls.Load() != 0 {
		t.Fatalf("skipped documents must not be extracted")
	}
}

func TestReanalyzeKeepsSingleEvaluation(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.upload(t, resumeText)
	for i := 0; i < 3; i++ {
		if out := f.sched.Process(context.Background(), id); out.Err != nil {
			t.Fatalf("run %d: %+v", i, out)
		}
	}
	evals, _ := f.store.ListEvaluations(context.Background(), id)
	if len(evals) != 1 {
		t.Fatalf("expected one evaluation per rubric, got %d", len(evals))
	}
}

func TestBatchReanalyzeIsolatesFailures(t *testing.T) {
	f := newFixture(t, Options{BatchPause: time.Millisecond})
	var ids []int64
	for i := 0; i < 25; i++ {
		body := resumeText + " #" + string(rune('a'+i))
		if i == 7 {
			body = "corrupt"
		}
		ids = append(ids, f.upload(t, body))
	}

	report := f.sched.BatchReanalyze(context.Background(), ids)
	if report.Batches != 3 || report.Total != 25 {
		t.Fatalf("unexpected batching %+v", report)
	}
	if report.Qualified != 24 || report.Failed != 1 || len(report.Outcomes) != 25 {
		t.Fatalf("unexpected counts q=%d f=%d n=%d", report.Qualified, report.Failed, len(report.Outcomes))
	}
	if f.get(t, ids[7]).Status != model.StatusFailed {
		t.Fatalf("corrupt document should be failed")
	}
	if f.get(t, ids[24]).Status != model.StatusQualified {
		t.Fatalf("documents after the corrupt one should still run")
	}
}

func TestBatchReanalyzeStopsOnCancel(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 1, BatchPause: time.Hour})
	ids := []int64{f.upload(t, resumeText), f.upload(t, resumeText+" 2")}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	report := f.sched.BatchReanalyze(ctx, ids)
	if !errors.Is(report.Err, context.Canceled) || report.Batches != 1 {
		t.Fatalf("expected cancellation after first batch, got %+v", report)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitRespectsPoolBound(t *testing.T) {
	f := newFixture(t, Options{Workers: 3})
	f.llm.gate = make(chan struct{})
	for i := 0; i < 8; i++ {
		f.sched.Submit(context.Background(), f.upload(t, resumeText+string(rune('A'+i))))
	}

	waitFor(t, func() bool { return f.llm.active.Load() == 3 })
	time.Sleep(20 * time.Millisecond)
	if f.llm.active.Load() != 3 {
		t.Fatalf("expected exactly 3 concurrent runs, got %d", f.llm.active.Load())
	}
	close(f.llm.gate)
	f.sched.Wait()

	if peak := f.llm.peak.Load(); peak != 3 {
		t.Fatalf("expected peak concurrency 3, got %d", peak)
	}
	if calls := f.llm.calls.Load(); calls != 8 {
		t.Fatalf("expected 8 llm calls, got %d", calls)
	}
}

func TestProcessSkipsDocumentAlreadyInFlight(t *testing.T) {
	f := newFixture(t, Options{})
	f.llm.gate = make(chan struct{})
	id := f.upload(t, resumeText)

	var wg sync.WaitGroup
	wg.Add(1)
	var first Outcome
	go func() {
		defer wg.Done()
		first = f.sched.Process(context.Background(), id)
	}()
	waitFor(t, func() bool { return f.llm.active.Load() == 1 })

	second := f.sched.Process(context.Background(), id)
	if !second.Skipped {
		t.Fatalf("expected concurrent run to be skipped, got %+v", second)
	}
	close(f.llm.gate)
	wg.Wait()
	if first.Status != model.StatusQualified {
		t.Fatalf("unexpected first outcome %+v", first)
	}
}

func TestSubmitDetachesFromCallerContext(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.upload(t, resumeText)
	ctx, cancel := context.WithCancel(context.Background())
	f.sched.Submit(ctx, id)
	cancel()
	f.sched.Wait()
	if f.get(t, id).Status != model.StatusQualified {
		t.Fatalf("submitted run should finish after caller cancels")
	}
}

// ctxStore refuses writes once their context is done, as a database driver
// would.
type ctxStore struct {
	*repository.MemoryStore
	panicOnGet bool
}

func (s *ctxStore) GetDocument(ctx context.Context, id int64) (*model.Document, error) {
	if s.panicOnGet {
		panic("row scan blew up")
	}
	return s.MemoryStore.GetDocument(ctx, id)
}

func (s *ctxStore) MarkFailed(ctx context.Context, id int64, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.MarkFailed(ctx, id, reason)
}

// blockingLLM waits for the caller's context to end.
type blockingLLM struct{}

func (blockingLLM) Complete(ctx context.Context, system, user string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestProcessCancelledMidRunRecordsFailure(t *testing.T) {
	f := newFixture(t, Options{})
	store := &ctxStore{MemoryStore: f.store}
	sched := New(Deps{Store: store, Objects: f.objects, Extractor: f.extractor, LLM: blockingLLM{}}, Options{})
	id := f.upload(t, resumeText)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	out := sched.Process(ctx, id)
	if out.Status != model.StatusFailed || !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Fatalf("unexpected outcome %+v", out)
	}
	doc := f.get(t, id)
	if doc.Status != model.StatusFailed || !strings.Contains(doc.FailureReason, "deadline exceeded") {
		t.Fatalf("expected a persisted failure, got status %v reason %q", doc.Status, doc.FailureReason)
	}
}

func TestProcessRecoversFromPanicWhileLoading(t *testing.T) {
	f := newFixture(t, Options{})
	store := &ctxStore{MemoryStore: f.store, panicOnGet: true}
	sched := New(Deps{Store: store, Objects: f.objects, Extractor: f.extractor, LLM: f.llm}, Options{})
	id := f.upload(t, resumeText)

	out := sched.Process(context.Background(), id)
	if out.Status != model.StatusFailed || out.Err == nil || !strings.Contains(out.Err.Error(), "row scan blew up") {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if f.get(t, id).Status != model.StatusFailed {
		t.Fatalf("expected failed status after panic")
	}
	if f.extractor.calls.Load() != 0 {
		t.Fatalf("pipeline must not continue after a panic")
	}
}

func TestBatchReanalyzeLogsOneSummary(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := newFixture(t, Options{BatchPause: time.Millisecond})
	sched := New(Deps{Store: f.store, Objects: f.objects, Extractor: f.extractor, LLM: f.llm, Logger: zap.New(core)}, Options{BatchPause: time.Millisecond})
	ids := []int64{f.upload(t, resumeText), f.upload(t, "corrupt")}

	report := sched.BatchReanalyze(context.Background(), ids)
	summaries := logs.FilterMessage("reanalysis finished").All()
	if len(summaries) != 1 {
		t.Fatalf("expected one summary line, got %d", len(summaries))
	}
	fields := summaries[0].ContextMap()
	if fields["total"] != int64(report.Total) || fields["failed"] != int64(1) {
		t.Fatalf("unexpected summary fields %v", fields)
	}
}
