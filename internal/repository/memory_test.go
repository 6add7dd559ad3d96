package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dharsanguruparan/ResumeVault/internal/model"
)

func seed(t *testing.T, s *MemoryStore, name, institution string, created time.Time, tags ...string) *model.Document {
	t.Helper()
	doc := &model.Document{
		FileKey:   "resumes/" + name + ".pdf",
		FileName:  name + ".pdf",
		CreatedAt: created,
		Profile: model.Profile{
			Name:        name,
			Email:       name + "@example.com",
			Institution: institution,
			Skills:      tags,
		},
	}
	if err := s.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create: %v", err)
	}
	return doc
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := seed(t, s, "alice", "清华大学", time.Now().UTC(), "Go", " go ", "SQL")

	got, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("expected pending, got %v", got.Status)
	}
	if len(got.Skills) != 2 || got.Skills[0] != "go" || got.Skills[1] != "sql" {
		t.Fatalf("expected normalized skills, got %v", got.Skills)
	}

	if err := s.MarkFailed(ctx, doc.ID, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ = s.GetDocument(ctx, doc.ID)
	if got.Status != model.StatusFailed || got.FailureReason != "boom" || got.Name != "alice" {
		t.Fatalf("failure should keep fields: %+v", got)
	}

	profile := got.Profile
	profile.Major = "CS"
	if err := s.SaveResult(ctx, doc.ID, profile, json.RawMessage(`{"ok":true}`), model.StatusQualified); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ = s.GetDocument(ctx, doc.ID)
	if got.Status != model.StatusQualified || got.FailureReason != "" || got.Major != "CS" {
		t.Fatalf("unexpected saved document: %+v", got)
	}

	if _, err := s.GetDocument(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreFindDocuments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := seed(t, s, "alice", "清华大学", base, "go", "sql")
	b := seed(t, s, "bob", "北京大学", base.Add(time.Hour), "go")
	seed(t, s, "carol", "某某职业技术学院", base.Add(2*time.Hour), "python")

	docs, total, err := s.FindDocuments(ctx, Filter{Skills: []string{"go"}})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if total != 2 || docs[0].ID != b.ID || docs[1].ID != a.ID {
		t.Fatalf("expected newest first [bob alice], got %d %+v", total, docs)
	}

	docs, _, _ = s.FindDocuments(ctx, Filter{Skills: []string{"go", "sql"}})
	if len(docs) != 1 || docs[0].ID != a.ID {
		t.Fatalf("expected only alice for all-of skills, got %+v", docs)
	}

	docs, _, _ = s.FindDocuments(ctx, Filter{Institutions: []string{"清华", "北京大学"}})
	if len(docs) != 2 {
		t.Fatalf("expected any-of institutions to match two, got %d", len(docs))
	}

	to := base.Add(30 * time.Minute)
	docs, _, _ = s.FindDocuments(ctx, Filter{CreatedTo: &to})
	if len(docs) != 1 || docs[0].ID != a.ID {
		t.Fatalf("expected date bound to keep alice only, got %+v", docs)
	}

	docs, total, _ = s.FindDocuments(ctx, Filter{Limit: 1, Offset: 1})
	if total != 3 || len(docs) != 1 || docs[0].ID != b.ID {
		t.Fatalf("unexpected page: total=%d docs=%+v", total, docs)
	}
}

func TestMemoryStoreSoftDeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := seed(t, s, "alice", "", time.Now().UTC())
	seed(t, s, "bob", "", time.Now().UTC())

	if err := s.UpsertEvaluation(ctx, &model.Evaluation{DocumentID: a.ID, RubricID: 1, Qualified: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.SoftDelete(ctx, model.DeleteCriteria{}); err == nil {
		t.Fatalf("expected empty criteria to be rejected")
	}
	n, err := s.SoftDelete(ctx, model.DeleteCriteria{Name: "alice", Email: "alice@example.com"})
	if err != nil || n != 1 {
		t.Fatalf("expected one deletion, got %d %v", n, err)
	}
	evals, _ := s.ListEvaluations(ctx, a.ID)
	if len(evals) != 0 {
		t.Fatalf("expected evaluations hidden after delete, got %+v", evals)
	}
	ids, _ := s.ListActiveIDs(ctx)
	if len(ids) != 1 {
		t.Fatalf("expected one active id, got %v", ids)
	}
	if _, err := s.ApplyCorrection(ctx, a.ID, model.Correction{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected correction of deleted document to fail, got %v", err)
	}
}

func TestMemoryStoreUpsertEvaluationKeepsOnePerPair(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	score := 80
	first := &model.Evaluation{DocumentID: 1, RubricID: 2, Score: &score, Reason: "first"}
	if err := s.UpsertEvaluation(ctx, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := &model.Evaluation{DocumentID: 1, RubricID: 2, Reason: "second", EvaluatedAt: time.Now().Add(time.Minute)}
	if err := s.UpsertEvaluation(ctx, second); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same id, got %d and %d", first.ID, second.ID)
	}
	evals, _ := s.ListEvaluations(ctx, 1)
	if len(evals) != 1 || evals[0].Reason != "second" {
		t.Fatalf("expected single replaced evaluation, got %+v", evals)
	}
}

func TestMemoryStoreRubrics(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := s.ActiveRubric(ctx); !errors.Is(err, ErrNoActiveRubric) {
		t.Fatalf("expected ErrNoActiveRubric, got %v", err)
	}
	r1 := &model.Rubric{Name: " backend ", Content: "Go experience"}
	r2 := &model.Rubric{Name: "frontend", Content: "React"}
	_ = s.CreateRubric(ctx, r1)
	_ = s.CreateRubric(ctx, r2)
	if r1.Name != "backend" {
		t.Fatalf("expected trimmed name, got %q", r1.Name)
	}

	if err := s.ActivateRubric(ctx, r1.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := s.ActivateRubric(ctx, r2.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	active, err := s.ActiveRubric(ctx)
	if err != nil || active.ID != r2.ID {
		t.Fatalf("expected r2 active, got %+v %v", active, err)
	}
	got, _ := s.GetRubric(ctx, r1.ID)
	if got.IsActive {
		t.Fatalf("expected r1 deactivated")
	}

	if err := s.DeleteRubric(ctx, r2.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.ActiveRubric(ctx); !errors.Is(err, ErrNoActiveRubric) {
		t.Fatalf("deleted rubric must not stay active, got %v", err)
	}
	list, total, _ := s.ListRubrics(ctx, 0, 10)
	if total != 1 || len(list) != 1 || list[0].ID != r1.ID {
		t.Fatalf("unexpected list %d %+v", total, list)
	}
}
