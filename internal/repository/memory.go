package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dharsanguruparan/ResumeVault/internal/model"
	"github.com/dharsanguruparan/ResumeVault/internal/skills"
)

// MemoryStore is a Store kept in process memory. It backs tests and the
// single-binary mode that runs without Postgres.
type MemoryStore struct {
	mu        sync.RWMutex
	nextID    int64
	documents map[int64]*model.Document
	evals     map[int64]*model.Evaluation
	rubrics   map[int64]*model.Rubric
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[int64]*model.Document),
		evals:     make(map[int64]*model.Evaluation),
		rubrics:   make(map[int64]*model.Rubric),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func copyDocument(d *model.Document) model.Document {
	c := *d
	c.Skills = append([]string{}, d.Skills...)
	return c
}

// CreateDocument inserts a pending document.
func (m *MemoryStore) CreateDocument(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	doc.ID = m.id()
	doc.Status = model.StatusPending
	doc.Skills = skills.Normalize(doc.Skills)
	stored := copyDocument(doc)
	m.documents[doc.ID] = &stored
	return nil
}

// GetDocument returns a copy of the document, including soft-deleted ones.
func (m *MemoryStore) GetDocument(_ context.Context, id int64) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	c := copyDocument(doc)
	return &c, nil
}

func (m *MemoryStore) update(id int64, fn func(d *model.Document)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	fn(doc)
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkProcessing sets the status to processing.
func (m *MemoryStore) MarkProcessing(_ context.Context, id int64) error {
	return m.update(id, func(d *model.Document) { d.Status = model.StatusProcessing })
}

// MarkStatus sets a status.
func (m *MemoryStore) MarkStatus(_ context.Context, id int64, status model.Status) error {
	return m.update(id, func(d *model.Document) { d.Status = status })
}

// MarkFailed sets the failed status and reason, keeping extracted fields.
func (m *MemoryStore) MarkFailed(_ context.Context, id int64, reason string) error {
	return m.update(id, func(d *model.Document) {
		d.Status = model.StatusFailed
		d.FailureReason = reason
	})
}

// SaveResult overwrites the extracted fields and status.
func (m *MemoryStore) SaveResult(_ context.Context, id int64, p model.Profile, parseResult json.RawMessage, status model.Status) error {
	p.Skills = skills.Normalize(p.Skills)
	return m.update(id, func(d *model.Document) {
		d.Profile = p
		d.ParseResult = parseResult
		d.Status = status
		d.FailureReason = ""
	})
}

// SetPortrait stores the portrait URL.
func (m *MemoryStore) SetPortrait(_ context.Context, id int64, url string) error {
	return m.update(id, func(d *model.Document) { d.PortraitURL = url })
}

// ApplyCorrection overwrites the allow-listed fields of a live document.
func (m *MemoryStore) ApplyCorrection(_ context.Context, id int64, c model.Correction) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok || doc.IsDeleted {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	c.Apply(&doc.Profile)
	doc.Skills = skills.Normalize(doc.Skills)
	doc.UpdatedAt = time.Now().UTC()
	out := copyDocument(doc)
	return &out, nil
}

// SoftDelete flags every live document matching all supplied criteria.
func (m *MemoryStore) SoftDelete(_ context.Context, criteria model.DeleteCriteria) (int64, error) {
	if criteria.Empty() {
		return 0, errors.New("soft delete requires at least one criterion")
	}
	name := strings.TrimSpace(criteria.Name)
	email := strings.TrimSpace(criteria.Email)
	phone := strings.TrimSpace(criteria.Phone)

	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.documents {
		if d.IsDeleted {
			continue
		}
		if (name != "" && d.Name != name) || (email != "" && d.Email != email) || (phone != "" && d.Phone != phone) {
			continue
		}
		d.IsDeleted = true
		d.UpdatedAt = time.Now().UTC()
		for _, e := range m.evals {
			if e.DocumentID == d.ID {
				e.IsDeleted = true
			}
		}
		n++
	}
	return n, nil
}

func matches(d *model.Document, f Filter) bool {
	if d.IsDeleted && !f.IncludeDeleted {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if d.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, pair := range [][2]string{
		{d.Name, f.Name}, {d.Email, f.Email}, {d.Phone, f.Phone}, {d.Degree, f.Degree}, {d.Major, f.Major},
	} {
		if term := strings.TrimSpace(pair[1]); term != "" && !containsFold(pair[0], term) {
			return false
		}
	}
	if len(f.Institutions) > 0 {
		found, constrained := false, false
		for _, inst := range f.Institutions {
			if inst = strings.TrimSpace(inst); inst == "" {
				continue
			}
			constrained = true
			if containsFold(d.Institution, inst) {
				found = true
				break
			}
		}
		if constrained && !found {
			return false
		}
	}
	if len(f.Skills) > 0 {
		have := make(map[string]struct{}, len(d.Skills))
		for _, s := range d.Skills {
			have[s] = struct{}{}
		}
		for _, s := range f.Skills {
			if _, ok := have[s]; !ok {
				return false
			}
		}
	}
	if f.CreatedFrom != nil && d.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && d.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}

// FindDocuments returns one page of matches, newest first, and the total.
func (m *MemoryStore) FindDocuments(_ context.Context, f Filter) ([]model.Document, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := []model.Document{}
	for _, d := range m.documents {
		if matches(d, f) {
			all = append(all, copyDocument(d))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	total := len(all)
	if f.Offset > 0 {
		if f.Offset >= len(all) {
			return []model.Document{}, total, nil
		}
		all = all[f.Offset:]
	}
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total, nil
}

// ListActiveIDs returns the ids of every live document in ascending order.
func (m *MemoryStore) ListActiveIDs(_ context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := []int64{}
	for id, d := range m.documents {
		if !d.IsDeleted {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// UpsertEvaluation records the verdict for (document, rubric).
func (m *MemoryStore) UpsertEvaluation(_ context.Context, eval *model.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if eval.EvaluatedAt.IsZero() {
		eval.EvaluatedAt = time.Now().UTC()
	}
	eval.IsDeleted = false
	for _, e := range m.evals {
		if e.DocumentID == eval.DocumentID && e.RubricID == eval.RubricID {
			eval.ID = e.ID
			*e = *eval
			return nil
		}
	}
	eval.ID = m.id()
	stored := *eval
	m.evals[eval.ID] = &stored
	return nil
}

// ListEvaluations returns the live evaluations of a document, newest first.
func (m *MemoryStore) ListEvaluations(_ context.Context, documentID int64) ([]model.Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Evaluation{}
	for _, e := range m.evals {
		if e.DocumentID == documentID && !e.IsDeleted {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EvaluatedAt.Equal(out[j].EvaluatedAt) {
			return out[i].EvaluatedAt.After(out[j].EvaluatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// CreateRubric inserts an inactive rubric.
func (m *MemoryStore) CreateRubric(_ context.Context, rubric *model.Rubric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rubric.CreatedAt.IsZero() {
		rubric.CreatedAt = time.Now().UTC()
	}
	rubric.ID = m.id()
	rubric.Name = strings.TrimSpace(rubric.Name)
	rubric.IsActive = false
	rubric.IsDeleted = false
	stored := *rubric
	m.rubrics[rubric.ID] = &stored
	return nil
}

// GetRubric returns a live rubric.
func (m *MemoryStore) GetRubric(_ context.Context, id int64) (*model.Rubric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rb, ok := m.rubrics[id]
	if !ok || rb.IsDeleted {
		return nil, fmt.Errorf("rubric %d: %w", id, ErrNotFound)
	}
	c := *rb
	return &c, nil
}

// ListRubrics pages through live rubrics, newest first.
func (m *MemoryStore) ListRubrics(_ context.Context, offset, limit int) ([]model.Rubric, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := []model.Rubric{}
	for _, rb := range m.rubrics {
		if !rb.IsDeleted {
			all = append(all, *rb)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	total := len(all)
	if offset >= len(all) {
		return []model.Rubric{}, total, nil
	}
	all = all[max(offset, 0):]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

// UpdateRubric changes the name and/or content of a live rubric.
func (m *MemoryStore) UpdateRubric(_ context.Context, id int64, name, content *string) (*model.Rubric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rb, ok := m.rubrics[id]
	if !ok || rb.IsDeleted {
		return nil, fmt.Errorf("rubric %d: %w", id, ErrNotFound)
	}
	if name != nil {
		rb.Name = strings.TrimSpace(*name)
	}
	if content != nil {
		rb.Content = *content
	}
	c := *rb
	return &c, nil
}

// ActivateRubric makes id the single active rubric.
func (m *MemoryStore) ActivateRubric(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rb, ok := m.rubrics[id]
	if !ok || rb.IsDeleted {
		return fmt.Errorf("rubric %d: %w", id, ErrNotFound)
	}
	for _, other := range m.rubrics {
		other.IsActive = false
	}
	rb.IsActive = true
	return nil
}

// DeleteRubric soft-deletes a rubric and deactivates it.
func (m *MemoryStore) DeleteRubric(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rb, ok := m.rubrics[id]
	if !ok || rb.IsDeleted {
		return fmt.Errorf("rubric %d: %w", id, ErrNotFound)
	}
	rb.IsDeleted = true
	rb.IsActive = false
	return nil
}

// ActiveRubric returns the enabled rubric or ErrNoActiveRubric.
func (m *MemoryStore) ActiveRubric(_ context.Context) (*model.Rubric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rb := range m.rubrics {
		if rb.IsActive && !rb.IsDeleted {
			c := *rb
			return &c, nil
		}
	}
	return nil, ErrNoActiveRubric
}

var _ Store = (*MemoryStore)(nil)
