package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dharsanguruparan/ResumeVault/internal/model"
)

var (
	// ErrNotFound is returned when a document, rubric or evaluation does not
	// exist (or is soft-deleted where that matters).
	ErrNotFound = errors.New("not found")
	// ErrNoActiveRubric is returned by ActiveRubric when no rubric is enabled.
	ErrNoActiveRubric = errors.New("no active rubric")
)

// Filter is a conjunction of predicates over documents. Zero-valued fields
// do not constrain the result.
type Filter struct {
	Statuses []model.Status
	Name     string
	Email    string
	Phone    string
	Degree   string
	Major    string
	// Institutions matches when the stored institution contains any entry.
	Institutions []string
	// Skills matches when the document carries every tag.
	Skills         []string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	IncludeDeleted bool
	// Limit of zero returns every match.
	Limit  int
	Offset int
}

// Store is the persistence contract shared by the Postgres and in-memory
// implementations.
type Store interface {
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id int64) (*model.Document, error)
	MarkProcessing(ctx context.Context, id int64) error
	MarkStatus(ctx context.Context, id int64, status model.Status) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	SaveResult(ctx context.Context, id int64, profile model.Profile, parseResult json.RawMessage, status model.Status) error
	SetPortrait(ctx context.Context, id int64, url string) error
	ApplyCorrection(ctx context.Context, id int64, c model.Correction) (*model.Document, error)
	SoftDelete(ctx context.Context, criteria model.DeleteCriteria) (int64, error)
	FindDocuments(ctx context.Context, f Filter) ([]model.Document, int, error)
	ListActiveIDs(ctx context.Context) ([]int64, error)

	UpsertEvaluation(ctx context.Context, eval *model.Evaluation) error
	ListEvaluations(ctx context.Context, documentID int64) ([]model.Evaluation, error)

	CreateRubric(ctx context.Context, rubric *model.Rubric) error
	GetRubric(ctx context.Context, id int64) (*model.Rubric, error)
	ListRubrics(ctx context.Context, offset, limit int) ([]model.Rubric, int, error)
	UpdateRubric(ctx context.Context, id int64, name, content *string) (*model.Rubric, error)
	ActivateRubric(ctx context.Context, id int64) error
	DeleteRubric(ctx context.Context, id int64) error
	ActiveRubric(ctx context.Context) (*model.Rubric, error)
}

// escapeLike escapes the ILIKE wildcards in a user-supplied term.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func marshalList(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return []byte(`[]`)
	}
	return data
}

func rawOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`[]`)
	}
	return raw
}
