package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/dharsanguruparan/ResumeVault/internal/model"
)

func TestBuildWhereDefaultsToLiveDocuments(t *testing.T) {
	where, args := buildWhere(Filter{})
	if where != " WHERE d.is_deleted = FALSE" {
		t.Fatalf("unexpected clause %q", where)
	}
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
	if where, _ := buildWhere(Filter{IncludeDeleted: true}); where != "" {
		t.Fatalf("expected empty clause, got %q", where)
	}
}

func TestBuildWhereCombinesPredicates(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args := buildWhere(Filter{
		Statuses:     []model.Status{model.StatusQualified, model.StatusRejected},
		Name:         "张_三",
		Institutions: []string{"清华大学", "THU"},
		Skills:       []string{"go", "sql"},
		CreatedFrom:  &from,
	})

	for _, want := range []string{
		"d.status = ANY($1)",
		"d.name ILIKE $2",
		"(d.institution ILIKE $3 OR d.institution ILIKE $4)",
		"s.name = ANY($5)",
		"HAVING COUNT(DISTINCT s.name) = $6",
		"d.created_at >= $7",
	} {
		if !strings.Contains(where, want) {
			t.Fatalf("expected %q in %q", want, where)
		}
	}
	if len(args) != 7 {
		t.Fatalf("expected 7 args, got %d", len(args))
	}
	if got := args[1]; got != `%张\_三%` {
		t.Fatalf("expected escaped name term, got %v", got)
	}
	statuses, ok := args[0].([]int16)
	if !ok || len(statuses) != 2 || statuses[0] != 2 || statuses[1] != 3 {
		t.Fatalf("unexpected status arg %#v", args[0])
	}
	if args[5] != 2 {
		t.Fatalf("expected skill count 2, got %v", args[5])
	}
}

func TestBuildPage(t *testing.T) {
	clause, args := buildPage(Filter{Limit: 20, Offset: 40}, []any{"x"})
	if clause != " ORDER BY d.created_at DESC, d.id DESC LIMIT $2 OFFSET $3" {
		t.Fatalf("unexpected clause %q", clause)
	}
	if len(args) != 3 || args[1] != 20 || args[2] != 40 {
		t.Fatalf("unexpected args %v", args)
	}

	clause, args = buildPage(Filter{}, nil)
	if strings.Contains(clause, "LIMIT") || len(args) != 0 {
		t.Fatalf("expected unbounded page, got %q %v", clause, args)
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Fatalf("unexpected escape %q", got)
	}
}
