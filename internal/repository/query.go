package repository

import (
	"fmt"
	"strings"
)

// whereBuilder accumulates SQL predicates with positional arguments.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (b *whereBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *whereBuilder) add(clause string) {
	b.clauses = append(b.clauses, clause)
}

func (b *whereBuilder) contains(column, term string) {
	term = strings.TrimSpace(term)
	if term == "" {
		return
	}
	b.add(fmt.Sprintf("%s ILIKE %s", column, b.arg("%"+escapeLike(term)+"%")))
}

func (b *whereBuilder) sql() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.clauses, " AND ")
}

// buildWhere renders f as a WHERE clause over documents aliased as d.
func buildWhere(f Filter) (string, []any) {
	var b whereBuilder
	if !f.IncludeDeleted {
		b.add("d.is_deleted = FALSE")
	}
	if len(f.Statuses) > 0 {
		statuses := make([]int16, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = int16(s)
		}
		b.add(fmt.Sprintf("d.status = ANY(%s)", b.arg(statuses)))
	}
	b.contains("d.name", f.Name)
	b.contains("d.email", f.Email)
	b.contains("d.phone", f.Phone)
	b.contains("d.degree", f.Degree)
	b.contains("d.major", f.Major)

	var anyOf []string
	for _, inst := range f.Institutions {
		if inst = strings.TrimSpace(inst); inst != "" {
			anyOf = append(anyOf, fmt.Sprintf("d.institution ILIKE %s", b.arg("%"+escapeLike(inst)+"%")))
		}
	}
	if len(anyOf) > 0 {
		b.add("(" + strings.Join(anyOf, " OR ") + ")")
	}

	if len(f.Skills) > 0 {
		names := b.arg(f.Skills)
		count := b.arg(len(f.Skills))
		b.add(fmt.Sprintf(`d.id IN (
			SELECT ds.document_id FROM document_skills ds
			JOIN skill_tags s ON s.id = ds.skill_id
			WHERE s.name = ANY(%s)
			GROUP BY ds.document_id
			HAVING COUNT(DISTINCT s.name) = %s)`, names, count))
	}
	if f.CreatedFrom != nil {
		b.add(fmt.Sprintf("d.created_at >= %s", b.arg(*f.CreatedFrom)))
	}
	if f.CreatedTo != nil {
		b.add(fmt.Sprintf("d.created_at <= %s", b.arg(*f.CreatedTo)))
	}
	return b.sql(), b.args
}

// buildPage appends ordering and paging to a select.
func buildPage(f Filter, args []any) (string, []any) {
	clause := " ORDER BY d.created_at DESC, d.id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		clause += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		clause += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return clause, args
}
