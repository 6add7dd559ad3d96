package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/ResumeVault/internal/model"
)

const rubricColumns = `id, name, content, is_active, is_deleted, created_at`

func scanRubric(row pgx.Row) (*model.Rubric, error) {
	var rb model.Rubric
	if err := row.Scan(&rb.ID, &rb.Name, &rb.Content, &rb.IsActive, &rb.IsDeleted, &rb.CreatedAt); err != nil {
		return nil, err
	}
	return &rb, nil
}

// CreateRubric inserts an inactive rubric.
func (r *DocumentRepository) CreateRubric(ctx context.Context, rubric *model.Rubric) error {
	if rubric.CreatedAt.IsZero() {
		rubric.CreatedAt = time.Now().UTC()
	}
	rubric.IsActive = false
	rubric.IsDeleted = false
	err := r.pool.QueryRow(ctx, `
		INSERT INTO rubrics (name, content, created_at) VALUES ($1,$2,$3) RETURNING id
	`, strings.TrimSpace(rubric.Name), rubric.Content, rubric.CreatedAt).Scan(&rubric.ID)
	if err != nil {
		return fmt.Errorf("insert rubric: %w", err)
	}
	return nil
}

// GetRubric returns a live rubric.
func (r *DocumentRepository) GetRubric(ctx context.Context, id int64) (*model.Rubric, error) {
	rb, err := scanRubric(r.pool.QueryRow(ctx, `SELECT `+rubricColumns+` FROM rubrics WHERE id=$1 AND is_deleted = FALSE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("rubric %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("select rubric: %w", err)
	}
	return rb, nil
}

// ListRubrics pages through live rubrics, newest first.
func (r *DocumentRepository) ListRubrics(ctx context.Context, offset, limit int) ([]model.Rubric, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rubrics WHERE is_deleted = FALSE`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rubrics: %w", err)
	}
	query := `SELECT ` + rubricColumns + ` FROM rubrics WHERE is_deleted = FALSE ORDER BY created_at DESC, id DESC OFFSET $1`
	args := []any{offset}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select rubrics: %w", err)
	}
	rubrics, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Rubric, error) {
		rb, err := scanRubric(row)
		if err != nil {
			return model.Rubric{}, err
		}
		return *rb, nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("collect rubrics: %w", err)
	}
	return rubrics, total, nil
}

// UpdateRubric changes the name and/or content of a live rubric.
func (r *DocumentRepository) UpdateRubric(ctx context.Context, id int64, name, content *string) (*model.Rubric, error) {
	var trimmed *string
	if name != nil {
		v := strings.TrimSpace(*name)
		trimmed = &v
	}
	rb, err := scanRubric(r.pool.QueryRow(ctx, `
		UPDATE rubrics
		SET name = COALESCE($1, name), content = COALESCE($2, content)
		WHERE id=$3 AND is_deleted = FALSE
		RETURNING `+rubricColumns, trimmed, content, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("rubric %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("update rubric: %w", err)
	}
	return rb, nil
}

// ActivateRubric makes id the single active rubric.
func (r *DocumentRepository) ActivateRubric(ctx context.Context, id int64) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rubrics WHERE id=$1 AND is_deleted = FALSE)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("select rubric: %w", err)
		}
		if !exists {
			return fmt.Errorf("rubric %d: %w", id, ErrNotFound)
		}
		if _, err := tx.Exec(ctx, `UPDATE rubrics SET is_active = FALSE WHERE is_active AND id <> $1`, id); err != nil {
			return fmt.Errorf("deactivate rubrics: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE rubrics SET is_active = TRUE WHERE id=$1`, id); err != nil {
			return fmt.Errorf("activate rubric: %w", err)
		}
		return nil
	})
}

// DeleteRubric soft-deletes a rubric. A deleted rubric is never active.
func (r *DocumentRepository) DeleteRubric(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE rubrics SET is_deleted = TRUE, is_active = FALSE WHERE id=$1 AND is_deleted = FALSE`, id)
	if err != nil {
		return fmt.Errorf("delete rubric: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rubric %d: %w", id, ErrNotFound)
	}
	return nil
}

// ActiveRubric returns the enabled rubric or ErrNoActiveRubric.
func (r *DocumentRepository) ActiveRubric(ctx context.Context) (*model.Rubric, error) {
	rb, err := scanRubric(r.pool.QueryRow(ctx, `SELECT `+rubricColumns+` FROM rubrics WHERE is_active AND is_deleted = FALSE LIMIT 1`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveRubric
		}
		return nil, fmt.Errorf("select active rubric: %w", err)
	}
	return rb, nil
}

var _ Store = (*DocumentRepository)(nil)
