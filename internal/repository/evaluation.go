package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/ResumeVault/internal/model"
)

// UpsertEvaluation records the verdict of a rubric on a document, replacing
// any earlier verdict for the same pair.
func (r *DocumentRepository) UpsertEvaluation(ctx context.Context, eval *model.Evaluation) error {
	if eval.EvaluatedAt.IsZero() {
		eval.EvaluatedAt = time.Now().UTC()
	}
	var score *int32
	if eval.Score != nil {
		v := int32(*eval.Score)
		score = &v
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO evaluations (document_id, rubric_id, score, is_qualified, reason, evaluated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (document_id, rubric_id) DO UPDATE
		SET score = EXCLUDED.score,
			is_qualified = EXCLUDED.is_qualified,
			reason = EXCLUDED.reason,
			evaluated_at = EXCLUDED.evaluated_at,
			is_deleted = FALSE
		RETURNING id
	`, eval.DocumentID, eval.RubricID, score, eval.Qualified, eval.Reason, eval.EvaluatedAt).Scan(&eval.ID)
	if err != nil {
		return fmt.Errorf("upsert evaluation: %w", err)
	}
	eval.IsDeleted = false
	return nil
}

// ListEvaluations returns the live evaluations of a document, newest first.
func (r *DocumentRepository) ListEvaluations(ctx context.Context, documentID int64) ([]model.Evaluation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, rubric_id, score, is_qualified, COALESCE(reason,''), is_deleted, evaluated_at
		FROM evaluations
		WHERE document_id=$1 AND is_deleted = FALSE
		ORDER BY evaluated_at DESC, id DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("select evaluations: %w", err)
	}
	evals, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Evaluation, error) {
		var (
			e     model.Evaluation
			score *int32
		)
		if err := row.Scan(&e.ID, &e.DocumentID, &e.RubricID, &score, &e.Qualified, &e.Reason, &e.IsDeleted, &e.EvaluatedAt); err != nil {
			return e, err
		}
		if score != nil {
			v := int(*score)
			e.Score = &v
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect evaluations: %w", err)
	}
	return evals, nil
}
