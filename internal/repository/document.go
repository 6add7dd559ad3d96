package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/ResumeVault/internal/model"
	"github.com/dharsanguruparan/ResumeVault/internal/skills"
)

// DocumentRepository wraps all SQL used by the API, the worker and the CLI.
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository constructs a repository.
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

const documentColumns = `d.id, d.file_key, d.file_url, d.file_name, d.content_type, d.status,
	COALESCE(d.name,''), COALESCE(d.phone,''), COALESCE(d.email,''), COALESCE(d.institution,''),
	COALESCE(d.tier,''), COALESCE(d.degree,''), COALESCE(d.major,''), COALESCE(d.graduation_year,''),
	d.skills, d.work_experience, d.projects, d.parse_result,
	COALESCE(d.portrait_url,''), COALESCE(d.failure_reason,''), d.is_deleted, d.created_at, d.updated_at`

func scanDocument(row pgx.Row) (*model.Document, error) {
	var (
		doc        model.Document
		status     int16
		skillsJSON []byte
		parsed     []byte
	)
	err := row.Scan(&doc.ID, &doc.FileKey, &doc.FileURL, &doc.FileName, &doc.ContentType, &status,
		&doc.Name, &doc.Phone, &doc.Email, &doc.Institution,
		&doc.Tier, &doc.Degree, &doc.Major, &doc.GraduationYear,
		&skillsJSON, &doc.WorkExperience, &doc.Projects, &parsed,
		&doc.PortraitURL, &doc.FailureReason, &doc.IsDeleted, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Status = model.Status(status)
	if len(parsed) > 0 {
		doc.ParseResult = json.RawMessage(parsed)
	}
	doc.Skills = []string{}
	if len(skillsJSON) > 0 {
		if err := json.Unmarshal(skillsJSON, &doc.Skills); err != nil {
			return nil, fmt.Errorf("decode skills: %w", err)
		}
	}
	return &doc, nil
}

// CreateDocument inserts a pending document.
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *model.Document) error {
	now := time.Now().UTC()
	doc.Status = model.StatusPending
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	doc.Skills = skills.Normalize(doc.Skills)

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO documents (file_key, file_url, file_name, content_type, status,
				name, phone, email, institution, tier, degree, major, graduation_year,
				skills, work_experience, projects, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
			RETURNING id
		`, doc.FileKey, doc.FileURL, doc.FileName, doc.ContentType, int16(doc.Status),
			doc.Name, doc.Phone, doc.Email, doc.Institution, nullable(doc.Tier), doc.Degree, doc.Major, doc.GraduationYear,
			marshalList(doc.Skills), []byte(rawOrEmpty(doc.WorkExperience)), []byte(rawOrEmpty(doc.Projects)),
			doc.CreatedAt, doc.UpdatedAt).Scan(&doc.ID)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		return syncSkills(ctx, tx, doc.ID, doc.Skills)
	})
}

// GetDocument returns a document by id, including soft-deleted ones.
func (r *DocumentRepository) GetDocument(ctx context.Context, id int64) (*model.Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.id=$1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("select document: %w", err)
	}
	return doc, nil
}

// MarkProcessing sets the status to processing.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id int64) error {
	return r.updateStatus(ctx, id, model.StatusProcessing, nil)
}

// MarkStatus sets a status without touching the failure reason.
func (r *DocumentRepository) MarkStatus(ctx context.Context, id int64, status model.Status) error {
	return r.updateStatus(ctx, id, status, nil)
}

// MarkFailed marks the processing attempt as failed and stores the reason.
// Previously extracted fields are kept.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.updateStatus(ctx, id, model.StatusFailed, &reason)
}

func (r *DocumentRepository) updateStatus(ctx context.Context, id int64, status model.Status, reason *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status=$1,
			failure_reason = COALESCE($2, failure_reason),
			updated_at=$3
		WHERE id=$4
	`, int16(status), reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return nil
}

// SaveResult persists extracted fields, the skill tags and the status in one
// transaction, clearing any earlier failure reason.
func (r *DocumentRepository) SaveResult(ctx context.Context, id int64, p model.Profile, parseResult json.RawMessage, status model.Status) error {
	p.Skills = skills.Normalize(p.Skills)
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE documents
			SET name=$1, phone=$2, email=$3, institution=$4, tier=$5, degree=$6, major=$7,
				graduation_year=$8, skills=$9, work_experience=$10, projects=$11,
				parse_result=$12, status=$13, failure_reason=NULL, updated_at=$14
			WHERE id=$15
		`, p.Name, p.Phone, p.Email, p.Institution, nullable(p.Tier), p.Degree, p.Major,
			p.GraduationYear, marshalList(p.Skills), []byte(rawOrEmpty(p.WorkExperience)), []byte(rawOrEmpty(p.Projects)),
			nullableJSON(parseResult), int16(status), time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("update document result: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("document %d: %w", id, ErrNotFound)
		}
		return syncSkills(ctx, tx, id, p.Skills)
	})
}

// SetPortrait stores the portrait URL.
func (r *DocumentRepository) SetPortrait(ctx context.Context, id int64, url string) error {
	_, err := r.pool.Exec(ctx, `UPDATE documents SET portrait_url=$1, updated_at=$2 WHERE id=$3`, url, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update portrait: %w", err)
	}
	return nil
}

// ApplyCorrection overwrites the allow-listed fields of a live document.
func (r *DocumentRepository) ApplyCorrection(ctx context.Context, id int64, c model.Correction) (*model.Document, error) {
	var updated *model.Document
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.id=$1 AND d.is_deleted = FALSE FOR UPDATE`, id)
		doc, err := scanDocument(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("document %d: %w", id, ErrNotFound)
			}
			return fmt.Errorf("select document: %w", err)
		}
		c.Apply(&doc.Profile)
		doc.Skills = skills.Normalize(doc.Skills)
		doc.UpdatedAt = time.Now().UTC()
		_, err = tx.Exec(ctx, `
			UPDATE documents
			SET name=$1, phone=$2, email=$3, institution=$4, tier=$5, degree=$6, major=$7,
				graduation_year=$8, skills=$9, work_experience=$10, projects=$11, updated_at=$12
			WHERE id=$13
		`, doc.Name, doc.Phone, doc.Email, doc.Institution, nullable(doc.Tier), doc.Degree, doc.Major,
			doc.GraduationYear, marshalList(doc.Skills), []byte(rawOrEmpty(doc.WorkExperience)), []byte(rawOrEmpty(doc.Projects)),
			doc.UpdatedAt, id)
		if err != nil {
			return fmt.Errorf("update document fields: %w", err)
		}
		if c.Skills != nil {
			if err := syncSkills(ctx, tx, id, doc.Skills); err != nil {
				return err
			}
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SoftDelete flags every live document matching all supplied criteria
// exactly, and cascades the flag to their evaluations.
func (r *DocumentRepository) SoftDelete(ctx context.Context, criteria model.DeleteCriteria) (int64, error) {
	if criteria.Empty() {
		return 0, errors.New("soft delete requires at least one criterion")
	}
	var b whereBuilder
	b.add("is_deleted = FALSE")
	for _, c := range []struct{ column, value string }{
		{"name", criteria.Name},
		{"email", criteria.Email},
		{"phone", criteria.Phone},
	} {
		if v := strings.TrimSpace(c.value); v != "" {
			b.add(fmt.Sprintf("%s = %s", c.column, b.arg(v)))
		}
	}

	var deleted int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `UPDATE documents SET is_deleted = TRUE, updated_at = now()`+b.sql()+` RETURNING id`, b.args...)
		if err != nil {
			return fmt.Errorf("soft delete documents: %w", err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return fmt.Errorf("collect deleted ids: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE evaluations SET is_deleted = TRUE WHERE document_id = ANY($1)`, ids); err != nil {
			return fmt.Errorf("soft delete evaluations: %w", err)
		}
		deleted = int64(len(ids))
		return nil
	})
	return deleted, err
}

// FindDocuments returns one page of matches, newest first, and the total
// number of matches.
func (r *DocumentRepository) FindDocuments(ctx context.Context, f Filter) ([]model.Document, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents d`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	page, pageArgs := buildPage(f, args)
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM documents d`+where+page, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, total, nil
}

// ListActiveIDs returns the ids of every live document.
func (r *DocumentRepository) ListActiveIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM documents WHERE is_deleted = FALSE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select document ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect document ids: %w", err)
	}
	return ids, nil
}

// syncSkills makes the tag relation of a document equal to names. The
// denormalized skills column is written by the caller in the same
// transaction.
func syncSkills(ctx context.Context, tx pgx.Tx, documentID int64, names []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM document_skills WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("clear document skills: %w", err)
	}
	if len(names) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `INSERT INTO skill_tags (name) SELECT unnest($1::text[]) ON CONFLICT (name) DO NOTHING`, names); err != nil {
		return fmt.Errorf("insert skill tags: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO document_skills (document_id, skill_id)
		SELECT $1, id FROM skill_tags WHERE name = ANY($2)
		ON CONFLICT DO NOTHING
	`, documentID, names); err != nil {
		return fmt.Errorf("link document skills: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
