package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN. maxConns of
// zero keeps the default of 8.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Schema is the DDL applied by EnsureSchema. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS rubrics (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	content TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT FALSE,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_rubrics_single_active ON rubrics ((is_active)) WHERE is_active AND NOT is_deleted;

CREATE TABLE IF NOT EXISTS documents (
	id BIGSERIAL PRIMARY KEY,
	file_key TEXT NOT NULL,
	file_url TEXT NOT NULL DEFAULT '',
	file_name TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	status SMALLINT NOT NULL DEFAULT 0 CHECK (status BETWEEN 0 AND 4),
	name TEXT,
	phone TEXT,
	email TEXT,
	institution TEXT,
	tier TEXT,
	degree TEXT,
	major TEXT,
	graduation_year TEXT,
	skills JSONB NOT NULL DEFAULT '[]',
	work_experience JSONB NOT NULL DEFAULT '[]',
	projects JSONB NOT NULL DEFAULT '[]',
	parse_result JSONB,
	portrait_url TEXT,
	failure_reason TEXT,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status) WHERE NOT is_deleted;
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS skill_tags (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE CHECK (name <> '' AND name = lower(btrim(name)))
);

CREATE TABLE IF NOT EXISTS document_skills (
	document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	skill_id BIGINT NOT NULL REFERENCES skill_tags(id) ON DELETE CASCADE,
	PRIMARY KEY (document_id, skill_id)
);
CREATE INDEX IF NOT EXISTS idx_document_skills_skill ON document_skills(skill_id);

CREATE TABLE IF NOT EXISTS evaluations (
	id BIGSERIAL PRIMARY KEY,
	document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	rubric_id BIGINT NOT NULL REFERENCES rubrics(id),
	score INTEGER CHECK (score BETWEEN 0 AND 100),
	is_qualified BOOLEAN NOT NULL DEFAULT FALSE,
	reason TEXT,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	evaluated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (document_id, rubric_id)
);`

// EnsureSchema creates the tables if needed. Keeping the migration in code
// lets docker-compose bootstrap everything and `resumevault migrate` reuse it.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
