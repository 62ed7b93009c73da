package postgres

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/scout/internal/db"
)

// EnsureSchema creates the shared table and its indexes. Attributes live
// in jsonb columns, so kinds need no per-kind DDL.
func (s *Store) EnsureSchema(ctx context.Context, schema *db.Schema) error {
	if schema == nil || schema.Kind == "" {
		return fmt.Errorf("%w: schema kind is required", db.ErrInvalidQuery)
	}
	for _, stmt := range schemaStatements(s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &db.Error{Op: db.OpCreateTable, Err: err}
		}
	}
	return nil
}

func schemaStatements(table string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
    kind          TEXT NOT NULL,
    id            TEXT COLLATE "C" NOT NULL,
    owner_id      TEXT NOT NULL DEFAULT '',
    lat           DOUBLE PRECISION,
    lon           DOUBLE PRECISION,
    last_activity BIGINT NOT NULL DEFAULT 0,
    created_at    BIGINT NOT NULL DEFAULT 0,
    birth_date    BIGINT,
    tags          JSONB NOT NULL DEFAULT '{}',
    nums          JSONB NOT NULL DEFAULT '{}',
    flags         JSONB NOT NULL DEFAULT '{}',
    sets          JSONB NOT NULL DEFAULT '{}',
    priority      BOOLEAN NOT NULL DEFAULT FALSE,
    area          TEXT,
    PRIMARY KEY (kind, id)
)`,
		`CREATE INDEX IF NOT EXISTS ` + table + `_recency_idx ON ` + table + ` (kind, last_activity DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS ` + table + `_owner_idx ON ` + table + ` (kind, owner_id)`,
		`CREATE INDEX IF NOT EXISTS ` + table + `_tags_idx ON ` + table + ` USING GIN (tags)`,
		`CREATE INDEX IF NOT EXISTS ` + table + `_sets_idx ON ` + table + ` USING GIN (sets)`,
	}
}
