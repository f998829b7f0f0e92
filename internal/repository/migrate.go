package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		filename TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		file_extension TEXT NOT NULL,
		file_size BIGINT NOT NULL DEFAULT 0,
		content_type TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		storage_path TEXT NOT NULL,
		source TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING'
			CHECK (status IN ('PENDING','QUEUED','PROCESSING','PROCESSED','FAILED')),
		retry_count INTEGER NOT NULL DEFAULT 0 CHECK (retry_count >= 0),
		error_message TEXT,
		attempt_id UUID,
		processing_started_at TIMESTAMPTZ,
		processing_completed_at TIMESTAMPTZ,
		extracted_text TEXT,
		summary TEXT,
		document_type_name TEXT,
		document_type_category TEXT,
		uploaded_by TEXT,
		uploaded_at TIMESTAMPTZ NOT NULL,
		processed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_uploaded_at ON documents (uploaded_at)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_is_deleted ON documents (is_deleted)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_content_hash ON documents (content_hash)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		file_extension TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		content_type TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		storage_path TEXT NOT NULL,
		source TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING'
			CHECK (status IN ('PENDING','QUEUED','PROCESSING','PROCESSED','FAILED')),
		retry_count INTEGER NOT NULL DEFAULT 0 CHECK (retry_count >= 0),
		error_message TEXT,
		attempt_id TEXT,
		processing_started_at DATETIME,
		processing_completed_at DATETIME,
		extracted_text TEXT,
		summary TEXT,
		document_type_name TEXT,
		document_type_category TEXT,
		uploaded_by TEXT,
		uploaded_at DATETIME NOT NULL,
		processed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		is_deleted BOOLEAN NOT NULL DEFAULT 0,
		deleted_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_uploaded_at ON documents (uploaded_at)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_is_deleted ON documents (is_deleted)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_content_hash ON documents (content_hash)`,
}

// Migrate creates the documents table for the driver's dialect.
func Migrate(ctx context.Context, drv *entsql.Driver) error {
	var stmts []string
	switch drv.Dialect() {
	case dialect.Postgres:
		stmts = postgresSchema
	case dialect.SQLite:
		stmts = sqliteSchema
	default:
		return fmt.Errorf("migrate: unsupported dialect %q", drv.Dialect())
	}
	for _, stmt := range stmts {
		if err := drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
