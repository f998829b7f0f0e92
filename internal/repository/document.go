package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/document-processor/constants"
	"github.com/joseph-ayodele/document-processor/internal/entity"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrConditionFailed = errors.New("document status condition failed")
)

const documentsTable = "documents"

// Expect is the precondition of a conditional update.
// AttemptID, when set, pins the write to one processing attempt.
// RetryCount, when set, pins it to the retry count the caller read.
type Expect struct {
	Status     constants.DocumentStatus
	AttemptID  *uuid.UUID
	RetryCount *int
}

// StatusUpdate lists the fields written together with a status transition.
// Nil pointers leave a column untouched; the Clear flags null it.
// ClearOutputs nulls the success-only columns and is never combined with them.
type StatusUpdate struct {
	Status                constants.DocumentStatus
	RetryCount            *int
	ErrorMessage          *string
	ClearError            bool
	AttemptID             *uuid.UUID
	ClearAttempt          bool
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	ClearCompletedAt      bool
	ExtractedText         *string
	Summary               *string
	DocumentTypeName      *string
	DocumentTypeCategory  *string
	ProcessedAt           *time.Time
	ClearOutputs          bool
}

type DocumentRepository interface {
	Create(ctx context.Context, doc entity.NewDocument) (*entity.Document, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	GetByContentHash(ctx context.Context, hash string) (*entity.Document, error)
	GetByStatus(ctx context.Context, status constants.DocumentStatus) ([]*entity.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expect Expect, upd StatusUpdate) error
	GetProcessingOlderThan(ctx context.Context, age time.Duration) ([]*entity.Document, error)
	CountByStatus(ctx context.Context) (map[constants.DocumentStatus]int, error)
	ListUploadedSince(ctx context.Context, since time.Time) ([]*entity.Document, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Ping(ctx context.Context) error
}

type documentRepo struct {
	drv    *entsql.Driver
	logger *slog.Logger
	now    func() time.Time
}

// NewDocumentRepository builds the SQL store on top of an ent driver (postgres or sqlite).
func NewDocumentRepository(drv *entsql.Driver, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepo{
		drv:    drv,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var documentColumns = []string{
	"id", "filename", "original_filename", "file_extension", "file_size", "content_type", "content_hash",
	"storage_path", "source", "status", "retry_count", "error_message", "attempt_id",
	"processing_started_at", "processing_completed_at", "extracted_text", "summary",
	"document_type_name", "document_type_category", "uploaded_by", "uploaded_at", "processed_at",
	"created_at", "updated_at", "is_deleted", "deleted_at",
}

func (r *documentRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

// touch stamps updated_at on every write path.
func (r *documentRepo) touch(u *entsql.UpdateBuilder) *entsql.UpdateBuilder {
	return u.Set("updated_at", r.now())
}

func (r *documentRepo) Create(ctx context.Context, in entity.NewDocument) (*entity.Document, error) {
	now := r.now()
	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	uploadedAt := in.UploadedAt.UTC()
	if in.UploadedAt.IsZero() {
		uploadedAt = now
	}
	original := in.OriginalFilename
	if original == "" {
		original = in.Filename
	}

	query, args := r.builder().Insert(documentsTable).
		Columns("id", "filename", "original_filename", "file_extension", "file_size", "content_type",
			"content_hash", "storage_path", "source", "status", "retry_count", "uploaded_by",
			"uploaded_at", "created_at", "updated_at", "is_deleted").
		Values(id, in.Filename, original, in.FileExtension, in.FileSize, in.ContentType,
			in.ContentHash, in.StoragePath, string(in.Source), string(constants.StatusPending), 0, nullString(in.UploadedBy),
			uploadedAt, now, now, false).
		Query()
	if err := r.drv.Exec(ctx, query, args, nil); err != nil {
		r.logger.Error("failed to create document", "filename", in.Filename, "storage_path", in.StoragePath, "error", err)
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	docs, err := r.selectWhere(ctx, entsql.And(entsql.EQ("id", id), entsql.EQ("is_deleted", false)), "")
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

func (r *documentRepo) GetByContentHash(ctx context.Context, hash string) (*entity.Document, error) {
	docs, err := r.selectWhere(ctx, entsql.And(entsql.EQ("content_hash", hash), entsql.EQ("is_deleted", false)), entsql.Asc("uploaded_at"))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

func (r *documentRepo) GetByStatus(ctx context.Context, status constants.DocumentStatus) ([]*entity.Document, error) {
	docs, err := r.selectWhere(ctx,
		entsql.And(entsql.EQ("status", string(status)), entsql.EQ("is_deleted", false)),
		entsql.Asc("uploaded_at"))
	if err != nil {
		r.logger.Error("failed to list documents by status", "status", status, "error", err)
		return nil, err
	}
	return docs, nil
}

// UpdateStatus is a compare-and-swap: the row is written only if its persisted
// status (and attempt, when pinned) still matches expect.
func (r *documentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, expect Expect, upd StatusUpdate) error {
	if _, ok := constants.ParseStatus(string(upd.Status)); !ok {
		return fmt.Errorf("update status: invalid target status %q", upd.Status)
	}

	preds := []*entsql.Predicate{
		entsql.EQ("id", id),
		entsql.EQ("status", string(expect.Status)),
		entsql.EQ("is_deleted", false),
	}
	if expect.AttemptID != nil {
		preds = append(preds, entsql.EQ("attempt_id", *expect.AttemptID))
	}
	if expect.RetryCount != nil {
		preds = append(preds, entsql.EQ("retry_count", *expect.RetryCount))
	}

	u := r.touch(r.builder().Update(documentsTable)).Set("status", string(upd.Status))
	applyStatusUpdate(u, upd)
	query, args := u.Where(entsql.And(preds...)).Query()

	var res sql.Result
	if err := r.drv.Exec(ctx, query, args, &res); err != nil {
		r.logger.Error("failed to update document status", "document_id", id, "status", upd.Status, "error", err)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrConditionFailed
	}
	return nil
}

func applyStatusUpdate(u *entsql.UpdateBuilder, upd StatusUpdate) {
	if upd.RetryCount != nil {
		u.Set("retry_count", *upd.RetryCount)
	}
	switch {
	case upd.ErrorMessage != nil:
		u.Set("error_message", *upd.ErrorMessage)
	case upd.ClearError:
		u.SetNull("error_message")
	}
	switch {
	case upd.AttemptID != nil:
		u.Set("attempt_id", *upd.AttemptID)
	case upd.ClearAttempt:
		u.SetNull("attempt_id")
	}
	if upd.ProcessingStartedAt != nil {
		u.Set("processing_started_at", upd.ProcessingStartedAt.UTC())
	}
	switch {
	case upd.ProcessingCompletedAt != nil:
		u.Set("processing_completed_at", upd.ProcessingCompletedAt.UTC())
	case upd.ClearCompletedAt:
		u.SetNull("processing_completed_at")
	}
	if upd.ExtractedText != nil {
		u.Set("extracted_text", *upd.ExtractedText)
	}
	if upd.Summary != nil {
		u.Set("summary", *upd.Summary)
	}
	if upd.DocumentTypeName != nil {
		u.Set("document_type_name", *upd.DocumentTypeName)
	}
	if upd.DocumentTypeCategory != nil {
		u.Set("document_type_category", *upd.DocumentTypeCategory)
	}
	if upd.ProcessedAt != nil {
		u.Set("processed_at", upd.ProcessedAt.UTC())
	}
	if upd.ClearOutputs {
		for _, col := range outputColumns {
			u.SetNull(col)
		}
	}
}

// outputColumns are written only by a successful attempt.
var outputColumns = []string{"extracted_text", "summary", "document_type_name", "document_type_category", "processed_at"}

func (r *documentRepo) GetProcessingOlderThan(ctx context.Context, age time.Duration) ([]*entity.Document, error) {
	cutoff := r.now().Add(-age)
	docs, err := r.selectWhere(ctx,
		entsql.And(
			entsql.EQ("status", string(constants.StatusProcessing)),
			entsql.LT("processing_started_at", cutoff),
			entsql.EQ("is_deleted", false),
		),
		entsql.Asc("processing_started_at"))
	if err != nil {
		r.logger.Error("failed to list stuck documents", "cutoff", cutoff, "error", err)
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) CountByStatus(ctx context.Context) (map[constants.DocumentStatus]int, error) {
	b := r.builder()
	query, args := b.Select("status", entsql.Count("*")).
		From(b.Table(documentsTable)).
		Where(entsql.EQ("is_deleted", false)).
		GroupBy("status").
		Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[constants.DocumentStatus]int, len(constants.AllStatuses))
	for _, s := range constants.AllStatuses {
		counts[s] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[constants.DocumentStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *documentRepo) ListUploadedSince(ctx context.Context, since time.Time) ([]*entity.Document, error) {
	return r.selectWhere(ctx,
		entsql.And(entsql.GTE("uploaded_at", since.UTC()), entsql.EQ("is_deleted", false)),
		entsql.Desc("uploaded_at"))
}

func (r *documentRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	now := r.now()
	query, args := r.touch(r.builder().Update(documentsTable)).
		Set("is_deleted", true).
		Set("deleted_at", now).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("is_deleted", false))).
		Query()
	var res sql.Result
	if err := r.drv.Exec(ctx, query, args, &res); err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *documentRepo) Ping(ctx context.Context) error {
	return r.drv.DB().PingContext(ctx)
}

func (r *documentRepo) selectWhere(ctx context.Context, where *entsql.Predicate, orderBy string) ([]*entity.Document, error) {
	b := r.builder()
	sel := b.Select(documentColumns...).From(b.Table(documentsTable)).Where(where)
	if orderBy != "" {
		sel.OrderBy(orderBy)
	}
	query, args := sel.Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(&rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func scanDocument(rows *entsql.Rows) (*entity.Document, error) {
	var (
		d                                                    entity.Document
		source, status                                       string
		errMsg, text, summary, typeName, typeCat, uploadedBy sql.NullString
		attempt                                              uuid.NullUUID
		startedAt, completedAt, processedAt, deletedAt       sql.NullTime
	)
	err := rows.Scan(
		&d.ID, &d.Filename, &d.OriginalFilename, &d.FileExtension, &d.FileSize, &d.ContentType, &d.ContentHash,
		&d.StoragePath, &source, &status, &d.RetryCount, &errMsg, &attempt,
		&startedAt, &completedAt, &text, &summary,
		&typeName, &typeCat, &uploadedBy, &d.UploadedAt, &processedAt,
		&d.CreatedAt, &d.UpdatedAt, &d.IsDeleted, &deletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	d.Source = constants.DocumentSource(source)
	d.Status = constants.DocumentStatus(status)
	d.ErrorMessage = stringPtr(errMsg)
	if attempt.Valid {
		id := attempt.UUID
		d.AttemptID = &id
	}
	d.ProcessingStartedAt = timePtr(startedAt)
	d.ProcessingCompletedAt = timePtr(completedAt)
	d.ExtractedText = stringPtr(text)
	d.Summary = stringPtr(summary)
	d.DocumentTypeName = stringPtr(typeName)
	d.DocumentTypeCategory = stringPtr(typeCat)
	d.UploadedBy = stringPtr(uploadedBy)
	d.ProcessedAt = timePtr(processedAt)
	d.DeletedAt = timePtr(deletedAt)
	return &d, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
