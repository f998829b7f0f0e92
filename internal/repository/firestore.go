package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/document-processor/constants"
	"github.com/joseph-ayodele/document-processor/internal/entity"
)

// NewFirestoreClient creates a Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// fsDocument is the Firestore shape of a document.
type fsDocument struct {
	Filename              string     `firestore:"filename"`
	OriginalFilename      string     `firestore:"originalFilename"`
	FileExtension         string     `firestore:"fileExtension"`
	FileSize              int64      `firestore:"fileSize"`
	ContentType           string     `firestore:"contentType"`
	ContentHash           string     `firestore:"contentHash"`
	StoragePath           string     `firestore:"storagePath"`
	Source                string     `firestore:"source"`
	Status                string     `firestore:"status"`
	RetryCount            int        `firestore:"retryCount"`
	ErrorMessage          *string    `firestore:"errorMessage"`
	AttemptID             *string    `firestore:"attemptId"`
	ProcessingStartedAt   *time.Time `firestore:"processingStartedAt"`
	ProcessingCompletedAt *time.Time `firestore:"processingCompletedAt"`
	ExtractedText         *string    `firestore:"extractedText"`
	Summary               *string    `firestore:"summary"`
	DocumentTypeName      *string    `firestore:"documentTypeName"`
	DocumentTypeCategory  *string    `firestore:"documentTypeCategory"`
	UploadedBy            *string    `firestore:"uploadedBy"`
	UploadedAt            time.Time  `firestore:"uploadedAt"`
	ProcessedAt           *time.Time `firestore:"processedAt"`
	CreatedAt             time.Time  `firestore:"createdAt"`
	UpdatedAt             time.Time  `firestore:"updatedAt"`
	IsDeleted             bool       `firestore:"isDeleted"`
	DeletedAt             *time.Time `firestore:"deletedAt"`
}

type firestoreRepo struct {
	client     *firestore.Client
	collection string
	logger     *slog.Logger
	now        func() time.Time
}

// NewFirestoreRepository stores documents in a Firestore collection.
// Conditional updates run inside transactions.
func NewFirestoreRepository(client *firestore.Client, collection string, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	if collection == "" {
		collection = documentsTable
	}
	return &firestoreRepo{
		client:     client,
		collection: collection,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *firestoreRepo) col() *firestore.CollectionRef {
	return r.client.Collection(r.collection)
}

func (r *firestoreRepo) Create(ctx context.Context, in entity.NewDocument) (*entity.Document, error) {
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
	rec := fsDocument{
		Filename:         in.Filename,
		OriginalFilename: original,
		FileExtension:    in.FileExtension,
		FileSize:         in.FileSize,
		ContentType:      in.ContentType,
		ContentHash:      in.ContentHash,
		StoragePath:      in.StoragePath,
		Source:           string(in.Source),
		Status:           string(constants.StatusPending),
		UploadedBy:       in.UploadedBy,
		UploadedAt:       uploadedAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if _, err := r.col().Doc(id.String()).Create(ctx, rec); err != nil {
		r.logger.Error("failed to create document", "filename", in.Filename, "error", err)
		return nil, err
	}
	return rec.toEntity(id)
}

func (r *firestoreRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	snap, err := r.col().Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	doc, err := fromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	if doc.IsDeleted {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (r *firestoreRepo) GetByContentHash(ctx context.Context, hash string) (*entity.Document, error) {
	docs, err := r.list(ctx, r.col().Where("contentHash", "==", hash))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	sortByUploaded(docs, false)
	return docs[0], nil
}

func (r *firestoreRepo) GetByStatus(ctx context.Context, s constants.DocumentStatus) ([]*entity.Document, error) {
	docs, err := r.list(ctx, r.col().Where("status", "==", string(s)))
	if err != nil {
		r.logger.Error("failed to list documents by status", "status", s, "error", err)
		return nil, err
	}
	sortByUploaded(docs, false)
	return docs, nil
}

func (r *firestoreRepo) UpdateStatus(ctx context.Context, id uuid.UUID, expect Expect, upd StatusUpdate) error {
	if _, ok := constants.ParseStatus(string(upd.Status)); !ok {
		return fmt.Errorf("update status: invalid target status %q", upd.Status)
	}
	ref := r.col().Doc(id.String())
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return err
		}
		var cur fsDocument
		if err := snap.DataTo(&cur); err != nil {
			return err
		}
		if cur.IsDeleted {
			return ErrNotFound
		}
		if cur.Status != string(expect.Status) {
			return ErrConditionFailed
		}
		if expect.AttemptID != nil && (cur.AttemptID == nil || *cur.AttemptID != expect.AttemptID.String()) {
			return ErrConditionFailed
		}
		if expect.RetryCount != nil && cur.RetryCount != *expect.RetryCount {
			return ErrConditionFailed
		}
		return tx.Update(ref, r.firestoreUpdates(upd))
	})
	if err != nil && !errors.Is(err, ErrConditionFailed) && !errors.Is(err, ErrNotFound) {
		r.logger.Error("failed to update document status", "document_id", id, "status", upd.Status, "error", err)
	}
	return err
}

func (r *firestoreRepo) firestoreUpdates(upd StatusUpdate) []firestore.Update {
	updates := []firestore.Update{
		{Path: "status", Value: string(upd.Status)},
		{Path: "updatedAt", Value: r.now()},
	}
	if upd.RetryCount != nil {
		updates = append(updates, firestore.Update{Path: "retryCount", Value: *upd.RetryCount})
	}
	switch {
	case upd.ErrorMessage != nil:
		updates = append(updates, firestore.Update{Path: "errorMessage", Value: *upd.ErrorMessage})
	case upd.ClearError:
		updates = append(updates, firestore.Update{Path: "errorMessage", Value: nil})
	}
	switch {
	case upd.AttemptID != nil:
		updates = append(updates, firestore.Update{Path: "attemptId", Value: upd.AttemptID.String()})
	case upd.ClearAttempt:
		updates = append(updates, firestore.Update{Path: "attemptId", Value: nil})
	}
	if upd.ProcessingStartedAt != nil {
		updates = append(updates, firestore.Update{Path: "processingStartedAt", Value: upd.ProcessingStartedAt.UTC()})
	}
	switch {
	case upd.ProcessingCompletedAt != nil:
		updates = append(updates, firestore.Update{Path: "processingCompletedAt", Value: upd.ProcessingCompletedAt.UTC()})
	case upd.ClearCompletedAt:
		updates = append(updates, firestore.Update{Path: "processingCompletedAt", Value: nil})
	}
	if upd.ExtractedText != nil {
		updates = append(updates, firestore.Update{Path: "extractedText", Value: *upd.ExtractedText})
	}
	if upd.Summary != nil {
		updates = append(updates, firestore.Update{Path: "summary", Value: *upd.Summary})
	}
	if upd.DocumentTypeName != nil {
		updates = append(updates, firestore.Update{Path: "documentTypeName", Value: *upd.DocumentTypeName})
	}
	if upd.DocumentTypeCategory != nil {
		updates = append(updates, firestore.Update{Path: "documentTypeCategory", Value: *upd.DocumentTypeCategory})
	}
	if upd.ProcessedAt != nil {
		updates = append(updates, firestore.Update{Path: "processedAt", Value: upd.ProcessedAt.UTC()})
	}
	if upd.ClearOutputs {
		for _, path := range []string{"extractedText", "summary", "documentTypeName", "documentTypeCategory", "processedAt"} {
			updates = append(updates, firestore.Update{Path: path, Value: nil})
		}
	}
	return updates
}

func (r *firestoreRepo) GetProcessingOlderThan(ctx context.Context, age time.Duration) ([]*entity.Document, error) {
	cutoff := r.now().Add(-age)
	q := r.col().
		Where("status", "==", string(constants.StatusProcessing)).
		Where("processingStartedAt", "<", cutoff)
	docs, err := r.list(ctx, q)
	if err != nil {
		r.logger.Error("failed to list stuck documents", "cutoff", cutoff, "error", err)
		return nil, err
	}
	return docs, nil
}

func (r *firestoreRepo) CountByStatus(ctx context.Context) (map[constants.DocumentStatus]int, error) {
	counts := make(map[constants.DocumentStatus]int, len(constants.AllStatuses))
	for _, s := range constants.AllStatuses {
		q := r.col().Where("status", "==", string(s)).Where("isDeleted", "==", false)
		res, err := q.NewAggregationQuery().WithCount("all").Get(ctx)
		if err != nil {
			return nil, err
		}
		v, ok := res["all"].(*firestorepb.Value)
		if !ok {
			return nil, fmt.Errorf("count %s: unexpected aggregation result %T", s, res["all"])
		}
		counts[s] = int(v.GetIntegerValue())
	}
	return counts, nil
}

func (r *firestoreRepo) ListUploadedSince(ctx context.Context, since time.Time) ([]*entity.Document, error) {
	docs, err := r.list(ctx, r.col().Where("uploadedAt", ">=", since.UTC()))
	if err != nil {
		return nil, err
	}
	sortByUploaded(docs, true)
	return docs, nil
}

func (r *firestoreRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	ref := r.col().Doc(id.String())
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return err
		}
		deleted, err := snap.DataAt("isDeleted")
		if err == nil && deleted == true {
			return ErrNotFound
		}
		now := r.now()
		return tx.Update(ref, []firestore.Update{
			{Path: "isDeleted", Value: true},
			{Path: "deletedAt", Value: now},
			{Path: "updatedAt", Value: now},
		})
	})
}

func (r *firestoreRepo) Ping(ctx context.Context) error {
	_, err := r.col().Limit(1).Documents(ctx).GetAll()
	return err
}

// list runs q and drops soft-deleted documents.
func (r *firestoreRepo) list(ctx context.Context, q firestore.Query) ([]*entity.Document, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*entity.Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		doc, err := fromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		if doc.IsDeleted {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

func fromSnapshot(snap *firestore.DocumentSnapshot) (*entity.Document, error) {
	var rec fsDocument
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", snap.Ref.ID, err)
	}
	id, err := uuid.Parse(snap.Ref.ID)
	if err != nil {
		return nil, fmt.Errorf("decode document id %q: %w", snap.Ref.ID, err)
	}
	return rec.toEntity(id)
}

func (f fsDocument) toEntity(id uuid.UUID) (*entity.Document, error) {
	d := &entity.Document{
		ID:                    id,
		Filename:              f.Filename,
		OriginalFilename:      f.OriginalFilename,
		FileExtension:         f.FileExtension,
		FileSize:              f.FileSize,
		ContentType:           f.ContentType,
		ContentHash:           f.ContentHash,
		StoragePath:           f.StoragePath,
		Source:                constants.DocumentSource(f.Source),
		Status:                constants.DocumentStatus(f.Status),
		RetryCount:            f.RetryCount,
		ErrorMessage:          f.ErrorMessage,
		ProcessingStartedAt:   f.ProcessingStartedAt,
		ProcessingCompletedAt: f.ProcessingCompletedAt,
		ExtractedText:         f.ExtractedText,
		Summary:               f.Summary,
		DocumentTypeName:      f.DocumentTypeName,
		DocumentTypeCategory:  f.DocumentTypeCategory,
		UploadedBy:            f.UploadedBy,
		UploadedAt:            f.UploadedAt,
		ProcessedAt:           f.ProcessedAt,
		CreatedAt:             f.CreatedAt,
		UpdatedAt:             f.UpdatedAt,
		IsDeleted:             f.IsDeleted,
		DeletedAt:             f.DeletedAt,
	}
	if f.AttemptID != nil {
		a, err := uuid.Parse(*f.AttemptID)
		if err != nil {
			return nil, fmt.Errorf("decode attempt id: %w", err)
		}
		d.AttemptID = &a
	}
	return d, nil
}

func sortByUploaded(docs []*entity.Document, desc bool) {
	sort.SliceStable(docs, func(i, j int) bool {
		if desc {
			return docs[i].UploadedAt.After(docs[j].UploadedAt)
		}
		return docs[i].UploadedAt.Before(docs[j].UploadedAt)
	})
}
