package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/document-processor/internal/entity"
)

const (
	summarySheet   = "Summary"
	documentsSheet = "Documents"
	unclassified   = "Unclassified"
)

// DocumentLister is the slice of the document store the report reads.
type DocumentLister interface {
	ListUploadedSince(ctx context.Context, since time.Time) ([]*entity.Document, error)
}

// Service produces XLSX status reports over stored documents.
type Service struct {
	repo   DocumentLister
	logger *slog.Logger
}

func NewService(repo DocumentLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ReportXLSX returns a workbook covering documents uploaded since the given
// time (zero means all). The Summary sheet groups by document type and status;
// the Documents sheet lists each document, newest first.
func (s *Service) ReportXLSX(ctx context.Context, since time.Time) ([]byte, error) {
	start := time.Now()
	docs, err := s.repo.ListUploadedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	counts := SummarizeByTypeAndStatus(docs)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(documentsSheet); err != nil {
		return nil, err
	}

	if err := writeRows(f, summarySheet, []any{
		"Document Type", "Status", "Count", "Avg Processing (s)", "First Uploaded", "Last Uploaded",
	}, len(counts), func(i int) []any {
		c := counts[i]
		return []any{c.DocumentType, string(c.Status), c.Count, round2(c.AvgProcessingSeconds), formatTime(c.FirstUploadedAt), formatTime(c.LastUploadedAt)}
	}); err != nil {
		return nil, err
	}

	if err := writeRows(f, documentsSheet, []any{
		"ID", "Filename", "Status", "Retries", "Document Type", "Category", "Uploaded", "Processed", "Error",
	}, len(docs), func(i int) []any {
		d := docs[i]
		return []any{
			d.ID.String(), d.Filename, string(d.Status), d.RetryCount,
			deref(d.DocumentTypeName), deref(d.DocumentTypeCategory),
			formatTime(&d.UploadedAt), formatTime(d.ProcessedAt),
			truncate(deref(d.ErrorMessage), 200),
		}
	}); err != nil {
		return nil, err
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 24)
	_ = f.SetColWidth(summarySheet, "B", "D", 16)
	_ = f.SetColWidth(summarySheet, "E", "F", 22)
	_ = f.SetColWidth(documentsSheet, "A", "A", 38)
	_ = f.SetColWidth(documentsSheet, "B", "B", 32)
	_ = f.SetColWidth(documentsSheet, "E", "H", 20)
	_ = f.SetColWidth(documentsSheet, "I", "I", 60)
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"documents", len(docs),
		"groups", len(counts),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// SummarizeByTypeAndStatus groups documents by type name and status, with the
// average processing time of documents that completed an attempt.
func SummarizeByTypeAndStatus(docs []*entity.Document) []entity.StatusCount {
	type key struct {
		typ    string
		status string
	}
	type acc struct {
		entity.StatusCount
		timed   int
		seconds float64
	}
	groups := make(map[key]*acc)
	for _, d := range docs {
		typ := deref(d.DocumentTypeName)
		if typ == "" {
			typ = unclassified
		}
		k := key{typ, string(d.Status)}
		g, ok := groups[k]
		if !ok {
			g = &acc{StatusCount: entity.StatusCount{DocumentType: typ, Status: d.Status}}
			groups[k] = g
		}
		g.Count++
		if dur, ok := d.ProcessingDuration(); ok {
			g.timed++
			g.seconds += dur.Seconds()
		}
		up := d.UploadedAt
		if g.FirstUploadedAt == nil || up.Before(*g.FirstUploadedAt) {
			g.FirstUploadedAt = &up
		}
		if g.LastUploadedAt == nil || up.After(*g.LastUploadedAt) {
			g.LastUploadedAt = &up
		}
	}

	out := make([]entity.StatusCount, 0, len(groups))
	for _, g := range groups {
		if g.timed > 0 {
			g.AvgProcessingSeconds = g.seconds / float64(g.timed)
		}
		out = append(out, g.StatusCount)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentType != out[j].DocumentType {
			return out[i].DocumentType < out[j].DocumentType
		}
		return out[i].Status < out[j].Status
	})
	return out
}

func writeRows(f *excelize.File, sheet string, header []any, n int, row func(int) []any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := row(i)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
