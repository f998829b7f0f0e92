package extract

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type stubRunner struct {
	calls  []string
	stdout string
	err    error
}

func (r *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	if r.err != nil {
		return nil, []byte("stub failure"), r.err
	}
	return []byte(r.stdout), nil, nil
}

func newTestService(t *testing.T, runner Runner) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc := NewService(Config{}, LocalSource{BaseDir: dir}, runner, slog.New(slog.DiscardHandler))
	return svc, dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestExtractPlainText(t *testing.T) {
	svc, dir := newTestService(t, &stubRunner{})
	writeFile(t, dir, "note.txt", "hello\r\nworld\t\tagain\n\n\n\nend  ")

	res, err := svc.Extract(context.Background(), "note.txt")
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if want := "hello\nworld again\n\nend"; res.Text != want {
		t.Fatalf("Text = %q, want %q", res.Text, want)
	}
	if res.Method != "plain-text" || res.SourceType != "TEXT" {
		t.Fatalf("Method=%s SourceType=%s", res.Method, res.SourceType)
	}
}

func TestExtractEmptyTextFails(t *testing.T) {
	svc, dir := newTestService(t, &stubRunner{})
	writeFile(t, dir, "blank.md", "   \n\n")

	if _, err := svc.Extract(context.Background(), "blank.md"); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("Extract() error = %v, want ErrEmptyContent", err)
	}
}

func TestExtractUnsupportedExtension(t *testing.T) {
	svc, dir := newTestService(t, &stubRunner{})
	writeFile(t, dir, "archive.zip", "PK")

	if _, err := svc.Extract(context.Background(), "archive.zip"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Extract() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExtractMissingFile(t *testing.T) {
	svc, _ := newTestService(t, &stubRunner{})
	if _, err := svc.Extract(context.Background(), "missing.txt"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Extract() error = %v, want fs.ErrNotExist", err)
	}
}

func TestExtractImageUsesTesseract(t *testing.T) {
	runner := &stubRunner{stdout: "INVOICE 42\n-----\ntotal 10"}
	svc, dir := newTestService(t, runner)
	writeFile(t, dir, "scan.png", "not really a png")

	res, err := svc.Extract(context.Background(), "scan.png")
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if res.Text != "INVOICE 42\n\ntotal 10" {
		t.Fatalf("Text = %q", res.Text)
	}
	if len(runner.calls) != 1 || !strings.HasPrefix(runner.calls[0], "tesseract ") {
		t.Fatalf("calls = %v, want one tesseract call", runner.calls)
	}
}

func TestExtractImageRunnerFailure(t *testing.T) {
	svc, dir := newTestService(t, &stubRunner{err: errors.New("exit status 1")})
	writeFile(t, dir, "scan.jpg", "x")

	_, err := svc.Extract(context.Background(), "scan.jpg")
	if err == nil || !strings.Contains(err.Error(), "tesseract") {
		t.Fatalf("Extract() error = %v, want tesseract failure", err)
	}
}

func TestExtractInvalidPDF(t *testing.T) {
	runner := &stubRunner{stdout: "text"}
	svc, dir := newTestService(t, runner)
	writeFile(t, dir, "broken.pdf", "this is not a pdf")

	_, err := svc.Extract(context.Background(), "broken.pdf")
	if err == nil || !strings.Contains(err.Error(), "invalid pdf") {
		t.Fatalf("Extract() error = %v, want invalid pdf", err)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("external tools ran for an invalid pdf: %v", runner.calls)
	}
}

func TestRegisterOverridesFormat(t *testing.T) {
	svc, dir := newTestService(t, &stubRunner{})
	writeFile(t, dir, "doc.pdf", "%PDF")
	svc.Register("PDF", formatFunc(func(context.Context, string) (Result, error) {
		return Result{Text: "custom", SourceType: "PDF", Method: "custom"}, nil
	}))

	res, err := svc.Extract(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if res.Text != "custom" {
		t.Fatalf("Text = %q, want custom", res.Text)
	}
}

type formatFunc func(ctx context.Context, path string) (Result, error)

func (f formatFunc) ExtractFile(ctx context.Context, path string) (Result, error) { return f(ctx, path) }
