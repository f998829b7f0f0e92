package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/joseph-ayodele/document-processor/constants"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	TessdataDir   string
	DPI           int // rasterization DPI for scanned PDFs, default 300
	MaxPages      int // 0 = no limit

	MaxTextBytes int64 // plain-text files larger than this are rejected, default 10MB
}

func (c *Config) defaults() {
	if c.Pdftotext == "" {
		c.Pdftotext = "pdftotext"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.TesseractLang == "" {
		c.TesseractLang = "eng"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	if c.MaxTextBytes <= 0 {
		c.MaxTextBytes = 10 << 20
	}
}

// PlainText reads text files as-is.
type PlainText struct {
	maxBytes int64
}

func (p PlainText) ExtractFile(_ context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{SourceType: constants.TEXT}, err
	}
	defer f.Close()

	b, err := io.ReadAll(io.LimitReader(f, p.maxBytes+1))
	if err != nil {
		return Result{SourceType: constants.TEXT}, err
	}
	if int64(len(b)) > p.maxBytes {
		return Result{SourceType: constants.TEXT}, fmt.Errorf("%w: %s is larger than %d bytes", ErrFileTooLarge, filepath.Base(path), p.maxBytes)
	}
	var warns []string
	if !utf8.Valid(b) {
		warns = append(warns, "invalid utf-8 sequences dropped")
	}
	return Result{
		Text:       Normalize(string(b)),
		Pages:      1,
		SourceType: constants.TEXT,
		Method:     "plain-text",
		Warnings:   warns,
	}, nil
}

// PDF validates the file with pdfcpu, then tries the text layer and falls back
// to rasterize + OCR for scanned documents.
type PDF struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func (p PDF) ExtractFile(ctx context.Context, path string) (Result, error) {
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return Result{SourceType: constants.PDF}, fmt.Errorf("invalid pdf: %w", err)
	}

	text, warns, err := p.pdfToText(ctx, path)
	if err == nil && strings.TrimSpace(text) != "" {
		return Result{
			Text:       Normalize(text),
			Pages:      pageCount,
			SourceType: constants.PDF,
			Method:     "pdf-text",
			Warnings:   warns,
		}, nil
	}
	if err != nil {
		p.logger.Warn("pdftotext failed, falling back to ocr", "path", path, "error", err)
		warns = append(warns, err.Error())
	}

	ocrText, ocrPages, ocrWarns, err := p.pdfToOCR(ctx, path)
	warns = append(warns, ocrWarns...)
	if err != nil {
		return Result{SourceType: constants.PDF, Pages: pageCount, Warnings: warns}, err
	}
	return Result{
		Text:       Normalize(ocrText),
		Pages:      ocrPages,
		SourceType: constants.PDF,
		Method:     "pdf-ocr",
		Warnings:   warns,
	}, nil
}

func (p PDF) pdfToText(ctx context.Context, path string) (string, []string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := p.runner.Run(ctx, p.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", []string{string(errb)}, fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil, nil
}

func (p PDF) pdfToOCR(ctx context.Context, path string) (string, int, []string, error) {
	tmpDir, err := os.MkdirTemp("", "dp-pp-*")
	if err != nil {
		return "", 0, nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			p.logger.Warn("failed to remove temp dir", "path", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := p.runner.Run(ctx, p.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", p.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", 0, []string{string(errb)}, fmt.Errorf("pdftoppm: %w", err)
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if p.cfg.MaxPages > 0 && len(matches) > p.cfg.MaxPages {
		matches = matches[:p.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, []string{"pdftoppm produced no images"}, ErrEmptyContent
	}

	img := Image{cfg: p.cfg, runner: p.runner}
	var b strings.Builder
	var warns []string
	for _, page := range matches {
		txt, err := img.tesseract(ctx, page)
		if err != nil {
			warns = append(warns, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(txt)
	}
	return b.String(), len(matches), warns, nil
}

// Image runs tesseract on a single image.
type Image struct {
	cfg    Config
	runner Runner
}

func (i Image) ExtractFile(ctx context.Context, path string) (Result, error) {
	txt, err := i.tesseract(ctx, path)
	if err != nil {
		return Result{SourceType: constants.IMAGE}, err
	}
	return Result{
		Text:       Normalize(txt),
		Pages:      1,
		SourceType: constants.IMAGE,
		Method:     "image-ocr",
	}, nil
}

func (i Image) tesseract(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout", "-l", i.cfg.TesseractLang}
	if i.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", i.cfg.TessdataDir)
	}
	// tesseract <file> stdout -l <lang>
	out, errb, err := i.runner.Run(ctx, i.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return reBoxNoise.ReplaceAllString(string(out), ""), nil
}
