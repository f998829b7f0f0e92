package vertex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"

	"github.com/joseph-ayodele/document-processor/internal/llm"
)

type Config struct {
	Project       string
	Region        string
	Model         string // default gemini-1.5-flash
	Temperature   float32
	MaxInputChars int
}

// Client summarizes documents with a Gemini model on Vertex AI.
type Client struct {
	cfg        Config
	baseClient *genai.Client
	model      *genai.GenerativeModel
	log        *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Project == "" || cfg.Region == "" {
		return nil, fmt.Errorf("vertex.NewClient: project and region cannot be empty")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}

	baseClient, err := genai.NewClient(ctx, cfg.Project, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := baseClient.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(llm.SystemPrompt + "\n\n" + llm.SchemaPrompt())},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(cfg.Temperature),
	}

	return &Client{cfg: cfg, baseClient: baseClient, model: model, log: logger}, nil
}

// Summarize implements llm.Summarizer.
func (c *Client) Summarize(ctx context.Context, text string) (llm.Summary, error) {
	if strings.TrimSpace(text) == "" {
		return llm.Summary{}, llm.ErrEmptyInput
	}
	start := time.Now()
	c.log.Info("llm.summarize.start", "provider", "vertex", "model", c.cfg.Model, "text_len", len(text))

	resp, err := c.model.GenerateContent(ctx, genai.Text(llm.BuildUserPrompt(text, c.cfg.MaxInputChars)))
	if err != nil {
		c.log.Error("llm.summarize.generate_error", "provider", "vertex", "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return llm.Summary{}, fmt.Errorf("vertex generate: %w", err)
	}

	content := responseText(resp)
	if content == "" {
		return llm.Summary{}, fmt.Errorf("vertex: empty response")
	}

	out, changed, err := llm.DecodeSummary([]byte(content))
	if err != nil {
		c.log.Error("llm.summarize.schema_validation_failed", "provider", "vertex", "error", err)
		return llm.Summary{}, err
	}
	if len(changed) > 0 {
		c.log.Warn("llm.summarize.lenient_sanitize_applied", "provider", "vertex", "changed", changed)
	}
	c.log.Info("llm.summarize.ok",
		"provider", "vertex",
		"document_type", out.DocumentType,
		"elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}

func (c *Client) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
