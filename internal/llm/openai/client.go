package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/document-processor/internal/llm"
)

// Summarize implements llm.Summarizer using chat/completions in JSON mode.
func (c *Client) Summarize(ctx context.Context, text string) (llm.Summary, error) {
	if strings.TrimSpace(text) == "" {
		return llm.Summary{}, llm.ErrEmptyInput
	}
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.summarize.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(text),
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.SystemPrompt},
			{"role": "user", "content": llm.BuildUserPrompt(text, c.cfg.MaxInputChars)},
			{"role": "system", "content": llm.SchemaPrompt()},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, _, httpErr := llm.SendJSON(ctx, c.httpClient, endpoint, body, headers, c.log)
	if httpErr != nil {
		c.log.Error("llm.summarize.http_error",
			"req_id", rid, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Summary{}, fmt.Errorf("openai: %w", httpErr)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.summarize.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Summary{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.log.Error("llm.summarize.no_choices",
			"req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Summary{}, fmt.Errorf("no choices in openai response")
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)

	out, changed, err := llm.DecodeSummary([]byte(content))
	if err != nil {
		c.log.Error("llm.summarize.schema_validation_failed",
			"req_id", rid, "error", err, "content_bytes", len(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Summary{}, err
	}
	if len(changed) > 0 {
		c.log.Warn("llm.summarize.lenient_sanitize_applied", "req_id", rid, "changed", changed)
	}

	c.log.Info("llm.summarize.ok",
		"req_id", rid,
		"document_type", out.DocumentType,
		"category", out.Category,
		"summary_len", len(out.Text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
