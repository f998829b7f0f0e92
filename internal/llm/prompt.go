package llm

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const SystemPrompt = "You are a document analyst. Read the document text and return ONLY JSON that matches the JSON Schema provided. " +
	"'summary' is a faithful summary of the document in a few sentences, in the document's language. " +
	"'document_type' is a short label for the kind of document (for example: invoice, contract, resume, report, letter). " +
	"'category' is a broad grouping such as finance, legal, hr, technical or personal. " +
	"Never invent facts that are not in the text. If a field cannot be determined, omit it."

// BuildUserPrompt wraps the document text, clipped to maxChars runes.
func BuildUserPrompt(text string, maxChars int) string {
	clipped, truncated := TruncateInput(text, maxChars)
	var b strings.Builder
	b.WriteString("Document text")
	if truncated {
		b.WriteString(" (truncated)")
	}
	b.WriteString(":\n\n")
	b.WriteString(clipped)
	b.WriteString("\n\nReturn ONLY JSON that matches the provided schema.")
	return b.String()
}

// TruncateInput clips s to max runes. max <= 0 means no limit.
func TruncateInput(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s, false
	}
	return string([]rune(s)[:max]), true
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// SchemaPrompt renders the output schema for inclusion in a prompt.
func SchemaPrompt() string {
	return "JSON Schema:\n" + mustJSON(BuildSummaryJSONSchema())
}
