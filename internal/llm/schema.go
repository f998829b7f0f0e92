package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Column limits of the documents table.
const (
	MaxDocumentTypeLen = 255
	MaxCategoryLen     = 100
)

// BuildSummaryJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// We send it to the model as the output contract and also use it locally to validate.
func BuildSummaryJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"summary":       map[string]any{"type": "string", "minLength": 1},
			"document_type": map[string]any{"type": "string", "maxLength": MaxDocumentTypeLen},
			"category":      map[string]any{"type": "string", "maxLength": MaxCategoryLen},
		},
		"required": []string{"summary"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// DecodeSummary validates raw model output and decodes it. Output that fails
// the strict schema gets one sanitize pass before it is rejected.
func DecodeSummary(raw []byte) (Summary, []string, error) {
	schema := BuildSummaryJSONSchema()
	var changed []string
	if err := ValidateJSONAgainstSchema(schema, raw); err != nil {
		cleaned, c, sErr := SanitizeSummaryJSON(raw)
		if sErr != nil {
			return Summary{}, nil, fmt.Errorf("sanitize failed: %w", sErr)
		}
		if vErr := ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			return Summary{}, c, fmt.Errorf("schema validation failed: %w", vErr)
		}
		raw, changed = cleaned, c
	}
	var out Summary
	if err := json.Unmarshal(raw, &out); err != nil {
		return Summary{}, changed, fmt.Errorf("unmarshal summary: %w", err)
	}
	return out, changed, nil
}
