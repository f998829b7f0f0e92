package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

var summarySynonyms = map[string]string{
	"text":              "summary",
	"abstract":          "summary",
	"type":              "document_type",
	"doc_type":          "document_type",
	"documentType":      "document_type",
	"document_kind":     "document_type",
	"document_category": "category",
}

// summaryFields maps each schema key to its rune limit (0 = unlimited).
var summaryFields = map[string]int{
	"summary":       0,
	"document_type": MaxDocumentTypeLen,
	"category":      MaxCategoryLen,
}

// SanitizeSummaryJSON renames known synonyms, trims strings, drops empty
// optionals and unknown keys, and clips fields to their column limits.
// It returns the cleaned JSON and the list of keys it touched.
func SanitizeSummaryJSON(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var changed []string
	for from, to := range summarySynonyms {
		v, ok := m[from]
		if !ok {
			continue
		}
		if _, exists := m[to]; !exists {
			m[to] = v
		}
		delete(m, from)
		changed = append(changed, from+"->"+to)
	}

	out := map[string]any{}
	for k, v := range m {
		limit, known := summaryFields[k]
		if !known {
			changed = append(changed, "-"+k)
			continue
		}
		s, ok := v.(string)
		if !ok {
			if v == nil {
				changed = append(changed, "-"+k)
				continue
			}
			s = fmt.Sprint(v)
			changed = append(changed, k)
		}
		s = strings.TrimSpace(s)
		if s == "" && k != "summary" {
			changed = append(changed, "-"+k)
			continue
		}
		if limit > 0 && utf8.RuneCountInString(s) > limit {
			s = string([]rune(s)[:limit])
			changed = append(changed, k)
		}
		out[k] = s
	}

	b, err := json.Marshal(out)
	if err != nil {
		return nil, changed, fmt.Errorf("sanitize: encode: %w", err)
	}
	return b, changed, nil
}
