package llm

import (
	"strings"
	"testing"
)

func TestDecodeSummary(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		want        Summary
		wantChanged bool
		wantErr     bool
	}{
		{
			name: "strict",
			raw:  `{"summary":"A short contract.","document_type":"contract","category":"legal"}`,
			want: Summary{Text: "A short contract.", DocumentType: "contract", Category: "legal"},
		},
		{
			name: "summary only",
			raw:  `{"summary":"Meeting notes."}`,
			want: Summary{Text: "Meeting notes."},
		},
		{
			name:        "synonyms and unknown keys",
			raw:         `{"summary":"  Invoice for May. ","type":"invoice","confidence":0.9,"category":""}`,
			want:        Summary{Text: "Invoice for May.", DocumentType: "invoice"},
			wantChanged: true,
		},
		{
			name:    "missing summary",
			raw:     `{"document_type":"invoice"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     `Here is your summary`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed, err := DecodeSummary([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeSummary() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Fatalf("DecodeSummary() = %+v, want %+v", got, tt.want)
			}
			if (len(changed) > 0) != tt.wantChanged {
				t.Fatalf("changed = %v, wantChanged %v", changed, tt.wantChanged)
			}
		})
	}
}

func TestSanitizeClipsToColumnLimits(t *testing.T) {
	long := strings.Repeat("x", MaxCategoryLen+20)
	cleaned, _, err := SanitizeSummaryJSON([]byte(`{"summary":"ok","category":"` + long + `"}`))
	if err != nil {
		t.Fatalf("SanitizeSummaryJSON() error: %v", err)
	}
	got, _, err := DecodeSummary(cleaned)
	if err != nil {
		t.Fatalf("DecodeSummary() error: %v", err)
	}
	if len(got.Category) != MaxCategoryLen {
		t.Fatalf("category len = %d, want %d", len(got.Category), MaxCategoryLen)
	}
}

func TestBuildUserPromptTruncates(t *testing.T) {
	p := BuildUserPrompt("héllo world", 5)
	if !strings.Contains(p, "(truncated)") || !strings.Contains(p, "héllo\n") {
		t.Fatalf("prompt = %q", p)
	}
	p = BuildUserPrompt("short", 0)
	if strings.Contains(p, "(truncated)") {
		t.Fatalf("prompt unexpectedly truncated: %q", p)
	}
}
