package common

import (
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestValidateDocumentID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		ok   bool
	}{
		{"uuid", "7b0c3f0e-2f4b-4a53-9c1e-5b0f6a2d9e01", true},
		{"empty", "", false},
		{"blank", "   ", false},
		{"not a uuid", "doc-1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocumentID(tt.id)
			if tt.ok {
				if err != nil {
					t.Fatalf("ValidateDocumentID(%q) error: %v", tt.id, err)
				}
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("ValidateDocumentID(%q) error = %v, want ErrValidation", tt.id, err)
			}
		})
	}
}

func TestValidatorCollectsEveryRule(t *testing.T) {
	v := NewValidator().
		Field("timeoutMinutes", 0, Positive).
		Field("document_id", "x", Required, UUID)
	if !v.HasErrors() {
		t.Fatalf("HasErrors() = false")
	}
	if got := len(v.errors); got != 2 {
		t.Fatalf("collected %d errors, want 2: %s", got, v.ErrorMessage())
	}
	if NewValidator().Field("timeoutMinutes", 5, Positive).Err() != nil {
		t.Fatalf("positive value rejected")
	}
}

func TestInvalidArgumentErrorf(t *testing.T) {
	err := InvalidArgumentErrorf("timeout: %s", "bad")
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want InvalidArgument", status.Code(err))
	}
	if got := status.Convert(err).Message(); got != "timeout: bad" {
		t.Fatalf("message = %q", got)
	}
}
