package validation

import (
	"errors"
	"testing"
)

type sample struct {
	Name  string  `json:"name" binding:"required,max=8"`
	Email *string `json:"email,omitempty" binding:"omitempty,email"`
	Port  string  `yaml:"port" binding:"required"`
}

func TestValidateStruct(t *testing.T) {
	bad := "not-an-email"
	good := "canna@example.com"
	tests := []struct {
		name       string
		have       sample
		wantFields map[string]any
	}{
		{"valid", sample{Name: "canna", Email: &good, Port: ":8080"}, nil},
		{"missing name", sample{Port: ":8080"}, map[string]any{"name": "required"}},
		{"too long", sample{Name: "puppito-the-great", Port: ":8080"}, map[string]any{"name": "max"}},
		{"bad email and port", sample{Name: "canna", Email: &bad}, map[string]any{"email": "email", "port": "required"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.have)
			if tt.wantFields == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			got := Fields(err)
			if len(got) != len(tt.wantFields) {
				t.Fatalf("Fields() = %#v, want %#v", got, tt.wantFields)
			}
			for k, v := range tt.wantFields {
				if got[k] != v {
					t.Errorf("Fields()[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestValidateStructIgnoresNonStructs(t *testing.T) {
	if err := ValidateStruct(map[string]string{"a": "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Fields(errors.New("boom")) != nil {
		t.Fatalf("expected nil fields for non-validation error")
	}
}
