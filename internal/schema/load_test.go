package schema

import (
	"errors"
	"strings"
	"testing"
)

const validDoc = `
form_name: Test Form
version: "1.0"
sections:
  - name: first
    label: Bagian Pertama
    required_field_count: 1
    fields:
      - name: nama
        label: Nama
        type: short-text
        required: true
      - name: warna
        label: Warna
        type: single-select
        allowed_values: ["Merah", "Biru"]
  - name: second
    label: Bagian Kedua
    required_field_count: 0
    fields:
      - name: catatan
        label: Catatan
        type: long-text
`

func TestLoad_Valid(t *testing.T) {
	f, err := Load([]byte(validDoc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.FormName != "Test Form" {
		t.Errorf("FormName = %q", f.FormName)
	}
	if len(f.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(f.Sections))
	}
	if f.FirstSection() != "first" {
		t.Errorf("FirstSection = %q", f.FirstSection())
	}
}

func TestLoad_Failures(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{
			name:    "no sections",
			doc:     "form_name: x\nsections: []\n",
			wantMsg: "no sections",
		},
		{
			name: "duplicate section name",
			doc: `
sections:
  - name: a
    fields: [{name: f1, label: F1, type: short-text}]
  - name: a
    fields: [{name: f2, label: F2, type: short-text}]
`,
			wantMsg: "duplicate section",
		},
		{
			name: "section without fields",
			doc: `
sections:
  - name: a
    fields: []
`,
			wantMsg: "no fields",
		},
		{
			name: "duplicate field across sections",
			doc: `
sections:
  - name: a
    fields: [{name: f1, label: F1, type: short-text}]
  - name: b
    fields: [{name: f1, label: F1, type: short-text}]
`,
			wantMsg: "must be unique",
		},
		{
			name: "unknown field type",
			doc: `
sections:
  - name: a
    fields: [{name: f1, label: F1, type: checkbox}]
`,
			wantMsg: "type",
		},
		{
			name: "single-select without allowed values",
			doc: `
sections:
  - name: a
    fields: [{name: f1, label: F1, type: single-select}]
`,
			wantMsg: "allowed_values",
		},
		{
			name: "invalid validation pattern",
			doc: `
sections:
  - name: a
    fields: [{name: f1, label: F1, type: short-text, validation_pattern: "["}]
`,
			wantMsg: "pattern",
		},
		{
			name: "depends_on references unknown field",
			doc: `
sections:
  - name: a
    fields:
      - name: f1
        label: F1
        type: short-text
        depends_on: {ghost: ["x"]}
`,
			wantMsg: "ghost",
		},
		{
			name: "negative required count",
			doc: `
sections:
  - name: a
    required_field_count: -1
    fields: [{name: f1, label: F1, type: short-text}]
`,
			wantMsg: "required_field_count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("error type = %T, want *SchemaError (%v)", err, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestDefault_IsValid(t *testing.T) {
	f := Default()
	if len(f.Sections) != 5 {
		t.Fatalf("sections = %d, want 5", len(f.Sections))
	}
	if f.FirstSection() != "school_info" {
		t.Errorf("FirstSection = %q", f.FirstSection())
	}
	if !f.IsLastSection("documents") {
		t.Error("documents should be the last section")
	}
	if fd, _ := f.FieldAnywhere("nama_lengkap"); fd == nil {
		t.Error("nama_lengkap not found")
	}
}

func TestValidateValue(t *testing.T) {
	f, err := Load([]byte(validDoc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sec := f.Section("first")

	warna := sec.Field("warna")
	if msg := ValidateValue(warna, "Merah"); msg != "" {
		t.Errorf("valid select value flagged: %q", msg)
	}
	if msg := ValidateValue(warna, "Ungu"); msg == "" {
		t.Error("out-of-set select value not flagged")
	}

	phone := &FieldDefinition{
		Name: "no_telepon", Label: "No. Telepon",
		Type: TypePhone, ValidationPattern: `^[0-9]{10,15}$`,
	}
	if msg := ValidateValue(phone, "081234567890"); msg != "" {
		t.Errorf("valid phone flagged: %q", msg)
	}
	if msg := ValidateValue(phone, "halo"); msg == "" {
		t.Error("invalid phone not flagged")
	}
}
