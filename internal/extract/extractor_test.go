package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nhartono/daftar/internal/llm"
	"github.com/nhartono/daftar/internal/schema"
	"github.com/nhartono/daftar/internal/session"
)

type mockGenerator struct {
	response string
	err      error
	gotMsgs  []llm.Message
	gotOpts  llm.Options
}

func (m *mockGenerator) Generate(_ context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	m.gotMsgs = messages
	m.gotOpts = opts
	return m.response, m.err
}

func testForm(t *testing.T) *schema.FormSchema {
	t.Helper()
	f, err := schema.Load([]byte(`
sections:
  - name: student_data
    label: Data Siswa
    required_field_count: 1
    fields:
      - {name: nama_lengkap, label: Nama Lengkap, type: short-text, required: true}
      - name: jenis_kelamin
        label: Jenis Kelamin
        type: single-select
        allowed_values: [Laki-laki, Perempuan]
  - name: other
    label: Lainnya
    fields:
      - {name: alamat, label: Alamat, type: long-text}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return f
}

func TestExtract_ParsesFields(t *testing.T) {
	gen := &mockGenerator{response: `{"nama_lengkap": "Budi Santoso"}`}
	ex := New(gen, 0)

	got, err := ex.Extract(context.Background(), testForm(t), "student_data", nil, "Nama saya Budi Santoso")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got["nama_lengkap"] != "Budi Santoso" {
		t.Errorf("nama_lengkap = %v", got["nama_lengkap"])
	}
}

func TestExtract_JSONWrappedInProse(t *testing.T) {
	gen := &mockGenerator{response: "Berikut hasilnya:\n```json\n{\"nama_lengkap\": \"Siti\"}\n```\nSemoga membantu."}
	ex := New(gen, 0)

	got, err := ex.Extract(context.Background(), testForm(t), "student_data", nil, "saya Siti")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got["nama_lengkap"] != "Siti" {
		t.Errorf("nama_lengkap = %v", got["nama_lengkap"])
	}
}

func TestExtract_MalformedOutputMeansNothingLearned(t *testing.T) {
	for _, response := range []string{"", "maaf, saya tidak mengerti", "{broken", "[]"} {
		gen := &mockGenerator{response: response}
		ex := New(gen, 0)

		got, err := ex.Extract(context.Background(), testForm(t), "student_data", nil, "halo")
		if err != nil {
			t.Errorf("response %q: unexpected error %v", response, err)
		}
		if len(got) != 0 {
			t.Errorf("response %q: got %v, want empty map", response, got)
		}
	}
}

func TestExtract_TransportErrorSurfaces(t *testing.T) {
	gen := &mockGenerator{err: errors.New("connection refused")}
	ex := New(gen, 0)

	_, err := ex.Extract(context.Background(), testForm(t), "student_data", nil, "halo")
	if err == nil {
		t.Fatal("expected error for transport failure")
	}
}

func TestExtract_DropsUnknownAndEmpty(t *testing.T) {
	gen := &mockGenerator{response: `{"nama_lengkap": "Budi", "invented_field": "x", "jenis_kelamin": "", "alamat": null}`}
	ex := New(gen, 0)

	got, err := ex.Extract(context.Background(), testForm(t), "student_data", nil, "halo")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 1 || got["nama_lengkap"] != "Budi" {
		t.Errorf("got %v, want only nama_lengkap", got)
	}
}

func TestExtract_KeepsFieldsFromOtherSections(t *testing.T) {
	gen := &mockGenerator{response: `{"alamat": "Jl. Sudirman 1"}`}
	ex := New(gen, 0)

	got, err := ex.Extract(context.Background(), testForm(t), "student_data", nil, "alamat saya Jl. Sudirman 1")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got["alamat"] != "Jl. Sudirman 1" {
		t.Errorf("alamat = %v; fields answered ahead must survive", got["alamat"])
	}
}

func TestExtract_NormalizesSelectValues(t *testing.T) {
	gen := &mockGenerator{response: `{"jenis_kelamin": " laki-laki "}`}
	ex := New(gen, 0)

	got, err := ex.Extract(context.Background(), testForm(t), "student_data", nil, "anak saya laki laki")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got["jenis_kelamin"] != "Laki-laki" {
		t.Errorf("jenis_kelamin = %v, want canonical Laki-laki", got["jenis_kelamin"])
	}
}

func TestExtract_UnmatchedSelectValueKept(t *testing.T) {
	gen := &mockGenerator{response: `{"jenis_kelamin": "pria"}`}
	ex := New(gen, 0)

	got, err := ex.Extract(context.Background(), testForm(t), "student_data", nil, "pria")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	// Unmatched values survive so validation can flag them instead of
	// silently losing the answer.
	if got["jenis_kelamin"] != "pria" {
		t.Errorf("jenis_kelamin = %v, want raw value kept", got["jenis_kelamin"])
	}
}

func TestExtract_PromptContainsSectionAndMessage(t *testing.T) {
	gen := &mockGenerator{response: `{}`}
	ex := New(gen, 2)

	history := []session.Turn{
		{Role: "user", Content: "pertama"},
		{Role: "assistant", Content: "kedua"},
		{Role: "user", Content: "ketiga"},
	}
	if _, err := ex.Extract(context.Background(), testForm(t), "student_data", history, "nama saya Budi"); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if len(gen.gotMsgs) != 2 {
		t.Fatalf("messages = %d, want system + user", len(gen.gotMsgs))
	}
	userMsg := gen.gotMsgs[1].Content
	if !strings.Contains(userMsg, "nama saya Budi") {
		t.Error("prompt missing the user message")
	}
	if !strings.Contains(userMsg, "nama_lengkap") {
		t.Error("prompt missing section fields")
	}
	if strings.Contains(userMsg, "pertama") {
		t.Error("history window not applied; oldest turn leaked in")
	}
	if gen.gotOpts.Format == nil {
		t.Error("structured output format not requested")
	}
}
