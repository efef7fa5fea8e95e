package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nhartono/daftar/internal/llm"
	"github.com/nhartono/daftar/internal/schema"
	"github.com/nhartono/daftar/internal/session"
)

const extractionSystemPrompt = `Anda adalah mesin ekstraksi informasi terstruktur untuk formulir pendaftaran sekolah. Output Anda HARUS berupa satu objek JSON valid, tanpa teks lain, tanpa penjelasan, tanpa markdown.

Aturan:
- Baca percakapan terakhir dan pesan user saat ini, lalu ekstrak nilai field yang disebutkan user.
- Gunakan hanya nama field dari daftar yang diberikan sebagai key.
- Jika sebuah field punya pilihan (allowed_values), normalisasi jawaban user ke salah satu pilihan yang valid.
- Jangan mengarang nilai yang tidak disebutkan user.
- Jika tidak ada informasi yang bisa diekstrak, kembalikan objek kosong {}.`

// promptField is the compact field view embedded in the extraction prompt:
// enough for the model to map utterances onto field names, nothing more.
type promptField struct {
	Name          string   `json:"name"`
	Label         string   `json:"label"`
	Type          string   `json:"type"`
	Required      bool     `json:"required"`
	AllowedValues []string `json:"allowed_values,omitempty"`
}

// BuildPrompt assembles the extraction chat messages: system rules, the
// current section's fields, the recent turns, and the new user message.
func BuildPrompt(sec *schema.SectionDefinition, recent []session.Turn, userMessage string) []llm.Message {
	fields := make([]promptField, 0, len(sec.Fields))
	for _, fd := range sec.Fields {
		fields = append(fields, promptField{
			Name:          fd.Name,
			Label:         fd.Label,
			Type:          string(fd.Type),
			Required:      fd.Required,
			AllowedValues: fd.AllowedValues,
		})
	}
	fieldsJSON, _ := json.MarshalIndent(fields, "", "  ")

	var sb strings.Builder
	if len(recent) > 0 {
		sb.WriteString("PERCAKAPAN TERAKHIR:\n")
		for _, turn := range recent {
			role := "User"
			if turn.Role == "assistant" {
				role = "Bot"
			}
			fmt.Fprintf(&sb, "%s: %s\n", role, turn.Content)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "SECTION: %s\n\n", sec.Label)
	fmt.Fprintf(&sb, "FIELDS YANG BISA DIEKSTRAK:\n%s\n\n", fieldsJSON)
	fmt.Fprintf(&sb, "PESAN USER SAAT INI: %q\n\n", userMessage)
	sb.WriteString("Kembalikan HANYA JSON.")

	return []llm.Message{
		{Role: "system", Content: extractionSystemPrompt},
		{Role: "user", Content: sb.String()},
	}
}

// extractionSchema builds the structured-output schema for the section: one
// optional string-typed property per field. Keeping every property optional
// lets the model return {} when the message carries nothing.
func extractionSchema(sec *schema.SectionDefinition) *llm.Schema {
	props := make(map[string]llm.SchemaProperty, len(sec.Fields))
	for _, fd := range sec.Fields {
		desc := fd.Label
		if len(fd.AllowedValues) > 0 {
			desc = fmt.Sprintf("%s (salah satu dari: %s)", fd.Label, strings.Join(fd.AllowedValues, ", "))
		}
		props[fd.Name] = llm.SchemaProperty{Type: "string", Description: desc}
	}
	return &llm.Schema{Type: "object", Properties: props}
}
