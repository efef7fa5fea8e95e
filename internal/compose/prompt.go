package compose

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nhartono/daftar/internal/progress"
	"github.com/nhartono/daftar/internal/schema"
	"github.com/nhartono/daftar/internal/session"
)

const baseSystemPrompt = `Anda adalah asisten virtual untuk proses pendaftaran siswa baru di YPI Al-Azhar.

PRINSIP UTAMA:
1. SELALU baca conversation history - jangan tanya ulang data yang sudah ada!
2. Gunakan bahasa Indonesia yang ramah dan natural.
3. Tanyakan satu field dalam satu waktu.
4. Konfirmasi data yang baru diterima.
5. JANGAN memaksa user mengisi semua field - user bisa ketik 'lanjut' untuk pindah bagian.
6. Maksimal 2-3 kalimat per jawaban.`

func buildSystemPrompt(f *schema.FormSchema, st *session.State, sec *schema.SectionDefinition) string {
	var sb strings.Builder
	sb.WriteString(baseSystemPrompt)

	if sec != nil {
		fmt.Fprintf(&sb, "\n\nBAGIAN SAAT INI: %s\n", sec.Label)
		if sec.Description != "" {
			sb.WriteString(sec.Description + "\n")
		}
		fmt.Fprintf(&sb, "Minimal field yang harus diisi: %d\n\n", sec.RequiredFieldCount)

		sb.WriteString("FIELD DI BAGIAN INI:\n")
		for _, fd := range sec.Fields {
			marker := "opsional"
			if f.IsFieldRequired(sec.Name, fd.Name, st.Data) {
				marker = "WAJIB"
			}
			fmt.Fprintf(&sb, "- %s (%s, %s)\n", fd.Label, fd.Type, marker)
			if fd.HelpText != "" {
				fmt.Fprintf(&sb, "  %s\n", fd.HelpText)
			}
		}
	}

	if len(st.Data) > 0 {
		sb.WriteString("\nDATA YANG SUDAH TERKUMPUL:\n")
		for _, s := range f.Sections {
			var lines []string
			for _, fd := range s.Fields {
				v, ok := st.Data[fd.Name]
				if progress.Filled(v, ok) {
					lines = append(lines, fmt.Sprintf("  %s: %v", fd.Label, v))
				}
			}
			if len(lines) > 0 {
				fmt.Fprintf(&sb, "%s:\n%s\n", s.Label, strings.Join(lines, "\n"))
			}
		}
	}

	return sb.String()
}

// buildTurnInstruction is the final user-role message steering this turn's
// reply: what was just extracted, what is still missing, and whether the
// section gate is open.
func buildTurnInstruction(f *schema.FormSchema, tc TurnContext) string {
	var sb strings.Builder

	extractedJSON, _ := json.Marshal(tc.Extracted)
	fmt.Fprintf(&sb, "DATA BARU YANG DIEKSTRAK: %s\n", extractedJSON)

	if tc.Section != nil {
		fmt.Fprintf(&sb, "BAGIAN: %s (minimal %d field)\n", tc.Section.Label, tc.Section.RequiredFieldCount)
	}

	if len(tc.MissingFields) > 0 {
		labels := make([]string, 0, len(tc.MissingFields))
		for _, name := range tc.MissingFields {
			if tc.Section != nil {
				if fd := tc.Section.Field(name); fd != nil {
					labels = append(labels, fd.Label)
					continue
				}
			}
			labels = append(labels, name)
		}
		fmt.Fprintf(&sb, "FIELD WAJIB YANG MASIH KOSONG: %s\n", strings.Join(labels, ", "))
	}

	for _, problem := range tc.ValidationProblems {
		fmt.Fprintf(&sb, "PERLU KOREKSI: %s\n", problem)
	}

	if tc.CanAdvance {
		sb.WriteString("STATUS: sudah cukup untuk lanjut ke bagian berikutnya\n")
	} else {
		sb.WriteString("STATUS: belum cukup untuk lanjut\n")
	}
	fmt.Fprintf(&sb, "PROGRESS KESELURUHAN: %.0f%%\n\n", tc.Completion)

	sb.WriteString(`INSTRUKSI JAWABAN:
1. Konfirmasi data baru dengan natural, jangan tanya ulang yang sudah ada.
2. Jika ada PERLU KOREKSI, minta user membetulkan nilai tersebut dulu.
3. Jika sudah cukup untuk lanjut: tawarkan lanjut ke bagian berikutnya atau tanya maksimal 1 field opsional.
4. Jika belum cukup: tanya 1 field yang masih kosong (prioritas yang WAJIB), dan ingatkan bisa ketik 'lanjut' jika dirasa cukup.
5. Maksimal 2-3 kalimat, natural dan ramah.`)

	return sb.String()
}
