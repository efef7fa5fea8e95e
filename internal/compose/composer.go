package compose

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhartono/daftar/internal/llm"
	"github.com/nhartono/daftar/internal/schema"
	"github.com/nhartono/daftar/internal/session"
)

// Generator is the slice of the generation collaborator composition needs.
type Generator interface {
	Generate(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error)
}

// TurnContext carries everything the composer needs to phrase the next
// assistant utterance for one data-bearing turn.
type TurnContext struct {
	Section            *schema.SectionDefinition
	Extracted          map[string]any
	MissingFields      []string
	ValidationProblems []string
	CanAdvance         bool
	Completion         float64
}

// Composer drafts the next conversational turn via the generation
// collaborator. Skip-path replies (denied, transition, terminal) are phrased
// locally and never touch the LLM.
type Composer struct {
	gen           Generator
	historyWindow int
}

// New creates a Composer. historyWindow bounds the turns replayed into the
// prompt; <= 0 selects the default of 6.
func New(gen Generator, historyWindow int) *Composer {
	if historyWindow <= 0 {
		historyWindow = 6
	}
	return &Composer{gen: gen, historyWindow: historyWindow}
}

// NextReply generates the assistant utterance for a normal turn. Unlike
// extraction, a failure here is surfaced: the engine aborts the turn without
// committing, so the caller can retry the same message.
func (c *Composer) NextReply(ctx context.Context, f *schema.FormSchema, st *session.State, tc TurnContext) (string, error) {
	messages := c.buildMessages(f, st, tc)
	reply, err := c.gen.Generate(ctx, messages, llm.Options{
		Temperature: 0.7,
		MaxTokens:   300,
	})
	if err != nil {
		return "", fmt.Errorf("composing reply: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("composing reply: empty generation output")
	}
	return reply, nil
}

func (c *Composer) buildMessages(f *schema.FormSchema, st *session.State, tc TurnContext) []llm.Message {
	messages := []llm.Message{
		{Role: "system", Content: buildSystemPrompt(f, st, tc.Section)},
	}

	recent := st.LastTurns(c.historyWindow)
	for _, turn := range recent {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}

	messages = append(messages, llm.Message{Role: "user", Content: buildTurnInstruction(f, tc)})
	return messages
}

// SkipDenied is the reply for a skip request while the section's threshold
// is unmet. Composed locally so the gate cannot be talked around; at most
// three missing fields are named, by label. A nil section still yields a
// usable reply.
func SkipDenied(sec *schema.SectionDefinition, missing []string) string {
	if sec == nil {
		return "Bagian ini belum lengkap, jadi belum bisa lanjut dulu ya."
	}
	labels := make([]string, 0, 3)
	for _, name := range missing {
		if len(labels) == 3 {
			break
		}
		if fd := sec.Field(name); fd != nil {
			labels = append(labels, fd.Label)
		} else {
			labels = append(labels, name)
		}
	}
	if len(labels) == 0 {
		return fmt.Sprintf("Untuk lanjut, minimal %d field di bagian %s harus diisi dulu ya.", sec.RequiredFieldCount, sec.Label)
	}
	return fmt.Sprintf("Untuk lanjut, minimal %d field harus diisi. Masih kurang: %s.", sec.RequiredFieldCount, strings.Join(labels, ", "))
}

// Transition announces arrival at the next section.
func Transition(next *schema.SectionDefinition) string {
	if next.Description != "" {
		return fmt.Sprintf("Oke, kita lanjut ke %s. %s", next.Label, next.Description)
	}
	return fmt.Sprintf("Oke, kita lanjut ke %s.", next.Label)
}

// AllDone is the terminal reply once the last section has been passed.
func AllDone() string {
	return "Baik, semua bagian formulir sudah selesai. Terima kasih! Ketik 'konfirmasi' di halaman ringkasan untuk finalisasi pendaftaran."
}
