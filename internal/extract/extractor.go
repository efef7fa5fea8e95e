package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/nhartono/daftar/internal/llm"
	"github.com/nhartono/daftar/internal/schema"
	"github.com/nhartono/daftar/internal/session"
)

const extractionTimeout = 30 * time.Second

// Generator is the slice of the generation collaborator extraction needs.
type Generator interface {
	Generate(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error)
}

// Extractor turns a free-form user message into a partial field→value map
// for the active section, by asking the generation collaborator for a single
// JSON object. Malformed output means nothing was learned, never an error.
type Extractor struct {
	gen           Generator
	historyWindow int
}

// New creates an Extractor. historyWindow bounds how many recent turns go
// into the prompt; <= 0 selects the default of 3.
func New(gen Generator, historyWindow int) *Extractor {
	if historyWindow <= 0 {
		historyWindow = 3
	}
	return &Extractor{gen: gen, historyWindow: historyWindow}
}

// jsonObjectRe locates the first {...} block in a reply that may be wrapped
// in prose or a markdown fence.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// Extract returns the fields learned from userMessage, possibly none.
// Malformed or empty generation output collapses to an empty map: that
// failure mode means "nothing learned this turn", never an aborted
// conversation. A transport failure (remote error, timeout) is returned as
// an error instead, so the engine can abort the turn without committing.
// Only keys naming a field somewhere in the schema are honored; everything
// else the model invents is dropped.
func (e *Extractor) Extract(ctx context.Context, f *schema.FormSchema, sectionName string, history []session.Turn, userMessage string) (map[string]any, error) {
	if userMessage == "" {
		return map[string]any{}, nil
	}
	sec := f.Section(sectionName)
	if sec == nil {
		return map[string]any{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	recent := history
	if len(recent) > e.historyWindow {
		recent = recent[len(recent)-e.historyWindow:]
	}
	messages := BuildPrompt(sec, recent, userMessage)

	raw, err := e.gen.Generate(ctx, messages, llm.Options{
		Temperature: 0.1,
		MaxTokens:   500,
		Format:      extractionSchema(sec),
	})
	if err != nil {
		slog.Warn("field extraction call failed", "section", sectionName, "error", err)
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	parsed := parseObject(raw)
	if len(parsed) == 0 {
		return map[string]any{}, nil
	}

	out := make(map[string]any, len(parsed))
	for key, value := range parsed {
		fd, _ := f.FieldAnywhere(key)
		if fd == nil {
			slog.Debug("dropping unknown extracted key", "key", key)
			continue
		}
		if !filledValue(value) {
			continue
		}
		out[key] = normalize(fd, value)
	}
	return out, nil
}

// parseObject pulls the first JSON object out of raw and unmarshals it.
// Returns nil for anything that is not a non-empty object.
func parseObject(raw string) map[string]any {
	match := jsonObjectRe.FindString(strings.TrimSpace(raw))
	if match == "" {
		slog.Warn("no JSON object in extraction response", "response", truncate(raw, 200))
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		slog.Warn("failed to unmarshal extraction response", "error", err, "response", truncate(match, 200))
		return nil
	}
	return parsed
}

// normalize maps single-select values onto their canonical allowed value
// when a case-insensitive match exists. Values that match nothing are kept
// as extracted; the validation pass flags them instead of losing data.
func normalize(fd *schema.FieldDefinition, value any) any {
	s, ok := value.(string)
	if !ok || len(fd.AllowedValues) == 0 {
		return value
	}
	trimmed := strings.TrimSpace(s)
	for _, allowed := range fd.AllowedValues {
		if strings.EqualFold(allowed, trimmed) {
			return allowed
		}
	}
	return trimmed
}

func filledValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
