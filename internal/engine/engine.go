// Package engine sequences one inbound chat message through skip detection,
// field extraction, state update, progress evaluation, and response
// composition. It is the only component callers use directly, and the only
// mutator of session state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nhartono/daftar/internal/compose"
	"github.com/nhartono/daftar/internal/progress"
	"github.com/nhartono/daftar/internal/schema"
	"github.com/nhartono/daftar/internal/session"
)

// ErrGenerationUnavailable wraps a failed or timed-out generation call. The
// turn it interrupted was not committed: the session reads exactly as it did
// before the message, so the caller may retry.
var ErrGenerationUnavailable = errors.New("generation collaborator unavailable")

// ErrSessionNotFound mirrors session.ErrNotFound at the engine boundary.
var ErrSessionNotFound = session.ErrNotFound

// DefaultSkipKeywords is the fixed "move on" vocabulary, matched
// case-insensitively as substrings of the raw user message.
var DefaultSkipKeywords = []string{
	"lanjut", "skip", "sudah cukup", "cukup", "next",
	"selanjutnya", "gak usah", "tidak perlu", "langsung lanjut",
}

// Extractor turns a user message into a partial field→value map.
type Extractor interface {
	Extract(ctx context.Context, f *schema.FormSchema, sectionName string, history []session.Turn, userMessage string) (map[string]any, error)
}

// Composer drafts the assistant's next utterance for a data-bearing turn.
type Composer interface {
	NextReply(ctx context.Context, f *schema.FormSchema, st *session.State, tc compose.TurnContext) (string, error)
}

// Options tune engine policy without touching its mechanics.
type Options struct {
	// SkipKeywords overrides DefaultSkipKeywords when non-empty.
	SkipKeywords []string
}

// Engine is the form-filling state machine: one state per schema section in
// order, plus the implicit terminal state past the last section. Transitions
// are forward-only and gated on the section's completion threshold.
type Engine struct {
	schema       *schema.FormSchema
	store        session.Store
	extractor    Extractor
	composer     Composer
	skipKeywords []string
	locks        *session.KeyedLocks
}

// New wires an Engine. The schema must already have loaded successfully;
// a nil schema is a programming error and refused outright.
func New(f *schema.FormSchema, store session.Store, ex Extractor, comp Composer, opts Options) (*Engine, error) {
	if f == nil {
		return nil, errors.New("engine: nil schema")
	}
	if store == nil {
		return nil, errors.New("engine: nil session store")
	}
	keywords := opts.SkipKeywords
	if len(keywords) == 0 {
		keywords = DefaultSkipKeywords
	}
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return &Engine{
		schema:       f,
		store:        store,
		extractor:    ex,
		composer:     comp,
		skipKeywords: lowered,
		locks:        session.NewKeyedLocks(),
	}, nil
}

// Schema returns the engine's form schema (read-only, shared).
func (e *Engine) Schema() *schema.FormSchema {
	return e.schema
}

// Result is the outcome of one processed message.
type Result struct {
	SessionID      string
	Reply          string
	State          *session.State
	CurrentSection string
	Completion     float64
	CanAdvance     bool
	MissingFields  []string
	Done           bool
}

// ProcessMessage runs the per-message algorithm for sessionID. An empty id
// starts a fresh session under a generated UUID. Turns for the same session
// are serialized; unrelated sessions proceed concurrently. On any surfaced
// error nothing is committed: no history entry, no data, no section change.
func (e *Engine) ProcessMessage(ctx context.Context, sessionID, userMessage string) (*Result, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	st, isNew, err := e.getOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// All mutations happen on this copy; the store sees it only at commit.
	work := st.Clone()

	// A schema reload may have renamed or removed the stored section.
	// CurrentSection must reference a live section before any transition
	// logic runs; collected data survives, positioning restarts.
	if e.schema.Section(work.CurrentSection) == nil {
		slog.Warn("stored section no longer in schema, resetting",
			"session", sessionID, "section", work.CurrentSection)
		work.CurrentSection = e.schema.FirstSection()
		work.PendingField = ""
	}

	priorHistory := work.LastTurns(8)
	work.AddTurn("user", userMessage)

	var reply string
	if e.wantsSkip(userMessage) {
		reply = e.handleSkip(work)
	} else {
		reply, err = e.handleTurn(ctx, work, priorHistory, userMessage)
		if err != nil {
			return nil, err
		}
	}

	work.AddTurn("assistant", reply)

	if isNew {
		err = e.store.Create(ctx, work)
	} else {
		err = e.store.Update(ctx, work)
	}
	if err != nil {
		return nil, fmt.Errorf("committing session %s: %w", sessionID, err)
	}

	return e.result(work, reply), nil
}

// handleSkip advances the section when its gate is open, or explains what is
// still missing. Extraction is skipped entirely either way.
func (e *Engine) handleSkip(work *session.State) string {
	sec := e.schema.Section(work.CurrentSection)
	if !progress.CanAdvance(e.schema, work.CurrentSection, work.Data) {
		missing := progress.MissingFields(e.schema, work.CurrentSection, work.Data)
		slog.Debug("skip denied", "session", work.SessionID, "section", work.CurrentSection, "missing", missing)
		return compose.SkipDenied(sec, missing)
	}

	next, ok := e.schema.NextSection(work.CurrentSection)
	work.PendingField = ""
	if !ok {
		// Already past everything there is: advancing stays a no-op.
		return compose.AllDone()
	}
	work.CurrentSection = next
	slog.Info("section advanced", "session", work.SessionID, "section", next)
	return compose.Transition(e.schema.Section(next))
}

// handleTurn is the normal data-bearing path: extract, merge, evaluate,
// compose. A transport failure in either generation call aborts the turn.
func (e *Engine) handleTurn(ctx context.Context, work *session.State, priorHistory []session.Turn, userMessage string) (string, error) {
	extracted, err := e.extractor.Extract(ctx, e.schema, work.CurrentSection, priorHistory, userMessage)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	// Merge every pair, regardless of which section owns the field: the
	// user may answer ahead. Values failing their pattern are stored
	// anyway and flagged for correction, so the missing-field accounting
	// matches what is actually in the map.
	var problems []string
	for key, value := range extracted {
		work.SetField(key, value)
		if fd, _ := e.schema.FieldAnywhere(key); fd != nil {
			if msg := schema.ValidateValue(fd, value); msg != "" {
				problems = append(problems, msg)
			}
		}
	}

	tc := compose.TurnContext{
		Section:            e.schema.Section(work.CurrentSection),
		Extracted:          extracted,
		MissingFields:      progress.MissingFields(e.schema, work.CurrentSection, work.Data),
		ValidationProblems: problems,
		CanAdvance:         progress.CanAdvance(e.schema, work.CurrentSection, work.Data),
		Completion:         progress.CompletionPercentage(e.schema, work.Data),
	}

	// Never auto-advance here, even when the gate is open; moving on
	// mid-sentence would surprise the user. The composer offers the move
	// and the user triggers it with a skip phrase.
	reply, err := e.composer.NextReply(ctx, e.schema, work, tc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	return reply, nil
}

func (e *Engine) getOrCreate(ctx context.Context, sessionID string) (*session.State, bool, error) {
	st, err := e.store.Get(ctx, sessionID)
	if err == nil {
		return st, false, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return nil, false, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	return session.New(sessionID, e.schema.FirstSection()), true, nil
}

func (e *Engine) wantsSkip(msg string) bool {
	lowered := strings.ToLower(msg)
	for _, kw := range e.skipKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func (e *Engine) result(work *session.State, reply string) *Result {
	return &Result{
		SessionID:      work.SessionID,
		Reply:          reply,
		State:          work.Clone(),
		CurrentSection: work.CurrentSection,
		Completion:     progress.CompletionPercentage(e.schema, work.Data),
		CanAdvance:     progress.CanAdvance(e.schema, work.CurrentSection, work.Data),
		MissingFields:  progress.MissingFields(e.schema, work.CurrentSection, work.Data),
		Done:           e.schema.IsLastSection(work.CurrentSection) && progress.CanAdvance(e.schema, work.CurrentSection, work.Data),
	}
}

// CreateSession registers a fresh session. An empty id gets a generated
// UUID; an existing id fails with session.ErrExists.
func (e *Engine) CreateSession(ctx context.Context, sessionID string) (*session.State, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	st := session.New(sessionID, e.schema.FirstSection())
	if err := e.store.Create(ctx, st); err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// GetSession returns a snapshot of the session, or ErrSessionNotFound.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*session.State, error) {
	return e.store.Get(ctx, sessionID)
}

// DeleteSession removes the session. Deletion is always an explicit caller
// action; the engine never expires sessions on its own.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)
	return e.store.Delete(ctx, sessionID)
}

// SetField writes a single value into a session outside the chat flow. This
// is the explicit policy door for values extraction must not inject
// silently: upload references and other ad-hoc keys.
func (e *Engine) SetField(ctx context.Context, sessionID, field string, value any) (*session.State, error) {
	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	st, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st.SetField(field, value)
	if err := e.store.Update(ctx, st); err != nil {
		return nil, err
	}
	return st.Clone(), nil
}
