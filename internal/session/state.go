package session

import (
	"encoding/json"
	"time"
)

// Turn is one entry in a session's conversation history.
type Turn struct {
	Role      string `json:"role"` // "user" or "assistant"
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"` // RFC3339, stable and sortable
}

// State is one conversation's mutable record. Data is an open-ended map so
// values survive even for fields the schema does not declare; existence and
// type checks happen against the schema at validation time, never here.
type State struct {
	SessionID      string         `json:"session_id"`
	CurrentSection string         `json:"current_section"`
	Data           map[string]any `json:"collected_data"`
	History        []Turn         `json:"conversation_history"`

	// PendingField is the field the assistant most recently asked about.
	// Reset whenever the section advances.
	PendingField string `json:"pending_field,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a fresh State positioned at firstSection.
func New(id, firstSection string) *State {
	now := time.Now().UTC()
	return &State{
		SessionID:      id,
		CurrentSection: firstSection,
		Data:           make(map[string]any),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// SetField records a collected value and bumps UpdatedAt.
func (s *State) SetField(name string, value any) {
	s.Data[name] = value
	s.UpdatedAt = time.Now().UTC()
}

// AddTurn appends a history entry and bumps UpdatedAt. History is
// append-only; nothing ever rewrites earlier turns.
func (s *State) AddTurn(role, content string) {
	now := time.Now().UTC()
	s.History = append(s.History, Turn{
		Role:      role,
		Content:   content,
		Timestamp: now.Format(time.RFC3339Nano),
	})
	s.UpdatedAt = now
}

// LastTurns returns the final n history entries (all of them when fewer).
func (s *State) LastTurns(n int) []Turn {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// Clone returns a deep copy. The engine works on a clone for the duration of
// one turn so a failed turn never leaves a half-mutated state in the store.
func (s *State) Clone() *State {
	out := *s
	out.Data = make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		out.Data[k] = v
	}
	out.History = make([]Turn, len(s.History))
	copy(out.History, s.History)
	return &out
}

// MarshalState serializes a State for persistence. Everything round-trips:
// collected data, history order, section pointer, timestamps.
func MarshalState(s *State) ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState reconstructs a State from its serialized form.
func UnmarshalState(raw []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.Data == nil {
		s.Data = make(map[string]any)
	}
	return &s, nil
}
