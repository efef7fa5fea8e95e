package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nhartono/daftar/internal/engine"
	"github.com/nhartono/daftar/internal/progress"
	"github.com/nhartono/daftar/internal/storage"
)

// minConfirmCompletion is the lowest completion percentage at which a
// registration may be finalized.
const minConfirmCompletion = 50.0

func handleConfirm(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		st, err := deps.Engine.GetSession(r.Context(), id)
		if errors.Is(err, engine.ErrSessionNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading session: %v", err)
			return
		}

		completion := progress.CompletionPercentage(deps.Engine.Schema(), st.Data)
		if completion < minConfirmCompletion {
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"registration incomplete: minimum %.0f%% required", minConfirmCompletion)
			return
		}

		tingkatan, _ := st.Data["tingkatan"].(string)
		number := newRegistrationNumber(tingkatan, time.Now())

		dataJSON, err := json.Marshal(st.Data)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "serializing form data: %v", err)
			return
		}

		reg := storage.Registration{
			RegistrationNumber: number,
			SessionID:          id,
			Tingkatan:          tingkatan,
			DataJSON:           string(dataJSON),
			Completion:         completion,
			CreatedAt:          time.Now().UTC(),
		}
		if err := deps.DB.SaveRegistration(reg); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving registration: %v", err)
			return
		}
		if err := deps.DB.AddTracking(number, "submitted", "Registration confirmed via chatbot"); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "recording tracking: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success":             true,
			"registration_number": number,
			"message":             "Registration confirmed successfully!",
			"next_steps": []string{
				"Complete payment for registration fee",
				"Wait for document verification (1-3 business days)",
				"You will receive confirmation email",
			},
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// newRegistrationNumber builds AZHAR-<year>-<code>-<8 hex chars>, code keyed
// on the registered level.
func newRegistrationNumber(tingkatan string, now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return "AZHAR-" + now.Format("2006") + "-" + levelCode(tingkatan) + "-" + suffix
}

// levelCode maps a tingkatan value onto the registration number segment.
// Two-digit grades are checked first so "Kelas 10" never matches "Kelas 1".
func levelCode(tingkatan string) string {
	switch {
	case tingkatan == "":
		return "XX"
	case strings.Contains(tingkatan, "Playgroup") || strings.Contains(tingkatan, "TK"):
		return "TK"
	case containsAny(tingkatan, "Kelas 10", "Kelas 11", "Kelas 12"):
		return "MA"
	case containsAny(tingkatan, "Kelas 7", "Kelas 8", "Kelas 9"):
		return "MP"
	case containsAny(tingkatan, "Kelas 1", "Kelas 2", "Kelas 3", "Kelas 4", "Kelas 5", "Kelas 6"):
		return "SD"
	default:
		return "XX"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
