// Package api exposes the registration assistant over HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nhartono/daftar/internal/engine"
	"github.com/nhartono/daftar/internal/progress"
	"github.com/nhartono/daftar/internal/session"
	"github.com/nhartono/daftar/internal/storage"
	"github.com/nhartono/daftar/internal/upload"
)

const maxRequestBodySize = 1 << 20 // 1MB

// maxUploadBodySize leaves headroom over the file cap for multipart framing.
const maxUploadBodySize = upload.MaxFileSize + (1 << 20)

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Engine  *engine.Engine
	DB      *storage.Store
	Uploads *upload.Manager
	Token   string // optional; empty disables auth
}

// NewHandler returns the full HTTP API. /health stays open; everything under
// /api/v1 requires the bearer token when one is configured.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/chat", handleChat(deps))
		r.Post("/session", handleNewSession(deps))
		r.Get("/session/{id}", handleGetSession(deps))
		r.Delete("/session/{id}", handleDeleteSession(deps))
		r.Get("/config", handleConfig(deps))
		r.Get("/summary/{id}", handleSummary(deps))
		r.Post("/confirm/{id}", handleConfirm(deps))
		r.Post("/upload", handleUpload(deps))
		r.Get("/status/{number}", handleStatus(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type ChatResponse struct {
	SessionID            string         `json:"session_id"`
	Response             string         `json:"response"`
	CurrentSection       string         `json:"current_section"`
	CompletionPercentage float64        `json:"completion_percentage"`
	Metadata             map[string]any `json:"metadata"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		res, err := deps.Engine.ProcessMessage(r.Context(), req.SessionID, req.Message)
		if errors.Is(err, engine.ErrGenerationUnavailable) {
			httpError(w, http.StatusBadGateway, "api_error", "assistant temporarily unavailable, please retry")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "processing message: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatResponse{
			SessionID:            res.SessionID,
			Response:             res.Reply,
			CurrentSection:       res.CurrentSection,
			CompletionPercentage: res.Completion,
			Metadata: map[string]any{
				"messages_count": len(res.State.History),
				"can_advance":    res.CanAdvance,
				"missing_fields": missingOrEmpty(res.MissingFields),
			},
		})
	}
}

func handleNewSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Engine.CreateSession(r.Context(), "")
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating session: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"session_id":      st.SessionID,
			"message":         "Session created successfully",
			"current_section": st.CurrentSection,
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
		})
	}
}

type SessionInfo struct {
	SessionID            string         `json:"session_id"`
	CurrentSection       string         `json:"current_section"`
	CompletionPercentage float64        `json:"completion_percentage"`
	CreatedAt            string         `json:"created_at"`
	UpdatedAt            string         `json:"updated_at"`
	CollectedData        map[string]any `json:"collected_data"`
	ConversationHistory  []session.Turn `json:"conversation_history"`
}

func handleGetSession(deps Deps) http.HandlerFunc {
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

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SessionInfo{
			SessionID:            st.SessionID,
			CurrentSection:       st.CurrentSection,
			CompletionPercentage: progress.CompletionPercentage(deps.Engine.Schema(), st.Data),
			CreatedAt:            st.CreatedAt.Format(time.RFC3339),
			UpdatedAt:            st.UpdatedAt.Format(time.RFC3339),
			CollectedData:        st.Data,
			ConversationHistory:  st.LastTurns(20),
		})
	}
}

func handleDeleteSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Engine.DeleteSession(r.Context(), id)
		if errors.Is(err, engine.ErrSessionNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting session: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":     "deleted",
			"session_id": id,
		})
	}
}

func handleConfig(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := deps.Engine.Schema()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"form_name": f.FormName,
			"version":   f.Version,
			"sections":  f.Sections,
		})
	}
}

func handleSummary(deps Deps) http.HandlerFunc {
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

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"session_id":            id,
			"completion_percentage": progress.CompletionPercentage(deps.Engine.Schema(), st.Data),
			"current_section":       st.CurrentSection,
			"collected_data":        st.Data,
			"summary": map[string]any{
				"student_name": fieldOr(st.Data, "nama_lengkap", "Not provided"),
				"school":       fieldOr(st.Data, "nama_sekolah", "Not selected"),
				"tingkatan":    fieldOr(st.Data, "tingkatan", "Not selected"),
				"program":      fieldOr(st.Data, "program", "Not selected"),
			},
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(maxUploadBodySize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}

		sessionID := r.FormValue("session_id")
		fieldName := r.FormValue("field_name")
		if sessionID == "" || fieldName == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "session_id and field_name are required")
			return
		}

		if _, err := deps.Engine.GetSession(r.Context(), sessionID); err != nil {
			if errors.Is(err, engine.ErrSessionNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "session not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "loading session: %v", err)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required")
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading file: %v", err)
			return
		}

		stored, err := deps.Uploads.Save(sessionID, fieldName, header.Filename, content)
		var verr *upload.ValidationError
		if errors.As(err, &verr) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", verr.Reason)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving file: %v", err)
			return
		}

		if _, err := deps.Engine.SetField(r.Context(), sessionID, fieldName, stored.Path); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "recording upload: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success":    true,
			"message":    "Document uploaded successfully",
			"field_name": fieldName,
			"file_path":  stored.Path,
		})
	}
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number := chi.URLParam(r, "number")

		reg, err := deps.DB.GetRegistration(number)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "registration not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading registration: %v", err)
			return
		}

		tracking, err := deps.DB.TrackingFor(number)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading tracking: %v", err)
			return
		}

		var data map[string]any
		if err := json.Unmarshal([]byte(reg.DataJSON), &data); err != nil {
			data = map[string]any{}
		}

		status := "submitted"
		if len(tracking) > 0 {
			status = tracking[len(tracking)-1].Status
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"registration_number": reg.RegistrationNumber,
			"status":              status,
			"created_at":          reg.CreatedAt.Format(time.RFC3339),
			"student_data":        data,
			"tracking_history":    tracking,
		})
	}
}

func fieldOr(data map[string]any, key, fallback string) any {
	if v, ok := data[key]; ok && v != nil && v != "" {
		return v
	}
	return fallback
}

func missingOrEmpty(missing []string) []string {
	if missing == nil {
		return []string{}
	}
	return missing
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
