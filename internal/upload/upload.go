// Package upload stores document files referenced by the form's
// file-reference fields and validates them before anything is written.
package upload

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// MaxFileSize is the hard cap on a single uploaded document.
const MaxFileSize = 5 << 20 // 5 MB

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// ValidationError describes a rejected upload. The message is user-facing
// and written in Indonesian like the rest of the conversational surface.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "upload: " + e.Reason
}

// Manager writes uploaded files under dir/uploads/<session>/.
type Manager struct {
	dir string
}

// NewManager creates a Manager rooted at dataDir. The uploads directory is
// created lazily on first save.
func NewManager(dataDir string) *Manager {
	return &Manager{dir: dataDir}
}

// StoredFile describes a successfully saved upload.
type StoredFile struct {
	Field     string `json:"field"`
	Filename  string `json:"filename"`
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Timestamp string `json:"timestamp"`
}

// Save validates and writes one uploaded file, returning the stored
// location. The returned path is what gets recorded as the field's value.
func (m *Manager) Save(sessionID, field, filename string, content []byte) (*StoredFile, error) {
	if sessionID == "" {
		return nil, &ValidationError{Reason: "session tidak valid"}
	}
	if field == "" {
		return nil, &ValidationError{Reason: "nama field dokumen harus diisi"}
	}
	if err := Validate(filename, content); err != nil {
		return nil, err
	}

	dir := filepath.Join(m.dir, "uploads", sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	now := time.Now().UTC()
	ext := strings.ToLower(filepath.Ext(filename))
	stored := fmt.Sprintf("%s_%s%s", field, now.Format("20060102150405"), ext)
	path := filepath.Join(dir, stored)

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return nil, fmt.Errorf("writing upload: %w", err)
	}

	slog.Info("upload stored", "session", sessionID, "field", field, "file", stored, "size", len(content))
	return &StoredFile{
		Field:     field,
		Filename:  stored,
		Path:      path,
		Size:      int64(len(content)),
		Timestamp: now.Format(time.RFC3339),
	}, nil
}

// Validate checks extension, size, and for PDFs that the file parses and
// has at least one page.
func Validate(filename string, content []byte) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return &ValidationError{Reason: "format file harus PDF, JPG, atau PNG"}
	}
	if len(content) == 0 {
		return &ValidationError{Reason: "file kosong"}
	}
	if len(content) > MaxFileSize {
		return &ValidationError{Reason: "ukuran file maksimal 5MB"}
	}
	if ext == ".pdf" {
		r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
		if err != nil || r.NumPage() < 1 {
			return &ValidationError{Reason: "file PDF tidak dapat dibaca"}
		}
	}
	return nil
}
