package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for sessions, registrations,
// and registration tracking.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "daftar.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Registrations ---

func (s *Store) SaveRegistration(r Registration) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO registrations (registration_number, session_id, tingkatan, data_json, completion, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.RegistrationNumber, r.SessionID, r.Tingkatan, r.DataJSON, r.Completion,
		createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetRegistration(number string) (Registration, error) {
	var r Registration
	var createdAt string
	err := s.db.QueryRow(`
		SELECT registration_number, session_id, tingkatan, data_json, completion, created_at
		FROM registrations WHERE registration_number = ?`, number,
	).Scan(&r.RegistrationNumber, &r.SessionID, &r.Tingkatan, &r.DataJSON, &r.Completion, &createdAt)
	if err == sql.ErrNoRows {
		return Registration{}, ErrNotFound
	}
	if err != nil {
		return Registration{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Registration{}, fmt.Errorf("parsing created_at: %w", err)
	}
	r.CreatedAt = t
	return r, nil
}

func (s *Store) GetRegistrationBySession(sessionID string) (Registration, error) {
	var r Registration
	var createdAt string
	err := s.db.QueryRow(`
		SELECT registration_number, session_id, tingkatan, data_json, completion, created_at
		FROM registrations WHERE session_id = ? ORDER BY created_at DESC LIMIT 1`, sessionID,
	).Scan(&r.RegistrationNumber, &r.SessionID, &r.Tingkatan, &r.DataJSON, &r.Completion, &createdAt)
	if err == sql.ErrNoRows {
		return Registration{}, ErrNotFound
	}
	if err != nil {
		return Registration{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Registration{}, fmt.Errorf("parsing created_at: %w", err)
	}
	r.CreatedAt = t
	return r, nil
}

// --- Tracking ---

func (s *Store) AddTracking(number, status, note string) error {
	_, err := s.db.Exec(`
		INSERT INTO registration_tracking (registration_number, status, note, created_at)
		VALUES (?, ?, ?, ?)`,
		number, status, note, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) TrackingFor(number string) ([]TrackingEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, registration_number, status, note, created_at
		FROM registration_tracking WHERE registration_number = ?
		ORDER BY id ASC`, number,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TrackingEntry
	for rows.Next() {
		var e TrackingEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RegistrationNumber, &e.Status, &e.Note, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		results = append(results, e)
	}
	return results, rows.Err()
}
