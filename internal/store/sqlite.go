// Package store provides persistence backends for Reverie.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/reveriehq/reverie/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given options.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// CreateReflection inserts a new reflection. Missing ID and timestamps are
// filled in; the status defaults to pending and the emotion to peaceful.
func (s *SQLiteStore) CreateReflection(r *models.Reflection) error {
	if err := prepareReflection(r); err != nil {
		return err
	}

	_, err := s.db.Exec(
		`INSERT INTO reflections (id, body, emotion, status, phone, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Text, r.Emotion, r.Status, nilIfEmpty(r.Phone), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore CreateReflection failed", "error", err, "id", r.ID)
		return fmt.Errorf("failed to insert reflection %s: %w", r.ID, err)
	}
	slog.Debug("SQLiteStore CreateReflection succeeded", "id", r.ID, "emotion", r.Emotion)
	return nil
}

// GetReflection retrieves a reflection by ID.
func (s *SQLiteStore) GetReflection(id string) (*models.Reflection, error) {
	row := s.db.QueryRow(
		`SELECT id, body, emotion, status, phone, created_at, updated_at
		 FROM reflections WHERE id = ?`, id,
	)
	r, err := scanReflectionRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetReflection not found", "id", id)
		return nil, models.ErrReflectionNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetReflection failed", "error", err, "id", id)
		return nil, err
	}
	return &r, nil
}

// UpdateReflectionStatus transitions a reflection's enrichment status.
func (s *SQLiteStore) UpdateReflectionStatus(id string, status models.ReflectionStatus) error {
	result, err := s.db.Exec(
		`UPDATE reflections SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id,
	)
	if err != nil {
		slog.Error("SQLiteStore UpdateReflectionStatus failed", "error", err, "id", id, "status", status)
		return fmt.Errorf("failed to update reflection %s status: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrReflectionNotFound
	}
	slog.Debug("SQLiteStore UpdateReflectionStatus succeeded", "id", id, "status", status)
	return nil
}

// UpdateReflectionEmotion records the detected primary emotion.
func (s *SQLiteStore) UpdateReflectionEmotion(id string, emotion models.Emotion) error {
	if !models.IsValidEmotion(emotion) {
		return models.ErrInvalidEmotion
	}
	result, err := s.db.Exec(
		`UPDATE reflections SET emotion = ?, updated_at = ? WHERE id = ?`,
		emotion, time.Now(), id,
	)
	if err != nil {
		slog.Error("SQLiteStore UpdateReflectionEmotion failed", "error", err, "id", id)
		return fmt.Errorf("failed to update reflection %s emotion: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrReflectionNotFound
	}
	slog.Debug("SQLiteStore UpdateReflectionEmotion succeeded", "id", id, "emotion", emotion)
	return nil
}

// ListReflectionsByStatus returns all reflections in the given status, oldest first.
func (s *SQLiteStore) ListReflectionsByStatus(status models.ReflectionStatus) ([]models.Reflection, error) {
	rows, err := s.db.Query(
		`SELECT id, body, emotion, status, phone, created_at, updated_at
		 FROM reflections WHERE status = ? ORDER BY created_at ASC`, status,
	)
	if err != nil {
		slog.Error("SQLiteStore ListReflectionsByStatus query failed", "error", err, "status", status)
		return nil, fmt.Errorf("failed to query reflections: %w", err)
	}
	defer rows.Close()

	var reflections []models.Reflection
	for rows.Next() {
		r, err := scanReflection(rows)
		if err != nil {
			return nil, err
		}
		reflections = append(reflections, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reflection rows: %w", err)
	}
	slog.Debug("SQLiteStore ListReflectionsByStatus succeeded", "status", status, "count", len(reflections))
	return reflections, nil
}

// SaveEnrichment persists the generated payload and marks the reflection ready.
func (s *SQLiteStore) SaveEnrichment(reflectionID string, payload models.EnrichmentPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		slog.Error("SQLiteStore SaveEnrichment marshal failed", "error", err, "reflectionID", reflectionID)
		return fmt.Errorf("failed to marshal enrichment payload: %w", err)
	}

	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO enrichments (reflection_id, payload_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(reflection_id) DO UPDATE SET payload_json = excluded.payload_json, updated_at = excluded.updated_at`,
		reflectionID, string(payloadJSON), now, now,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveEnrichment failed", "error", err, "reflectionID", reflectionID)
		return fmt.Errorf("failed to save enrichment for %s: %w", reflectionID, err)
	}

	if err := s.UpdateReflectionStatus(reflectionID, models.ReflectionStatusReady); err != nil {
		return err
	}
	slog.Debug("SQLiteStore SaveEnrichment succeeded", "reflectionID", reflectionID)
	return nil
}

// GetEnrichmentStatus reports enrichment progress for a reflection.
func (s *SQLiteStore) GetEnrichmentStatus(reflectionID string) (*models.EnrichmentStatus, error) {
	r, err := s.GetReflection(reflectionID)
	if err != nil {
		return nil, err
	}

	status := &models.EnrichmentStatus{
		ReflectionID: reflectionID,
		Status:       r.Status,
		Done:         r.Status == models.ReflectionStatusReady || r.Status == models.ReflectionStatusFailed,
	}

	var payloadJSON string
	err = s.db.QueryRow(
		`SELECT payload_json FROM enrichments WHERE reflection_id = ?`, reflectionID,
	).Scan(&payloadJSON)
	if err == sql.ErrNoRows {
		return status, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetEnrichmentStatus failed", "error", err, "reflectionID", reflectionID)
		return nil, fmt.Errorf("failed to query enrichment for %s: %w", reflectionID, err)
	}

	var payload models.EnrichmentPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		slog.Error("SQLiteStore GetEnrichmentStatus unmarshal failed", "error", err, "reflectionID", reflectionID)
		return nil, fmt.Errorf("failed to unmarshal enrichment payload: %w", err)
	}
	status.Payload = &payload
	status.Done = true
	return status, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
