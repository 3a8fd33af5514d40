// Package store provides persistence backends for Reverie.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/reveriehq/reverie/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// CreateReflection inserts a new reflection. Missing ID and timestamps are
// filled in; the status defaults to pending and the emotion to peaceful.
func (s *PostgresStore) CreateReflection(r *models.Reflection) error {
	if err := prepareReflection(r); err != nil {
		return err
	}

	_, err := s.db.Exec(
		`INSERT INTO reflections (id, body, emotion, status, phone, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.Text, r.Emotion, r.Status, nilIfEmpty(r.Phone), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore CreateReflection failed", "error", err, "id", r.ID)
		return fmt.Errorf("failed to insert reflection %s: %w", r.ID, err)
	}
	slog.Debug("PostgresStore CreateReflection succeeded", "id", r.ID, "emotion", r.Emotion)
	return nil
}

// GetReflection retrieves a reflection by ID.
func (s *PostgresStore) GetReflection(id string) (*models.Reflection, error) {
	row := s.db.QueryRow(
		`SELECT id, body, emotion, status, phone, created_at, updated_at
		 FROM reflections WHERE id = $1`, id,
	)
	r, err := scanReflectionRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetReflection not found", "id", id)
		return nil, models.ErrReflectionNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetReflection failed", "error", err, "id", id)
		return nil, err
	}
	return &r, nil
}

// UpdateReflectionStatus transitions a reflection's enrichment status.
func (s *PostgresStore) UpdateReflectionStatus(id string, status models.ReflectionStatus) error {
	result, err := s.db.Exec(
		`UPDATE reflections SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id,
	)
	if err != nil {
		slog.Error("PostgresStore UpdateReflectionStatus failed", "error", err, "id", id, "status", status)
		return fmt.Errorf("failed to update reflection %s status: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrReflectionNotFound
	}
	slog.Debug("PostgresStore UpdateReflectionStatus succeeded", "id", id, "status", status)
	return nil
}

// UpdateReflectionEmotion records the detected primary emotion.
func (s *PostgresStore) UpdateReflectionEmotion(id string, emotion models.Emotion) error {
	if !models.IsValidEmotion(emotion) {
		return models.ErrInvalidEmotion
	}
	result, err := s.db.Exec(
		`UPDATE reflections SET emotion = $1, updated_at = $2 WHERE id = $3`,
		emotion, time.Now(), id,
	)
	if err != nil {
		slog.Error("PostgresStore UpdateReflectionEmotion failed", "error", err, "id", id)
		return fmt.Errorf("failed to update reflection %s emotion: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrReflectionNotFound
	}
	slog.Debug("PostgresStore UpdateReflectionEmotion succeeded", "id", id, "emotion", emotion)
	return nil
}

// ListReflectionsByStatus returns all reflections in the given status, oldest first.
func (s *PostgresStore) ListReflectionsByStatus(status models.ReflectionStatus) ([]models.Reflection, error) {
	rows, err := s.db.Query(
		`SELECT id, body, emotion, status, phone, created_at, updated_at
		 FROM reflections WHERE status = $1 ORDER BY created_at ASC`, status,
	)
	if err != nil {
		slog.Error("PostgresStore ListReflectionsByStatus query failed", "error", err, "status", status)
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
	slog.Debug("PostgresStore ListReflectionsByStatus succeeded", "status", status, "count", len(reflections))
	return reflections, nil
}

// SaveEnrichment persists the generated payload and marks the reflection ready.
func (s *PostgresStore) SaveEnrichment(reflectionID string, payload models.EnrichmentPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		slog.Error("PostgresStore SaveEnrichment marshal failed", "error", err, "reflectionID", reflectionID)
		return fmt.Errorf("failed to marshal enrichment payload: %w", err)
	}

	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO enrichments (reflection_id, payload_json, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (reflection_id) DO UPDATE SET payload_json = EXCLUDED.payload_json, updated_at = EXCLUDED.updated_at`,
		reflectionID, string(payloadJSON), now, now,
	)
	if err != nil {
		slog.Error("PostgresStore SaveEnrichment failed", "error", err, "reflectionID", reflectionID)
		return fmt.Errorf("failed to save enrichment for %s: %w", reflectionID, err)
	}

	if err := s.UpdateReflectionStatus(reflectionID, models.ReflectionStatusReady); err != nil {
		return err
	}
	slog.Debug("PostgresStore SaveEnrichment succeeded", "reflectionID", reflectionID)
	return nil
}

// GetEnrichmentStatus reports enrichment progress for a reflection.
func (s *PostgresStore) GetEnrichmentStatus(reflectionID string) (*models.EnrichmentStatus, error) {
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
		`SELECT payload_json FROM enrichments WHERE reflection_id = $1`, reflectionID,
	).Scan(&payloadJSON)
	if err == sql.ErrNoRows {
		return status, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetEnrichmentStatus failed", "error", err, "reflectionID", reflectionID)
		return nil, fmt.Errorf("failed to query enrichment for %s: %w", reflectionID, err)
	}

	var payload models.EnrichmentPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		slog.Error("PostgresStore GetEnrichmentStatus unmarshal failed", "error", err, "reflectionID", reflectionID)
		return nil, fmt.Errorf("failed to unmarshal enrichment payload: %w", err)
	}
	status.Payload = &payload
	status.Done = true
	return status, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
