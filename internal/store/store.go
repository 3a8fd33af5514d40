// Package store provides persistence backends for Reverie.
//
// It includes an SQLite-backed store for local deployments and a
// PostgreSQL-backed store for shared ones. Both persist reflections,
// enrichment payloads, durable jobs, and queued dream letters.
package store

import (
	"strings"

	"github.com/reveriehq/reverie/internal/models"
)

// Opts holds configuration options for store implementations.
type Opts struct {
	// DSN is the data source name: a file path for SQLite, a connection
	// string for PostgreSQL.
	DSN string
}

// Option defines a functional option for store configuration.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Connection URLs
// and key=value connection strings are PostgreSQL; anything else is treated
// as an SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Store defines the persistence operations Reverie needs. Both SQLiteStore
// and PostgresStore implement it.
type Store interface {
	// CreateReflection inserts a new reflection record.
	CreateReflection(r *models.Reflection) error

	// GetReflection retrieves a reflection by ID. Returns
	// models.ErrReflectionNotFound when no such reflection exists.
	GetReflection(id string) (*models.Reflection, error)

	// UpdateReflectionStatus transitions a reflection's enrichment status.
	UpdateReflectionStatus(id string, status models.ReflectionStatus) error

	// UpdateReflectionEmotion records the detected primary emotion.
	UpdateReflectionEmotion(id string, emotion models.Emotion) error

	// ListReflectionsByStatus returns all reflections in the given status,
	// oldest first. Used by startup recovery to find stuck enrichments.
	ListReflectionsByStatus(status models.ReflectionStatus) ([]models.Reflection, error)

	// SaveEnrichment persists the generated payload for a reflection and
	// marks the reflection ready.
	SaveEnrichment(reflectionID string, payload models.EnrichmentPayload) error

	// GetEnrichmentStatus reports enrichment progress for a reflection:
	// the reflection's status, a coarse done flag, and the payload when
	// one has been saved. Returns models.ErrReflectionNotFound when the
	// reflection does not exist.
	GetEnrichmentStatus(reflectionID string) (*models.EnrichmentStatus, error)

	JobRepo
	LetterRepo

	// Close releases the underlying database connection.
	Close() error
}
