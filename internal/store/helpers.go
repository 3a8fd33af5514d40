package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/reveriehq/reverie/internal/models"
	"github.com/reveriehq/reverie/internal/util"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// prepareReflection fills defaults on a new reflection and validates it.
func prepareReflection(r *models.Reflection) error {
	if r.ID == "" {
		r.ID = util.GenerateReflectionID()
	}
	if r.Emotion == "" {
		r.Emotion = models.EmotionPeaceful
	}
	if r.Status == "" {
		r.Status = models.ReflectionStatusPending
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return r.Validate()
}

// scanReflection scans a Reflection from sql.Rows.
func scanReflection(rows *sql.Rows) (models.Reflection, error) {
	var r models.Reflection
	var phone sql.NullString
	err := rows.Scan(&r.ID, &r.Text, &r.Emotion, &r.Status, &phone, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, fmt.Errorf("scan reflection failed: %w", err)
	}
	r.Phone = phone.String
	return r, nil
}

// scanReflectionRow scans a Reflection from a single sql.Row.
func scanReflectionRow(row *sql.Row) (models.Reflection, error) {
	var r models.Reflection
	var phone sql.NullString
	err := row.Scan(&r.ID, &r.Text, &r.Emotion, &r.Status, &phone, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.Phone = phone.String
	return r, nil
}

// scanJob scans a Job from sql.Rows.
func scanJob(rows *sql.Rows) (Job, error) {
	var j Job
	var payloadJSON, lastError, dedupeKey sql.NullString
	var lockedAt sql.NullTime
	err := rows.Scan(
		&j.ID, &j.Kind, &j.RunAt, &payloadJSON, &j.Status, &j.Attempt, &j.MaxAttempts,
		&lastError, &lockedAt, &dedupeKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, fmt.Errorf("scan job failed: %w", err)
	}
	j.PayloadJSON = payloadJSON.String
	j.LastError = lastError.String
	j.DedupeKey = dedupeKey.String
	if lockedAt.Valid {
		j.LockedAt = &lockedAt.Time
	}
	return j, nil
}

// scanJobRow scans a Job from a single sql.Row.
func scanJobRow(row *sql.Row) (Job, error) {
	var j Job
	var payloadJSON, lastError, dedupeKey sql.NullString
	var lockedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.Kind, &j.RunAt, &payloadJSON, &j.Status, &j.Attempt, &j.MaxAttempts,
		&lastError, &lockedAt, &dedupeKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}
	j.PayloadJSON = payloadJSON.String
	j.LastError = lastError.String
	j.DedupeKey = dedupeKey.String
	if lockedAt.Valid {
		j.LockedAt = &lockedAt.Time
	}
	return j, nil
}

// scanLetter scans a Letter from sql.Rows.
func scanLetter(rows *sql.Rows) (Letter, error) {
	var l Letter
	var dedupeKey, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := rows.Scan(
		&l.ID, &l.ReflectionID, &l.Phone, &l.Body, &l.Status, &l.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return l, fmt.Errorf("scan letter failed: %w", err)
	}
	l.DedupeKey = dedupeKey.String
	l.LastError = lastError.String
	if nextAttemptAt.Valid {
		l.NextAttemptAt = &nextAttemptAt.Time
	}
	if lockedAt.Valid {
		l.LockedAt = &lockedAt.Time
	}
	return l, nil
}
