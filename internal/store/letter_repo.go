// Package store provides the LetterRepo interface and model for restart-safe
// dream letter delivery.
package store

import (
	"time"
)

// LetterStatus represents the lifecycle state of a queued dream letter.
type LetterStatus string

const (
	LetterStatusQueued   LetterStatus = "queued"
	LetterStatusSending  LetterStatus = "sending"
	LetterStatusSent     LetterStatus = "sent"
	LetterStatusFailed   LetterStatus = "failed"
	LetterStatusCanceled LetterStatus = "canceled"
)

// LetterMaxAttempts bounds delivery retries before a letter parks as failed.
const LetterMaxAttempts = 5

// Letter represents a durable outgoing dream letter record. The closing line
// of a reflection's enrichment is queued here at generation time and delivered
// by the next morning's dispatch run.
type Letter struct {
	ID            string       `json:"id"`
	ReflectionID  string       `json:"reflection_id"`
	Phone         string       `json:"phone"`
	Body          string       `json:"body"`
	Status        LetterStatus `json:"status"`
	Attempts      int          `json:"attempts"`
	NextAttemptAt *time.Time   `json:"next_attempt_at"`
	DedupeKey     string       `json:"dedupe_key"`
	LockedAt      *time.Time   `json:"locked_at"`
	LastError     string       `json:"last_error"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// LetterRepo defines the interface for durable dream letter persistence.
type LetterRepo interface {
	// EnqueueLetter inserts a new letter due no earlier than sendAfter. If
	// dedupeKey is non-empty and a non-terminal letter with that key exists,
	// returns the existing ID.
	EnqueueLetter(reflectionID, phone, body string, sendAfter time.Time, dedupeKey string) (string, error)

	// ClaimDueLetters marks up to limit queued letters whose
	// next_attempt_at <= now as sending and returns them.
	ClaimDueLetters(now time.Time, limit int) ([]Letter, error)

	// MarkLetterSent marks a letter as successfully delivered.
	MarkLetterSent(id string) error

	// FailLetter records a delivery failure and schedules a retry at
	// nextAttemptAt, or parks the letter as failed once LetterMaxAttempts
	// is spent.
	FailLetter(id string, errMsg string, nextAttemptAt time.Time) error

	// CancelLetter marks a queued letter as canceled.
	CancelLetter(id string) error

	// RequeueStaleSendingLetters resets letters stuck in sending since before
	// staleBefore back to queued (crash recovery).
	RequeueStaleSendingLetters(staleBefore time.Time) (int, error)
}
