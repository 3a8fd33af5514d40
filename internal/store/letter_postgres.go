package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/reveriehq/reverie/internal/util"
)

// Compile-time check that PostgresStore implements LetterRepo.
var _ LetterRepo = (*PostgresStore)(nil)

func (s *PostgresStore) EnqueueLetter(reflectionID, phone, body string, sendAfter time.Time, dedupeKey string) (string, error) {
	id := util.GenerateRandomID("letter_", 32)
	now := time.Now()

	if dedupeKey != "" {
		var existingID string
		err := s.db.QueryRow(
			`SELECT id FROM letters WHERE dedupe_key = $1 AND status NOT IN ('sent', 'canceled')`,
			dedupeKey,
		).Scan(&existingID)
		if err == nil {
			slog.Debug("PostgresStore.EnqueueLetter: dedupe hit", "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("letter dedupe check failed: %w", err)
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO letters (id, reflection_id, phone, body, status, attempts, next_attempt_at, dedupe_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'queued', 0, $5, $6, $7, $8)`,
		id, reflectionID, phone, body, sendAfter, nilIfEmpty(dedupeKey), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue letter failed: %w", err)
	}
	slog.Debug("PostgresStore.EnqueueLetter", "id", id, "reflectionID", reflectionID, "sendAfter", sendAfter)
	return id, nil
}

func (s *PostgresStore) ClaimDueLetters(now time.Time, limit int) ([]Letter, error) {
	rows, err := s.db.Query(
		`UPDATE letters SET status = 'sending', locked_at = $1, updated_at = $1
		 WHERE id IN (
		     SELECT id FROM letters WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		     ORDER BY created_at ASC LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, reflection_id, phone, body, status, attempts, next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due letters failed: %w", err)
	}
	defer rows.Close()

	var letters []Letter
	for rows.Next() {
		l, err := scanLetter(rows)
		if err != nil {
			return nil, err
		}
		letters = append(letters, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim letters iteration failed: %w", err)
	}
	return letters, nil
}

func (s *PostgresStore) MarkLetterSent(id string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE letters SET status = 'sent', locked_at = NULL, updated_at = $1 WHERE id = $2`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("mark letter sent failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailLetter(id string, errMsg string, nextAttemptAt time.Time) error {
	now := time.Now()
	result, err := s.db.Exec(
		`UPDATE letters SET status = 'queued', attempts = attempts + 1, last_error = $1, next_attempt_at = $2, locked_at = NULL, updated_at = $3
		 WHERE id = $4 AND attempts + 1 < $5`,
		errMsg, nextAttemptAt, now, id, LetterMaxAttempts,
	)
	if err != nil {
		return fmt.Errorf("fail letter failed: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}

	// Attempt budget spent: park the letter.
	_, err = s.db.Exec(
		`UPDATE letters SET status = 'failed', attempts = attempts + 1, last_error = $1, locked_at = NULL, updated_at = $2 WHERE id = $3`,
		errMsg, now, id,
	)
	if err != nil {
		return fmt.Errorf("park failed letter failed: %w", err)
	}
	slog.Warn("PostgresStore.FailLetter: letter permanently failed", "id", id, "error", errMsg)
	return nil
}

func (s *PostgresStore) CancelLetter(id string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE letters SET status = 'canceled', locked_at = NULL, updated_at = $1 WHERE id = $2 AND status IN ('queued', 'sending')`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("cancel letter failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) RequeueStaleSendingLetters(staleBefore time.Time) (int, error) {
	now := time.Now()
	result, err := s.db.Exec(
		`UPDATE letters SET status = 'queued', locked_at = NULL, updated_at = $1 WHERE status = 'sending' AND locked_at < $2`,
		now, staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale letters failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.RequeueStaleSendingLetters", "requeued", n)
	}
	return int(n), nil
}
