package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/reveriehq/reverie/internal/util"
)

// Compile-time check that SQLiteStore implements LetterRepo.
var _ LetterRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) EnqueueLetter(reflectionID, phone, body string, sendAfter time.Time, dedupeKey string) (string, error) {
	id := util.GenerateRandomID("letter_", 32)
	now := time.Now()

	if dedupeKey != "" {
		var existingID string
		err := s.db.QueryRow(
			`SELECT id FROM letters WHERE dedupe_key = ? AND status NOT IN ('sent', 'canceled')`,
			dedupeKey,
		).Scan(&existingID)
		if err == nil {
			slog.Debug("SQLiteStore.EnqueueLetter: dedupe hit", "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("letter dedupe check failed: %w", err)
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO letters (id, reflection_id, phone, body, status, attempts, next_attempt_at, dedupe_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?, ?)`,
		id, reflectionID, phone, body, sendAfter, nilIfEmpty(dedupeKey), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue letter failed: %w", err)
	}
	slog.Debug("SQLiteStore.EnqueueLetter", "id", id, "reflectionID", reflectionID, "sendAfter", sendAfter)
	return id, nil
}

func (s *SQLiteStore) ClaimDueLetters(now time.Time, limit int) ([]Letter, error) {
	rows, err := s.db.Query(
		`SELECT id, reflection_id, phone, body, status, attempts, next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at
		 FROM letters WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at ASC LIMIT ?`,
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

	for i := range letters {
		_, err := s.db.Exec(
			`UPDATE letters SET status = 'sending', locked_at = ?, updated_at = ? WHERE id = ?`,
			now, now, letters[i].ID,
		)
		if err != nil {
			return nil, fmt.Errorf("mark letter sending failed: %w", err)
		}
		letters[i].Status = LetterStatusSending
		letters[i].LockedAt = &now
	}

	return letters, nil
}

func (s *SQLiteStore) MarkLetterSent(id string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE letters SET status = 'sent', locked_at = NULL, updated_at = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("mark letter sent failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FailLetter(id string, errMsg string, nextAttemptAt time.Time) error {
	now := time.Now()
	result, err := s.db.Exec(
		`UPDATE letters SET status = 'queued', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ?
		 WHERE id = ? AND attempts + 1 < ?`,
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
		`UPDATE letters SET status = 'failed', attempts = attempts + 1, last_error = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
		errMsg, now, id,
	)
	if err != nil {
		return fmt.Errorf("park failed letter failed: %w", err)
	}
	slog.Warn("SQLiteStore.FailLetter: letter permanently failed", "id", id, "error", errMsg)
	return nil
}

func (s *SQLiteStore) CancelLetter(id string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE letters SET status = 'canceled', locked_at = NULL, updated_at = ? WHERE id = ? AND status IN ('queued', 'sending')`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("cancel letter failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RequeueStaleSendingLetters(staleBefore time.Time) (int, error) {
	now := time.Now()
	result, err := s.db.Exec(
		`UPDATE letters SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'sending' AND locked_at < ?`,
		now, staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale letters failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RequeueStaleSendingLetters", "requeued", n)
	}
	return int(n), nil
}
