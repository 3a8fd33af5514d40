package letter

import (
	"context"
	"log/slog"
	"time"

	"github.com/reveriehq/reverie/internal/store"
)

// DeliveryHour is the local hour at which queued letters become due.
const DeliveryHour = 8

// NextMorning returns the next occurrence of the delivery hour strictly after
// now. A reflection written at 23:40 gets its letter at 08:00 the next day; one
// written at 02:00 gets it the same morning.
func NextMorning(now time.Time) time.Time {
	morning := time.Date(now.Year(), now.Month(), now.Day(), DeliveryHour, 0, 0, 0, now.Location())
	if !morning.After(now) {
		morning = morning.AddDate(0, 0, 1)
	}
	return morning
}

// Dispatcher claims due letters from the store and hands them to the sender.
// Delivery is best effort: failures are logged and retried on later runs,
// never surfaced to the reveal flow.
type Dispatcher struct {
	repo           store.LetterRepo
	sender         Sender
	staleThreshold time.Duration
	claimLimit     int
}

// NewDispatcher creates a dispatcher over the given letter repo and sender.
func NewDispatcher(repo store.LetterRepo, sender Sender) *Dispatcher {
	return &Dispatcher{
		repo:           repo,
		sender:         sender,
		staleThreshold: 5 * time.Minute,
		claimLimit:     25,
	}
}

// RecoverStaleLetters requeues letters stuck in sending state (crash recovery).
// Should be called once at startup.
func (d *Dispatcher) RecoverStaleLetters() error {
	staleBefore := time.Now().Add(-d.staleThreshold)
	n, err := d.repo.RequeueStaleSendingLetters(staleBefore)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("Dispatcher.RecoverStaleLetters: requeued stale letters", "count", n)
	}
	return nil
}

// DispatchDue claims and sends every currently due letter. Returns the number
// of letters successfully sent. Intended to run from the morning cron entry.
func (d *Dispatcher) DispatchDue(ctx context.Context) int {
	sent := 0
	for {
		now := time.Now()
		letters, err := d.repo.ClaimDueLetters(now, d.claimLimit)
		if err != nil {
			slog.Error("Dispatcher.DispatchDue: claim failed", "error", err)
			return sent
		}
		if len(letters) == 0 {
			return sent
		}

		for _, l := range letters {
			slog.Debug("Dispatcher.DispatchDue: sending letter", "id", l.ID, "reflectionID", l.ReflectionID)
			if err := d.sender.SendLetter(ctx, l.Phone, l.Body); err != nil {
				slog.Error("Dispatcher.DispatchDue: send failed", "id", l.ID, "error", err)
				// Exponential backoff: 10m, 20m, 40m, ... until the store
				// parks the letter at LetterMaxAttempts.
				backoff := time.Duration(10*(1<<l.Attempts)) * time.Minute
				if err := d.repo.FailLetter(l.ID, err.Error(), now.Add(backoff)); err != nil {
					slog.Error("Dispatcher.DispatchDue: fail letter error", "id", l.ID, "error", err)
				}
				continue
			}
			if err := d.repo.MarkLetterSent(l.ID); err != nil {
				slog.Error("Dispatcher.DispatchDue: mark sent error", "id", l.ID, "error", err)
				continue
			}
			sent++
			slog.Debug("Dispatcher.DispatchDue: letter sent", "id", l.ID, "reflectionID", l.ReflectionID)
		}
	}
}
