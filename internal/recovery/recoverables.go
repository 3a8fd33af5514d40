package recovery

import (
	"context"
	"log/slog"

	"github.com/reveriehq/reverie/internal/enrich"
	"github.com/reveriehq/reverie/internal/letter"
	"github.com/reveriehq/reverie/internal/models"
	"github.com/reveriehq/reverie/internal/store"
)

// StaleJobs requeues jobs a crashed worker left in the running state.
type StaleJobs struct {
	Runner *store.JobRunner
}

// Name identifies the recoverable in logs.
func (s StaleJobs) Name() string { return "stale-jobs" }

// Recover requeues stale running jobs via the job runner.
func (s StaleJobs) Recover(ctx context.Context) error {
	return s.Runner.RecoverStaleJobs()
}

// StuckEnrichments re-enqueues enrichment for reflections parked in the
// enriching state. Dedupe keys make this safe when a live job already exists;
// reflections whose job failed permanently get a fresh one.
type StuckEnrichments struct {
	Store store.Store
}

// Name identifies the recoverable in logs.
func (s StuckEnrichments) Name() string { return "stuck-enrichments" }

// Recover re-enqueues enrichment for every reflection still enriching.
func (s StuckEnrichments) Recover(ctx context.Context) error {
	reflections, err := s.Store.ListReflectionsByStatus(models.ReflectionStatusEnriching)
	if err != nil {
		return err
	}

	for i := range reflections {
		if err := enrich.Enqueue(s.Store, reflections[i].ID); err != nil {
			return err
		}
		slog.Debug("StuckEnrichments.Recover: re-enqueued enrichment", "reflection_id", reflections[i].ID)
	}
	if len(reflections) > 0 {
		slog.Info("StuckEnrichments.Recover: re-enqueued interrupted enrichments", "count", len(reflections))
	}
	return nil
}

// StaleLetters requeues letters a crashed dispatcher left in the sending
// state.
type StaleLetters struct {
	Dispatcher *letter.Dispatcher
}

// Name identifies the recoverable in logs.
func (s StaleLetters) Name() string { return "stale-letters" }

// Recover requeues stale sending letters via the dispatcher.
func (s StaleLetters) Recover(ctx context.Context) error {
	return s.Dispatcher.RecoverStaleLetters()
}
