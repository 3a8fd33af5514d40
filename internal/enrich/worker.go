package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/reveriehq/reverie/internal/letter"
	"github.com/reveriehq/reverie/internal/models"
	"github.com/reveriehq/reverie/internal/store"
)

// Generator produces an enrichment payload for a reflection. *Client
// implements it; tests substitute a stub.
type Generator interface {
	Generate(ctx context.Context, r *models.Reflection) (models.EnrichmentPayload, error)
}

// jobPayload is the JSON body of an enrichment job.
type jobPayload struct {
	ReflectionID string `json:"reflection_id"`
}

// Enqueue marks the reflection as enriching and schedules a durable
// enrichment job for it. The dedupe key guarantees at most one live job per
// reflection.
func Enqueue(s store.Store, reflectionID string) error {
	if err := s.UpdateReflectionStatus(reflectionID, models.ReflectionStatusEnriching); err != nil {
		return err
	}

	body, err := json.Marshal(jobPayload{ReflectionID: reflectionID})
	if err != nil {
		return fmt.Errorf("failed to marshal enrichment job payload: %w", err)
	}
	if _, err := s.EnqueueJob(store.JobKindEnrichment, time.Now(), string(body), "enrichment:"+reflectionID); err != nil {
		return fmt.Errorf("failed to enqueue enrichment job: %w", err)
	}
	slog.Debug("enrich.Enqueue: enrichment job queued", "reflectionID", reflectionID)
	return nil
}

// Worker executes enrichment jobs: it generates the payload, persists it, and
// queues the next morning's dream letter.
type Worker struct {
	store store.Store
	gen   Generator
}

// NewWorker creates a worker over the given store and generator.
func NewWorker(s store.Store, gen Generator) *Worker {
	return &Worker{store: s, gen: gen}
}

// Register attaches the worker to a JobRunner.
func (w *Worker) Register(runner *store.JobRunner) {
	runner.RegisterHandler(store.JobKindEnrichment, w.Handle)
}

// Handle executes a single enrichment job. Returning an error requeues the
// job with backoff; unrecoverable jobs (bad payload, deleted reflection) are
// logged and swallowed so they do not burn retries.
func (w *Worker) Handle(ctx context.Context, job store.Job) error {
	var body jobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &body); err != nil || body.ReflectionID == "" {
		slog.Warn("Worker.Handle: malformed job payload, dropping", "payload", job.PayloadJSON, "error", err)
		return nil
	}

	r, err := w.store.GetReflection(body.ReflectionID)
	if err == models.ErrReflectionNotFound {
		slog.Warn("Worker.Handle: reflection gone, dropping job", "reflectionID", body.ReflectionID)
		return nil
	}
	if err != nil {
		return err
	}

	payload, err := w.gen.Generate(ctx, r)
	if err != nil {
		return w.failed(job, r.ID, fmt.Errorf("enrichment generation for %s failed: %w", r.ID, err))
	}

	if err := w.store.SaveEnrichment(r.ID, payload); err != nil {
		return w.failed(job, r.ID, err)
	}
	slog.Info("Worker.Handle: enrichment ready", "reflectionID", r.ID, "emotion", r.Emotion)

	// Dream letter is best effort; a queue failure never fails the job.
	if r.Phone != "" && payload.ClosingLine != "" {
		sendAfter := letter.NextMorning(time.Now())
		if _, err := w.store.EnqueueLetter(r.ID, r.Phone, payload.ClosingLine, sendAfter, "letter:"+r.ID); err != nil {
			slog.Error("Worker.Handle: failed to queue dream letter", "reflectionID", r.ID, "error", err)
		}
	}
	return nil
}

// failed propagates a job error. When this was the job's last attempt the
// reflection is marked failed, so status pollers observe a terminal state
// instead of waiting on a job that will never run again.
func (w *Worker) failed(job store.Job, reflectionID string, err error) error {
	if job.Attempt+1 >= job.MaxAttempts {
		slog.Warn("Worker.failed: enrichment abandoned",
			"reflectionID", reflectionID, "attempts", job.Attempt+1, "error", err)
		if uerr := w.store.UpdateReflectionStatus(reflectionID, models.ReflectionStatusFailed); uerr != nil {
			slog.Error("Worker.failed: could not mark reflection failed", "reflectionID", reflectionID, "error", uerr)
		}
	}
	return err
}
