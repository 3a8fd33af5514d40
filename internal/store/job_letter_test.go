package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEnqueueJobDedupe(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	id1, err := s.EnqueueJob(JobKindEnrichment, now, `{"reflection_id":"r1"}`, "enrichment:r1")
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	id2, err := s.EnqueueJob(JobKindEnrichment, now, `{"reflection_id":"r1"}`, "enrichment:r1")
	if err != nil {
		t.Fatalf("Second EnqueueJob failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("Expected dedupe to return existing ID, got %s and %s", id1, id2)
	}

	// A completed job no longer blocks re-enqueueing.
	if err := s.CompleteJob(id1); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
	id3, err := s.EnqueueJob(JobKindEnrichment, now, `{"reflection_id":"r1"}`, "enrichment:r1")
	if err != nil {
		t.Fatalf("Third EnqueueJob failed: %v", err)
	}
	if id3 == id1 {
		t.Error("Expected a fresh job after the previous one completed")
	}
}

func TestClaimDueJobs(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	dueID, err := s.EnqueueJob(JobKindEnrichment, now.Add(-time.Minute), "", "")
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	if _, err := s.EnqueueJob(JobKindEnrichment, now.Add(time.Hour), "", ""); err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}

	jobs, err := s.ClaimDueJobs(now, 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 due job, got %d", len(jobs))
	}
	if jobs[0].ID != dueID {
		t.Errorf("Expected job %s, got %s", dueID, jobs[0].ID)
	}
	if jobs[0].Status != JobStatusRunning {
		t.Errorf("Expected running status after claim, got %s", jobs[0].Status)
	}

	// Claimed jobs are not handed out twice.
	again, err := s.ClaimDueJobs(now, 10)
	if err != nil {
		t.Fatalf("Second ClaimDueJobs failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("Expected no jobs on second claim, got %d", len(again))
	}
}

func TestFailJobRetriesThenParks(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	id, err := s.EnqueueJob(JobKindEnrichment, now, "", "")
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}

	// Default budget is 3 attempts: two failures requeue, the third parks.
	for i := 0; i < 2; i++ {
		if _, err := s.ClaimDueJobs(now, 10); err != nil {
			t.Fatalf("ClaimDueJobs failed: %v", err)
		}
		if err := s.FailJob(id, "model unavailable", now); err != nil {
			t.Fatalf("FailJob failed: %v", err)
		}
		job, err := s.GetJob(id)
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if job.Status != JobStatusQueued {
			t.Fatalf("Expected requeue after failure %d, got %s", i+1, job.Status)
		}
	}

	if _, err := s.ClaimDueJobs(now, 10); err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if err := s.FailJob(id, "model unavailable", now); err != nil {
		t.Fatalf("Final FailJob failed: %v", err)
	}
	job, err := s.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != JobStatusFailed {
		t.Errorf("Expected permanently failed job, got %s", job.Status)
	}
	if job.Attempt != 3 {
		t.Errorf("Expected 3 attempts recorded, got %d", job.Attempt)
	}
	if job.LastError != "model unavailable" {
		t.Errorf("Unexpected last error: %q", job.LastError)
	}
}

func TestRequeueStaleRunningJobs(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	if _, err := s.EnqueueJob(JobKindEnrichment, now.Add(-time.Minute), "", ""); err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	if _, err := s.ClaimDueJobs(now, 10); err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}

	// Not stale yet.
	n, err := s.RequeueStaleRunningJobs(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("RequeueStaleRunningJobs failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no stale jobs, requeued %d", n)
	}

	// Anything locked before a future cutoff is stale.
	n, err = s.RequeueStaleRunningJobs(now.Add(time.Hour))
	if err != nil {
		t.Fatalf("RequeueStaleRunningJobs failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 stale job requeued, got %d", n)
	}
}

func TestCancelJob(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	id, err := s.EnqueueJob(JobKindEnrichment, now, "", "")
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	if err := s.CancelJob(id); err != nil {
		t.Fatalf("CancelJob failed: %v", err)
	}

	jobs, err := s.ClaimDueJobs(now, 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("Canceled job was claimed: %+v", jobs)
	}
}

// TestJobRunnerDispatch runs the real polling loop against the SQLite repo and
// a registered handler.
func TestJobRunnerDispatch(t *testing.T) {
	s := newTestStore(t)
	runner := NewJobRunner(s, 10*time.Millisecond)

	done := make(chan string, 1)
	runner.RegisterHandler(JobKindEnrichment, func(ctx context.Context, job Job) error {
		done <- job.PayloadJSON
		return nil
	})

	id, err := s.EnqueueJob(JobKindEnrichment, time.Now(), `{"reflection_id":"r9"}`, "")
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	select {
	case payload := <-done:
		if payload != `{"reflection_id":"r9"}` {
			t.Errorf("Unexpected payload: %q", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for handler dispatch")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		job, err := s.GetJob(id)
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if job.Status == JobStatusDone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Job never marked done, status %s", job.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestJobRunnerRetriesFailure verifies a failing handler leaves the job queued
// for a later attempt.
func TestJobRunnerRetriesFailure(t *testing.T) {
	s := newTestStore(t)
	runner := NewJobRunner(s, 10*time.Millisecond)

	attempted := make(chan struct{}, 1)
	runner.RegisterHandler(JobKindEnrichment, func(ctx context.Context, job Job) error {
		select {
		case attempted <- struct{}{}:
		default:
		}
		return errors.New("model unavailable")
	})

	id, err := s.EnqueueJob(JobKindEnrichment, time.Now(), "", "")
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	select {
	case <-attempted:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for handler attempt")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		job, err := s.GetJob(id)
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if job.Status == JobStatusQueued && job.Attempt == 1 {
			if job.RunAt.Before(time.Now().Add(20 * time.Second)) {
				t.Errorf("Expected backoff of at least 30s, run_at %v", job.RunAt)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Job never requeued, status %s attempt %d", job.Status, job.Attempt)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnqueueLetterDedupe(t *testing.T) {
	s := newTestStore(t)
	sendAfter := time.Now().Add(8 * time.Hour)

	id1, err := s.EnqueueLetter("r1", "+15551234567", "sleep well", sendAfter, "letter:r1")
	if err != nil {
		t.Fatalf("EnqueueLetter failed: %v", err)
	}
	id2, err := s.EnqueueLetter("r1", "+15551234567", "sleep well", sendAfter, "letter:r1")
	if err != nil {
		t.Fatalf("Second EnqueueLetter failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("Expected dedupe to return existing ID, got %s and %s", id1, id2)
	}
}

// TestLetterLifecycle covers enqueue, deferred delivery, failure retry, and
// final send.
func TestLetterLifecycle(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	sendAfter := now.Add(time.Hour)

	id, err := s.EnqueueLetter("r2", "+15557654321", "the river kept your secret", sendAfter, "")
	if err != nil {
		t.Fatalf("EnqueueLetter failed: %v", err)
	}

	// Not due before sendAfter.
	letters, err := s.ClaimDueLetters(now, 10)
	if err != nil {
		t.Fatalf("ClaimDueLetters failed: %v", err)
	}
	if len(letters) != 0 {
		t.Fatalf("Claimed letter before its send time: %+v", letters)
	}

	letters, err = s.ClaimDueLetters(sendAfter.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("ClaimDueLetters failed: %v", err)
	}
	if len(letters) != 1 || letters[0].ID != id {
		t.Fatalf("Expected the queued letter, got %+v", letters)
	}
	if letters[0].Status != LetterStatusSending {
		t.Errorf("Expected sending status after claim, got %s", letters[0].Status)
	}

	if err := s.FailLetter(id, "carrier rejected", sendAfter.Add(10*time.Minute)); err != nil {
		t.Fatalf("FailLetter failed: %v", err)
	}
	letters, err = s.ClaimDueLetters(sendAfter.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("ClaimDueLetters after failure failed: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("Expected failed letter to requeue, got %d", len(letters))
	}
	if letters[0].Attempts != 1 {
		t.Errorf("Expected 1 attempt recorded, got %d", letters[0].Attempts)
	}
	if letters[0].LastError != "carrier rejected" {
		t.Errorf("Unexpected last error: %q", letters[0].LastError)
	}

	if err := s.MarkLetterSent(id); err != nil {
		t.Fatalf("MarkLetterSent failed: %v", err)
	}
	letters, err = s.ClaimDueLetters(sendAfter.Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("ClaimDueLetters after send failed: %v", err)
	}
	if len(letters) != 0 {
		t.Errorf("Sent letter was claimed again: %+v", letters)
	}
}

// TestFailLetterRetriesThenParks verifies the delivery attempt budget: early
// failures requeue with a later attempt time, the final one parks the letter
// so it is never claimed again.
func TestFailLetterRetriesThenParks(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	id, err := s.EnqueueLetter("r4", "+15551112222", "rest now", now.Add(-time.Minute), "")
	if err != nil {
		t.Fatalf("EnqueueLetter failed: %v", err)
	}

	for i := 0; i < LetterMaxAttempts; i++ {
		letters, err := s.ClaimDueLetters(now.Add(240*time.Hour), 10)
		if err != nil {
			t.Fatalf("ClaimDueLetters failed: %v", err)
		}
		if len(letters) != 1 {
			t.Fatalf("Expected to claim the letter on attempt %d, got %d", i+1, len(letters))
		}
		if letters[0].Attempts != i {
			t.Errorf("Expected %d prior attempts, got %d", i, letters[0].Attempts)
		}
		if err := s.FailLetter(id, "carrier rejected", now.Add(time.Duration(i+1)*time.Hour)); err != nil {
			t.Fatalf("FailLetter failed: %v", err)
		}
	}

	// Parked: no claim window reaches it anymore.
	letters, err := s.ClaimDueLetters(now.Add(240*time.Hour), 10)
	if err != nil {
		t.Fatalf("ClaimDueLetters after park failed: %v", err)
	}
	if len(letters) != 0 {
		t.Errorf("Parked letter was claimed again: %+v", letters)
	}
}

func TestRequeueStaleSendingLetters(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	if _, err := s.EnqueueLetter("r3", "+15550000000", "goodnight", now.Add(-time.Minute), ""); err != nil {
		t.Fatalf("EnqueueLetter failed: %v", err)
	}
	if _, err := s.ClaimDueLetters(now, 10); err != nil {
		t.Fatalf("ClaimDueLetters failed: %v", err)
	}

	n, err := s.RequeueStaleSendingLetters(now.Add(time.Hour))
	if err != nil {
		t.Fatalf("RequeueStaleSendingLetters failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 stale letter requeued, got %d", n)
	}
}
