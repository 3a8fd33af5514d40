package store

import (
	"path/filepath"
	"testing"

	"github.com/reveriehq/reverie/internal/models"
)

// newTestStore creates an SQLite store backed by a temp-dir database file.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "reverie.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dsn))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetReflection(t *testing.T) {
	s := newTestStore(t)

	r := &models.Reflection{Text: "a quiet day by the water", Phone: "+15551234567"}
	if err := s.CreateReflection(r); err != nil {
		t.Fatalf("CreateReflection failed: %v", err)
	}
	if r.ID == "" {
		t.Fatal("Expected generated reflection ID")
	}
	if r.Status != models.ReflectionStatusPending {
		t.Errorf("Expected pending default status, got %s", r.Status)
	}

	got, err := s.GetReflection(r.ID)
	if err != nil {
		t.Fatalf("GetReflection failed: %v", err)
	}
	if got.Text != r.Text {
		t.Errorf("Expected text %q, got %q", r.Text, got.Text)
	}
	if got.Phone != r.Phone {
		t.Errorf("Expected phone %q, got %q", r.Phone, got.Phone)
	}
	if got.Emotion != models.EmotionPeaceful {
		t.Errorf("Expected peaceful default emotion, got %s", got.Emotion)
	}
}

func TestGetReflectionNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetReflection("refl_missing"); err != models.ErrReflectionNotFound {
		t.Errorf("Expected ErrReflectionNotFound, got %v", err)
	}
}

func TestCreateReflectionValidation(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateReflection(&models.Reflection{Text: ""}); err != models.ErrEmptyReflectionText {
		t.Errorf("Expected ErrEmptyReflectionText, got %v", err)
	}
}

func TestUpdateReflectionStatusAndEmotion(t *testing.T) {
	s := newTestStore(t)

	r := &models.Reflection{Text: "long day"}
	if err := s.CreateReflection(r); err != nil {
		t.Fatalf("CreateReflection failed: %v", err)
	}

	if err := s.UpdateReflectionStatus(r.ID, models.ReflectionStatusEnriching); err != nil {
		t.Fatalf("UpdateReflectionStatus failed: %v", err)
	}
	if err := s.UpdateReflectionEmotion(r.ID, models.EmotionTired); err != nil {
		t.Fatalf("UpdateReflectionEmotion failed: %v", err)
	}

	got, err := s.GetReflection(r.ID)
	if err != nil {
		t.Fatalf("GetReflection failed: %v", err)
	}
	if got.Status != models.ReflectionStatusEnriching {
		t.Errorf("Expected enriching status, got %s", got.Status)
	}
	if got.Emotion != models.EmotionTired {
		t.Errorf("Expected tired emotion, got %s", got.Emotion)
	}

	if err := s.UpdateReflectionEmotion(r.ID, models.Emotion("bogus")); err != models.ErrInvalidEmotion {
		t.Errorf("Expected ErrInvalidEmotion, got %v", err)
	}
	if err := s.UpdateReflectionStatus("refl_missing", models.ReflectionStatusReady); err != models.ErrReflectionNotFound {
		t.Errorf("Expected ErrReflectionNotFound, got %v", err)
	}
}

func TestListReflectionsByStatus(t *testing.T) {
	s := newTestStore(t)

	for _, text := range []string{"first", "second"} {
		r := &models.Reflection{Text: text, Status: models.ReflectionStatusEnriching}
		if err := s.CreateReflection(r); err != nil {
			t.Fatalf("CreateReflection failed: %v", err)
		}
	}
	ready := &models.Reflection{Text: "done already", Status: models.ReflectionStatusReady}
	if err := s.CreateReflection(ready); err != nil {
		t.Fatalf("CreateReflection failed: %v", err)
	}

	stuck, err := s.ListReflectionsByStatus(models.ReflectionStatusEnriching)
	if err != nil {
		t.Fatalf("ListReflectionsByStatus failed: %v", err)
	}
	if len(stuck) != 2 {
		t.Fatalf("Expected 2 enriching reflections, got %d", len(stuck))
	}
	if stuck[0].Text != "first" {
		t.Errorf("Expected oldest first, got %q", stuck[0].Text)
	}
}

// TestEnrichmentLifecycle walks a reflection from pending through ready and
// checks the status report the poller sees at each stage.
func TestEnrichmentLifecycle(t *testing.T) {
	s := newTestStore(t)

	r := &models.Reflection{Text: "the storm finally passed"}
	if err := s.CreateReflection(r); err != nil {
		t.Fatalf("CreateReflection failed: %v", err)
	}

	status, err := s.GetEnrichmentStatus(r.ID)
	if err != nil {
		t.Fatalf("GetEnrichmentStatus failed: %v", err)
	}
	if status.Done || status.Payload != nil {
		t.Errorf("Expected not-ready status before enrichment, got %+v", status)
	}

	payload := models.EnrichmentPayload{
		Poems:       [3]string{"P1", "P2", "P3"},
		Tips:        [3]string{"T1", "T2", "T3"},
		ClosingLine: "sleep well",
	}
	if err := s.SaveEnrichment(r.ID, payload); err != nil {
		t.Fatalf("SaveEnrichment failed: %v", err)
	}

	status, err = s.GetEnrichmentStatus(r.ID)
	if err != nil {
		t.Fatalf("GetEnrichmentStatus failed: %v", err)
	}
	if !status.Done {
		t.Error("Expected done after SaveEnrichment")
	}
	if status.Status != models.ReflectionStatusReady {
		t.Errorf("Expected ready status, got %s", status.Status)
	}
	if status.Payload == nil || status.Payload.ClosingLine != "sleep well" {
		t.Errorf("Unexpected payload: %+v", status.Payload)
	}

	// Saving again overwrites rather than erroring.
	payload.ClosingLine = "good night"
	if err := s.SaveEnrichment(r.ID, payload); err != nil {
		t.Fatalf("Second SaveEnrichment failed: %v", err)
	}
	status, err = s.GetEnrichmentStatus(r.ID)
	if err != nil {
		t.Fatalf("GetEnrichmentStatus failed: %v", err)
	}
	if status.Payload.ClosingLine != "good night" {
		t.Errorf("Expected overwritten closing line, got %q", status.Payload.ClosingLine)
	}
}

// TestEnrichmentStatusFailedIsDone verifies the coarse done flag covers the
// failed terminal state so pollers do not spin forever.
func TestEnrichmentStatusFailedIsDone(t *testing.T) {
	s := newTestStore(t)

	r := &models.Reflection{Text: "nothing came of it"}
	if err := s.CreateReflection(r); err != nil {
		t.Fatalf("CreateReflection failed: %v", err)
	}
	if err := s.UpdateReflectionStatus(r.ID, models.ReflectionStatusFailed); err != nil {
		t.Fatalf("UpdateReflectionStatus failed: %v", err)
	}

	status, err := s.GetEnrichmentStatus(r.ID)
	if err != nil {
		t.Fatalf("GetEnrichmentStatus failed: %v", err)
	}
	if !status.Done {
		t.Error("Expected done flag for failed reflection")
	}
	if status.Payload != nil {
		t.Errorf("Expected nil payload for failed reflection, got %+v", status.Payload)
	}
}
