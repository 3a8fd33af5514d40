package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reveriehq/reverie/internal/models"
	"github.com/reveriehq/reverie/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "reverie.db")
	st, err := store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	srv := NewServer(st)
	t.Cleanup(srv.sessions.StopAll)
	return srv, st
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Response is not JSON envelope: %v (%s)", err, rec.Body.String())
	}
	return rec, resp
}

func resultField(t *testing.T, resp models.APIResponse, key string) interface{} {
	t.Helper()
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Result is not an object: %+v", resp.Result)
	}
	return result[key]
}

func TestCreateReflection(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()

	rec, resp := doJSON(t, h, http.MethodPost, "/reflections",
		`{"text": "I was so worried about tomorrow", "phone": "+15551234567"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d (%s)", rec.Code, rec.Body.String())
	}
	if resp.Status != string(models.APIStatusAccepted) {
		t.Errorf("Expected accepted envelope, got %s", resp.Status)
	}

	id, _ := resultField(t, resp, "id").(string)
	if id == "" {
		t.Fatal("Expected reflection ID in result")
	}
	if got := resultField(t, resp, "emotion"); got != string(models.EmotionAnxious) {
		t.Errorf("Expected detected anxious emotion, got %v", got)
	}

	// The reflection is persisted as enriching with a queued job behind it.
	refl, err := st.GetReflection(id)
	if err != nil {
		t.Fatalf("GetReflection failed: %v", err)
	}
	if refl.Status != models.ReflectionStatusEnriching {
		t.Errorf("Expected enriching status, got %s", refl.Status)
	}
	jobs, err := st.ClaimDueJobs(time.Now(), 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Kind != store.JobKindEnrichment {
		t.Errorf("Expected 1 enrichment job, got %+v", jobs)
	}
}

func TestCreateReflectionDeclaredEmotion(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec, resp := doJSON(t, h, http.MethodPost, "/reflections",
		`{"text": "plain words", "emotion": "Tired"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}
	if got := resultField(t, resp, "emotion"); got != string(models.EmotionTired) {
		t.Errorf("Expected declared tired emotion, got %v", got)
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/reflections",
		`{"text": "plain words", "emotion": "melancholy"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown emotion, got %d", rec.Code)
	}
}

// TestCreateReflectionSmoothedEmotion verifies a repeat caller's profile
// shapes later sessions: a declared emotion activates a primary, and a
// neutral follow-up from the same phone both returns and persists it.
func TestCreateReflectionSmoothedEmotion(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()

	rec, _ := doJSON(t, h, http.MethodPost, "/reflections",
		`{"text": "plain words", "phone": "+15559998888", "emotion": "sad"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec, resp := doJSON(t, h, http.MethodPost, "/reflections",
		`{"text": "plain words", "phone": "+15559998888"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d (%s)", rec.Code, rec.Body.String())
	}
	if got := resultField(t, resp, "emotion"); got != string(models.EmotionSad) {
		t.Errorf("Expected smoothed sad emotion, got %v", got)
	}

	// The smoothed emotion is what the session's breathing preset will read.
	id, _ := resultField(t, resp, "id").(string)
	refl, err := st.GetReflection(id)
	if err != nil {
		t.Fatalf("GetReflection failed: %v", err)
	}
	if refl.Emotion != models.EmotionSad {
		t.Errorf("Expected persisted sad emotion, got %s", refl.Emotion)
	}
}

func TestCreateReflectionRejectsEmptyText(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec, resp := doJSON(t, h, http.MethodPost, "/reflections", `{"text": ""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if resp.Status != string(models.APIStatusError) {
		t.Errorf("Expected error envelope, got %s", resp.Status)
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/reflections", "not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestGetReflectionStatus(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()

	rec, _ := doJSON(t, h, http.MethodGet, "/reflections/refl_missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}

	refl := &models.Reflection{Text: "waiting for words"}
	if err := st.CreateReflection(refl); err != nil {
		t.Fatalf("CreateReflection failed: %v", err)
	}

	rec, resp := doJSON(t, h, http.MethodGet, "/reflections/"+refl.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if done := resultField(t, resp, "done"); done != false {
		t.Errorf("Expected done=false before enrichment, got %v", done)
	}

	payload := models.EnrichmentPayload{Poems: [3]string{"P1", "P2", "P3"}, ClosingLine: "rest"}
	if err := st.SaveEnrichment(refl.ID, payload); err != nil {
		t.Fatalf("SaveEnrichment failed: %v", err)
	}

	rec, resp = doJSON(t, h, http.MethodGet, "/reflections/"+refl.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if done := resultField(t, resp, "done"); done != true {
		t.Errorf("Expected done=true after enrichment, got %v", done)
	}
	if resultField(t, resp, "payload") == nil {
		t.Error("Expected payload in ready status")
	}
}

// readyReflection stores a reflection with a saved payload, ready to reveal.
func readyReflection(t *testing.T, st *store.SQLiteStore) string {
	t.Helper()
	refl := &models.Reflection{Text: "the day is folded away"}
	if err := st.CreateReflection(refl); err != nil {
		t.Fatalf("CreateReflection failed: %v", err)
	}
	payload := models.EnrichmentPayload{
		Poems:       [3]string{"P1", "P2", "P3"},
		Tips:        [3]string{"T1", "T2", "T3"},
		ClosingLine: "sleep now",
	}
	if err := st.SaveEnrichment(refl.ID, payload); err != nil {
		t.Fatalf("SaveEnrichment failed: %v", err)
	}
	return refl.ID
}

func TestSessionLifecycle(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()
	reflID := readyReflection(t, st)

	body := fmt.Sprintf(`{"reflection_id": %q, "require_min_cycles": false, "poll_interval_ms": 5}`, reflID)
	rec, resp := doJSON(t, h, http.MethodPost, "/sessions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	sessID, _ := resultField(t, resp, "id").(string)
	if sessID == "" {
		t.Fatal("Expected session ID in result")
	}

	// With the payload already saved and no cycle gate, the reveal begins as
	// soon as the poller reports ready.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, resp = doJSON(t, h, http.MethodGet, "/sessions/"+sessID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		step, _ := resultField(t, resp, "step").(map[string]interface{})
		if step["kind"] == string(models.StepPoem) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Session never reached the first poem: %+v", resp.Result)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if mayStart := resultField(t, resp, "may_start"); mayStart != true {
		t.Errorf("Expected open gate, got may_start=%v", mayStart)
	}

	rec, _ = doJSON(t, h, http.MethodDelete, "/sessions/"+sessID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on delete, got %d", rec.Code)
	}
	rec, _ = doJSON(t, h, http.MethodGet, "/sessions/"+sessID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
	if srv.sessions.Len() != 0 {
		t.Errorf("Expected empty registry, got %d sessions", srv.sessions.Len())
	}
}

func TestCreateSessionUnknownReflection(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec, _ := doJSON(t, h, http.MethodPost, "/sessions", `{"reflection_id": "refl_missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

// TestAdvanceSession verifies the acknowledgment endpoint: unknown sessions
// 404, and advancing with no pending gate leaves the step unchanged.
func TestAdvanceSession(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()
	reflID := readyReflection(t, st)

	rec, _ := doJSON(t, h, http.MethodPost, "/sessions/nope/advance", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}

	// Cycle-gated session: the reveal has not begun, so advance is a no-op.
	body := fmt.Sprintf(`{"reflection_id": %q, "ack_driven": true, "poll_interval_ms": 5}`, reflID)
	rec, resp := doJSON(t, h, http.MethodPost, "/sessions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	sessID, _ := resultField(t, resp, "id").(string)

	rec, resp = doJSON(t, h, http.MethodPost, "/sessions/"+sessID+"/advance", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	step, _ := resultField(t, resp, "step").(map[string]interface{})
	if step["kind"] != string(models.StepIdle) {
		t.Errorf("Expected idle step before the gate opens, got %v", step["kind"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec, resp := doJSON(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("Expected ok envelope, got %s", resp.Status)
	}
}
