// Package api provides HTTP handlers for Reverie endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/reveriehq/reverie/internal/breath"
	"github.com/reveriehq/reverie/internal/emotion"
	"github.com/reveriehq/reverie/internal/enrich"
	"github.com/reveriehq/reverie/internal/models"
	"github.com/reveriehq/reverie/internal/poller"
	"github.com/reveriehq/reverie/internal/reveal"
	"github.com/reveriehq/reverie/internal/store"
)

// Server carries the dependencies shared by all handlers.
type Server struct {
	store    store.Store
	sessions *SessionRegistry
	profiles *emotion.Profiles
	addr     string
}

// NewServer creates an API server over the given store.
func NewServer(st store.Store, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		store:    st,
		sessions: NewSessionRegistry(),
		profiles: emotion.NewProfiles(),
		addr:     cfg.Addr,
	}
}

// storeStatusSource adapts the store to the poller's StatusSource.
type storeStatusSource struct {
	st store.Store
}

func (s storeStatusSource) Status(ctx context.Context, reflectionID string) (*models.EnrichmentStatus, error) {
	return s.st.GetEnrichmentStatus(reflectionID)
}

type createReflectionRequest struct {
	Text    string `json:"text"`
	Phone   string `json:"phone,omitempty"`
	Emotion string `json:"emotion,omitempty"` // user-declared; detected from text when absent
}

func (s *Server) createReflectionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.createReflectionHandler: processing request", "path", r.URL.Path)

	var req createReflectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createReflectionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	refl := &models.Reflection{Text: req.Text, Phone: req.Phone}
	var proposal emotion.Proposal
	if req.Emotion != "" {
		declared := models.Emotion(strings.TrimSpace(strings.ToLower(req.Emotion)))
		if !models.IsValidEmotion(declared) {
			slog.Warn("Server.createReflectionHandler: unknown emotion", "emotion", req.Emotion)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown emotion: "+req.Emotion))
			return
		}
		proposal = emotion.Proposal{Emotion: declared, Confidence: 1, Source: emotion.SourceDeclared}
	} else {
		proposal = emotion.Detect(req.Text)
		slog.Debug("Server.createReflectionHandler: detected emotion",
			"emotion", proposal.Emotion, "confidence", proposal.Confidence)
	}
	refl.Emotion = proposal.Emotion

	if err := s.store.CreateReflection(refl); err != nil {
		if err == models.ErrEmptyReflectionText || err == models.ErrReflectionTextTooLong {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.createReflectionHandler: create failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store reflection"))
		return
	}

	// Repeat callers get the smoothed profile emotion, so one-off wording
	// does not swing the breathing preset session to session.
	if smoothed := s.profiles.Observe(req.Phone, proposal, time.Now()); smoothed != refl.Emotion {
		if err := s.store.UpdateReflectionEmotion(refl.ID, smoothed); err != nil {
			slog.Error("Server.createReflectionHandler: emotion update failed", "error", err, "id", refl.ID)
		} else {
			refl.Emotion = smoothed
		}
	}

	if err := enrich.Enqueue(s.store, refl.ID); err != nil {
		slog.Error("Server.createReflectionHandler: enqueue failed", "error", err, "id", refl.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to queue enrichment"))
		return
	}
	refl.Status = models.ReflectionStatusEnriching

	slog.Info("Server.createReflectionHandler: reflection accepted", "id", refl.ID, "emotion", refl.Emotion)
	writeJSONResponse(w, http.StatusAccepted, models.Accepted(refl))
}

func (s *Server) getReflectionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	slog.Debug("Server.getReflectionHandler: processing request", "id", id)

	status, err := s.store.GetEnrichmentStatus(id)
	if err == models.ErrReflectionNotFound {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Reflection not found"))
		return
	}
	if err != nil {
		slog.Error("Server.getReflectionHandler: status lookup failed", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read enrichment status"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(status))
}

type createSessionRequest struct {
	ReflectionID     string `json:"reflection_id"`
	RequireMinCycles *bool  `json:"require_min_cycles,omitempty"` // default true
	AckDriven        bool   `json:"ack_driven,omitempty"`
	MaxPollAttempts  int    `json:"max_poll_attempts,omitempty"` // 0 polls until teardown
	PollIntervalMs   int    `json:"poll_interval_ms,omitempty"`  // 0 selects the default
}

// sessionView is the wire shape for session state.
type sessionView struct {
	ID           string             `json:"id"`
	ReflectionID string             `json:"reflection_id"`
	Step         models.RevealStep  `json:"step"`
	Phase        models.BreathPhase `json:"phase"`
	MayStart     bool               `json:"may_start"`
	Completed    bool               `json:"completed"`
	CreatedAt    time.Time          `json:"created_at"`
}

func viewOf(sess *Session) sessionView {
	return sessionView{
		ID:           sess.ID,
		ReflectionID: sess.ReflectionID,
		Step:         sess.orch.CurrentStep(),
		Phase:        sess.orch.Phase(),
		MayStart:     sess.orch.MayStart(),
		Completed:    sess.Completed(),
		CreatedAt:    sess.CreatedAt,
	}
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.createSessionHandler: processing request", "path", r.URL.Path)

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	refl, err := s.store.GetReflection(req.ReflectionID)
	if err == models.ErrReflectionNotFound {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Reflection not found"))
		return
	}
	if err != nil {
		slog.Error("Server.createSessionHandler: reflection lookup failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read reflection"))
		return
	}

	clock, err := breath.NewClock(breath.ConfigForEmotion(refl.Emotion), time.Now())
	if err != nil {
		slog.Error("Server.createSessionHandler: clock construction failed", "error", err, "emotion", refl.Emotion)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start breathing clock"))
		return
	}

	pollOpts := []poller.Option{}
	if req.MaxPollAttempts > 0 {
		pollOpts = append(pollOpts, poller.WithMaxAttempts(req.MaxPollAttempts))
	}
	if req.PollIntervalMs > 0 {
		pollOpts = append(pollOpts, poller.WithInterval(time.Duration(req.PollIntervalMs)*time.Millisecond))
	}
	poll := poller.New(storeStatusSource{st: s.store}, pollOpts...)

	requireMinCycles := true
	if req.RequireMinCycles != nil {
		requireMinCycles = *req.RequireMinCycles
	}

	sess := &Session{
		ReflectionID: refl.ID,
		CreatedAt:    time.Now(),
		timer:        reveal.NewSimpleTimer(),
	}
	sess.orch = reveal.NewOrchestrator(clock, poll, sess.timer, sess.recordStep, sess.recordComplete, reveal.Options{
		RequireMinCycles: requireMinCycles,
		AckDriven:        req.AckDriven,
	})

	s.sessions.Add(sess)
	// The session outlives this request; its lifetime is bounded by Stop.
	sess.orch.Start(context.Background(), refl.ID)

	slog.Info("Server.createSessionHandler: session started",
		"session_id", sess.ID, "reflection_id", refl.ID,
		"require_min_cycles", requireMinCycles, "ack_driven", req.AckDriven)
	writeJSONResponse(w, http.StatusCreated, models.Accepted(viewOf(sess)))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(viewOf(sess)))
}

func (s *Server) advanceSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}

	// A no-op when no acknowledgment gate is pending; the response reflects
	// whatever step is current afterwards.
	sess.orch.Advance()
	slog.Debug("Server.advanceSessionHandler: advance requested", "session_id", id)
	writeJSONResponse(w, http.StatusOK, models.Success(viewOf(sess)))
}

func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.sessions.Remove(id)
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}

	sess.stop()
	slog.Info("Server.deleteSessionHandler: session stopped", "session_id", id)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]int{"sessions": s.sessions.Len()}))
}
