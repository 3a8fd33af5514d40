// Package models defines the core data structures for Reverie.
//
// It includes types for reflections, emotions, and enrichment payloads, which are
// shared across modules.
package models

import (
	"errors"
	"time"
)

// Emotion identifies the primary emotion detected in a reflection.
type Emotion string

const (
	// EmotionPeaceful is the default emotion when detection finds nothing.
	EmotionPeaceful Emotion = "peaceful"
	// EmotionAnxious indicates worry or unease.
	EmotionAnxious Emotion = "anxious"
	// EmotionSad indicates sadness or grief.
	EmotionSad Emotion = "sad"
	// EmotionAngry indicates anger or frustration.
	EmotionAngry Emotion = "angry"
	// EmotionTired indicates exhaustion or depletion.
	EmotionTired Emotion = "tired"
	// EmotionHopeful indicates optimism or anticipation.
	EmotionHopeful Emotion = "hopeful"
)

// Validation constants for input validation
const (
	// MaxReflectionTextLength defines the maximum allowed length for reflection text
	MaxReflectionTextLength = 4096
	// PayloadEntryCount defines the number of poem/tip pairs in an enrichment payload
	PayloadEntryCount = 3
	// MaxSkyLevel defines the highest sky transition level (night -> dawn)
	MaxSkyLevel = 4
)

// Error variables for better error handling and testability
var (
	ErrEmptyReflectionText   = errors.New("reflection text cannot be empty")
	ErrReflectionTextTooLong = errors.New("reflection text exceeds maximum length")
	ErrInvalidEmotion        = errors.New("invalid emotion")
	ErrInvalidCycleConfig    = errors.New("invalid cycle config")
	ErrInvalidRevealStep     = errors.New("invalid reveal step")
	ErrReflectionNotFound    = errors.New("reflection not found")
	ErrSessionNotFound       = errors.New("session not found")
	ErrPayloadNotReady       = errors.New("enrichment payload not ready")
)

// IsValidEmotion checks if the given emotion is supported.
func IsValidEmotion(e Emotion) bool {
	switch e {
	case EmotionPeaceful, EmotionAnxious, EmotionSad, EmotionAngry, EmotionTired, EmotionHopeful:
		return true
	default:
		return false
	}
}

// ReflectionStatus represents the enrichment lifecycle of a reflection.
type ReflectionStatus string

const (
	// ReflectionStatusPending indicates the reflection was stored but no job has run yet.
	ReflectionStatusPending ReflectionStatus = "pending"
	// ReflectionStatusEnriching indicates the enrichment job is in progress.
	ReflectionStatusEnriching ReflectionStatus = "enriching"
	// ReflectionStatusReady indicates the enrichment payload is available.
	ReflectionStatusReady ReflectionStatus = "ready"
	// ReflectionStatusFailed indicates enrichment gave up after repeated failures.
	ReflectionStatusFailed ReflectionStatus = "failed"
)

// Reflection represents a single user reflection and its enrichment state.
type Reflection struct {
	ID        string           `json:"id"`
	Text      string           `json:"text"`
	Emotion   Emotion          `json:"emotion"`
	Status    ReflectionStatus `json:"status"`
	Phone     string           `json:"phone,omitempty"` // optional dream-letter destination
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Validate performs validation on a Reflection structure.
func (r *Reflection) Validate() error {
	if r.Text == "" {
		return ErrEmptyReflectionText
	}
	if len(r.Text) > MaxReflectionTextLength {
		return ErrReflectionTextTooLong
	}
	if r.Emotion != "" && !IsValidEmotion(r.Emotion) {
		return ErrInvalidEmotion
	}
	return nil
}

// EnrichmentPayload holds the generated reveal content for one reflection.
// It arrives once, atomically, and is immutable after receipt. Empty entries
// mean the corresponding reveal step is skipped.
type EnrichmentPayload struct {
	Poems       [PayloadEntryCount]string `json:"poems"`
	Tips        [PayloadEntryCount]string `json:"tips"`
	ClosingLine string                    `json:"closing_line"`
}

// IsEmpty reports whether the payload carries no content at all.
func (p *EnrichmentPayload) IsEmpty() bool {
	for i := 0; i < PayloadEntryCount; i++ {
		if p.Poems[i] != "" || p.Tips[i] != "" {
			return false
		}
	}
	return p.ClosingLine == ""
}

// EnrichmentStatus is the poll endpoint response body: the overall job flag plus
// the payload once available. Done may be observed before Payload on some backends,
// so pollers must treat either signal as readiness.
type EnrichmentStatus struct {
	ReflectionID string             `json:"reflection_id"`
	Status       ReflectionStatus   `json:"status"`
	Done         bool               `json:"done"`
	Payload      *EnrichmentPayload `json:"payload,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusAccepted indicates a request resulted in queued background work.
	APIStatusAccepted APIStatus = "accepted"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Accepted creates an accepted API response with optional result data.
func Accepted(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusAccepted).
		WithResult(result).
		Build()
}
