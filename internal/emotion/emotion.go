// Package emotion provides detection of the primary emotion in a reflection,
// validation of LLM-proposed emotion labels, and EMA-based smoothing of a user's
// emotion profile across sessions.
package emotion

import (
	"math"
	"strings"
	"time"

	"github.com/reveriehq/reverie/internal/models"
)

// ---- Lexicon ----

// lexicon maps keywords to emotions for the fallback classifier used when no
// LLM label is available.
var lexicon = map[models.Emotion][]string{
	models.EmotionAnxious: {"anxious", "worried", "nervous", "afraid", "scared", "panic", "overwhelmed", "stress", "stressed", "uneasy", "restless"},
	models.EmotionSad:     {"sad", "lonely", "grief", "miss", "cried", "crying", "empty", "heartbroken", "blue", "down", "loss"},
	models.EmotionAngry:   {"angry", "furious", "annoyed", "frustrated", "irritated", "unfair", "mad", "rage", "resent"},
	models.EmotionTired:   {"tired", "exhausted", "drained", "weary", "sleepy", "burnout", "burned out", "fatigued", "worn out"},
	models.EmotionHopeful: {"hopeful", "excited", "grateful", "thankful", "looking forward", "proud", "optimistic", "better", "relieved"},
}

// ---- Data types ----

// Source enumerates how an emotion label was produced.
type Source string

const (
	// SourceDetected means the keyword classifier produced the label.
	SourceDetected Source = "detected"
	// SourceProposed means an LLM proposed the label.
	SourceProposed Source = "proposed"
	// SourceDeclared means the user picked the emotion themselves.
	SourceDeclared Source = "declared"
)

// Proposal is an emotion label with a confidence, as proposed by the LLM or the
// keyword classifier.
type Proposal struct {
	Emotion    models.Emotion `json:"emotion,omitempty"`
	Confidence float32        `json:"confidence,omitempty"`
	Source     Source         `json:"source,omitempty"`
}

// Profile stores the persistent per-user emotion scores.
type Profile struct {
	Scores        map[models.Emotion]float32 `json:"emotion_scores,omitempty"`
	Primary       models.Emotion             `json:"primary_emotion,omitempty"`
	LastUpdatedAt time.Time                  `json:"last_updated_at,omitempty"`
	UpdateSource  Source                     `json:"update_source,omitempty"`
}

// ---- Constants for EMA / hysteresis ----

const (
	alpha             = float32(0.25)
	activateThreshold = float32(0.5)
	// Rate-limit: minimum interval between profile persists from detection.
	minDetectedInterval = time.Minute
)

// ---- Public API ----

// Detect runs the keyword classifier over the reflection text. When nothing
// matches it returns the peaceful default with zero confidence.
func Detect(text string) Proposal {
	lowered := strings.ToLower(text)

	best := models.EmotionPeaceful
	bestHits := 0
	for e, words := range lexicon {
		hits := 0
		for _, w := range words {
			hits += strings.Count(lowered, w)
		}
		if hits > bestHits {
			best, bestHits = e, hits
		}
	}

	if bestHits == 0 {
		return Proposal{Emotion: models.EmotionPeaceful, Confidence: 0, Source: SourceDetected}
	}
	confidence := clamp(float32(bestHits) * 0.34)
	return Proposal{Emotion: best, Confidence: confidence, Source: SourceDetected}
}

// ValidateProposal canonicalizes the label and clamps the confidence. Unknown
// emotions collapse to the peaceful default.
func ValidateProposal(p Proposal) Proposal {
	cleaned := Proposal{
		Emotion:    models.Emotion(strings.TrimSpace(strings.ToLower(string(p.Emotion)))),
		Confidence: clamp(p.Confidence),
		Source:     p.Source,
	}
	if cleaned.Source == "" {
		cleaned.Source = SourceProposed
	}
	if !models.IsValidEmotion(cleaned.Emotion) {
		cleaned.Emotion = models.EmotionPeaceful
		cleaned.Confidence = 0
	}
	return cleaned
}

// UpdateProfile applies a validated proposal to the profile using EMA smoothing.
// Declared emotions apply at full weight; detected and proposed ones are smoothed
// and rate-limited. Returns true if the profile was actually mutated.
func UpdateProfile(p *Profile, proposal Proposal, now time.Time) bool {
	if p.Scores == nil {
		p.Scores = make(map[models.Emotion]float32)
	}

	if proposal.Source != SourceDeclared {
		if !p.LastUpdatedAt.IsZero() && now.Sub(p.LastUpdatedAt) < minDetectedInterval {
			return false
		}
		if proposal.Confidence == 0 {
			return false
		}
	}

	changed := false
	if proposal.Source == SourceDeclared {
		prev := p.Scores[proposal.Emotion]
		p.Scores[proposal.Emotion] = 1
		if prev != 1 {
			changed = true
		}
	} else {
		prev := p.Scores[proposal.Emotion]
		next := clamp((1-alpha)*prev + alpha*proposal.Confidence)
		if next != prev {
			p.Scores[proposal.Emotion] = next
			changed = true
		}
	}

	// Decay non-observed emotions toward 0 so the primary can shift over time.
	for e, prev := range p.Scores {
		if e == proposal.Emotion || prev <= 0 {
			continue
		}
		decayed := clamp((1 - alpha) * prev)
		if decayed != prev {
			p.Scores[e] = decayed
			changed = true
		}
	}

	if !changed {
		return false
	}

	p.Primary = primaryOf(p.Scores)
	p.LastUpdatedAt = now
	p.UpdateSource = proposal.Source
	return true
}

// primaryOf picks the highest-scoring emotion at or above the activation
// threshold, falling back to peaceful.
func primaryOf(scores map[models.Emotion]float32) models.Emotion {
	best := models.EmotionPeaceful
	var bestScore float32
	for e, s := range scores {
		if s > bestScore {
			best, bestScore = e, s
		}
	}
	if bestScore < activateThreshold {
		return models.EmotionPeaceful
	}
	return best
}

// ---- helpers ----

func clamp(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	// Round to 4 decimal places to avoid floating point drift.
	return float32(math.Round(float64(v)*10000) / 10000)
}
