package emotion

import (
	"sync"
	"time"

	"github.com/reveriehq/reverie/internal/models"
)

// Profiles tracks a smoothed emotion profile per phone number, so repeat
// reflections settle on a stable primary emotion instead of flapping with each
// submission.
type Profiles struct {
	mu      sync.Mutex
	byPhone map[string]*Profile
}

// NewProfiles creates an empty profile registry.
func NewProfiles() *Profiles {
	return &Profiles{byPhone: make(map[string]*Profile)}
}

// Observe validates the proposal, folds it into the caller's profile, and
// returns the emotion to use for the session: the smoothed primary once one
// has activated, otherwise the fresh observation. Anonymous reflections (no
// phone) pass through unsmoothed.
func (ps *Profiles) Observe(phone string, p Proposal, now time.Time) models.Emotion {
	cleaned := ValidateProposal(p)
	if phone == "" {
		return cleaned.Emotion
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	prof, ok := ps.byPhone[phone]
	if !ok {
		prof = &Profile{}
		ps.byPhone[phone] = prof
	}
	UpdateProfile(prof, cleaned, now)

	// Until a primary activates, the profile reads peaceful; keep the fresh
	// observation in that window so early sessions still match the text.
	if prof.Primary == models.EmotionPeaceful && cleaned.Emotion != models.EmotionPeaceful {
		return cleaned.Emotion
	}
	return prof.Primary
}
