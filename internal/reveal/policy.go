package reveal

import (
	"time"

	"github.com/reveriehq/reverie/internal/models"
)

// StepTimings holds the tunable hold durations for timer-driven advancement.
// A poem or tip step dwells for FadeIn+Hold+FadeOut+Gap before the next step.
type StepTimings struct {
	FadeIn  time.Duration
	Hold    time.Duration
	FadeOut time.Duration
	Gap     time.Duration
	Sky     time.Duration // dwell per sky transition level
}

// DefaultStepTimings returns the production timings.
func DefaultStepTimings() StepTimings {
	return StepTimings{
		FadeIn:  800 * time.Millisecond,
		Hold:    2200 * time.Millisecond,
		FadeOut: 600 * time.Millisecond,
		Gap:     400 * time.Millisecond,
		Sky:     1200 * time.Millisecond,
	}
}

// StepDwell returns the total time a poem/tip step stays active.
func (t StepTimings) StepDwell() time.Duration {
	return t.FadeIn + t.Hold + t.FadeOut + t.Gap
}

// AdvancePolicy decides how the sequencer leaves each step. The step ordering
// logic is shared; only the advance trigger differs between implementations.
type AdvancePolicy interface {
	// InsertAckGates reports whether acknowledgment gates belong in the step order.
	InsertAckGates() bool

	// AutoAdvance returns the dwell before leaving the step. ok=false means the
	// step blocks until an external acknowledgment.
	AutoAdvance(step models.RevealStep) (delay time.Duration, ok bool)
}

// TimedPolicy advances every step on elapsed-time schedules.
type TimedPolicy struct {
	Timings StepTimings
}

// InsertAckGates reports that timed sequences carry no gates.
func (p TimedPolicy) InsertAckGates() bool { return false }

// AutoAdvance returns the configured dwell for the step.
func (p TimedPolicy) AutoAdvance(step models.RevealStep) (time.Duration, bool) {
	switch step.Kind {
	case models.StepSkyTransition:
		return p.Timings.Sky, true
	default:
		return p.Timings.StepDwell(), true
	}
}

// AckPolicy inserts an acknowledgment gate after each poem/tip group and blocks
// there until the user confirms. Steps within a group still advance on timers.
type AckPolicy struct {
	Timings StepTimings
}

// InsertAckGates reports that ack gates belong in the step order.
func (p AckPolicy) InsertAckGates() bool { return true }

// AutoAdvance blocks on ack gates and returns timed dwells elsewhere.
func (p AckPolicy) AutoAdvance(step models.RevealStep) (time.Duration, bool) {
	switch step.Kind {
	case models.StepAckGate:
		return 0, false
	case models.StepSkyTransition:
		return p.Timings.Sky, true
	default:
		return p.Timings.StepDwell(), true
	}
}
