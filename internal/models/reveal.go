// Package models defines reveal step types to avoid circular imports.
package models

import "fmt"

// StepKind represents a specific kind of reveal step.
type StepKind string

// Step kind constants.
const (
	StepIdle          StepKind = "idle"
	StepPoem          StepKind = "poem"
	StepTip           StepKind = "tip"
	StepAckGate       StepKind = "ack_gate"
	StepSkyTransition StepKind = "sky_transition"
	StepComplete      StepKind = "complete"
)

// RevealStep is one discrete phase of the guided content presentation. Exactly one
// step is active at a time. Index is 1-based for poem/tip/ack gate steps; SkyLevel
// runs 0..MaxSkyLevel (night -> dawn) for sky transition steps.
type RevealStep struct {
	Kind     StepKind `json:"kind"`
	Index    int      `json:"index,omitempty"`
	SkyLevel int      `json:"sky_level,omitempty"`
}

// IdleStep returns the initial step before the reveal begins.
func IdleStep() RevealStep { return RevealStep{Kind: StepIdle} }

// PoemStep returns the poem step for the given 1-based index.
func PoemStep(n int) RevealStep { return RevealStep{Kind: StepPoem, Index: n} }

// TipStep returns the tip step for the given 1-based index.
func TipStep(n int) RevealStep { return RevealStep{Kind: StepTip, Index: n} }

// AckGateStep returns the acknowledgment gate following poem/tip group n.
func AckGateStep(n int) RevealStep { return RevealStep{Kind: StepAckGate, Index: n} }

// SkyStep returns the sky transition step for the given level.
func SkyStep(level int) RevealStep { return RevealStep{Kind: StepSkyTransition, SkyLevel: level} }

// CompleteStep returns the terminal step.
func CompleteStep() RevealStep { return RevealStep{Kind: StepComplete} }

// Validate checks the step's structural invariants.
func (s RevealStep) Validate() error {
	switch s.Kind {
	case StepIdle, StepComplete:
		return nil
	case StepPoem, StepTip, StepAckGate:
		if s.Index < 1 || s.Index > PayloadEntryCount {
			return fmt.Errorf("%w: %s index %d out of range", ErrInvalidRevealStep, s.Kind, s.Index)
		}
		return nil
	case StepSkyTransition:
		if s.SkyLevel < 0 || s.SkyLevel > MaxSkyLevel {
			return fmt.Errorf("%w: sky level %d out of range", ErrInvalidRevealStep, s.SkyLevel)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRevealStep, s.Kind)
	}
}

// String renders the step for logs.
func (s RevealStep) String() string {
	switch s.Kind {
	case StepPoem, StepTip, StepAckGate:
		return fmt.Sprintf("%s(%d)", s.Kind, s.Index)
	case StepSkyTransition:
		return fmt.Sprintf("%s(%d)", s.Kind, s.SkyLevel)
	default:
		return string(s.Kind)
	}
}
