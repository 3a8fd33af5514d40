// Package models defines breathing cycle types shared across modules.
package models

import "time"

// BreathSegment identifies the active segment within a breathing cycle.
type BreathSegment string

const (
	// SegmentInhale is the inhale portion of the cycle.
	SegmentInhale BreathSegment = "inhale"
	// SegmentHoldIn is the hold after inhaling.
	SegmentHoldIn BreathSegment = "hold_in"
	// SegmentExhale is the exhale portion of the cycle.
	SegmentExhale BreathSegment = "exhale"
	// SegmentHoldOut is the hold after exhaling.
	SegmentHoldOut BreathSegment = "hold_out"
)

// CycleConfig describes one breathing cycle. It is immutable per session and
// derived from the detected primary emotion. Inhale and exhale must be positive;
// holds may be zero.
type CycleConfig struct {
	InhaleSec float64 `json:"inhale_sec"`
	Hold1Sec  float64 `json:"hold1_sec"`
	ExhaleSec float64 `json:"exhale_sec"`
	Hold2Sec  float64 `json:"hold2_sec"`
	MinCycles int     `json:"min_cycles"`
}

// Validate checks the cycle config invariants.
func (c CycleConfig) Validate() error {
	if c.InhaleSec <= 0 || c.ExhaleSec <= 0 {
		return ErrInvalidCycleConfig
	}
	if c.Hold1Sec < 0 || c.Hold2Sec < 0 {
		return ErrInvalidCycleConfig
	}
	if c.MinCycles < 0 {
		return ErrInvalidCycleConfig
	}
	return nil
}

// TotalSec returns the duration of one full cycle in seconds.
func (c CycleConfig) TotalSec() float64 {
	return c.InhaleSec + c.Hold1Sec + c.ExhaleSec + c.Hold2Sec
}

// CycleDuration returns the duration of one full cycle.
func (c CycleConfig) CycleDuration() time.Duration {
	return time.Duration(c.TotalSec() * float64(time.Second))
}

// BreathPhase is a computed snapshot of the breathing state. It is never stored;
// it is derived fresh from elapsed wall-clock time on every tick.
type BreathPhase struct {
	// CyclePosition is the position within the current cycle, in [0,1).
	CyclePosition float64 `json:"cycle_position"`
	// Inhaling is true during the first half of the cycle.
	Inhaling bool `json:"inhaling"`
	// CycleCount is the number of fully completed cycles since the clock started.
	CycleCount int `json:"cycle_count"`
	// Segment is the active cycle segment given the configured durations.
	Segment BreathSegment `json:"segment"`
}
