// Package breath derives the continuous breathing phase signal for a session.
//
// The phase is always computed from absolute elapsed wall-clock time modulo the
// cycle duration, never accumulated per tick, so ticks may be dropped or coalesced
// without corrupting the cycle count.
package breath

import (
	"log/slog"
	"time"

	"github.com/reveriehq/reverie/internal/models"
)

// Clock derives a BreathPhase from wall-clock time and a per-session cycle config.
type Clock struct {
	start time.Time
	cfg   models.CycleConfig
}

// NewClock creates a Clock anchored at the given start time.
func NewClock(cfg models.CycleConfig, start time.Time) (*Clock, error) {
	if err := cfg.Validate(); err != nil {
		slog.Error("Clock config invalid", "error", err)
		return nil, err
	}
	slog.Debug("Creating breath Clock", "total_sec", cfg.TotalSec(), "min_cycles", cfg.MinCycles)
	return &Clock{start: start, cfg: cfg}, nil
}

// Config returns the clock's cycle configuration.
func (c *Clock) Config() models.CycleConfig {
	return c.cfg
}

// Tick computes the breathing phase at the given instant. It is a pure function of
// now and the clock's config: the same instant always yields the same phase. Safe
// to call at any frequency.
func (c *Clock) Tick(now time.Time) models.BreathPhase {
	elapsed := now.Sub(c.start)
	if elapsed < 0 {
		elapsed = 0
	}

	total := c.cfg.CycleDuration()
	count := int(elapsed / total)
	within := elapsed % total
	position := float64(within) / float64(total)

	return models.BreathPhase{
		CyclePosition: position,
		Inhaling:      position < 0.5,
		CycleCount:    count,
		Segment:       c.segmentAt(position),
	}
}

// segmentAt maps a cycle position to the active segment given the configured
// segment durations.
func (c *Clock) segmentAt(position float64) models.BreathSegment {
	sec := position * c.cfg.TotalSec()
	boundary := c.cfg.InhaleSec
	if sec < boundary {
		return models.SegmentInhale
	}
	boundary += c.cfg.Hold1Sec
	if sec < boundary {
		return models.SegmentHoldIn
	}
	boundary += c.cfg.ExhaleSec
	if sec < boundary {
		return models.SegmentExhale
	}
	return models.SegmentHoldOut
}
