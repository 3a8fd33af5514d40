package reveal

import (
	"log/slog"
	"sync"

	"github.com/reveriehq/reverie/internal/models"
)

// StartGate is a one-shot latch combining "payload ready" and, under the
// cycle-gated policy, "minimum cycle count reached" into a single may-start
// signal. Once open it stays open for the lifetime of the session; later
// notifications are no-ops. This is the guard against duplicate orchestration
// runs caused by the payload arriving via more than one signal.
type StartGate struct {
	mu               sync.Mutex
	requireMinCycles bool
	minCycles        int
	payload          *models.EnrichmentPayload
	cycles           int
	opened           bool
	onOpen           func(models.EnrichmentPayload)
}

// NewStartGate creates a StartGate. When requireMinCycles is false the gate opens
// as soon as the payload arrives, treating minCycles as advisory only.
func NewStartGate(minCycles int, requireMinCycles bool, onOpen func(models.EnrichmentPayload)) *StartGate {
	slog.Debug("Creating StartGate", "min_cycles", minCycles, "require_min_cycles", requireMinCycles)
	return &StartGate{
		requireMinCycles: requireMinCycles,
		minCycles:        minCycles,
		onOpen:           onOpen,
	}
}

// NotifyCyclesReached records the current completed cycle count. Counts are
// monotonic; a lower count than previously seen is ignored.
func (g *StartGate) NotifyCyclesReached(n int) {
	g.mu.Lock()
	if n > g.cycles {
		g.cycles = n
	}
	fire := g.evaluateLocked()
	payload := g.payload
	cycles := g.cycles
	g.mu.Unlock()

	if fire {
		g.fire(*payload, cycles)
	}
}

// NotifyPayloadReady records the enrichment payload. The first payload wins;
// repeated deliveries are no-ops.
func (g *StartGate) NotifyPayloadReady(payload models.EnrichmentPayload) {
	g.mu.Lock()
	if g.payload == nil {
		p := payload
		g.payload = &p
	}
	fire := g.evaluateLocked()
	latched := g.payload
	cycles := g.cycles
	g.mu.Unlock()

	if fire {
		g.fire(*latched, cycles)
	}
}

// MayStart reports whether the gate has opened.
func (g *StartGate) MayStart() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opened
}

// Payload returns the latched payload, or nil if none has arrived.
func (g *StartGate) Payload() *models.EnrichmentPayload {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.payload
}

// evaluateLocked checks the open condition and latches. It returns true exactly
// once, on the call that transitions the gate to open.
func (g *StartGate) evaluateLocked() bool {
	if g.opened || g.payload == nil {
		return false
	}
	if g.requireMinCycles && g.cycles < g.minCycles {
		return false
	}
	g.opened = true
	return true
}

func (g *StartGate) fire(payload models.EnrichmentPayload, cycles int) {
	slog.Info("StartGate opened", "cycles", cycles, "min_cycles", g.minCycles)
	if g.onOpen != nil {
		g.onOpen(payload)
	}
}
