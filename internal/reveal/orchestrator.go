package reveal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reveriehq/reverie/internal/breath"
	"github.com/reveriehq/reverie/internal/models"
	"github.com/reveriehq/reverie/internal/poller"
)

// DefaultTickInterval is the breath clock tick rate.
const DefaultTickInterval = 100 * time.Millisecond

// Options configures an Orchestrator.
type Options struct {
	// RequireMinCycles gates the reveal start on the minimum ambient-breathing
	// dose. When false the reveal starts as soon as the payload arrives.
	RequireMinCycles bool
	// AckDriven selects acknowledgment-driven advancement instead of timers.
	AckDriven bool
	// Timings are the timer-driven step hold durations. Zero value selects the
	// production defaults.
	Timings StepTimings
	// TickInterval is the breath clock tick rate. Zero selects the default.
	TickInterval time.Duration
}

// Orchestrator composes the breath clock, the enrichment poller, the start gate,
// and the reveal sequencer for one session. It exposes exactly one externally
// visible effect: the onComplete callback, invoked once, after which no further
// orchestrator activity occurs.
type Orchestrator struct {
	clock  *breath.Clock
	gate   *StartGate
	seq    *Sequencer
	poll   *poller.Poller
	opts   Options
	onStep func(models.RevealStep)

	mu      sync.Mutex
	phase   models.BreathPhase
	started bool
	stopped bool
	cancel  context.CancelFunc
}

// NewOrchestrator wires the session components together. The timer carries the
// sequencer's pending step callbacks and is cancelled wholesale on Stop.
func NewOrchestrator(clock *breath.Clock, poll *poller.Poller, timer Timer, onStep func(models.RevealStep), onComplete func(), opts Options) *Orchestrator {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Timings == (StepTimings{}) {
		opts.Timings = DefaultStepTimings()
	}

	var policy AdvancePolicy
	if opts.AckDriven {
		policy = AckPolicy{Timings: opts.Timings}
	} else {
		policy = TimedPolicy{Timings: opts.Timings}
	}

	o := &Orchestrator{
		clock:  clock,
		poll:   poll,
		opts:   opts,
		onStep: onStep,
	}
	o.seq = NewSequencer(timer, policy, o.stepChanged, onComplete)
	o.gate = NewStartGate(clock.Config().MinCycles, opts.RequireMinCycles, o.gateOpened)

	slog.Debug("Creating Orchestrator",
		"require_min_cycles", opts.RequireMinCycles,
		"ack_driven", opts.AckDriven,
		"tick_interval", opts.TickInterval)
	return o
}

// Start launches the continuous breath tick loop and the enrichment poller.
// Starting twice is a no-op; the one-shot latch is the defence against
// re-entrant triggering by the owning caller.
func (o *Orchestrator) Start(ctx context.Context, reflectionID string) {
	o.mu.Lock()
	if o.started || o.stopped {
		slog.Debug("Orchestrator Start ignored", "started", o.started, "stopped", o.stopped)
		o.mu.Unlock()
		return
	}
	o.started = true
	ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()

	slog.Info("Orchestrator starting", "reflection_id", reflectionID)
	o.poll.Start(ctx, reflectionID, o.payloadReady, o.pollTimedOut)
	go o.tickLoop(ctx)
}

// Tick derives the breath phase at the given instant, records the snapshot, and
// feeds the cycle count into the start gate. Called by the internal tick loop;
// exposed so simulated-time callers can drive the orchestrator directly.
func (o *Orchestrator) Tick(now time.Time) models.BreathPhase {
	phase := o.clock.Tick(now)

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return phase
	}
	o.phase = phase
	o.mu.Unlock()

	o.gate.NotifyCyclesReached(phase.CycleCount)
	return phase
}

// Phase returns the latest breath phase snapshot.
func (o *Orchestrator) Phase() models.BreathPhase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// CurrentStep returns the active reveal step.
func (o *Orchestrator) CurrentStep() models.RevealStep {
	return o.seq.Current()
}

// MayStart reports whether the start gate has opened.
func (o *Orchestrator) MayStart() bool {
	return o.gate.MayStart()
}

// Advance forwards an acknowledgment to the sequencer (ack-driven mode only).
func (o *Orchestrator) Advance() {
	o.seq.Advance()
}

// HandlePayload feeds an enrichment payload into the start gate directly, for
// callers that receive the payload through a channel other than the poller.
func (o *Orchestrator) HandlePayload(payload models.EnrichmentPayload) {
	o.gate.NotifyPayloadReady(payload)
}

// Stop tears the session down: the tick loop, the poller, and every pending
// sequencer callback. No step-changed or completion event fires afterwards.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	cancel := o.cancel
	o.mu.Unlock()

	slog.Info("Orchestrator stopping")
	if cancel != nil {
		cancel()
	}
	o.poll.Stop()
	o.seq.Cancel()
}

func (o *Orchestrator) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(o.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Tick(time.Now())
		}
	}
}

func (o *Orchestrator) gateOpened(payload models.EnrichmentPayload) {
	o.seq.Begin(payload)
}

func (o *Orchestrator) payloadReady(payload models.EnrichmentPayload) {
	o.gate.NotifyPayloadReady(payload)
}

func (o *Orchestrator) pollTimedOut() {
	// Best-effort continuation: the breathing experience keeps running; the
	// owning view decides whether to impose a harder deadline.
	slog.Warn("Orchestrator enrichment poll timed out")
}

// stepChanged relays sequencer events to the owner. The stopped re-check runs
// on the delivery path itself, so an event in flight when Stop lands is
// dropped rather than forwarded.
func (o *Orchestrator) stepChanged(step models.RevealStep) {
	o.mu.Lock()
	suppressed := o.stopped
	o.mu.Unlock()
	if suppressed {
		return
	}
	if o.onStep != nil {
		o.onStep(step)
	}
}
