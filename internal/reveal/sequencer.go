package reveal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/reveriehq/reverie/internal/models"
)

// Sequencer holds the fixed reveal step order and drives transitions through it.
// Steps advance either on elapsed-time schedules or on explicit acknowledgment,
// depending on the configured AdvancePolicy; the ordering logic is shared.
type Sequencer struct {
	mu         sync.Mutex
	timer      Timer
	policy     AdvancePolicy
	onStep     func(models.RevealStep)
	onComplete func()

	steps     []models.RevealStep
	pos       int
	started   bool
	cancelled bool
	completed bool
	timerIDs  []string
}

// NewSequencer creates a Sequencer. onStep fires on every step transition;
// onComplete fires exactly once when the terminal step is reached.
func NewSequencer(timer Timer, policy AdvancePolicy, onStep func(models.RevealStep), onComplete func()) *Sequencer {
	slog.Debug("Creating Sequencer", "ack_gates", policy.InsertAckGates())
	return &Sequencer{
		timer:      timer,
		policy:     policy,
		onStep:     onStep,
		onComplete: onComplete,
	}
}

// buildSteps computes the ordered step list for a payload. Empty poem/tip entries
// are skipped with zero duration; the relative order of the remaining steps is
// preserved. An ack gate whose entire group was skipped is skipped as well.
func buildSteps(payload models.EnrichmentPayload, withGates bool) []models.RevealStep {
	steps := make([]models.RevealStep, 0, 2*models.PayloadEntryCount+5)
	for n := 1; n <= models.PayloadEntryCount; n++ {
		present := false
		if payload.Poems[n-1] != "" {
			steps = append(steps, models.PoemStep(n))
			present = true
		}
		if payload.Tips[n-1] != "" {
			steps = append(steps, models.TipStep(n))
			present = true
		}
		if withGates && present {
			steps = append(steps, models.AckGateStep(n))
		}
	}
	steps = append(steps, models.SkyStep(models.MaxSkyLevel-1), models.SkyStep(models.MaxSkyLevel), models.CompleteStep())
	return steps
}

// Begin starts the reveal sequence. It is latched: calls after the first have no
// side effects, which protects against re-entrant triggering by the caller.
func (s *Sequencer) Begin(payload models.EnrichmentPayload) {
	s.mu.Lock()
	if s.started || s.cancelled {
		slog.Debug("Sequencer Begin ignored", "started", s.started, "cancelled", s.cancelled)
		s.mu.Unlock()
		return
	}
	s.started = true
	s.steps = buildSteps(payload, s.policy.InsertAckGates())
	slog.Info("Sequencer beginning reveal", "steps", len(s.steps))
	notify := s.transitionLocked(0)
	s.mu.Unlock()

	notify()
}

// Advance releases the currently pending acknowledgment gate. Calling it when no
// gate is pending is a no-op; only the current gate can ever be acknowledged, so
// out-of-order acknowledgment is structurally impossible.
func (s *Sequencer) Advance() {
	s.mu.Lock()
	if !s.started || s.cancelled || s.completed {
		s.mu.Unlock()
		return
	}
	current := s.steps[s.pos]
	if current.Kind != models.StepAckGate {
		slog.Debug("Sequencer Advance ignored: no gate pending", "step", current.String())
		s.mu.Unlock()
		return
	}
	slog.Debug("Sequencer gate acknowledged", "gate", current.Index)
	notify := s.transitionLocked(s.pos + 1)
	s.mu.Unlock()

	notify()
}

// Current returns the active step, or the idle step before Begin.
func (s *Sequencer) Current() models.RevealStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return models.IdleStep()
	}
	return s.steps[s.pos]
}

// Acknowledged returns the gate indices released so far, in order.
func (s *Sequencer) Acknowledged() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var acked []int
	for i := 0; i < s.pos; i++ {
		if s.steps[i].Kind == models.StepAckGate {
			acked = append(acked, s.steps[i].Index)
		}
	}
	return acked
}

// Cancel tears the sequencer down, cancelling every pending scheduled callback.
// No step-changed or completion event fires after Cancel returns.
func (s *Sequencer) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	ids := s.timerIDs
	s.timerIDs = nil
	s.mu.Unlock()

	slog.Debug("Sequencer cancelled", "pending_timers", len(ids))
	for _, id := range ids {
		s.timer.Cancel(id)
	}
}

// transitionLocked activates steps[i], pre-schedules the timed chain that follows
// it, and returns the notification to run once the lock is released.
func (s *Sequencer) transitionLocked(i int) func() {
	s.pos = i
	step := s.steps[i]
	s.scheduleChainLocked(i)

	var complete func()
	if step.Kind == models.StepComplete && !s.completed {
		s.completed = true
		complete = s.onComplete
	}
	return func() { s.emit(step, complete) }
}

// emit delivers a step event outside the lock, so callbacks can call back into
// the sequencer. Cancel may land between the transition and this delivery; the
// re-check keeps any event from firing after Cancel has been observed.
func (s *Sequencer) emit(step models.RevealStep, complete func()) {
	s.mu.Lock()
	cancelled := s.cancelled
	s.mu.Unlock()
	if cancelled {
		return
	}

	slog.Debug("Sequencer step changed", "step", step.String())
	if s.onStep != nil {
		s.onStep(step)
	}
	if complete != nil {
		slog.Info("Sequencer reveal complete")
		complete()
	}
}

// scheduleChainLocked pre-schedules every auto-advancing step transition from
// steps[from] up to the next blocking gate (or the terminal step) as a single
// ordered list of individually cancellable delayed callbacks.
func (s *Sequencer) scheduleChainLocked(from int) {
	var cum time.Duration
	for i := from; i < len(s.steps)-1; i++ {
		delay, ok := s.policy.AutoAdvance(s.steps[i])
		if !ok {
			break
		}
		cum += delay
		j := i + 1
		id, err := s.timer.ScheduleAfter(cum, func() { s.stepFired(j) })
		if err != nil {
			slog.Error("Sequencer schedule failed", "step", s.steps[j].String(), "error", err)
			continue
		}
		s.timerIDs = append(s.timerIDs, id)
	}
}

// stepFired is the timer callback activating a pre-scheduled step.
func (s *Sequencer) stepFired(i int) {
	s.mu.Lock()
	if s.cancelled || i >= len(s.steps) {
		s.mu.Unlock()
		return
	}
	s.pos = i
	step := s.steps[i]
	var complete func()
	if step.Kind == models.StepComplete && !s.completed {
		s.completed = true
		complete = s.onComplete
	}
	s.mu.Unlock()

	s.emit(step, complete)
}
