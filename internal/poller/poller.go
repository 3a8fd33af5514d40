// Package poller repeatedly queries an external enrichment status source until a
// content payload is available.
//
// Transient failures are logged and retried on the next interval with no backoff;
// the driving requirement is that polling never disturbs the breathing experience.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reveriehq/reverie/internal/models"
)

// DefaultInterval is the fixed delay between status requests.
const DefaultInterval = 2 * time.Second

// StatusSource answers status requests for a reflection's enrichment job. It must
// be an idempotent read, tolerant of repeated polling.
type StatusSource interface {
	Status(ctx context.Context, reflectionID string) (*models.EnrichmentStatus, error)
}

// Opts holds configuration options for a Poller.
type Opts struct {
	Interval    time.Duration
	MaxAttempts int // 0 means poll until the owner tears the poller down
}

// Option defines a configuration option for a Poller.
type Option func(*Opts)

// WithInterval overrides the polling interval.
func WithInterval(d time.Duration) Option {
	return func(o *Opts) { o.Interval = d }
}

// WithMaxAttempts bounds the number of polls before onTimeout fires.
func WithMaxAttempts(n int) Option {
	return func(o *Opts) { o.MaxAttempts = n }
}

// Poller drives the polling loop for one reflection.
type Poller struct {
	source      StatusSource
	interval    time.Duration
	maxAttempts int

	mu      sync.Mutex
	fired   bool
	running bool
	cancel  context.CancelFunc
}

// New creates a Poller over the given status source.
func New(source StatusSource, opts ...Option) *Poller {
	cfg := Opts{Interval: DefaultInterval}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{
		source:      source,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Start launches the polling loop. onReady is invoked exactly once when the
// payload is available, then polling stops. onTimeout is invoked instead if the
// attempt bound is exhausted first. Starting an already running or finished
// poller is a no-op.
func (p *Poller) Start(ctx context.Context, reflectionID string, onReady func(models.EnrichmentPayload), onTimeout func()) {
	p.mu.Lock()
	if p.running || p.fired {
		slog.Debug("Poller Start ignored", "running", p.running, "fired", p.fired)
		p.mu.Unlock()
		return
	}
	p.running = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	slog.Debug("Poller starting", "reflection_id", reflectionID, "interval", p.interval, "max_attempts", p.maxAttempts)
	go p.loop(ctx, reflectionID, onReady, onTimeout)
}

// Stop cancels the polling loop. Safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *Poller) loop(ctx context.Context, reflectionID string, onReady func(models.EnrichmentPayload), onTimeout func()) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Poller stopping", "reflection_id", reflectionID)
			return
		case <-ticker.C:
			attempts++
			if p.poll(ctx, reflectionID, onReady) {
				return
			}
			if p.maxAttempts > 0 && attempts >= p.maxAttempts {
				slog.Warn("Poller attempts exhausted", "reflection_id", reflectionID, "attempts", attempts)
				if p.latch() && onTimeout != nil {
					onTimeout()
				}
				return
			}
		}
	}
}

// poll issues one status request. It returns true when polling should stop.
func (p *Poller) poll(ctx context.Context, reflectionID string, onReady func(models.EnrichmentPayload)) bool {
	status, err := p.source.Status(ctx, reflectionID)
	if err != nil {
		// Transient failure: logged, ignored, retried on the next interval.
		slog.Warn("Poller status request failed", "reflection_id", reflectionID, "error", err)
		return false
	}

	switch {
	case status.Payload != nil:
		return p.ready(reflectionID, *status.Payload, onReady)
	case status.Done:
		// Backup trigger: the job is marked complete but the payload field is
		// absent. Converge on the same ready state; the latch keeps the two
		// signals from firing onReady twice.
		slog.Debug("Poller observed done flag without payload", "reflection_id", reflectionID)
		return p.ready(reflectionID, models.EnrichmentPayload{}, onReady)
	default:
		return false
	}
}

func (p *Poller) ready(reflectionID string, payload models.EnrichmentPayload, onReady func(models.EnrichmentPayload)) bool {
	if !p.latch() {
		return true
	}
	slog.Info("Poller payload ready", "reflection_id", reflectionID)
	if onReady != nil {
		onReady(payload)
	}
	return true
}

// latch marks the poller finished. It returns true exactly once.
func (p *Poller) latch() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fired {
		return false
	}
	p.fired = true
	return true
}
