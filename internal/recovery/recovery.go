// Package recovery restores durable work after an application restart.
//
// Reflections whose enrichment was interrupted, jobs left running by a
// crashed worker, and letters stuck mid-send are all picked back up here so
// a restart never strands a user waiting on a reveal that will not come.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
)

// Recoverable is one unit of startup recovery work.
type Recoverable interface {
	// Name identifies the recoverable in logs.
	Name() string

	// Recover restores any interrupted state. It must be idempotent: running
	// it against a clean store is a no-op.
	Recover(ctx context.Context) error
}

// Manager runs every registered Recoverable at startup.
type Manager struct {
	recoverables []Recoverable
}

// NewManager creates an empty recovery manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a recoverable to the startup sequence. Registration order is
// execution order.
func (m *Manager) Register(r Recoverable) {
	m.recoverables = append(m.recoverables, r)
	slog.Debug("Manager.Register: recoverable registered", "name", r.Name())
}

// RecoverAll runs every registered recoverable. A failure in one does not
// stop the rest; the first error is returned after all have run.
func (m *Manager) RecoverAll(ctx context.Context) error {
	slog.Info("Manager.RecoverAll: starting recovery", "count", len(m.recoverables))

	var firstErr error
	failed := 0
	for _, r := range m.recoverables {
		if err := r.Recover(ctx); err != nil {
			slog.Error("Manager.RecoverAll: recovery failed", "name", r.Name(), "error", err)
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("recovery of %s failed: %w", r.Name(), err)
			}
			continue
		}
		slog.Debug("Manager.RecoverAll: recovered", "name", r.Name())
	}

	if firstErr != nil {
		slog.Warn("Manager.RecoverAll: recovery finished with failures",
			"failed", failed, "total", len(m.recoverables))
		return firstErr
	}
	slog.Info("Manager.RecoverAll: recovery complete", "count", len(m.recoverables))
	return nil
}
