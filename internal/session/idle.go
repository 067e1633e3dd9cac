package session

import (
	"context"
	"time"
)

const (
	idleCheckInterval = 2 * time.Minute
	idleThreshold     = 10 * time.Minute
	crashRestartDelay = 60 * time.Second
)

// IdleMonitor concludes sessions that have gone quiet, per spec.md §4.G.
// It is a single long-lived background task, started at process start and
// stopped gracefully on shutdown, grounded on the teacher's
// cmd/webui/main.go signal-driven shutdown, generalized from an HTTP
// server to a ticker-driven background task.
type IdleMonitor struct {
	manager *Manager
	now     func() time.Time
}

// NewIdleMonitor constructs a monitor against manager.
func NewIdleMonitor(manager *Manager) *IdleMonitor {
	return &IdleMonitor{manager: manager, now: time.Now}
}

// Run blocks until ctx is cancelled, running one conclusion sweep every
// idleCheckInterval. A panic in a sweep is recovered and the loop
// restarted after crashRestartDelay rather than taking the whole process
// down.
func (m *IdleMonitor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m.runSupervised(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(crashRestartDelay):
		}
	}
}

func (m *IdleMonitor) runSupervised(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.manager.Log.Error().Interface("panic", r).Msg("idle monitor loop crashed, restarting")
		}
	}()

	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *IdleMonitor) sweep(ctx context.Context) {
	cutoff := m.now().Add(-idleThreshold).Unix()
	candidates, err := m.manager.Store.ListIdleCandidates(ctx, cutoff)
	if err != nil {
		m.manager.Log.Warn().Err(err).Msg("idle monitor: list candidates failed, will retry next cycle")
		return
	}
	for _, s := range candidates {
		if err := m.manager.ConcludeSession(ctx, s.ID, "idle"); err != nil {
			m.manager.Log.Warn().Err(err).Str("session_id", s.ID.String()).Msg("idle monitor: conclude failed, will retry next cycle")
		}
	}
}
