package health

import (
	"context"
	"log/slog"
	"time"
)

// ProbeFunc checks one dependency with a lightweight read-only call.
type ProbeFunc func(ctx context.Context) error

// Monitor periodically probes the queue and the analytics sink and records
// the outcomes in the shared [State]. Transitions are logged edge-triggered
// so a sustained outage produces one line, not one per probe.
type Monitor struct {
	state      *State
	queueProbe ProbeFunc
	sinkProbe  ProbeFunc
	interval   time.Duration
	logger     *slog.Logger
	onOutcome  func(target string, ok bool)

	queueLast probeState
	sinkLast  probeState
}

// probeState remembers a dependency's previous probe outcome so transitions
// can be detected. known is false until the first probe completes.
type probeState struct {
	known bool
	ok    bool
}

func (s *probeState) changed(ok bool) bool {
	transition := !s.known || s.ok != ok
	s.known = true
	s.ok = ok
	return transition
}

// MonitorOption customises a [Monitor].
type MonitorOption func(*Monitor)

// WithMonitorLogger sets the logger for probe transitions.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithProbeOutcome installs a hook invoked after every individual probe,
// typically to feed metrics gauges.
func WithProbeOutcome(fn func(target string, ok bool)) MonitorOption {
	return func(m *Monitor) {
		if fn != nil {
			m.onOutcome = fn
		}
	}
}

// NewMonitor creates a Monitor probing both dependencies every interval.
func NewMonitor(state *State, queueProbe, sinkProbe ProbeFunc, interval time.Duration, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		state:      state,
		queueProbe: queueProbe,
		sinkProbe:  sinkProbe,
		interval:   interval,
		logger:     slog.Default(),
		onOutcome:  func(string, bool) {},
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// ProbeOnce runs a single probe pass synchronously. Called once during
// startup before the loops begin, so the startup probe has an answer as
// soon as the HTTP server is listening.
func (m *Monitor) ProbeOnce(ctx context.Context) {
	wasReady := m.state.Snapshot().Ready()

	m.runProbe(ctx, "queue", m.queueProbe, &m.queueLast, m.state.SetQueueHealthy)
	m.runProbe(ctx, "sink", m.sinkProbe, &m.sinkLast, m.state.SetSinkHealthy)

	if ready := m.state.Snapshot().Ready(); ready != wasReady {
		if ready {
			m.logger.Info("dependencies healthy, worker ready")
		} else {
			m.logger.Warn("dependency unavailable, worker not ready")
		}
	}
}

// Run executes the probe loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProbeOnce(ctx)
		}
	}
}

func (m *Monitor) runProbe(ctx context.Context, target string, probe ProbeFunc, last *probeState, record func(bool)) {
	err := probe(ctx)
	ok := err == nil
	record(ok)
	m.onOutcome(target, ok)

	if last.changed(ok) {
		if ok {
			m.logger.Info("dependency reachable", "target", target)
		} else {
			m.logger.Error("dependency unreachable", "target", target, "error", err)
		}
	}
}
