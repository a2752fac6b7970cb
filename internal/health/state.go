// Package health tracks the analytics consumer's dependency health and
// worker heartbeat, and serves the startup/liveness/readiness probes.
//
// The state is deliberately small: two dependency flags, a started latch,
// and a heartbeat timestamp. Each field has a single writer (the monitor
// loop or the consumer loop) and many readers (the probe handlers), guarded
// by one mutex.
package health

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time, read-only view of the shared health state.
type Snapshot struct {
	QueueHealthy  bool
	SinkHealthy   bool
	Started       bool
	LastHeartbeat time.Time
}

// Ready reports whether both dependencies are currently reachable.
func (s Snapshot) Ready() bool {
	return s.QueueHealthy && s.SinkHealthy
}

// State is the process-wide health state shared between the monitor loop,
// the consumer loop, and the probe handlers.
type State struct {
	mu            sync.Mutex
	queueHealthy  bool
	sinkHealthy   bool
	started       bool
	lastHeartbeat time.Time

	clock func() time.Time
}

// NewState creates an empty State: no dependency is considered healthy and
// no heartbeat has been observed.
func NewState() *State {
	return &State{clock: time.Now}
}

// SetQueueHealthy records the queue probe outcome. The first time both
// dependencies are healthy, the started latch is set and never cleared.
func (s *State) SetQueueHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueHealthy = healthy
	if s.queueHealthy && s.sinkHealthy {
		s.started = true
	}
}

// SetSinkHealthy records the sink probe outcome.
func (s *State) SetSinkHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinkHealthy = healthy
	if s.queueHealthy && s.sinkHealthy {
		s.started = true
	}
}

// Heartbeat records that a worker loop completed a cycle. Both the consumer
// loop and the monitor's backoff path call this so a healthy-but-idle
// worker is not mistaken for hung.
func (s *State) Heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = s.clock()
}

// Snapshot returns a consistent copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		QueueHealthy:  s.queueHealthy,
		SinkHealthy:   s.sinkHealthy,
		Started:       s.started,
		LastHeartbeat: s.lastHeartbeat,
	}
}

// Alive reports whether a heartbeat has been observed within window. Before
// the first heartbeat it reports false.
func (s *State) Alive(window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastHeartbeat.IsZero() {
		return false
	}
	return s.clock().Sub(s.lastHeartbeat) <= window
}
