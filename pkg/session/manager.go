// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/deepquest/pkg/checkpoint"
	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/observability"
)

// Config bounds the manager.
type Config struct {
	// RemoveAfter is the grace period a terminal session is retained
	// for late client reconnection.
	RemoveAfter time.Duration
	// MaxLiveSessions caps concurrently held sessions; the oldest is
	// abort-evicted when the cap is hit.
	MaxLiveSessions int
	// SweepInterval is how often terminal sessions are swept.
	SweepInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.RemoveAfter <= 0 {
		c.RemoveAfter = 60 * time.Second
	}
	if c.MaxLiveSessions <= 0 {
		c.MaxLiveSessions = 100
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Second
	}
}

// Manager owns all sessions under a single lock.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string // creation order, oldest first
	cfg      Config

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a manager and starts its cleanup sweeper.
func NewManager(cfg Config) *Manager {
	cfg.setDefaults()
	m := &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		stop:     make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Close stops the background sweeper.
func (m *Manager) Close() { m.stopOnce.Do(func() { close(m.stop) }) }

// Create registers a new pending session. An empty id gets a fresh
// uuid; a duplicate id is rejected.
func (m *Manager) Create(id, query string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return nil, fault.New(fault.KindValidation, "session %s already exists", id)
	}
	for len(m.sessions) >= m.cfg.MaxLiveSessions && len(m.order) > 0 {
		oldest := m.order[0]
		m.evictLocked(oldest)
		slog.Warn("session cap reached, evicted oldest", "evicted", oldest)
	}

	s := newSession(id, query)
	m.sessions[id] = s
	m.order = append(m.order, id)
	observability.ActiveSessions.Inc()
	return s, nil
}

// Get looks a session up.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Start moves a pending session to running.
func (m *Manager) Start(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fault.New(fault.KindValidation, "unknown session %s", id)
	}
	if !s.transition(StateRunning) {
		return fault.New(fault.KindValidation, "session %s cannot start from state %s", id, s.State())
	}
	return nil
}

// Complete marks a session terminally successful.
func (m *Manager) Complete(id string) {
	if s, ok := m.Get(id); ok {
		s.transition(StateCompleted)
	}
}

// SetError marks a session terminally failed.
func (m *Manager) SetError(id, msg string) {
	s, ok := m.Get(id)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.transitionLocked(StateError) {
		s.errMsg = msg
	}
	s.mu.Unlock()
}

// Abort fires the session's abort signal and discards any pending
// checkpoint slot. Idempotent.
func (m *Manager) Abort(id string) {
	s, ok := m.Get(id)
	if !ok {
		return
	}
	s.abortOnce.Do(func() { close(s.abort) })
	s.mu.Lock()
	s.pending = nil
	s.resolution = nil
	s.transitionLocked(StateAborted)
	s.mu.Unlock()
}

// IsAborted reports whether the session's abort signal has fired.
func (m *Manager) IsAborted(id string) bool {
	s, ok := m.Get(id)
	return ok && s.IsAborted()
}

// Remove drops a session immediately.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(id)
}

func (m *Manager) evictLocked(id string) {
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	s.abortOnce.Do(func() { close(s.abort) })
	s.Writer.Close()
	delete(m.sessions, id)
	for i, sid := range m.order {
		if sid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	observability.ActiveSessions.Dec()
}

// SetCheckpoint attaches an unresolved checkpoint to the session and
// moves it to awaiting_checkpoint. A session holds at most one
// unresolved checkpoint at a time.
func (m *Manager) SetCheckpoint(id string, cp *checkpoint.Checkpoint) error {
	s, ok := m.Get(id)
	if !ok {
		return fault.New(fault.KindValidation, "unknown session %s", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return fault.New(fault.KindValidation, "session %s already has a pending checkpoint", id)
	}
	if !s.transitionLocked(StateAwaitingCheckpoint) {
		return fault.New(fault.KindValidation, "session %s cannot suspend from state %s", id, s.state)
	}
	s.pending = cp
	s.resolution = make(chan checkpoint.Resolution, 1)
	return nil
}

// WaitForCheckpoint blocks the pipeline until the client resolves the
// pending checkpoint, the timeout elapses, or abort fires. On timeout
// the caller treats the decision as an implicit approve.
func (m *Manager) WaitForCheckpoint(id string, timeout time.Duration) (checkpoint.Resolution, error) {
	s, ok := m.Get(id)
	if !ok {
		return checkpoint.Resolution{}, fault.New(fault.KindValidation, "unknown session %s", id)
	}
	s.mu.Lock()
	slot := s.resolution
	s.mu.Unlock()
	if slot == nil {
		return checkpoint.Resolution{}, fault.New(fault.KindValidation, "session %s has no pending checkpoint", id)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-slot:
		s.transition(StateRunning)
		observability.CheckpointResolutions.WithLabelValues(string(res.Action)).Inc()
		return res, nil
	case <-timer.C:
		observability.CheckpointResolutions.WithLabelValues("timeout").Inc()
		return checkpoint.Resolution{}, fault.New(fault.KindTimeout, "checkpoint wait timed out after %s", timeout)
	case <-s.abort:
		observability.CheckpointResolutions.WithLabelValues("abort").Inc()
		return checkpoint.Resolution{}, fault.Aborted("session aborted while awaiting checkpoint")
	}
}

// ResolveCheckpoint fills the pending slot. The checkpoint id must
// match; a second resolution of the same checkpoint is ignored.
func (m *Manager) ResolveCheckpoint(id, checkpointID string, res checkpoint.Resolution) error {
	s, ok := m.Get(id)
	if !ok {
		return fault.New(fault.KindValidation, "unknown session %s", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		// Already resolved (or timed out); idempotent no-op.
		return nil
	}
	if s.pending.ID != checkpointID {
		return fault.New(fault.KindValidation, "checkpoint %s is not pending for session %s", checkpointID, id)
	}
	s.pending.Resolve(res)
	select {
	case s.resolution <- res:
	default:
	}
	s.pending = nil
	return nil
}

// ClearCheckpoint drops the slot after the pipeline consumed the
// resolution (or an implicit approve).
func (m *Manager) ClearCheckpoint(id string) {
	s, ok := m.Get(id)
	if !ok {
		return
	}
	s.mu.Lock()
	s.pending = nil
	s.resolution = nil
	s.transitionLocked(StateRunning)
	s.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

// sweep removes terminal sessions past the reconnection grace period.
func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-m.cfg.RemoveAfter)
	for id, s := range m.sessions {
		s.mu.Lock()
		expired := s.state.Terminal() && s.terminalAt.Before(cutoff)
		s.mu.Unlock()
		if expired {
			m.evictLocked(id)
			slog.Debug("session removed after grace period", "session", id)
		}
	}
}
