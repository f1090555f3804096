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

// Package session owns research session lifecycle and the checkpoint
// rendezvous between the pipeline and the client.
package session

import (
	"sync"
	"time"

	"github.com/kadirpekel/deepquest/pkg/checkpoint"
	"github.com/kadirpekel/deepquest/pkg/memory"
	"github.com/kadirpekel/deepquest/pkg/stream"
)

// State is the session lifecycle state.
type State string

const (
	StatePending            State = "pending"
	StateRunning            State = "running"
	StateAwaitingCheckpoint State = "awaiting_checkpoint"
	StateCompleted          State = "completed"
	StateError              State = "error"
	StateAborted            State = "aborted"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError || s == StateAborted
}

// Session is one research run. All mutation goes through its mutex;
// the abort channel and writer are safe to use concurrently.
type Session struct {
	ID        string
	Query     string
	CreatedAt time.Time

	Memory *memory.ResearchMemory
	Writer *stream.Writer

	mu         sync.Mutex
	state      State
	errMsg     string
	terminalAt time.Time

	pending    *checkpoint.Checkpoint
	resolution chan checkpoint.Resolution

	abortOnce sync.Once
	abort     chan struct{}
}

func newSession(id, query string) *Session {
	return &Session{
		ID:        id,
		Query:     query,
		CreatedAt: time.Now(),
		Memory:    memory.New(query),
		Writer:    stream.NewWriter(0),
		state:     StatePending,
		abort:     make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error message for sessions in the error state.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Checkpoint returns the pending unresolved checkpoint, or nil.
func (s *Session) Checkpoint() *checkpoint.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Aborted returns the channel closed on user stop.
func (s *Session) Aborted() <-chan struct{} { return s.abort }

// IsAborted reports whether the abort signal has fired.
func (s *Session) IsAborted() bool {
	select {
	case <-s.abort:
		return true
	default:
		return false
	}
}

// transition applies a state change if it is legal; illegal moves are
// ignored so terminal states are absorbing.
func (s *Session) transition(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

func (s *Session) transitionLocked(to State) bool {
	if s.state.Terminal() {
		return false
	}
	switch to {
	case StateRunning:
		if s.state != StatePending && s.state != StateAwaitingCheckpoint {
			return false
		}
	case StateAwaitingCheckpoint:
		if s.state != StateRunning {
			return false
		}
	case StateCompleted:
		if s.state != StateRunning && s.state != StateAwaitingCheckpoint {
			return false
		}
	case StateError, StateAborted:
		// reachable from any non-terminal state
	default:
		return false
	}
	s.state = to
	if to.Terminal() {
		s.terminalAt = time.Now()
	}
	return true
}
