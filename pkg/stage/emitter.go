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

// Package stage implements the pipeline executors: planner, searcher,
// analyzer, writer, critic and validator. Executors mutate research
// memory and emit timeline events; they never touch the transport.
package stage

import (
	"sync"
	"time"

	"github.com/kadirpekel/deepquest/pkg/stream"
)

// Emitter pushes stage output onto a session's event writer, keeping
// start times so completions can carry durations.
type Emitter struct {
	w *stream.Writer

	mu     sync.Mutex
	starts map[string]time.Time
}

// NewEmitter wraps a session writer.
func NewEmitter(w *stream.Writer) *Emitter {
	return &Emitter{w: w, starts: make(map[string]time.Time)}
}

// Emit forwards a raw frame.
func (e *Emitter) Emit(frame stream.Frame) bool { return e.w.Emit(frame) }

// StartEvent opens a timeline entry and returns it for later updates.
func (e *Emitter) StartEvent(stage stream.Stage, titleEn, titleZh string) stream.AgentEvent {
	ev := stream.NewAgentEvent(stage, titleEn, titleZh)
	e.mu.Lock()
	e.starts[ev.ID] = time.Now()
	e.mu.Unlock()
	e.w.Emit(stream.Frame{Type: stream.FrameAgentEvent, Data: ev})
	return ev
}

// UpdateEvent emits a delta for an open timeline entry, same id.
func (e *Emitter) UpdateEvent(ev stream.AgentEvent, meta map[string]any) {
	ev.Meta = meta
	e.w.Emit(stream.Frame{Type: stream.FrameAgentEventUpdate, Data: ev})
}

// CompleteEvent closes a timeline entry with its measured duration.
func (e *Emitter) CompleteEvent(ev stream.AgentEvent, status stream.Status, meta map[string]any) {
	e.mu.Lock()
	started, ok := e.starts[ev.ID]
	delete(e.starts, ev.ID)
	e.mu.Unlock()

	duration := time.Duration(0)
	if ok {
		duration = time.Since(started)
	}
	e.w.Emit(stream.Frame{Type: stream.FrameAgentEventComplete, Data: stream.AgentEventComplete{
		ID:       ev.ID,
		Status:   status,
		Duration: duration,
		Meta:     meta,
	}})
}

// Log emits a user-visible progress line.
func (e *Emitter) Log(text, icon string) {
	e.w.Emit(stream.Frame{Type: stream.FrameLogLine, Data: stream.LogLine{Text: text, Icon: icon}})
}

// Notify emits a transient notification.
func (e *Emitter) Notify(message, level string) {
	e.w.Emit(stream.Frame{Type: stream.FrameNotification, Data: stream.Notification{Message: message, Level: level}})
}

// Delta emits one chunk of streamed report text.
func (e *Emitter) Delta(id, delta string) {
	e.w.Emit(stream.Frame{Type: stream.FrameTextDelta, Data: stream.TextDelta{ID: id, Delta: delta}})
}
