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

package stream

import (
	"sync"
	"sync/atomic"
	"time"
)

// Writer carries one session's frames to the transport. The channel is
// unbuffered by default so the coordinator only produces the next
// event once the consumer accepted the previous one. Writes after
// Close are dropped silently.
type Writer struct {
	frames chan Frame
	done   chan struct{}

	closeOnce sync.Once
	lastEmit  atomic.Int64 // unix nanos of the last structured frame
}

// NewWriter creates a writer. buffer 0 gives strict backpressure.
func NewWriter(buffer int) *Writer {
	w := &Writer{
		frames: make(chan Frame, buffer),
		done:   make(chan struct{}),
	}
	w.lastEmit.Store(time.Now().UnixNano())
	return w
}

// Frames is the consumer side.
func (w *Writer) Frames() <-chan Frame { return w.frames }

// Done is closed when the writer is closed.
func (w *Writer) Done() <-chan struct{} { return w.done }

// Emit delivers a frame, blocking until the consumer accepts it.
// Returns false when the writer is already closed.
func (w *Writer) Emit(frame Frame) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.frames <- frame:
		if !frame.Type.Transient() {
			w.lastEmit.Store(time.Now().UnixNano())
		}
		return true
	case <-w.done:
		return false
	}
}

// TryEmit delivers a frame only if the consumer is ready. Used for
// best-effort transient frames like heartbeats.
func (w *Writer) TryEmit(frame Frame) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.frames <- frame:
		return true
	default:
		return false
	}
}

// Close ends the stream. Idempotent; pending Emit calls unblock.
func (w *Writer) Close() {
	w.closeOnce.Do(func() { close(w.done) })
}

// LastActivity returns the time of the last structured frame. The
// transport injects heartbeats when this goes idle.
func (w *Writer) LastActivity() time.Time {
	return time.Unix(0, w.lastEmit.Load())
}
