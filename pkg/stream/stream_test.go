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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDeliversInOrder(t *testing.T) {
	w := NewWriter(4)
	w.Emit(Frame{Type: FrameLogLine, Data: LogLine{Text: "one"}})
	w.Emit(Frame{Type: FrameLogLine, Data: LogLine{Text: "two"}})
	w.Close()

	first := <-w.Frames()
	second := <-w.Frames()
	assert.Equal(t, "one", first.Data.(LogLine).Text)
	assert.Equal(t, "two", second.Data.(LogLine).Text)
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	w := NewWriter(1)
	w.Close()
	assert.False(t, w.Emit(Frame{Type: FrameLogLine, Data: LogLine{Text: "late"}}))
	assert.False(t, w.TryEmit(Heartbeat()))

	select {
	case <-w.Frames():
		t.Fatal("dropped frame should not be delivered")
	default:
	}
}

func TestCloseIsIdempotentAndUnblocksEmit(t *testing.T) {
	w := NewWriter(0)

	emitted := make(chan bool, 1)
	go func() {
		emitted <- w.Emit(Frame{Type: FrameLogLine, Data: LogLine{Text: "blocked"}})
	}()

	time.Sleep(10 * time.Millisecond)
	w.Close()
	w.Close()

	select {
	case ok := <-emitted:
		assert.False(t, ok, "emit pending at close reports dropped")
	case <-time.After(time.Second):
		t.Fatal("emit did not unblock on close")
	}
}

func TestStructuredEmitRefreshesActivity(t *testing.T) {
	w := NewWriter(4)
	before := w.LastActivity()
	time.Sleep(5 * time.Millisecond)

	w.TryEmit(Heartbeat())
	assert.Equal(t, before, w.LastActivity(), "transient frames do not count as activity")

	w.Emit(Frame{Type: FrameTextDelta, Data: TextDelta{ID: "d1", Delta: "x"}})
	assert.True(t, w.LastActivity().After(before))
}

func TestAgentEventLifecycleSharesID(t *testing.T) {
	ev := NewAgentEvent(StageSearching, "Searching literature", "检索文献")
	require.NotEmpty(t, ev.ID)
	assert.Equal(t, StatusRunning, ev.Status)

	done := AgentEventComplete{ID: ev.ID, Status: StatusSuccess, Duration: time.Second}
	assert.Equal(t, ev.ID, done.ID)
}

func TestFrameWireShape(t *testing.T) {
	raw, err := json.Marshal(Frame{Type: FrameTextDelta, Data: TextDelta{ID: "d1", Delta: "hi"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type": "text-delta", "data": {"id": "d1", "delta": "hi"}}`, string(raw))

	assert.True(t, FrameNotification.Transient())
	assert.False(t, FrameTextDelta.Transient())
}
