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

package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// Fake is a scriptable Provider for tests. Responses are consumed in
// FIFO order per call kind; when a queue runs dry the zero value is
// returned so loops terminate deterministically.
type Fake struct {
	mu sync.Mutex

	TextResponses       []string
	StructuredResponses []json.RawMessage
	StreamResponses     [][]string
	Err                 error

	GenerateCalls   []Request
	StructuredCalls []Request
	StreamCalls     []Request
}

// Model implements Provider.
func (f *Fake) Model() string { return "fake-model" }

// Generate implements Provider.
func (f *Fake) Generate(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GenerateCalls = append(f.GenerateCalls, req)
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.TextResponses) == 0 {
		return "", nil
	}
	next := f.TextResponses[0]
	f.TextResponses = f.TextResponses[1:]
	return next, nil
}

// GenerateStructured implements Provider.
func (f *Fake) GenerateStructured(ctx context.Context, req Request, schema *Schema) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StructuredCalls = append(f.StructuredCalls, req)
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.StructuredResponses) == 0 {
		return json.RawMessage("{}"), nil
	}
	next := f.StructuredResponses[0]
	f.StructuredResponses = f.StructuredResponses[1:]
	return next, nil
}

// Stream implements Provider.
func (f *Fake) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	f.mu.Lock()
	f.StreamCalls = append(f.StreamCalls, req)
	if f.Err != nil {
		f.mu.Unlock()
		return nil, f.Err
	}
	var deltas []string
	if len(f.StreamResponses) > 0 {
		deltas = f.StreamResponses[0]
		f.StreamResponses = f.StreamResponses[1:]
	}
	f.mu.Unlock()

	out := make(chan Chunk, len(deltas))
	go func() {
		defer close(out)
		for _, d := range deltas {
			select {
			case out <- Chunk{Text: d}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
