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

// Package llm is the completion-provider abstraction used by the
// planning, analysis, writing and critic stages. The concrete provider
// speaks the OpenAI-compatible chat API through OpenRouter.
package llm

import (
	"context"
	"encoding/json"
)

// Chunk is one streamed text delta. A non-nil Err terminates the stream.
type Chunk struct {
	Text string
	Err  error
}

// Request is a single completion request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Provider is the completion contract the pipeline stages depend on.
type Provider interface {
	// Generate returns the full completion text.
	Generate(ctx context.Context, req Request) (string, error)

	// GenerateStructured constrains the completion to the given JSON
	// schema and returns the raw JSON payload.
	GenerateStructured(ctx context.Context, req Request, schema *Schema) (json.RawMessage, error)

	// Stream returns completion deltas as they arrive. The channel is
	// closed when the completion finishes or fails.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)

	// Model names the underlying model.
	Model() string
}
