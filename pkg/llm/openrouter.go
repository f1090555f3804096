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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/deepquest/pkg/config"
	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/httpclient"
	"github.com/kadirpekel/deepquest/pkg/observability"
)

// OpenRouter speaks the OpenAI-compatible chat completions API.
type OpenRouter struct {
	baseURL string
	apiKey  string
	model   string
	temp    float64
	http    *httpclient.Client
}

// NewOpenRouter creates a provider from the llm config block.
func NewOpenRouter(cfg config.LLMConfig) *OpenRouter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenRouter{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		temp:    cfg.Temperature,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithUserAgent("deepquest/0.1"),
		),
	}
}

// Model returns the configured model name.
func (p *OpenRouter) Model() string { return p.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaSpec struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *jsonSchemaSpec `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	Stream         bool            `json:"stream"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type streamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

func (p *OpenRouter) buildRequest(req Request, stream bool, format *responseFormat) chatRequest {
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.temp
	}
	return chatRequest{
		Model:          p.model,
		Messages:       messages,
		MaxTokens:      req.MaxTokens,
		Temperature:    temperature,
		Stream:         stream,
		ResponseFormat: format,
	}
}

func (p *OpenRouter) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "marshaling completion request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "building completion request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("X-Title", "deepquest")

	resp, err := p.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fault.Wrap(fault.Classify(ctx.Err()), ctx.Err(), "completion request")
		}
		return nil, fault.Wrap(fault.KindNetwork, err, "completion request")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		base := fault.FromStatus(resp.StatusCode, "completion provider")
		if len(raw) > 0 {
			return nil, fault.Wrap(fault.Classify(base), fmt.Errorf("%s", strings.TrimSpace(string(raw))), "completion provider returned %d", resp.StatusCode)
		}
		return nil, base
	}
	return resp, nil
}

func record(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.LLMCalls.WithLabelValues(kind, outcome).Inc()
}

// Generate returns the full completion text.
func (p *OpenRouter) Generate(ctx context.Context, req Request) (text string, err error) {
	defer func() { record("text", err) }()

	resp, err := p.post(ctx, p.buildRequest(req, false, nil))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fault.Wrap(fault.KindTransient, err, "decoding completion response")
	}
	if decoded.Error != nil {
		return "", fault.New(fault.KindTransient, "completion provider error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", fault.New(fault.KindTransient, "completion returned no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

// GenerateStructured constrains the completion to the schema and
// returns the raw JSON payload.
func (p *OpenRouter) GenerateStructured(ctx context.Context, req Request, schema *Schema) (raw json.RawMessage, err error) {
	defer func() { record("structured", err) }()

	format := &responseFormat{
		Type: "json_schema",
		JSONSchema: &jsonSchemaSpec{
			Name:   schema.Name,
			Strict: true,
			Schema: schema.Definition,
		},
	}
	resp, err := p.post(ctx, p.buildRequest(req, false, format))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fault.Wrap(fault.KindTransient, err, "decoding structured completion")
	}
	if decoded.Error != nil {
		return nil, fault.New(fault.KindTransient, "completion provider error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return nil, fault.New(fault.KindTransient, "structured completion returned no choices")
	}
	return ExtractJSON([]byte(decoded.Choices[0].Message.Content)), nil
}

// Stream returns completion deltas as they arrive.
func (p *OpenRouter) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	resp, err := p.post(ctx, p.buildRequest(req, true, nil))
	record("stream", err)
	if err != nil {
		return nil, err
	}

	out := make(chan Chunk, 64)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}

			var chunk streamResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue // tolerate comment and keep-alive frames
			}
			if chunk.Error != nil {
				out <- Chunk{Err: fault.New(fault.KindTransient, "completion stream error: %s", chunk.Error.Message)}
				return
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					select {
					case out <- Chunk{Text: choice.Delta.Content}:
					case <-ctx.Done():
						out <- Chunk{Err: fault.Wrap(fault.Classify(ctx.Err()), ctx.Err(), "completion stream")}
						return
					}
				}
			}
		}
		if err := scanner.Err(); err != nil {
			out <- Chunk{Err: fault.Wrap(fault.KindNetwork, err, "reading completion stream")}
		}
	}()
	return out, nil
}
