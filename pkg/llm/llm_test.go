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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepquest/pkg/config"
	"github.com/kadirpekel/deepquest/pkg/fault"
)

type planShape struct {
	MainQuestion string   `json:"main_question" jsonschema:"required"`
	SubQuestions []string `json:"sub_questions" jsonschema:"required"`
}

func TestSchemaForReflectsTags(t *testing.T) {
	schema, err := SchemaFor[planShape]("research_plan")
	require.NoError(t, err)
	assert.Equal(t, "research_plan", schema.Name)
	assert.Equal(t, "object", schema.Definition["type"])

	props, ok := schema.Definition["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "main_question")
	assert.Contains(t, props, "sub_questions")
	assert.NotContains(t, schema.Definition, "$schema")
}

func TestDecodeIsWeaklyTyped(t *testing.T) {
	type shape struct {
		Score float64 `json:"score"`
		Count int     `json:"count"`
	}
	// Models sometimes return numbers as strings.
	decoded, err := Decode[shape](json.RawMessage(`{"score": "82.5", "count": 3}`))
	require.NoError(t, err)
	assert.Equal(t, 82.5, decoded.Score)
	assert.Equal(t, 3, decoded.Count)
}

func TestExtractJSONStripsFences(t *testing.T) {
	raw := []byte("```json\n{\"a\": 1}\n```")
	assert.JSONEq(t, `{"a": 1}`, string(ExtractJSON(raw)))
	assert.JSONEq(t, `{"a": 1}`, string(ExtractJSON([]byte(`{"a": 1}`))))
}

func newTestProvider(url string) *OpenRouter {
	return NewOpenRouter(config.LLMConfig{
		BaseURL: url,
		APIKey:  "test-key",
		Model:   "test/model",
	})
}

func TestGenerateStructuredSendsSchema(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		format, ok := req["response_format"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "json_schema", format["type"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "{\"main_question\": \"q\", \"sub_questions\": [\"a\"]}"}}]}`))
	}))
	defer server.Close()

	schema := MustSchemaFor[planShape]("research_plan")
	raw, err := newTestProvider(server.URL).GenerateStructured(context.Background(), Request{Prompt: "plan it"}, schema)
	require.NoError(t, err)

	decoded, err := Decode[planShape](raw)
	require.NoError(t, err)
	assert.Equal(t, "q", decoded.MainQuestion)
	assert.Equal(t, []string{"a"}, decoded.SubQuestions)
}

func TestStreamDeliversDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\": [{\"delta\": {\"content\": \"Hello\"}}]}\n\n"))
		w.Write([]byte(": keep-alive comment\n\n"))
		w.Write([]byte("data: {\"choices\": [{\"delta\": {\"content\": \" world\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	chunks, err := newTestProvider(server.URL).Stream(context.Background(), Request{Prompt: "say hi"})
	require.NoError(t, err)

	var text string
	for c := range chunks {
		require.NoError(t, c.Err)
		text += c.Text
	}
	assert.Equal(t, "Hello world", text)
}

func TestAuthFailureIsClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key"}}`))
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Generate(context.Background(), Request{Prompt: "q"})
	require.Error(t, err)
	assert.Equal(t, fault.KindAuth, fault.Classify(err))
}

func TestFakeConsumesQueues(t *testing.T) {
	fake := &Fake{
		TextResponses:   []string{"one", "two"},
		StreamResponses: [][]string{{"a", "b"}},
	}

	first, err := fake.Generate(context.Background(), Request{Prompt: "1"})
	require.NoError(t, err)
	assert.Equal(t, "one", first)

	second, _ := fake.Generate(context.Background(), Request{Prompt: "2"})
	assert.Equal(t, "two", second)
	third, _ := fake.Generate(context.Background(), Request{Prompt: "3"})
	assert.Empty(t, third)

	chunks, err := fake.Stream(context.Background(), Request{Prompt: "s"})
	require.NoError(t, err)
	var text string
	for c := range chunks {
		text += c.Text
	}
	assert.Equal(t, "ab", text)
	assert.Len(t, fake.GenerateCalls, 3)
}
