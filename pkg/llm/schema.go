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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// Schema is a named JSON schema used for constrained generation.
type Schema struct {
	Name       string
	Definition map[string]any
}

// SchemaFor reflects a JSON schema from a Go type using struct tags.
//
// Supported tags:
//   - json:"name" - field name
//   - jsonschema:"required" - mark as required
//   - jsonschema:"description=..." - field description
func SchemaFor[T any](name string) (*Schema, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	reflected := reflector.Reflect(new(T))

	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema for %s: %w", name, err)
	}
	var definition map[string]any
	if err := json.Unmarshal(raw, &definition); err != nil {
		return nil, fmt.Errorf("failed to convert schema for %s: %w", name, err)
	}
	delete(definition, "$schema")
	delete(definition, "$id")
	return &Schema{Name: name, Definition: definition}, nil
}

// MustSchemaFor is SchemaFor for package-level schema variables.
func MustSchemaFor[T any](name string) *Schema {
	s, err := SchemaFor[T](name)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode maps a structured completion into a Go value. Decoding is
// weakly typed because models occasionally return numbers as strings.
func Decode[T any](raw json.RawMessage) (*T, error) {
	var intermediate map[string]any
	if err := json.Unmarshal(ExtractJSON(raw), &intermediate); err != nil {
		return nil, fmt.Errorf("structured completion is not valid JSON: %w", err)
	}

	var target T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &target,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(intermediate); err != nil {
		return nil, fmt.Errorf("structured completion does not match schema: %w", err)
	}
	return &target, nil
}

// ExtractJSON strips markdown code fences some models wrap around JSON
// payloads even under constrained generation.
func ExtractJSON(raw []byte) []byte {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return []byte(text)
}
