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

package compression

import (
	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens with the cl100k_base encoding when available,
// falling back to the ceil(chars/4) estimate. Loading the encoding may
// need network access on first use, so the fallback keeps offline runs
// working.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter builds a counter, tolerating an unavailable encoding.
func NewCounter() *Counter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// Count returns the token count of s.
func (c *Counter) Count(s string) int {
	if c.enc != nil {
		return len(c.enc.Encode(s, nil, nil))
	}
	return estimateTokens(s)
}

// estimateTokens approximates token usage as ceil(chars/4).
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// truncateToTokens trims s so its estimated token count fits budget.
func truncateToTokens(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	maxChars := budget * 4
	if len(s) <= maxChars {
		return s
	}
	return s[:maxChars]
}
