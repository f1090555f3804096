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

package paper

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// SortBy is the abstract sort order a caller may request. Clients map it
// to the catalog's native equivalent, falling back to relevance when the
// catalog has no match.
type SortBy string

const (
	SortByRelevance SortBy = "relevance"
	SortByCitations SortBy = "citations"
	SortByDate      SortBy = "date"
)

// SearchOptions describes a single search request against a source or
// the federator.
type SearchOptions struct {
	Query          string `json:"query"`
	MaxResults     int    `json:"max_results,omitempty"`
	YearFrom       int    `json:"year_from,omitempty"`
	YearTo         int    `json:"year_to,omitempty"`
	OpenAccessOnly bool   `json:"open_access_only,omitempty"`
	SortBy         SortBy `json:"sort_by,omitempty"`
}

// Key encodes the filter portion of the options for cache keying.
func (o SearchOptions) Key() string {
	return fmt.Sprintf("y%d-%d|oa%t", o.YearFrom, o.YearTo, o.OpenAccessOnly)
}

// SearchResult is a single source's response.
type SearchResult struct {
	Papers    []*Paper `json:"papers"`
	TotalHits int      `json:"total_hits"`
	Source    string   `json:"source"`
}

// NormalizeQuery lowercases, strips non-alphanumerics and sorts tokens
// so that token order and punctuation do not affect cache identity.
func NormalizeQuery(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, query)
	tokens := strings.Fields(cleaned)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// FilterByYear applies a year range client-side for catalogs that cannot
// push the filter down.
func FilterByYear(papers []*Paper, from, to int) []*Paper {
	if from == 0 && to == 0 {
		return papers
	}
	out := papers[:0:0]
	for _, p := range papers {
		if p.Year == 0 {
			continue
		}
		if from != 0 && p.Year < from {
			continue
		}
		if to != 0 && p.Year > to {
			continue
		}
		out = append(out, p)
	}
	return out
}
