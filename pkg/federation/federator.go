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

// Package federation fans a search out to every enabled bibliographic
// source in parallel, deduplicates and merges the records, prioritises
// them, and reports a per-source contribution breakdown. Individual
// source failures degrade to zero contributions, never to an error.
package federation

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/deepquest/pkg/cache"
	"github.com/kadirpekel/deepquest/pkg/paper"
	"github.com/kadirpekel/deepquest/pkg/sources"
)

// Weights are the prioritisation weights. They should sum to 1.
type Weights struct {
	Citations  float64
	Recency    float64
	Keyword    float64
	OpenAccess float64
}

// DefaultWeights per the scoring contract.
var DefaultWeights = Weights{Citations: 0.3, Recency: 0.2, Keyword: 0.4, OpenAccess: 0.1}

// Config configures a Federator.
type Config struct {
	Timeout    time.Duration
	MaxResults int
	Weights    Weights
}

// Result is the merged outcome of one federated search.
type Result struct {
	Papers          []*paper.Paper `json:"papers"`
	TotalHits       int            `json:"total_hits"`
	SourceBreakdown map[string]int `json:"source_breakdown"`
	FromCache       bool           `json:"from_cache"`
}

// Federator aggregates searches across catalog clients.
type Federator struct {
	clients []sources.Client
	queries *cache.QueryCache
	papers  *cache.PaperCache
	cfg     Config
}

// New creates a Federator. Both caches may be shared across sessions.
func New(clients []sources.Client, queries *cache.QueryCache, papers *cache.PaperCache, cfg Config) *Federator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 25
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights
	}
	return &Federator{clients: clients, queries: queries, papers: papers, cfg: cfg}
}

// Search fans the query out to every client, merging as responses
// arrive. A query-cache hit bypasses the network entirely.
func (f *Federator) Search(ctx context.Context, opts paper.SearchOptions, sessionID string) (*Result, error) {
	if opts.MaxResults == 0 {
		opts.MaxResults = f.cfg.MaxResults
	}

	if f.queries != nil {
		if cached, ok := f.queries.Get(opts.Query, opts, sessionID); ok {
			return &Result{
				Papers:          cached.Papers,
				TotalHits:       cached.TotalHits,
				SourceBreakdown: cached.SourceBreakdown,
				FromCache:       true,
			}, nil
		}
	}

	searchCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	responses := make([]*paper.SearchResult, len(f.clients))
	g, gctx := errgroup.WithContext(searchCtx)
	for i, client := range f.clients {
		i, client := i, client
		g.Go(func() error {
			result, err := client.Search(gctx, opts)
			if err != nil {
				// A failing source contributes nothing; the session
				// must not fail with it.
				slog.Warn("federated source failed",
					"source", client.Name(),
					"query_tokens", len(strings.Fields(opts.Query)),
					"error", err,
				)
				return nil
			}
			responses[i] = result
			return nil
		})
	}
	_ = g.Wait() // goroutines only return nil; ctx errors surface as empty responses

	result := f.merge(opts, responses)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if f.queries != nil {
		f.queries.Set(opts.Query, opts, sessionID, &cache.QueryResult{
			Papers:          result.Papers,
			TotalHits:       result.TotalHits,
			SourceBreakdown: result.SourceBreakdown,
		})
	}
	return result, nil
}

// merge deduplicates across the responses in client order, so overlap
// attribution is deterministic: a record counts for the source that
// contributed it first.
func (f *Federator) merge(opts paper.SearchOptions, responses []*paper.SearchResult) *Result {
	breakdown := make(map[string]int, len(f.clients))
	for _, client := range f.clients {
		breakdown[client.Name()] = 0
	}

	merged := make(map[string]*paper.Paper)
	var order []string
	totalHits := 0

	for _, resp := range responses {
		if resp == nil {
			continue
		}
		totalHits += resp.TotalHits
		for _, p := range resp.Papers {
			key := paper.DedupKey(p)
			if existing, ok := merged[key]; ok {
				combined := paper.Merge(existing, p)
				if f.papers != nil {
					combined = f.papers.Update(combined)
				}
				merged[key] = combined
				continue
			}
			merged[key] = p
			order = append(order, key)
			breakdown[resp.Source]++
		}
	}

	papers := make([]*paper.Paper, 0, len(order))
	for _, key := range order {
		papers = append(papers, merged[key])
	}
	papers = f.prioritise(opts.Query, papers)

	if len(papers) > f.cfg.MaxResults {
		papers = papers[:f.cfg.MaxResults]
	}
	return &Result{Papers: papers, TotalHits: totalHits, SourceBreakdown: breakdown}
}

func (f *Federator) prioritise(query string, papers []*paper.Paper) []*paper.Paper {
	return Prioritise(query, papers, f.cfg.Weights)
}

// Prioritise orders papers by the weighted composite score of
// normalised citations, recency, keyword relevance and open access.
func Prioritise(query string, papers []*paper.Paper, w Weights) []*paper.Paper {
	if len(papers) == 0 {
		return papers
	}
	if w == (Weights{}) {
		w = DefaultWeights
	}

	maxCitations := 0
	for _, p := range papers {
		if p.Citations > maxCitations {
			maxCitations = p.Citations
		}
	}
	keywords := strings.Fields(strings.ToLower(query))
	currentYear := time.Now().Year()

	scores := make(map[*paper.Paper]float64, len(papers))
	for _, p := range papers {
		citations := 0.0
		if maxCitations > 0 {
			citations = float64(p.Citations) / float64(maxCitations)
		}

		recency := 0.0
		if p.Year > 0 {
			recency = math.Max(0, 1-float64(currentYear-p.Year)/20)
		}

		oa := 0.0
		if p.OpenAccess {
			oa = 1.0
		}

		scores[p] = w.Citations*citations + w.Recency*recency + w.Keyword*keywordRelevance(keywords, p) + w.OpenAccess*oa
	}

	sort.SliceStable(papers, func(i, j int) bool { return scores[papers[i]] > scores[papers[j]] })
	return papers
}

// keywordRelevance is the fraction of query tokens found in the title
// or abstract.
func keywordRelevance(keywords []string, p *paper.Paper) float64 {
	if len(keywords) == 0 {
		return 0
	}
	haystack := strings.ToLower(p.Title + " " + p.Abstract)
	found := 0
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			found++
		}
	}
	return float64(found) / float64(len(keywords))
}
