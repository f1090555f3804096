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

package federation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepquest/pkg/cache"
	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/paper"
	"github.com/kadirpekel/deepquest/pkg/sources"
)

// fakeSource is a scriptable catalog client.
type fakeSource struct {
	name    string
	papers  []*paper.Paper
	err     error
	calls   int
	latency time.Duration
}

func (s *fakeSource) Name() string                        { return s.name }
func (s *fakeSource) IsAvailable(ctx context.Context) bool { return s.err == nil }

func (s *fakeSource) Search(ctx context.Context, opts paper.SearchOptions) (*paper.SearchResult, error) {
	s.calls++
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &paper.SearchResult{Papers: s.papers, TotalHits: len(s.papers), Source: s.name}, nil
}

func (s *fakeSource) GetPaper(ctx context.Context, id string) (*paper.Paper, error) {
	for _, p := range s.papers {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fault.New(fault.KindValidation, "not found")
}


func asClients(ss ...*fakeSource) []sources.Client {
	clients := make([]sources.Client, len(ss))
	for i, s := range ss {
		clients[i] = s
	}
	return clients
}

func mkPapers(source string, n int, offset int) []*paper.Paper {
	papers := make([]*paper.Paper, n)
	for i := 0; i < n; i++ {
		papers[i] = &paper.Paper{
			ID:           fmt.Sprintf("%s:p%d", source, offset+i),
			Title:        fmt.Sprintf("Paper number %d", offset+i),
			Year:         2020,
			SourceOrigin: []string{source},
		}
	}
	return papers
}

func newCaches(t *testing.T) (*cache.QueryCache, *cache.PaperCache) {
	t.Helper()
	papers := cache.NewPaperCache(cache.PaperCacheConfig{MaxEntries: 100, TTL: time.Minute})
	t.Cleanup(papers.Close)
	return cache.NewQueryCache(cache.QueryCacheConfig{MaxEntries: 10}, papers), papers
}

func TestPartialFailureYieldsZeroBreakdown(t *testing.T) {
	a := &fakeSource{name: "A", papers: mkPapers("A", 5, 0)}
	b := &fakeSource{name: "B", err: fault.New(fault.KindNetwork, "connection reset")}
	c := &fakeSource{name: "C", papers: mkPapers("C", 7, 100)}

	queries, papers := newCaches(t)
	f := New(asClients(a, b, c), queries, papers, Config{MaxResults: 50})

	result, err := f.Search(context.Background(), paper.SearchOptions{Query: "anything"}, "s1")
	require.NoError(t, err)

	assert.Len(t, result.Papers, 12)
	assert.Equal(t, map[string]int{"A": 5, "B": 0, "C": 7}, result.SourceBreakdown)
}

func TestAllSourcesFailingReturnsEmptyResult(t *testing.T) {
	a := &fakeSource{name: "A", err: fault.New(fault.KindNetwork, "down")}
	b := &fakeSource{name: "B", err: fault.New(fault.KindRateLimit, "429")}

	f := New(asClients(a, b), nil, nil, Config{})
	result, err := f.Search(context.Background(), paper.SearchOptions{Query: "q"}, "")
	require.NoError(t, err)
	assert.Empty(t, result.Papers)
	assert.Equal(t, map[string]int{"A": 0, "B": 0}, result.SourceBreakdown)
}

func TestOverlapAttributedToFirstSeenSource(t *testing.T) {
	shared := &paper.Paper{DOI: "10.1/shared", Title: "Shared work", SourceOrigin: []string{"A"}, Abstract: "a", Availability: paper.WithAbstract}
	sharedCopy := &paper.Paper{DOI: "10.1/shared", Title: "Shared work", SourceOrigin: []string{"B"}, PDFURL: "u", Availability: paper.WithPDFLink}

	a := &fakeSource{name: "A", papers: []*paper.Paper{shared}}
	b := &fakeSource{name: "B", papers: append(mkPapers("B", 2, 0), sharedCopy)}

	queries, papers := newCaches(t)
	f := New(asClients(a, b), queries, papers, Config{MaxResults: 50})

	result, err := f.Search(context.Background(), paper.SearchOptions{Query: "shared work"}, "")
	require.NoError(t, err)

	assert.Len(t, result.Papers, 3)
	assert.Equal(t, map[string]int{"A": 1, "B": 2}, result.SourceBreakdown)

	var merged *paper.Paper
	for _, p := range result.Papers {
		if paper.NormalizeDOI(p.DOI) == "10.1/shared" {
			merged = p
		}
	}
	require.NotNil(t, merged)
	assert.ElementsMatch(t, []string{"A", "B"}, merged.SourceOrigin)
	assert.Equal(t, paper.WithPDFLink, merged.Availability)
	assert.Equal(t, "a", merged.Abstract)
}

func TestCacheHitBypassesNetwork(t *testing.T) {
	a := &fakeSource{name: "A", papers: mkPapers("A", 3, 0)}
	queries, papers := newCaches(t)
	f := New(asClients(a), queries, papers, Config{MaxResults: 50})

	opts := paper.SearchOptions{Query: "graph neural networks"}
	first, err := f.Search(context.Background(), opts, "s1")
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, 1, a.calls)

	// Token permutation still hits.
	second, err := f.Search(context.Background(), paper.SearchOptions{Query: "networks GRAPH neural"}, "s1")
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 1, a.calls)
	assert.Len(t, second.Papers, 3)
}

func TestPrioritisationOrdersByCompositeScore(t *testing.T) {
	relevant := &paper.Paper{ID: "A:1", Title: "Quantum error correction codes", Year: 2024, Citations: 10, OpenAccess: true, SourceOrigin: []string{"A"}}
	stale := &paper.Paper{ID: "A:2", Title: "Unrelated topic", Year: 1995, Citations: 5, SourceOrigin: []string{"A"}}

	a := &fakeSource{name: "A", papers: []*paper.Paper{stale, relevant}}
	f := New(asClients(a), nil, nil, Config{MaxResults: 10})

	result, err := f.Search(context.Background(), paper.SearchOptions{Query: "quantum error correction"}, "")
	require.NoError(t, err)
	require.Len(t, result.Papers, 2)
	assert.Equal(t, "A:1", result.Papers[0].ID)
}

func TestSlowSourceIsCutOffByDeadline(t *testing.T) {
	fast := &fakeSource{name: "fast", papers: mkPapers("fast", 2, 0)}
	slow := &fakeSource{name: "slow", papers: mkPapers("slow", 2, 50), latency: time.Second}

	f := New(asClients(fast, slow), nil, nil, Config{Timeout: 50 * time.Millisecond, MaxResults: 10})
	result, err := f.Search(context.Background(), paper.SearchOptions{Query: "q"}, "")
	require.NoError(t, err)

	assert.Equal(t, 2, result.SourceBreakdown["fast"])
	assert.Equal(t, 0, result.SourceBreakdown["slow"])
}
