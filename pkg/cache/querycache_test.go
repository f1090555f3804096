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

package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepquest/pkg/paper"
)

func newTestQueryCache() (*QueryCache, *PaperCache) {
	papers := newTestPaperCache(100)
	return NewQueryCache(QueryCacheConfig{MaxEntries: 5}, papers), papers
}

func TestQueryKeyIsTokenOrderIndependent(t *testing.T) {
	c, papers := newTestQueryCache()
	defer papers.Close()

	opts := paper.SearchOptions{YearFrom: 2020}
	result := &QueryResult{TotalHits: 3}

	c.Set("quantum error correction", opts, "", result)

	got, ok := c.Get("Correction!  ERROR quantum", opts, "")
	require.True(t, ok)
	assert.Equal(t, 3, got.TotalHits)

	// Different options miss.
	_, ok = c.Get("quantum error correction", paper.SearchOptions{YearFrom: 2021}, "")
	assert.False(t, ok)
}

func TestSessionScopeOutlivesGlobalScope(t *testing.T) {
	papers := newTestPaperCache(100)
	defer papers.Close()
	c := NewQueryCache(QueryCacheConfig{MaxEntries: 5, GlobalTTL: time.Millisecond, SessionTTL: time.Minute}, papers)

	opts := paper.SearchOptions{}
	c.Set("deep learning", opts, "s1", &QueryResult{TotalHits: 1})
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("deep learning", opts, "")
	assert.False(t, ok, "global entry expired")

	got, ok := c.Get("deep learning", opts, "s1")
	require.True(t, ok, "session entry still live")
	assert.Equal(t, 1, got.TotalHits)

	c.ReleaseSession("s1")
	_, ok = c.Get("deep learning", opts, "s1")
	assert.False(t, ok)
}

func TestSetFeedsPaperCache(t *testing.T) {
	c, papers := newTestQueryCache()
	defer papers.Close()

	p := &paper.Paper{DOI: "10.1/x", Title: "X"}
	c.Set("q", paper.SearchOptions{}, "", &QueryResult{Papers: []*paper.Paper{p}})

	_, ok := papers.Get("doi:10.1/x")
	assert.True(t, ok)
}

func TestGlobalEvictionOldestFirst(t *testing.T) {
	c, papers := newTestQueryCache()
	defer papers.Close()

	for i := 0; i < 7; i++ {
		c.Set(fmt.Sprintf("query number %d", i), paper.SearchOptions{}, "", &QueryResult{TotalHits: i})
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 5, c.Len())

	_, ok := c.Get("query number 0", paper.SearchOptions{}, "")
	assert.False(t, ok, "oldest entry evicted")
	_, ok = c.Get("query number 6", paper.SearchOptions{}, "")
	assert.True(t, ok)
}
