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

func newTestPaperCache(maxEntries int) *PaperCache {
	return NewPaperCache(PaperCacheConfig{
		MaxEntries:               maxEntries,
		TTL:                      time.Minute,
		PreferHigherAvailability: true,
	})
}

func TestSetWeakerRecordDoesNotReplace(t *testing.T) {
	c := newTestPaperCache(10)
	defer c.Close()

	strong := &paper.Paper{DOI: "10.1/x", Title: "Strong", Abstract: "abs", Availability: paper.WithAbstract}
	weak := &paper.Paper{DOI: "10.1/x", Title: "Weak", Availability: paper.MetadataOnly}

	c.Set(strong)
	c.Set(weak)

	got, ok := c.Get("doi:10.1/x")
	require.True(t, ok)
	assert.Equal(t, "Strong", got.Title)
	assert.Equal(t, paper.WithAbstract, got.Availability)
}

func TestSetStrongerRecordReplaces(t *testing.T) {
	c := newTestPaperCache(10)
	defer c.Close()

	c.Set(&paper.Paper{DOI: "10.1/x", Title: "Old", Availability: paper.MetadataOnly})
	c.Set(&paper.Paper{DOI: "10.1/x", Title: "New", Abstract: "abs", Availability: paper.WithAbstract})

	got, ok := c.Get("doi:10.1/x")
	require.True(t, ok)
	assert.Equal(t, "New", got.Title)
}

func TestUpdateMergesAcrossSources(t *testing.T) {
	c := newTestPaperCache(10)
	defer c.Close()

	r1 := &paper.Paper{
		DOI:          "10.1/x",
		Title:        "Quantum widgets",
		Abstract:     "the abstract",
		Availability: paper.WithAbstract,
		SourceOrigin: []string{"openalex"},
		Citations:    12,
	}
	r2 := &paper.Paper{
		DOI:          "10.1/X",
		Title:        "Quantum widgets",
		PDFURL:       "https://x/paper.pdf",
		Availability: paper.WithPDFLink,
		SourceOrigin: []string{"core"},
		Citations:    7,
	}

	c.Set(r1)
	merged := c.Update(r2)

	assert.Equal(t, paper.WithPDFLink, merged.Availability)
	assert.ElementsMatch(t, []string{"openalex", "core"}, merged.SourceOrigin)
	assert.Equal(t, "the abstract", merged.Abstract, "non-empty scalar from the weaker side survives")
	assert.Equal(t, 12, merged.Citations)

	got, ok := c.Get("doi:10.1/x")
	require.True(t, ok)
	assert.Same(t, merged, got)
}

func TestExpiredEntryIsAbsent(t *testing.T) {
	c := NewPaperCache(PaperCacheConfig{MaxEntries: 10, TTL: time.Millisecond})
	defer c.Close()

	c.Set(&paper.Paper{DOI: "10.1/x", Title: "T"})
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("doi:10.1/x")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(1), stats.Expired)
}

func TestSingleSlotCacheKeepsExactlyOneEntry(t *testing.T) {
	c := newTestPaperCache(1)
	defer c.Close()

	for i := 0; i < 20; i++ {
		c.Set(&paper.Paper{DOI: fmt.Sprintf("10.1/p%d", i), Title: "p"})
		assert.Equal(t, 1, c.Stats().Entries)
	}
}

func TestEvictionPrefersDroppingLowAvailability(t *testing.T) {
	c := newTestPaperCache(2)
	defer c.Close()

	c.Set(&paper.Paper{DOI: "10.1/high", Title: "h", FullText: "text", Availability: paper.WithFullText})
	c.Set(&paper.Paper{DOI: "10.1/low", Title: "l", Availability: paper.MetadataOnly})
	c.Set(&paper.Paper{DOI: "10.1/new", Title: "n", Availability: paper.WithAbstract, Abstract: "a"})

	_, highOK := c.Get("doi:10.1/high")
	_, lowOK := c.Get("doi:10.1/low")
	assert.True(t, highOK, "high-availability record is sticky")
	assert.False(t, lowOK)
}

func TestStatsHistograms(t *testing.T) {
	c := newTestPaperCache(10)
	defer c.Close()

	c.Set(&paper.Paper{DOI: "10.1/a", Title: "a", SourceOrigin: []string{"arxiv"}, Abstract: "x", Availability: paper.WithAbstract})
	c.Set(&paper.Paper{DOI: "10.1/b", Title: "b", SourceOrigin: []string{"arxiv", "pubmed"}})

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 2, stats.BySource["arxiv"])
	assert.Equal(t, 1, stats.BySource["pubmed"])
	assert.Equal(t, 1, stats.ByAvailability["with_abstract"])
	assert.Equal(t, 1, stats.ByAvailability["metadata_only"])
	assert.Greater(t, stats.MemoryEstimate, int64(0))
}
