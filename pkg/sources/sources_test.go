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

package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/paper"
)

func TestGateSpacesRequests(t *testing.T) {
	g := newGate(100) // 10ms interval
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, g.wait(ctx))
	}
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond, "4 permits at 100/s need >= 30ms spacing")
}

func TestGateWaitCancellable(t *testing.T) {
	g := newGate(0.1) // 10s interval
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, g.wait(ctx)) // first permit is free
	cancel()
	err := g.wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenAlexMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Contains(t, r.Header.Get("User-Agent"), "deepquest")
		assert.Equal(t, "dev@example.org", r.URL.Query().Get("mailto"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"meta": {"count": 1},
			"results": [{
				"id": "https://openalex.org/W123",
				"doi": "https://doi.org/10.1/ABC",
				"display_name": "A Paper",
				"publication_year": 2022,
				"cited_by_count": 9,
				"abstract_inverted_index": {"Deep": [0], "results": [2], "learning": [1]},
				"authorships": [{"author": {"display_name": "Ada Lovelace"}}],
				"open_access": {"is_oa": true, "oa_url": "https://host/p.pdf"},
				"concepts": [{"display_name": "Computer science", "score": 0.8}]
			}]
		}`))
	}))
	defer server.Close()

	client := NewOpenAlex(server.URL, "dev@example.org", "", 1000)
	result, err := client.Search(context.Background(), paper.SearchOptions{Query: "deep learning"})
	require.NoError(t, err)
	require.Len(t, result.Papers, 1)
	assert.Equal(t, 1, result.TotalHits)

	p := result.Papers[0]
	assert.Equal(t, "doi:10.1/abc", p.ID)
	assert.Equal(t, "A Paper", p.Title)
	assert.Equal(t, []string{"Ada Lovelace"}, p.Authors)
	assert.Equal(t, "Deep learning results", p.Abstract)
	assert.Equal(t, paper.WithPDFLink, p.Availability, "pdf link outranks abstract")
	assert.Equal(t, []string{SourceOpenAlex}, p.SourceOrigin)
	assert.True(t, p.OpenAccess)
	assert.Equal(t, 9, p.Citations)
}

func TestArXivMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "relevance", r.URL.Query().Get("sortBy"), "citation sort falls back to relevance")
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <totalResults>1</totalResults>
  <entry>
    <id>http://arxiv.org/abs/2401.01234v1</id>
    <title>Sparse  Attention
      Revisited</title>
    <summary> Long abstract text. </summary>
    <published>2024-01-03T00:00:00Z</published>
    <author><name>Grace Hopper</name></author>
    <link href="http://arxiv.org/pdf/2401.01234v1" title="pdf" type="application/pdf"/>
    <category term="cs.LG"/>
  </entry>
</feed>`))
	}))
	defer server.Close()

	client := NewArXiv(server.URL, "mailto:dev@example.org", 1000)
	result, err := client.Search(context.Background(), paper.SearchOptions{Query: "attention", SortBy: paper.SortByCitations})
	require.NoError(t, err)
	require.Len(t, result.Papers, 1)

	p := result.Papers[0]
	assert.Equal(t, "arxiv:2401.01234v1", p.ID)
	assert.Equal(t, "Sparse Attention Revisited", p.Title)
	assert.Equal(t, 2024, p.Year)
	assert.Equal(t, "Long abstract text.", p.Abstract)
	assert.Equal(t, paper.WithPDFLink, p.Availability)
	assert.True(t, p.OpenAccess)
	assert.Equal(t, []string{"cs.LG"}, p.Subjects)
}

func TestArXivClientSideYearFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <totalResults>2</totalResults>
  <entry><id>http://arxiv.org/abs/1</id><title>Old</title><published>2010-01-01T00:00:00Z</published></entry>
  <entry><id>http://arxiv.org/abs/2</id><title>New</title><published>2023-01-01T00:00:00Z</published></entry>
</feed>`))
	}))
	defer server.Close()

	client := NewArXiv(server.URL, "", 1000)
	result, err := client.Search(context.Background(), paper.SearchOptions{Query: "q", YearFrom: 2020})
	require.NoError(t, err)
	require.Len(t, result.Papers, 1)
	assert.Equal(t, "New", result.Papers[0].Title)
}

func TestPubMedSearchAndSummaries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		w.Write([]byte(`{"esearchresult": {"count": "2", "idlist": ["111", "222"]}}`))
	})
	mux.HandleFunc("/esummary.fcgi", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": {
			"uids": ["111", "222"],
			"111": {"uid": "111", "title": "First paper.", "pubdate": "2021 Mar", "source": "Nature",
				"authors": [{"name": "Curie M"}],
				"articleids": [{"idtype": "doi", "value": "10.1/first"}]},
			"222": {"uid": "222", "title": "Second paper.", "pubdate": "2019 Jan", "source": "Cell", "authors": []}
		}}`))
	})
	mux.HandleFunc("/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle><MedlineCitation><PMID>111</PMID>
    <Article><Abstract><AbstractText>An abstract.</AbstractText></Abstract></Article>
  </MedlineCitation></PubmedArticle>
</PubmedArticleSet>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewPubMed(server.URL, "secret", "", 1000)
	result, err := client.Search(context.Background(), paper.SearchOptions{Query: "crispr"})
	require.NoError(t, err)
	require.Len(t, result.Papers, 2)
	assert.Equal(t, 2, result.TotalHits)

	first := result.Papers[0]
	assert.Equal(t, "doi:10.1/first", first.ID)
	assert.Equal(t, "First paper", first.Title)
	assert.Equal(t, "An abstract.", first.Abstract)
	assert.Equal(t, paper.WithAbstract, first.Availability)
	assert.Equal(t, "111", first.PMID)
	assert.Equal(t, 2021, first.Year)

	second := result.Papers[1]
	assert.Equal(t, "pubmed:222", second.ID)
	assert.Equal(t, paper.MetadataOnly, second.Availability)
}

func TestNon2xxIsClassifiedAndEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewCORE(server.URL, "bad-key", "", 1000)
	_, err := client.Search(context.Background(), paper.SearchOptions{Query: "q"})
	require.Error(t, err)
	assert.Equal(t, fault.KindAuth, fault.Classify(err))
	assert.False(t, client.IsAvailable(context.Background()))
}
