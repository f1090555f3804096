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
	"fmt"
	"net/url"
	"sort"

	"github.com/kadirpekel/deepquest/pkg/paper"
)

const s2Fields = "title,abstract,year,authors,venue,citationCount,isOpenAccess,openAccessPdf,externalIds,fieldsOfStudy"

// SemanticScholar queries the Semantic Scholar Graph API. An API key
// raises the shared-pool rate limit.
type SemanticScholar struct {
	base
}

// NewSemanticScholar creates a Semantic Scholar client.
func NewSemanticScholar(baseURL, apiKey, contact string, ratePerSecond float64) *SemanticScholar {
	var headers map[string]string
	if apiKey != "" {
		headers = map[string]string{"x-api-key": apiKey}
	}
	return &SemanticScholar{base: newBase(SourceSemanticScholar, baseURL, contact, ratePerSecond, headers)}
}

func (c *SemanticScholar) Name() string { return SourceSemanticScholar }

type s2Paper struct {
	PaperID       string   `json:"paperId"`
	Title         string   `json:"title"`
	Abstract      string   `json:"abstract"`
	Year          int      `json:"year"`
	Venue         string   `json:"venue"`
	CitationCount int      `json:"citationCount"`
	IsOpenAccess  bool     `json:"isOpenAccess"`
	FieldsOfStudy []string `json:"fieldsOfStudy"`
	OpenAccessPdf struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
	ExternalIds struct {
		DOI    string `json:"DOI"`
		ArXiv  string `json:"ArXiv"`
		PubMed string `json:"PubMed"`
	} `json:"externalIds"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

type s2SearchResponse struct {
	Total int       `json:"total"`
	Data  []s2Paper `json:"data"`
}

// Search implements Client. The search endpoint is relevance-ranked
// only, so citations/date ordering is applied client-side.
func (c *SemanticScholar) Search(ctx context.Context, opts paper.SearchOptions) (*paper.SearchResult, error) {
	q := url.Values{}
	q.Set("query", opts.Query)
	q.Set("fields", s2Fields)
	if opts.MaxResults > 0 {
		q.Set("limit", fmt.Sprint(opts.MaxResults))
	}
	if opts.YearFrom > 0 || opts.YearTo > 0 {
		from, to := "", ""
		if opts.YearFrom > 0 {
			from = fmt.Sprint(opts.YearFrom)
		}
		if opts.YearTo > 0 {
			to = fmt.Sprint(opts.YearTo)
		}
		q.Set("year", from+"-"+to)
	}
	if opts.OpenAccessOnly {
		q.Set("openAccessPdf", "")
	}

	var resp s2SearchResponse
	if err := c.getJSON(ctx, c.baseURL+"/paper/search?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	papers := make([]*paper.Paper, 0, len(resp.Data))
	for i := range resp.Data {
		papers = append(papers, c.mapPaper(&resp.Data[i]))
	}

	switch opts.SortBy {
	case paper.SortByCitations:
		sort.SliceStable(papers, func(i, j int) bool { return papers[i].Citations > papers[j].Citations })
	case paper.SortByDate:
		sort.SliceStable(papers, func(i, j int) bool { return papers[i].Year > papers[j].Year })
	}

	return &paper.SearchResult{Papers: papers, TotalHits: resp.Total, Source: SourceSemanticScholar}, nil
}

// GetPaper implements Client; id may be an S2 paper id, DOI or
// "arXiv:<id>".
func (c *SemanticScholar) GetPaper(ctx context.Context, id string) (*paper.Paper, error) {
	u := c.baseURL + "/paper/" + url.PathEscape(id) + "?fields=" + url.QueryEscape(s2Fields)
	var raw s2Paper
	if err := c.getJSON(ctx, u, &raw); err != nil {
		return nil, err
	}
	return c.mapPaper(&raw), nil
}

// IsAvailable implements Client.
func (c *SemanticScholar) IsAvailable(ctx context.Context) bool {
	var resp s2SearchResponse
	return c.getJSON(ctx, c.baseURL+"/paper/search?query=test&limit=1&fields=title", &resp) == nil
}

func (c *SemanticScholar) mapPaper(raw *s2Paper) *paper.Paper {
	authors := make([]string, 0, len(raw.Authors))
	for _, a := range raw.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}

	p := &paper.Paper{
		ID:         SourceSemanticScholar + ":" + raw.PaperID,
		Title:      raw.Title,
		Authors:    authors,
		Year:       raw.Year,
		Venue:      raw.Venue,
		DOI:        paper.NormalizeDOI(raw.ExternalIds.DOI),
		ArxivID:    raw.ExternalIds.ArXiv,
		PMID:       raw.ExternalIds.PubMed,
		Abstract:   raw.Abstract,
		PDFURL:     raw.OpenAccessPdf.URL,
		Subjects:   raw.FieldsOfStudy,
		Citations:  raw.CitationCount,
		OpenAccess: raw.IsOpenAccess,
	}
	return finalize(p, SourceSemanticScholar)
}
