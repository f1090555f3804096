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
	"strings"

	"github.com/kadirpekel/deepquest/pkg/paper"
)

// CORE queries the CORE v3 aggregator. A bearer API key is required
// for anything beyond trivial rates.
type CORE struct {
	base
}

// NewCORE creates a CORE client.
func NewCORE(baseURL, apiKey, contact string, ratePerSecond float64) *CORE {
	var headers map[string]string
	if apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + apiKey}
	}
	return &CORE{base: newBase(SourceCORE, baseURL, contact, ratePerSecond, headers)}
}

func (c *CORE) Name() string { return SourceCORE }

type coreWork struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	Abstract      string   `json:"abstract"`
	YearPublished int      `json:"yearPublished"`
	DownloadURL   string   `json:"downloadUrl"`
	DOI           string   `json:"doi"`
	Publisher     string   `json:"publisher"`
	FieldOfStudy  string   `json:"fieldOfStudy"`
	CitationCount int      `json:"citationCount"`
	Authors       []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

type coreSearchResponse struct {
	TotalHits int        `json:"totalHits"`
	Results   []coreWork `json:"results"`
}

// Search implements Client. CORE's query language carries the year
// filter; ordering beyond relevance is applied client-side.
func (c *CORE) Search(ctx context.Context, opts paper.SearchOptions) (*paper.SearchResult, error) {
	query := opts.Query
	if opts.YearFrom > 0 {
		query += fmt.Sprintf(" AND yearPublished>=%d", opts.YearFrom)
	}
	if opts.YearTo > 0 {
		query += fmt.Sprintf(" AND yearPublished<=%d", opts.YearTo)
	}

	q := url.Values{}
	q.Set("q", query)
	if opts.MaxResults > 0 {
		q.Set("limit", fmt.Sprint(opts.MaxResults))
	}

	var resp coreSearchResponse
	if err := c.getJSON(ctx, c.baseURL+"/search/works?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	papers := make([]*paper.Paper, 0, len(resp.Results))
	for i := range resp.Results {
		papers = append(papers, c.mapWork(&resp.Results[i]))
	}

	switch opts.SortBy {
	case paper.SortByCitations:
		sort.SliceStable(papers, func(i, j int) bool { return papers[i].Citations > papers[j].Citations })
	case paper.SortByDate:
		sort.SliceStable(papers, func(i, j int) bool { return papers[i].Year > papers[j].Year })
	}

	return &paper.SearchResult{Papers: papers, TotalHits: resp.TotalHits, Source: SourceCORE}, nil
}

// GetPaper implements Client; id is a CORE work id.
func (c *CORE) GetPaper(ctx context.Context, id string) (*paper.Paper, error) {
	var work coreWork
	if err := c.getJSON(ctx, c.baseURL+"/works/"+url.PathEscape(id), &work); err != nil {
		return nil, err
	}
	return c.mapWork(&work), nil
}

// IsAvailable implements Client.
func (c *CORE) IsAvailable(ctx context.Context) bool {
	var resp coreSearchResponse
	return c.getJSON(ctx, c.baseURL+"/search/works?q=test&limit=1", &resp) == nil
}

func (c *CORE) mapWork(work *coreWork) *paper.Paper {
	authors := make([]string, 0, len(work.Authors))
	for _, a := range work.Authors {
		authors = append(authors, a.Name)
	}

	var subjects []string
	if work.FieldOfStudy != "" {
		subjects = []string{work.FieldOfStudy}
	}

	p := &paper.Paper{
		ID:         SourceCORE + ":" + fmt.Sprint(work.ID),
		Title:      strings.TrimSpace(work.Title),
		Authors:    authors,
		Year:       work.YearPublished,
		Journal:    work.Publisher,
		DOI:        paper.NormalizeDOI(work.DOI),
		Abstract:   strings.TrimSpace(work.Abstract),
		PDFURL:     work.DownloadURL,
		Subjects:   subjects,
		Citations:  work.CitationCount,
		OpenAccess: work.DownloadURL != "",
	}
	return finalize(p, SourceCORE)
}
