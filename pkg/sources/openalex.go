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
	"strings"

	"github.com/kadirpekel/deepquest/pkg/paper"
)

// OpenAlex queries api.openalex.org. Supplying an email joins the
// "polite pool" via the mailto parameter and unlocks a higher rate.
type OpenAlex struct {
	base
	email string
}

// NewOpenAlex creates an OpenAlex client.
func NewOpenAlex(baseURL, email, contact string, ratePerSecond float64) *OpenAlex {
	if contact == "" {
		contact = "mailto:" + email
	}
	return &OpenAlex{
		base:  newBase(SourceOpenAlex, baseURL, contact, ratePerSecond, nil),
		email: email,
	}
}

func (c *OpenAlex) Name() string { return SourceOpenAlex }

type openAlexWork struct {
	ID                    string           `json:"id"`
	DOI                   string           `json:"doi"`
	Title                 string           `json:"title"`
	DisplayName           string           `json:"display_name"`
	PublicationYear       int              `json:"publication_year"`
	CitedByCount          int              `json:"cited_by_count"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Authorships           []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	PrimaryLocation struct {
		Source struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
		PDFURL string `json:"pdf_url"`
	} `json:"primary_location"`
	OpenAccess struct {
		IsOA  bool   `json:"is_oa"`
		OAURL string `json:"oa_url"`
	} `json:"open_access"`
	Concepts []struct {
		DisplayName string  `json:"display_name"`
		Score       float64 `json:"score"`
	} `json:"concepts"`
	Biblio struct {
		Volume    string `json:"volume"`
		Issue     string `json:"issue"`
		FirstPage string `json:"first_page"`
		LastPage  string `json:"last_page"`
	} `json:"biblio"`
}

type openAlexResponse struct {
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
	Results []openAlexWork `json:"results"`
}

func (c *OpenAlex) searchURL(opts paper.SearchOptions) string {
	q := url.Values{}
	q.Set("search", opts.Query)
	if opts.MaxResults > 0 {
		q.Set("per-page", fmt.Sprint(opts.MaxResults))
	}
	if c.email != "" {
		q.Set("mailto", c.email)
	}

	var filters []string
	if opts.YearFrom > 0 {
		filters = append(filters, fmt.Sprintf("from_publication_date:%d-01-01", opts.YearFrom))
	}
	if opts.YearTo > 0 {
		filters = append(filters, fmt.Sprintf("to_publication_date:%d-12-31", opts.YearTo))
	}
	if opts.OpenAccessOnly {
		filters = append(filters, "is_oa:true")
	}
	if len(filters) > 0 {
		q.Set("filter", strings.Join(filters, ","))
	}

	switch opts.SortBy {
	case paper.SortByCitations:
		q.Set("sort", "cited_by_count:desc")
	case paper.SortByDate:
		q.Set("sort", "publication_date:desc")
	}
	return c.baseURL + "/works?" + q.Encode()
}

// Search implements Client.
func (c *OpenAlex) Search(ctx context.Context, opts paper.SearchOptions) (*paper.SearchResult, error) {
	var resp openAlexResponse
	if err := c.getJSON(ctx, c.searchURL(opts), &resp); err != nil {
		return nil, err
	}

	papers := make([]*paper.Paper, 0, len(resp.Results))
	for i := range resp.Results {
		papers = append(papers, c.mapWork(&resp.Results[i]))
	}
	return &paper.SearchResult{Papers: papers, TotalHits: resp.Meta.Count, Source: SourceOpenAlex}, nil
}

// GetPaper implements Client; id is an OpenAlex work id (W...).
func (c *OpenAlex) GetPaper(ctx context.Context, id string) (*paper.Paper, error) {
	u := c.baseURL + "/works/" + url.PathEscape(id)
	if c.email != "" {
		u += "?mailto=" + url.QueryEscape(c.email)
	}
	var work openAlexWork
	if err := c.getJSON(ctx, u, &work); err != nil {
		return nil, err
	}
	return c.mapWork(&work), nil
}

// IsAvailable implements Client.
func (c *OpenAlex) IsAvailable(ctx context.Context) bool {
	var resp openAlexResponse
	u := c.baseURL + "/works?per-page=1"
	if c.email != "" {
		u += "&mailto=" + url.QueryEscape(c.email)
	}
	return c.getJSON(ctx, u, &resp) == nil
}

func (c *OpenAlex) mapWork(w *openAlexWork) *paper.Paper {
	title := w.Title
	if title == "" {
		title = w.DisplayName
	}

	authors := make([]string, 0, len(w.Authorships))
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			authors = append(authors, a.Author.DisplayName)
		}
	}

	var subjects []string
	for _, concept := range w.Concepts {
		if concept.Score >= 0.3 {
			subjects = append(subjects, concept.DisplayName)
		}
	}

	pdfURL := w.PrimaryLocation.PDFURL
	if pdfURL == "" && w.OpenAccess.IsOA {
		pdfURL = w.OpenAccess.OAURL
	}

	pages := w.Biblio.FirstPage
	if w.Biblio.LastPage != "" && w.Biblio.LastPage != w.Biblio.FirstPage {
		pages = w.Biblio.FirstPage + "-" + w.Biblio.LastPage
	}

	p := &paper.Paper{
		ID:         SourceOpenAlex + ":" + strings.TrimPrefix(w.ID, "https://openalex.org/"),
		Title:      title,
		Authors:    authors,
		Year:       w.PublicationYear,
		Journal:    w.PrimaryLocation.Source.DisplayName,
		Volume:     w.Biblio.Volume,
		Issue:      w.Biblio.Issue,
		Pages:      pages,
		DOI:        paper.NormalizeDOI(w.DOI),
		Abstract:   reconstructAbstract(w.AbstractInvertedIndex),
		PDFURL:     pdfURL,
		Subjects:   subjects,
		Citations:  w.CitedByCount,
		OpenAccess: w.OpenAccess.IsOA,
	}
	return finalize(p, SourceOpenAlex)
}

// reconstructAbstract rebuilds plain text from OpenAlex's inverted
// index (word -> positions).
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	maxPos := 0
	for _, positions := range index {
		for _, pos := range positions {
			if pos > maxPos {
				maxPos = pos
			}
		}
	}
	words := make([]string, maxPos+1)
	for word, positions := range index {
		for _, pos := range positions {
			if pos >= 0 && pos < len(words) {
				words[pos] = word
			}
		}
	}
	out := words[:0]
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}
