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
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/paper"
)

// ArXiv queries the arXiv Atom API. arXiv asks for no more than one
// request every three seconds, which the interval gate enforces.
type ArXiv struct {
	base
}

// NewArXiv creates an arXiv client.
func NewArXiv(baseURL, contact string, ratePerSecond float64) *ArXiv {
	return &ArXiv{base: newBase(SourceArXiv, baseURL, contact, ratePerSecond, nil)}
}

func (c *ArXiv) Name() string { return SourceArXiv }

type arxivFeed struct {
	XMLName      xml.Name     `xml:"feed"`
	TotalResults int          `xml:"totalResults"`
	Entries      []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	DOI       string `xml:"doi"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Rel   string `xml:"rel,attr"`
		Type  string `xml:"type,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
	JournalRef string `xml:"journal_ref"`
}

// Search implements Client. Year filtering is not supported by the API
// and is applied client-side.
func (c *ArXiv) Search(ctx context.Context, opts paper.SearchOptions) (*paper.SearchResult, error) {
	q := url.Values{}
	q.Set("search_query", "all:"+opts.Query)
	q.Set("start", "0")
	if opts.MaxResults > 0 {
		q.Set("max_results", fmt.Sprint(opts.MaxResults))
	}
	switch opts.SortBy {
	case paper.SortByDate:
		q.Set("sortBy", "submittedDate")
		q.Set("sortOrder", "descending")
	default:
		// Citations are not tracked by arXiv; relevance is the fallback.
		q.Set("sortBy", "relevance")
	}

	feed, err := c.fetchFeed(ctx, c.baseURL+"/query?"+q.Encode())
	if err != nil {
		return nil, err
	}

	papers := make([]*paper.Paper, 0, len(feed.Entries))
	for i := range feed.Entries {
		papers = append(papers, c.mapEntry(&feed.Entries[i]))
	}
	papers = paper.FilterByYear(papers, opts.YearFrom, opts.YearTo)

	return &paper.SearchResult{Papers: papers, TotalHits: feed.TotalResults, Source: SourceArXiv}, nil
}

// GetPaper implements Client; id is a bare arXiv id such as 2401.01234.
func (c *ArXiv) GetPaper(ctx context.Context, id string) (*paper.Paper, error) {
	feed, err := c.fetchFeed(ctx, c.baseURL+"/query?id_list="+url.QueryEscape(id))
	if err != nil {
		return nil, err
	}
	if len(feed.Entries) == 0 {
		return nil, fault.New(fault.KindValidation, "arxiv id %s not found", id)
	}
	return c.mapEntry(&feed.Entries[0]), nil
}

// IsAvailable implements Client.
func (c *ArXiv) IsAvailable(ctx context.Context) bool {
	_, err := c.fetchFeed(ctx, c.baseURL+"/query?search_query=all:test&max_results=1")
	return err == nil
}

func (c *ArXiv) fetchFeed(ctx context.Context, url string) (*arxivFeed, error) {
	body, err := c.get(ctx, url, "application/atom+xml")
	if err != nil {
		return nil, err
	}
	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fault.Wrap(fault.KindTransient, err, "arxiv returned malformed Atom")
	}
	return &feed, nil
}

func (c *ArXiv) mapEntry(entry *arxivEntry) *paper.Paper {
	arxivID := strings.TrimPrefix(entry.ID, "http://arxiv.org/abs/")
	arxivID = strings.TrimPrefix(arxivID, "https://arxiv.org/abs/")

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		authors = append(authors, strings.TrimSpace(a.Name))
	}

	var subjects []string
	for _, cat := range entry.Categories {
		subjects = append(subjects, cat.Term)
	}

	var pdfURL string
	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			pdfURL = link.Href
			break
		}
	}

	year := 0
	if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
		year = t.Year()
	}

	p := &paper.Paper{
		ID:         SourceArXiv + ":" + arxivID,
		Title:      strings.Join(strings.Fields(entry.Title), " "),
		Authors:    authors,
		Year:       year,
		Journal:    entry.JournalRef,
		DOI:        paper.NormalizeDOI(entry.DOI),
		ArxivID:    arxivID,
		Abstract:   strings.TrimSpace(entry.Summary),
		PDFURL:     pdfURL,
		Subjects:   subjects,
		OpenAccess: true,
	}
	return finalize(p, SourceArXiv)
}
