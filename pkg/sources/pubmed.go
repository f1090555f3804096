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
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/paper"
)

// PubMed queries NCBI E-utilities: esearch for ids, esummary for
// metadata, efetch for abstracts. NCBI allows 3 req/s anonymously and
// 10 req/s with an API key; the constructor caller raises the rate.
type PubMed struct {
	base
	apiKey string
}

// NewPubMed creates a PubMed client.
func NewPubMed(baseURL, apiKey, contact string, ratePerSecond float64) *PubMed {
	return &PubMed{
		base:   newBase(SourcePubMed, baseURL, contact, ratePerSecond, nil),
		apiKey: apiKey,
	}
}

func (c *PubMed) Name() string { return SourcePubMed }

type pubmedSearchResponse struct {
	ESearchResult struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedSummary struct {
	UID     string `json:"uid"`
	Title   string `json:"title"`
	PubDate string `json:"pubdate"`
	Source  string `json:"source"`
	Volume  string `json:"volume"`
	Issue   string `json:"issue"`
	Pages   string `json:"pages"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ArticleIDs []struct {
		IDType string `json:"idtype"`
		Value  string `json:"value"`
	} `json:"articleids"`
}

func (c *PubMed) withKey(q url.Values) url.Values {
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	return q
}

// Search implements Client: esearch for PMIDs, esummary for the
// records, efetch for abstracts.
func (c *PubMed) Search(ctx context.Context, opts paper.SearchOptions) (*paper.SearchResult, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", opts.Query)
	q.Set("retmode", "json")
	if opts.MaxResults > 0 {
		q.Set("retmax", fmt.Sprint(opts.MaxResults))
	}
	if opts.YearFrom > 0 || opts.YearTo > 0 {
		q.Set("datetype", "pdat")
		if opts.YearFrom > 0 {
			q.Set("mindate", fmt.Sprint(opts.YearFrom))
		}
		if opts.YearTo > 0 {
			q.Set("maxdate", fmt.Sprint(opts.YearTo))
		}
	}
	if opts.SortBy == paper.SortByDate {
		q.Set("sort", "pub_date")
	}
	// Citation sort is not offered by E-utilities; relevance is used.

	var search pubmedSearchResponse
	if err := c.getJSON(ctx, c.baseURL+"/esearch.fcgi?"+c.withKey(q).Encode(), &search); err != nil {
		return nil, err
	}

	total, _ := strconv.Atoi(search.ESearchResult.Count)
	ids := search.ESearchResult.IDList
	if len(ids) == 0 {
		return &paper.SearchResult{Source: SourcePubMed, TotalHits: total}, nil
	}

	papers, err := c.fetchSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	c.attachAbstracts(ctx, ids, papers)

	return &paper.SearchResult{Papers: papers, TotalHits: total, Source: SourcePubMed}, nil
}

func (c *PubMed) fetchSummaries(ctx context.Context, ids []string) ([]*paper.Paper, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(ids, ","))
	q.Set("retmode", "json")

	body, err := c.get(ctx, c.baseURL+"/esummary.fcgi?"+c.withKey(q).Encode(), "application/json")
	if err != nil {
		return nil, err
	}

	// The result object maps each uid to its summary alongside a
	// "uids" array, so it is decoded in two steps.
	var envelope struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fault.Wrap(fault.KindTransient, err, "pubmed returned malformed JSON")
	}

	papers := make([]*paper.Paper, 0, len(ids))
	for _, id := range ids {
		raw, ok := envelope.Result[id]
		if !ok {
			continue
		}
		var summary pubmedSummary
		if err := json.Unmarshal(raw, &summary); err != nil {
			continue
		}
		papers = append(papers, c.mapSummary(&summary))
	}
	return papers, nil
}

type pubmedFetchResponse struct {
	XMLName  xml.Name `xml:"PubmedArticleSet"`
	Articles []struct {
		MedlineCitation struct {
			PMID    string `xml:"PMID"`
			Article struct {
				Abstract struct {
					Texts []string `xml:"AbstractText"`
				} `xml:"Abstract"`
			} `xml:"Article"`
		} `xml:"MedlineCitation"`
	} `xml:"PubmedArticle"`
}

// attachAbstracts upgrades records in place with efetch abstracts.
// Failures leave the summaries as metadata-only records.
func (c *PubMed) attachAbstracts(ctx context.Context, ids []string, papers []*paper.Paper) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(ids, ","))
	q.Set("retmode", "xml")

	body, err := c.get(ctx, c.baseURL+"/efetch.fcgi?"+c.withKey(q).Encode(), "application/xml")
	if err != nil {
		return
	}
	var fetched pubmedFetchResponse
	if err := xml.Unmarshal(body, &fetched); err != nil {
		return
	}

	abstracts := make(map[string]string, len(fetched.Articles))
	for _, article := range fetched.Articles {
		text := strings.TrimSpace(strings.Join(article.MedlineCitation.Article.Abstract.Texts, " "))
		if text != "" {
			abstracts[article.MedlineCitation.PMID] = text
		}
	}
	for _, p := range papers {
		if text, ok := abstracts[p.PMID]; ok {
			p.Abstract = text
			if p.Availability < paper.WithAbstract {
				p.Availability = paper.WithAbstract
			}
		}
	}
}

// GetPaper implements Client; id is a PMID.
func (c *PubMed) GetPaper(ctx context.Context, id string) (*paper.Paper, error) {
	papers, err := c.fetchSummaries(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, fault.New(fault.KindValidation, "pmid %s not found", id)
	}
	c.attachAbstracts(ctx, []string{id}, papers)
	return papers[0], nil
}

// IsAvailable implements Client.
func (c *PubMed) IsAvailable(ctx context.Context) bool {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", "test")
	q.Set("retmax", "1")
	q.Set("retmode", "json")
	var resp pubmedSearchResponse
	return c.getJSON(ctx, c.baseURL+"/esearch.fcgi?"+c.withKey(q).Encode(), &resp) == nil
}

func (c *PubMed) mapSummary(summary *pubmedSummary) *paper.Paper {
	authors := make([]string, 0, len(summary.Authors))
	for _, a := range summary.Authors {
		authors = append(authors, a.Name)
	}

	var doi string
	for _, aid := range summary.ArticleIDs {
		if aid.IDType == "doi" {
			doi = aid.Value
			break
		}
	}

	year := 0
	if fields := strings.Fields(summary.PubDate); len(fields) > 0 {
		year, _ = strconv.Atoi(fields[0])
	}

	p := &paper.Paper{
		ID:      SourcePubMed + ":" + summary.UID,
		Title:   strings.TrimSuffix(summary.Title, "."),
		Authors: authors,
		Year:    year,
		Journal: summary.Source,
		Volume:  summary.Volume,
		Issue:   summary.Issue,
		Pages:   summary.Pages,
		DOI:     paper.NormalizeDOI(doi),
		PMID:    summary.UID,
	}
	return finalize(p, SourcePubMed)
}
