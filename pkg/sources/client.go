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

// Package sources implements the bibliographic catalog clients behind
// the federator: OpenAlex, Semantic Scholar, arXiv, PubMed and CORE.
//
// Every client translates the catalog's native record shape into the
// canonical paper.Paper, throttles its own requests through a
// single-permit interval gate, and degrades to an empty result on
// failure since the federator tolerates individual source outages.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/httpclient"
	"github.com/kadirpekel/deepquest/pkg/observability"
	"github.com/kadirpekel/deepquest/pkg/paper"
)

// Source names as they appear in SourceOrigin and breakdowns.
const (
	SourceOpenAlex        = "openalex"
	SourceSemanticScholar = "semantic_scholar"
	SourceArXiv           = "arxiv"
	SourcePubMed          = "pubmed"
	SourceCORE            = "core"
)

// Client is the contract every catalog client satisfies.
type Client interface {
	// Name returns the stable source name.
	Name() string

	// IsAvailable probes the catalog; false on any error.
	IsAvailable(ctx context.Context) bool

	// Search runs one query against the catalog.
	Search(ctx context.Context, opts paper.SearchOptions) (*paper.SearchResult, error)

	// GetPaper fetches a single record by the catalog's native id.
	GetPaper(ctx context.Context, id string) (*paper.Paper, error)
}

// gate is a single-permit interval limiter: consecutive requests are
// spaced by at least the configured interval. Waiting is cancellable.
type gate struct {
	mu       sync.Mutex
	next     time.Time
	interval time.Duration
}

func newGate(ratePerSecond float64) *gate {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &gate{interval: time.Duration(float64(time.Second) / ratePerSecond)}
}

// wait reserves the next slot and sleeps until it opens.
func (g *gate) wait(ctx context.Context) error {
	g.mu.Lock()
	now := time.Now()
	if g.next.Before(now) {
		g.next = now
	}
	sleep := g.next.Sub(now)
	g.next = g.next.Add(g.interval)
	g.mu.Unlock()

	if sleep <= 0 {
		return nil
	}
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// base carries the pieces every catalog client shares.
type base struct {
	name    string
	baseURL string
	http    *httpclient.Client
	gate    *gate
	headers map[string]string
}

func newBase(name, baseURL, contact string, ratePerSecond float64, headers map[string]string) base {
	ua := fmt.Sprintf("deepquest/0.1 (%s)", contact)
	if contact == "" {
		ua = "deepquest/0.1"
	}
	return base{
		name:    name,
		baseURL: baseURL,
		http:    httpclient.New(httpclient.WithUserAgent(ua)),
		gate:    newGate(ratePerSecond),
		headers: headers,
	}
}

// getJSON throttles, issues a GET and decodes a JSON body into out.
// Non-2xx statuses are classified and returned as errors.
func (b *base) getJSON(ctx context.Context, url string, out any) error {
	body, err := b.get(ctx, url, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fault.Wrap(fault.KindTransient, err, "%s returned malformed JSON", b.name)
	}
	return nil
}

func (b *base) get(ctx context.Context, url, accept string) ([]byte, error) {
	if err := b.gate.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "%s request", b.name)
	}
	req.Header.Set("Accept", accept)
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		observability.SourceRequests.WithLabelValues(b.name, "error").Inc()
		return nil, fault.Wrap(fault.KindNetwork, err, "%s request failed", b.name)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.SourceRequests.WithLabelValues(b.name, "error").Inc()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fault.FromStatus(resp.StatusCode, b.name)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.SourceRequests.WithLabelValues(b.name, "error").Inc()
		return nil, fault.Wrap(fault.KindNetwork, err, "%s body read failed", b.name)
	}
	observability.SourceRequests.WithLabelValues(b.name, "ok").Inc()
	return body, nil
}

// emptyResult logs a source failure and returns the empty result the
// federator expects from a degraded source.
func emptyResult(name string, err error) *paper.SearchResult {
	slog.Warn("source search failed", "source", name, "error", err)
	return &paper.SearchResult{Source: name}
}

// classify fills availability from the content a raw record carries.
func classify(p *paper.Paper) {
	switch {
	case p.FullText != "":
		p.Availability = paper.WithFullText
	case p.PDFURL != "":
		p.Availability = paper.WithPDFLink
	case p.Abstract != "":
		p.Availability = paper.WithAbstract
	default:
		p.Availability = paper.MetadataOnly
	}
}

// finalize stamps provenance, availability and the canonical id.
func finalize(p *paper.Paper, source string) *paper.Paper {
	p.SourceOrigin = []string{source}
	classify(p)
	p.ID = paper.CanonicalID(p)
	return p
}
