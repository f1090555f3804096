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

// Package compression turns a pile of papers into a bounded-token
// context bundle suitable as LLM input. Long abstracts go through a
// structured extraction call; short ones are truncated directly.
package compression

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/deepquest/pkg/federation"
	"github.com/kadirpekel/deepquest/pkg/llm"
	"github.com/kadirpekel/deepquest/pkg/paper"
)

// budgetStopFraction stops packing once this share of the total budget
// is consumed.
const budgetStopFraction = 0.9

// CompressedPaper is the per-paper record inside a bundle.
type CompressedPaper struct {
	PaperID     string   `json:"paper_id"`
	Title       string   `json:"title"`
	Authors     string   `json:"authors"`
	Year        int      `json:"year"`
	KeyFindings []string `json:"key_findings,omitempty"`
	Methodology string   `json:"methodology,omitempty"`
	Relevance   string   `json:"relevance,omitempty"`
	DOI         string   `json:"doi,omitempty"`
	CitationKey string   `json:"citation_key"`
}

// Bundle is the compressed context handed to the writing stage.
type Bundle struct {
	Papers              []CompressedPaper `json:"papers"`
	TotalTokensEstimate int               `json:"total_tokens_estimate"`
	CompressionRatio    float64           `json:"compression_ratio"`
	Summary             string            `json:"summary"`
}

// Config bounds the bundle.
type Config struct {
	MaxTokensPerPaper int
	MaxTotalTokens    int
	MinAbstractChars  int
	Parallelism       int
}

func (c *Config) setDefaults() {
	if c.MaxTokensPerPaper <= 0 {
		c.MaxTokensPerPaper = 200
	}
	if c.MaxTotalTokens <= 0 {
		c.MaxTotalTokens = 8000
	}
	if c.MinAbstractChars <= 0 {
		c.MinAbstractChars = 300
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 4
	}
}

// Service compresses papers against a token budget.
type Service struct {
	provider llm.Provider
	counter  *Counter
	cfg      Config
}

// NewService creates a compression service. The provider may be nil,
// in which case every paper falls back to abstract truncation.
func NewService(provider llm.Provider, cfg Config) *Service {
	cfg.setDefaults()
	return &Service{provider: provider, counter: NewCounter(), cfg: cfg}
}

// extraction is the structured shape requested from the model.
type extraction struct {
	KeyFindings []string `json:"key_findings" jsonschema:"required,description=Up to three key findings"`
	Methodology string   `json:"methodology,omitempty" jsonschema:"description=Study methodology in one sentence"`
	Relevance   string   `json:"relevance,omitempty" jsonschema:"description=Why the paper matters for the research question"`
}

var extractionSchema = llm.MustSchemaFor[extraction]("paper_extraction")

// Compress deduplicates and prioritises the papers for the query, then
// packs compressed records until the token budget runs out.
func (s *Service) Compress(ctx context.Context, query string, papers []*paper.Paper) (*Bundle, error) {
	deduped := dedupe(papers)
	ranked := federation.Prioritise(query, deduped, federation.DefaultWeights)

	originalTokens := 0
	for _, p := range ranked {
		originalTokens += s.counter.Count(p.Title + " " + p.Abstract)
	}

	// Select the prefix that can fit the budget before spending any
	// LLM calls on papers that would be dropped anyway.
	stopAt := int(float64(s.cfg.MaxTotalTokens) * budgetStopFraction)
	var selected []*paper.Paper
	budgeted := 0
	for _, p := range ranked {
		if budgeted >= stopAt {
			break
		}
		cost := s.counter.Count(p.Title + " " + p.Abstract)
		if cost > s.cfg.MaxTokensPerPaper {
			cost = s.cfg.MaxTokensPerPaper
		}
		selected = append(selected, p)
		budgeted += cost
	}

	records := make([]CompressedPaper, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for i, p := range selected {
		i, p := i, p
		g.Go(func() error {
			records[i] = s.compressOne(gctx, query, p)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bundle := &Bundle{}
	total := 0
	for _, rec := range records {
		cost := s.recordTokens(rec)
		if total+cost > s.cfg.MaxTotalTokens {
			break
		}
		bundle.Papers = append(bundle.Papers, rec)
		total += cost
		if total >= stopAt {
			break
		}
	}

	bundle.TotalTokensEstimate = total
	if originalTokens > 0 {
		bundle.CompressionRatio = float64(total) / float64(originalTokens)
	}
	bundle.Summary = summarize(bundle.Papers)
	return bundle, nil
}

// compressOne builds the record for a single paper. Extraction errors
// degrade to truncation, never to a failed bundle.
func (s *Service) compressOne(ctx context.Context, query string, p *paper.Paper) CompressedPaper {
	rec := CompressedPaper{
		PaperID:     p.ID,
		Title:       p.Title,
		Authors:     shortAuthors(p.Authors),
		Year:        p.Year,
		DOI:         p.DOI,
		CitationKey: CitationKey(p),
	}

	if s.provider != nil && len(p.Abstract) > s.cfg.MinAbstractChars {
		prompt := fmt.Sprintf(
			"Research question: %s\n\nPaper: %s (%d)\nAbstract:\n%s\n\nExtract up to three key findings, the methodology, and the paper's relevance to the research question.",
			query, p.Title, p.Year, p.Abstract,
		)
		raw, err := s.provider.GenerateStructured(ctx, llm.Request{Prompt: prompt, MaxTokens: s.cfg.MaxTokensPerPaper * 2}, extractionSchema)
		if err == nil {
			if extracted, derr := llm.Decode[extraction](raw); derr == nil {
				if len(extracted.KeyFindings) > 3 {
					extracted.KeyFindings = extracted.KeyFindings[:3]
				}
				rec.KeyFindings = extracted.KeyFindings
				rec.Methodology = extracted.Methodology
				rec.Relevance = extracted.Relevance
				return s.clampRecord(rec)
			}
		} else if ctx.Err() == nil {
			slog.Debug("paper extraction failed, truncating abstract", "paper", p.ID, "error", err)
		}
	}

	if p.Abstract != "" {
		rec.KeyFindings = []string{truncateToTokens(p.Abstract, s.cfg.MaxTokensPerPaper/2)}
	}
	return s.clampRecord(rec)
}

// clampRecord enforces the per-paper token budget by trimming the
// free-text fields.
func (s *Service) clampRecord(rec CompressedPaper) CompressedPaper {
	over := s.recordTokens(rec) - s.cfg.MaxTokensPerPaper
	if over <= 0 {
		return rec
	}
	if rec.Relevance != "" {
		rec.Relevance = truncateToTokens(rec.Relevance, maxInt(0, estimateTokens(rec.Relevance)-over))
		over = s.recordTokens(rec) - s.cfg.MaxTokensPerPaper
	}
	if over > 0 && rec.Methodology != "" {
		rec.Methodology = truncateToTokens(rec.Methodology, maxInt(0, estimateTokens(rec.Methodology)-over))
		over = s.recordTokens(rec) - s.cfg.MaxTokensPerPaper
	}
	for i := len(rec.KeyFindings) - 1; over > 0 && i >= 0; i-- {
		budget := maxInt(0, estimateTokens(rec.KeyFindings[i])-over)
		rec.KeyFindings[i] = truncateToTokens(rec.KeyFindings[i], budget)
		over = s.recordTokens(rec) - s.cfg.MaxTokensPerPaper
	}
	return rec
}

func (s *Service) recordTokens(rec CompressedPaper) int {
	var b strings.Builder
	b.WriteString(rec.Title)
	b.WriteString(rec.Authors)
	b.WriteString(rec.Methodology)
	b.WriteString(rec.Relevance)
	b.WriteString(rec.CitationKey)
	for _, f := range rec.KeyFindings {
		b.WriteString(f)
	}
	return estimateTokens(b.String())
}

// CitationKey derives a stable key like "Lovelace2022" from the first
// author's family name and the year.
func CitationKey(p *paper.Paper) string {
	var last string
	if len(p.Authors) > 0 {
		// Catalog mappers can pass through empty or non-Latin author
		// names; those fall back like the no-author case.
		if fields := strings.Fields(p.Authors[0]); len(fields) > 0 {
			last = strings.Map(func(r rune) rune {
				if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
					return r
				}
				return -1
			}, fields[len(fields)-1])
		}
	}
	if last == "" {
		if p.Year > 0 {
			return fmt.Sprintf("Anon%d", p.Year)
		}
		return p.ID
	}
	if p.Year > 0 {
		return fmt.Sprintf("%s%d", last, p.Year)
	}
	return last
}

func shortAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return authors[0]
	case 2:
		return authors[0] + " and " + authors[1]
	default:
		return authors[0] + " et al."
	}
}

func dedupe(papers []*paper.Paper) []*paper.Paper {
	seen := make(map[string]*paper.Paper)
	var order []string
	for _, p := range papers {
		key := paper.DedupKey(p)
		if existing, ok := seen[key]; ok {
			seen[key] = paper.Merge(existing, p)
			continue
		}
		seen[key] = p
		order = append(order, key)
	}
	out := make([]*paper.Paper, len(order))
	for i, key := range order {
		out[i] = seen[key]
	}
	return out
}

func summarize(papers []CompressedPaper) string {
	if len(papers) == 0 {
		return "no papers selected"
	}
	minYear, maxYear := 0, 0
	var titles []string
	for i, p := range papers {
		if p.Year > 0 && (minYear == 0 || p.Year < minYear) {
			minYear = p.Year
		}
		if p.Year > maxYear {
			maxYear = p.Year
		}
		if i < 5 {
			titles = append(titles, p.Title)
		}
	}
	span := ""
	if minYear > 0 {
		span = fmt.Sprintf(", %d-%d", minYear, maxYear)
	}
	return fmt.Sprintf("%d papers%s: %s", len(papers), span, strings.Join(titles, "; "))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
