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

// Package memory holds the per-session research working set: the plan,
// search rounds, collected papers, citations, report versions, processed
// topics and tracked gaps. One ResearchMemory is exclusively owned by
// its session; the mutex only guards incidental reads from the
// transport (stats, export) against the coordinator's writes.
package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/deepquest/pkg/paper"
)

// redundancyCoverage is the topic coverage above which a repeated
// significant search token is considered already answered.
const redundancyCoverage = 80.0

// ResearchMemory is the mutable working set of one research session.
type ResearchMemory struct {
	mu sync.RWMutex

	query      string
	plan       *ResearchPlan
	rounds     []SearchRound
	papers     map[string]*paper.Paper
	paperOrder []string

	citations     map[string]*Citation
	citationOrder []string

	reports []ReportVersion

	insights []string
	openGaps []string

	topics map[string]*ProcessedTopic

	trackedGaps map[string]*TrackedGap
	gapOrder    []string

	iteration  int
	createdAt  time.Time
	lastUpdate time.Time
}

// New creates an empty working set for the given research query.
func New(query string) *ResearchMemory {
	now := time.Now()
	return &ResearchMemory{
		query:       query,
		papers:      make(map[string]*paper.Paper),
		citations:   make(map[string]*Citation),
		topics:      make(map[string]*ProcessedTopic),
		trackedGaps: make(map[string]*TrackedGap),
		iteration:   1,
		createdAt:   now,
		lastUpdate:  now,
	}
}

// Query returns the research question this memory serves.
func (m *ResearchMemory) Query() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.query
}

func (m *ResearchMemory) touch() { m.lastUpdate = time.Now() }

// SetPlan installs the research plan.
func (m *ResearchMemory) SetPlan(plan *ResearchPlan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plan = plan
	m.touch()
}

// Plan returns the current plan, or nil before planning.
func (m *ResearchMemory) Plan() *ResearchPlan {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plan
}

// AddSearchRound appends a round and inserts the papers it found. The
// stored round keeps only the records that were new to memory.
func (m *ResearchMemory) AddSearchRound(query, strategy string, papers []*paper.Paper, breakdown map[string]int) SearchRound {
	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := make([]*paper.Paper, 0, len(papers))
	for _, p := range papers {
		if m.insertPaperLocked(p) {
			fresh = append(fresh, p)
		}
	}

	round := SearchRound{
		Round:           len(m.rounds) + 1,
		Query:           query,
		Strategy:        strategy,
		Papers:          fresh,
		SourceBreakdown: breakdown,
		Timestamp:       time.Now(),
	}
	m.rounds = append(m.rounds, round)
	m.touch()
	return round
}

// SearchRounds returns all rounds in order.
func (m *ResearchMemory) SearchRounds() []SearchRound {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SearchRound, len(m.rounds))
	copy(out, m.rounds)
	return out
}

// AddPapers inserts papers not yet known and reports how many were new.
func (m *ResearchMemory) AddPapers(papers ...*paper.Paper) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	added := 0
	for _, p := range papers {
		if m.insertPaperLocked(p) {
			added++
		}
	}
	if added > 0 {
		m.touch()
	}
	return added
}

func (m *ResearchMemory) insertPaperLocked(p *paper.Paper) bool {
	if p == nil {
		return false
	}
	id := p.ID
	if id == "" {
		id = paper.CanonicalID(p)
		p.ID = id
	}
	if _, ok := m.papers[id]; ok {
		return false
	}
	m.papers[id] = p
	m.paperOrder = append(m.paperOrder, id)
	return true
}

// GetPaper looks a paper up by id.
func (m *ResearchMemory) GetPaper(id string) (*paper.Paper, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.papers[id]
	return p, ok
}

// Papers returns every collected paper in insertion order.
func (m *ResearchMemory) Papers() []*paper.Paper {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*paper.Paper, 0, len(m.paperOrder))
	for _, id := range m.paperOrder {
		out = append(out, m.papers[id])
	}
	return out
}

// RecordCitation attributes a claim to a paper under a citation id.
// Repeated calls with the same id accumulate claims.
func (m *ResearchMemory) RecordCitation(citationID, paperID, claim string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.citations[citationID]
	if !ok {
		c = &Citation{ID: citationID, PaperID: paperID}
		m.citations[citationID] = c
		m.citationOrder = append(m.citationOrder, citationID)
	}
	if claim != "" {
		c.Claims = append(c.Claims, claim)
	}
	m.touch()
}

// Citations returns all citations in first-recorded order.
func (m *ResearchMemory) Citations() []*Citation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Citation, 0, len(m.citationOrder))
	for _, id := range m.citationOrder {
		out = append(out, m.citations[id])
	}
	return out
}

// SaveReportVersion appends a draft and returns its version number.
func (m *ResearchMemory) SaveReportVersion(content string, metrics *QualityMetrics, analysis *CriticAnalysis) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	version := len(m.reports) + 1
	m.reports = append(m.reports, ReportVersion{
		Version:   version,
		Content:   content,
		Metrics:   metrics,
		Analysis:  analysis,
		CreatedAt: time.Now(),
	})
	m.touch()
	return version
}

// LatestReport returns the newest draft, or nil.
func (m *ResearchMemory) LatestReport() *ReportVersion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.reports) == 0 {
		return nil
	}
	r := m.reports[len(m.reports)-1]
	return &r
}

// PreviousReport returns the draft before the latest, or nil.
func (m *ResearchMemory) PreviousReport() *ReportVersion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.reports) < 2 {
		return nil
	}
	r := m.reports[len(m.reports)-2]
	return &r
}

// ReportHistory returns every draft in version order.
func (m *ResearchMemory) ReportHistory() []ReportVersion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ReportVersion, len(m.reports))
	copy(out, m.reports)
	return out
}

// AddInsight records a distilled insight.
func (m *ResearchMemory) AddInsight(insight string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insights = append(m.insights, insight)
	m.touch()
}

// Insights returns recorded insights in order.
func (m *ResearchMemory) Insights() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.insights))
	copy(out, m.insights)
	return out
}

// AddGap records a knowledge gap in the legacy string set.
func (m *ResearchMemory) AddGap(gap string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.openGaps {
		if g == gap {
			return
		}
	}
	m.openGaps = append(m.openGaps, gap)
	m.touch()
}

// ResolveGap removes a gap from the legacy set.
func (m *ResearchMemory) ResolveGap(gap string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, g := range m.openGaps {
		if g == gap {
			m.openGaps = append(m.openGaps[:i], m.openGaps[i+1:]...)
			m.touch()
			return
		}
	}
}

// OpenGaps returns the legacy gap set in insertion order.
func (m *ResearchMemory) OpenGaps() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.openGaps))
	copy(out, m.openGaps)
	return out
}

// TrackProcessedTopic records coverage for a topic, unioning queries
// and paper ids across calls and keeping the maximum coverage seen.
func (m *ResearchMemory) TrackProcessedTopic(topic, query string, paperIDs []string, coverage float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalizeTopic(topic)
	if key == "" {
		return
	}
	t, ok := m.topics[key]
	if !ok {
		t = &ProcessedTopic{Topic: topic}
		m.topics[key] = t
	}
	if query != "" {
		t.SearchQueries = unionStrings(t.SearchQueries, []string{query})
	}
	t.PaperIDs = unionStrings(t.PaperIDs, paperIDs)
	if coverage > t.Coverage {
		t.Coverage = coverage
	}
	t.Iteration = m.iteration
	t.Timestamp = time.Now()
	m.touch()
}

// IsTopicProcessed reports whether the topic has reached minCoverage.
func (m *ResearchMemory) IsTopicProcessed(topic string, minCoverage float64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.topics[normalizeTopic(topic)]
	return ok && t.Coverage >= minCoverage
}

// UncoveredTopics returns the topics still below the threshold, sorted
// by ascending coverage.
func (m *ResearchMemory) UncoveredTopics(threshold float64) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type pair struct {
		topic    string
		coverage float64
	}
	var under []pair
	for _, t := range m.topics {
		if t.Coverage < threshold {
			under = append(under, pair{t.Topic, t.Coverage})
		}
	}
	sort.Slice(under, func(i, j int) bool {
		if under[i].coverage != under[j].coverage {
			return under[i].coverage < under[j].coverage
		}
		return under[i].topic < under[j].topic
	})
	out := make([]string, len(under))
	for i, p := range under {
		out[i] = p.topic
	}
	return out
}

// ProcessedTopics returns a snapshot of all tracked topics.
func (m *ResearchMemory) ProcessedTopics() []*ProcessedTopic {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ProcessedTopic, 0, len(m.topics))
	for _, t := range m.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// AddTrackedGap opens a structured gap and returns its id.
func (m *ResearchMemory) AddTrackedGap(description string, notes ...string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := &TrackedGap{
		ID:          uuid.NewString(),
		Description: description,
		Status:      GapOpen,
		Notes:       strings.Join(notes, "; "),
		Iteration:   m.iteration,
	}
	m.trackedGaps[g.ID] = g
	m.gapOrder = append(m.gapOrder, g.ID)
	m.touch()
	return g.ID
}

// UpdateGapStatus moves a tracked gap through its lifecycle, recording
// the search that was attempted and any papers it surfaced.
func (m *ResearchMemory) UpdateGapStatus(id string, status GapStatus, searchQuery string, papersFound []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.trackedGaps[id]
	if !ok {
		return false
	}
	g.Status = status
	if searchQuery != "" {
		g.SearchesAttempted = unionStrings(g.SearchesAttempted, []string{searchQuery})
	}
	g.PapersFound = unionStrings(g.PapersFound, papersFound)
	if status == GapAddressed {
		g.AddressedIteration = m.iteration
	}
	m.touch()
	return true
}

// TrackedGaps returns structured gaps in creation order.
func (m *ResearchMemory) TrackedGaps() []*TrackedGap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*TrackedGap, 0, len(m.gapOrder))
	for _, id := range m.gapOrder {
		out = append(out, m.trackedGaps[id])
	}
	return out
}

// IsSearchRedundant reports whether running the query again would add
// nothing: either the exact normalised query already ran in a prior
// round, or any significant token belongs to a topic that is already
// well covered.
func (m *ResearchMemory) IsSearchRedundant(query string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	normalized := paper.NormalizeQuery(query)
	if normalized == "" {
		return false
	}
	for _, r := range m.rounds {
		if paper.NormalizeQuery(r.Query) == normalized {
			return true
		}
	}

	covered := make(map[string]bool)
	for key, t := range m.topics {
		if t.Coverage >= redundancyCoverage {
			for _, tok := range strings.Fields(key) {
				covered[tok] = true
			}
		}
	}
	if len(covered) == 0 {
		return false
	}
	for _, tok := range strings.Fields(normalized) {
		if len(tok) > 3 && covered[tok] {
			return true
		}
	}
	return false
}

// IncrementIteration bumps the iteration counter and returns it.
func (m *ResearchMemory) IncrementIteration() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iteration++
	m.touch()
	return m.iteration
}

// Iteration returns the current iteration, starting at 1.
func (m *ResearchMemory) Iteration() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.iteration
}

// GetStats returns a census of the working set.
func (m *ResearchMemory) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Papers:          len(m.papers),
		SearchRounds:    len(m.rounds),
		Citations:       len(m.citations),
		ReportVersions:  len(m.reports),
		Insights:        len(m.insights),
		OpenGaps:        len(m.openGaps),
		TrackedGaps:     len(m.trackedGaps),
		ProcessedTopics: len(m.topics),
		Iteration:       m.iteration,
		LastUpdate:      m.lastUpdate,
	}
}

// ContextSummary is a one-paragraph state line for log output and
// checkpoint descriptions.
func (m *ResearchMemory) ContextSummary() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("iteration %d: %d papers across %d search rounds, %d citations, %d report versions, %d open gaps",
		m.iteration, len(m.papers), len(m.rounds), len(m.citations), len(m.reports), len(m.openGaps))
}

// GetRelevantContext renders the plan, insights and collected papers
// as prompt context, stopping at the token budget.
func (m *ResearchMemory) GetRelevantContext(maxTokens int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if maxTokens <= 0 {
		return ""
	}
	var b strings.Builder
	used := 0
	write := func(s string) bool {
		cost := estimateTokens(s)
		if used+cost > maxTokens {
			return false
		}
		b.WriteString(s)
		used += cost
		return true
	}

	write("Research question: " + m.query + "\n")
	if m.plan != nil {
		for _, q := range m.plan.SubQuestions {
			if !write("- " + q + "\n") {
				break
			}
		}
	}
	for _, insight := range m.insights {
		if !write("Insight: " + insight + "\n") {
			break
		}
	}
	for _, id := range m.paperOrder {
		p := m.papers[id]
		line := fmt.Sprintf("[%s] %s (%d)", p.ID, p.Title, p.Year)
		if p.Abstract != "" {
			line += ": " + p.Abstract
		}
		if !write(line + "\n") {
			break
		}
	}
	return b.String()
}

// snapshot is the serialised form of the working set.
type snapshot struct {
	Query       string                     `json:"query"`
	Plan        *ResearchPlan              `json:"plan,omitempty"`
	Rounds      []SearchRound              `json:"rounds,omitempty"`
	PaperOrder  []string                   `json:"paper_order,omitempty"`
	Papers      map[string]*paper.Paper    `json:"papers,omitempty"`
	CiteOrder   []string                   `json:"citation_order,omitempty"`
	Citations   map[string]*Citation       `json:"citations,omitempty"`
	Reports     []ReportVersion            `json:"reports,omitempty"`
	Insights    []string                   `json:"insights,omitempty"`
	OpenGaps    []string                   `json:"open_gaps,omitempty"`
	Topics      map[string]*ProcessedTopic `json:"topics,omitempty"`
	GapOrder    []string                   `json:"gap_order,omitempty"`
	TrackedGaps map[string]*TrackedGap     `json:"tracked_gaps,omitempty"`
	Iteration   int                        `json:"iteration"`
	CreatedAt   time.Time                  `json:"created_at"`
	LastUpdate  time.Time                  `json:"last_update"`
}

// Export serialises the full state for out-of-band rehydration.
func (m *ResearchMemory) Export() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(snapshot{
		Query:       m.query,
		Plan:        m.plan,
		Rounds:      m.rounds,
		PaperOrder:  m.paperOrder,
		Papers:      m.papers,
		CiteOrder:   m.citationOrder,
		Citations:   m.citations,
		Reports:     m.reports,
		Insights:    m.insights,
		OpenGaps:    m.openGaps,
		Topics:      m.topics,
		GapOrder:    m.gapOrder,
		TrackedGaps: m.trackedGaps,
		Iteration:   m.iteration,
		CreatedAt:   m.createdAt,
		LastUpdate:  m.lastUpdate,
	})
}

// Import replaces the working set with a previously exported state.
func (m *ResearchMemory) Import(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("importing research memory: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.query = s.Query
	m.plan = s.Plan
	m.rounds = s.Rounds
	m.paperOrder = s.PaperOrder
	m.papers = s.Papers
	if m.papers == nil {
		m.papers = make(map[string]*paper.Paper)
	}
	m.citationOrder = s.CiteOrder
	m.citations = s.Citations
	if m.citations == nil {
		m.citations = make(map[string]*Citation)
	}
	m.reports = s.Reports
	m.insights = s.Insights
	m.openGaps = s.OpenGaps
	m.topics = s.Topics
	if m.topics == nil {
		m.topics = make(map[string]*ProcessedTopic)
	}
	m.gapOrder = s.GapOrder
	m.trackedGaps = s.TrackedGaps
	if m.trackedGaps == nil {
		m.trackedGaps = make(map[string]*TrackedGap)
	}
	if s.Iteration > 0 {
		m.iteration = s.Iteration
	} else {
		m.iteration = 1
	}
	m.createdAt = s.CreatedAt
	m.lastUpdate = s.LastUpdate
	return nil
}

// normalizeTopic lowercases and strips a topic down to its
// alphanumeric tokens.
func normalizeTopic(topic string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(topic) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func unionStrings(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range extra {
		if s != "" && !seen[s] {
			existing = append(existing, s)
			seen[s] = true
		}
	}
	return existing
}

// estimateTokens approximates token usage as ceil(chars/4).
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
