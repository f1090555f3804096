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

package memory

import (
	"time"

	"github.com/kadirpekel/deepquest/pkg/paper"
)

// SearchStrategy is one planned angle of attack for the literature search.
type SearchStrategy struct {
	Description      string   `json:"description,omitempty"`
	Keywords         []string `json:"keywords"`
	YearFrom         int      `json:"year_from,omitempty"`
	YearTo           int      `json:"year_to,omitempty"`
	PreferredSources []string `json:"preferred_sources,omitempty"`
}

// ResearchPlan decomposes the user's query into answerable pieces.
type ResearchPlan struct {
	MainQuestion     string           `json:"main_question"`
	SubQuestions     []string         `json:"sub_questions"`
	SearchStrategies []SearchStrategy `json:"search_strategies"`
	ExpectedSections []string         `json:"expected_sections"`
}

// SearchRound records one federated search pass. Papers holds only the
// records that were new to memory when the round landed.
type SearchRound struct {
	Round           int            `json:"round"`
	Query           string         `json:"query"`
	Strategy        string         `json:"strategy,omitempty"`
	Papers          []*paper.Paper `json:"papers"`
	SourceBreakdown map[string]int `json:"source_breakdown,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Citation links an in-text reference to a paper; claims accumulate.
type Citation struct {
	ID        string   `json:"id"`
	PaperID   string   `json:"paper_id"`
	InTextRef string   `json:"in_text_ref,omitempty"`
	Claims    []string `json:"claims"`
}

// QualityMetrics scores a report version. All scores run 0-100 except
// CitationDensity, which is citations per 500 words.
type QualityMetrics struct {
	OverallScore         float64            `json:"overall_score"`
	CoverageScore        float64            `json:"coverage_score"`
	CitationDensity      float64            `json:"citation_density"`
	RecencyScore         float64            `json:"recency_score"`
	UniqueSourcesUsed    int                `json:"unique_sources_used"`
	OpenAccessPercentage float64            `json:"open_access_percentage"`
	SubQuestionCoverage  map[string]float64 `json:"sub_question_coverage,omitempty"`
}

// CriticAnalysis is the critic's qualitative read of a report version.
type CriticAnalysis struct {
	OverallScore           float64           `json:"overall_score"`
	GapsIdentified         []string          `json:"gaps_identified,omitempty"`
	ImprovementSuggestions []string          `json:"improvement_suggestions,omitempty"`
	PerSectionNotes        map[string]string `json:"per_section_notes,omitempty"`
}

// ReportVersion is one append-only draft of the report.
type ReportVersion struct {
	Version   int             `json:"version"`
	Content   string          `json:"content"`
	Metrics   *QualityMetrics `json:"metrics,omitempty"`
	Analysis  *CriticAnalysis `json:"analysis,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ProcessedTopic tracks how well a sub-question has been covered so far.
type ProcessedTopic struct {
	Topic         string    `json:"topic"`
	SearchQueries []string  `json:"search_queries"`
	PaperIDs      []string  `json:"paper_ids"`
	Coverage      float64   `json:"coverage"`
	Iteration     int       `json:"iteration"`
	Timestamp     time.Time `json:"timestamp"`
}

// GapStatus is the lifecycle of a tracked knowledge gap.
type GapStatus string

const (
	GapOpen       GapStatus = "open"
	GapInProgress GapStatus = "in_progress"
	GapAddressed  GapStatus = "addressed"
	GapWontFix    GapStatus = "wont_fix"
)

// TrackedGap is a structured knowledge gap with search attribution.
type TrackedGap struct {
	ID                 string    `json:"id"`
	Description        string    `json:"description"`
	Status             GapStatus `json:"status"`
	Notes              string    `json:"notes,omitempty"`
	SearchesAttempted  []string  `json:"searches_attempted,omitempty"`
	PapersFound        []string  `json:"papers_found,omitempty"`
	Iteration          int       `json:"iteration"`
	AddressedIteration int       `json:"addressed_iteration,omitempty"`
}

// Stats is a point-in-time census of the working set.
type Stats struct {
	Papers          int       `json:"papers"`
	SearchRounds    int       `json:"search_rounds"`
	Citations       int       `json:"citations"`
	ReportVersions  int       `json:"report_versions"`
	Insights        int       `json:"insights"`
	OpenGaps        int       `json:"open_gaps"`
	TrackedGaps     int       `json:"tracked_gaps"`
	ProcessedTopics int       `json:"processed_topics"`
	Iteration       int       `json:"iteration"`
	LastUpdate      time.Time `json:"last_update"`
}
