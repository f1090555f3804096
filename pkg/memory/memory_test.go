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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepquest/pkg/paper"
)

func somePapers(n int) []*paper.Paper {
	out := make([]*paper.Paper, n)
	for i := 0; i < n; i++ {
		out[i] = &paper.Paper{
			ID:    fmt.Sprintf("doi:10.1/p%d", i),
			Title: fmt.Sprintf("Study %d", i),
			Year:  2020 + i%3,
		}
	}
	return out
}

func TestSearchRoundKeepsOnlyNewPapers(t *testing.T) {
	m := New("test query")
	batch := somePapers(3)

	r1 := m.AddSearchRound("q one", "broad", batch, map[string]int{"openalex": 3})
	assert.Equal(t, 1, r1.Round)
	assert.Len(t, r1.Papers, 3)

	// Second round returns two known papers and one new one.
	r2 := m.AddSearchRound("q two", "narrow", append(somePapers(2), &paper.Paper{ID: "doi:10.1/new", Title: "New"}), nil)
	assert.Equal(t, 2, r2.Round)
	require.Len(t, r2.Papers, 1)
	assert.Equal(t, "doi:10.1/new", r2.Papers[0].ID)

	assert.Len(t, m.Papers(), 4)
	p, ok := m.GetPaper("doi:10.1/new")
	require.True(t, ok)
	assert.Equal(t, "New", p.Title)
}

func TestCitationClaimsAccumulate(t *testing.T) {
	m := New("q")
	m.RecordCitation("c1", "doi:10.1/p0", "claim one")
	m.RecordCitation("c1", "doi:10.1/p0", "claim two")
	m.RecordCitation("c2", "doi:10.1/p1", "other")

	cites := m.Citations()
	require.Len(t, cites, 2)
	assert.Equal(t, []string{"claim one", "claim two"}, cites[0].Claims)
	assert.Equal(t, "doi:10.1/p1", cites[1].PaperID)
}

func TestReportVersionsAreAppendOnly(t *testing.T) {
	m := New("q")
	assert.Nil(t, m.LatestReport())
	assert.Nil(t, m.PreviousReport())

	v1 := m.SaveReportVersion("draft one", nil, nil)
	v2 := m.SaveReportVersion("draft two", &QualityMetrics{OverallScore: 82}, nil)
	assert.Equal(t, 1, v1)
	assert.Equal(t, 2, v2)

	assert.Equal(t, "draft two", m.LatestReport().Content)
	assert.Equal(t, "draft one", m.PreviousReport().Content)
	assert.Len(t, m.ReportHistory(), 2)
	assert.Equal(t, 82.0, m.LatestReport().Metrics.OverallScore)
}

func TestLegacyGapSet(t *testing.T) {
	m := New("q")
	m.AddGap("no RCTs after 2020")
	m.AddGap("no RCTs after 2020") // duplicate ignored
	m.AddGap("missing non-English sources")
	assert.Len(t, m.OpenGaps(), 2)

	m.ResolveGap("no RCTs after 2020")
	assert.Equal(t, []string{"missing non-English sources"}, m.OpenGaps())
}

func TestTopicTrackingUnionsAndKeepsMaxCoverage(t *testing.T) {
	m := New("q")
	m.TrackProcessedTopic("Quantum Error Correction", "qec codes", []string{"p1"}, 40)
	m.TrackProcessedTopic("quantum error correction!", "surface codes", []string{"p1", "p2"}, 85)
	m.TrackProcessedTopic("quantum error correction", "older query", nil, 30)

	topics := m.ProcessedTopics()
	require.Len(t, topics, 1)
	assert.Equal(t, 85.0, topics[0].Coverage, "coverage never regresses")
	assert.ElementsMatch(t, []string{"qec codes", "surface codes", "older query"}, topics[0].SearchQueries)
	assert.ElementsMatch(t, []string{"p1", "p2"}, topics[0].PaperIDs)

	assert.True(t, m.IsTopicProcessed("QUANTUM error Correction", 80))
	assert.False(t, m.IsTopicProcessed("quantum error correction", 90))
}

func TestUncoveredTopicsSortedByCoverage(t *testing.T) {
	m := New("q")
	m.TrackProcessedTopic("alpha", "", nil, 90)
	m.TrackProcessedTopic("beta", "", nil, 20)
	m.TrackProcessedTopic("gamma", "", nil, 55)

	assert.Equal(t, []string{"beta", "gamma"}, m.UncoveredTopics(70))
}

func TestTrackedGapLifecycle(t *testing.T) {
	m := New("q")
	id := m.AddTrackedGap("no longitudinal data", "flagged by critic")
	require.NotEmpty(t, id)

	require.True(t, m.UpdateGapStatus(id, GapInProgress, "longitudinal cohort study", nil))
	require.True(t, m.UpdateGapStatus(id, GapAddressed, "cohort follow-up", []string{"doi:10.1/x"}))

	gaps := m.TrackedGaps()
	require.Len(t, gaps, 1)
	g := gaps[0]
	assert.Equal(t, GapAddressed, g.Status)
	assert.Equal(t, []string{"longitudinal cohort study", "cohort follow-up"}, g.SearchesAttempted)
	assert.Equal(t, []string{"doi:10.1/x"}, g.PapersFound)
	assert.Equal(t, 1, g.AddressedIteration)

	assert.False(t, m.UpdateGapStatus("missing", GapOpen, "", nil))
}

func TestSearchRedundancy(t *testing.T) {
	m := New("q")
	m.AddSearchRound("quantum error correction", "broad", nil, nil)

	// Exact normalised match, punctuation and case ignored.
	assert.True(t, m.IsSearchRedundant("Quantum Error Correction!"))
	// Token order does not matter.
	assert.True(t, m.IsSearchRedundant("correction error quantum"))
	assert.False(t, m.IsSearchRedundant("topological qubits"))

	// A well-covered topic makes its significant tokens redundant.
	m.TrackProcessedTopic("superconducting qubits", "sc qubits", nil, 95)
	assert.True(t, m.IsSearchRedundant("qubits readout fidelity"))
	// Short tokens never trigger the topic rule.
	assert.False(t, m.IsSearchRedundant("sc flux noise"))
}

func TestIterationIsMonotonic(t *testing.T) {
	m := New("q")
	assert.Equal(t, 1, m.Iteration())
	assert.Equal(t, 2, m.IncrementIteration())
	assert.Equal(t, 3, m.IncrementIteration())
}

func TestExportImportRoundTrip(t *testing.T) {
	m := New("effects of sleep on memory consolidation")
	m.SetPlan(&ResearchPlan{
		MainQuestion:     "effects of sleep on memory consolidation",
		SubQuestions:     []string{"REM vs slow-wave", "age effects"},
		SearchStrategies: []SearchStrategy{{Keywords: []string{"sleep", "memory"}, YearFrom: 2015}},
		ExpectedSections: []string{"Introduction", "Findings"},
	})
	m.AddSearchRound("sleep memory consolidation", "broad", somePapers(3), map[string]int{"pubmed": 3})
	m.RecordCitation("c1", "doi:10.1/p0", "sleep improves recall")
	m.SaveReportVersion("draft", &QualityMetrics{OverallScore: 77}, &CriticAnalysis{OverallScore: 77, GapsIdentified: []string{"small samples"}})
	m.AddInsight("slow-wave sleep dominates consolidation")
	m.AddGap("animal studies only")
	m.TrackProcessedTopic("REM vs slow-wave", "rem sleep memory", []string{"doi:10.1/p0"}, 60)
	gapID := m.AddTrackedGap("small samples")
	m.UpdateGapStatus(gapID, GapInProgress, "large cohort sleep study", nil)
	m.IncrementIteration()

	data, err := m.Export()
	require.NoError(t, err)

	restored := New("")
	require.NoError(t, restored.Import(data))

	assert.Equal(t, m.Query(), restored.Query())
	assert.Equal(t, m.Plan(), restored.Plan())
	assert.Equal(t, len(m.SearchRounds()), len(restored.SearchRounds()))
	assert.Equal(t, m.Citations(), restored.Citations())
	assert.Equal(t, m.ReportHistory(), restored.ReportHistory())
	assert.Equal(t, m.Insights(), restored.Insights())
	assert.Equal(t, m.OpenGaps(), restored.OpenGaps())
	assert.Equal(t, m.ProcessedTopics(), restored.ProcessedTopics())
	assert.Equal(t, m.TrackedGaps(), restored.TrackedGaps())
	assert.Equal(t, m.Iteration(), restored.Iteration())
	assert.Equal(t, m.GetStats().Papers, restored.GetStats().Papers)

	for _, p := range m.Papers() {
		got, ok := restored.GetPaper(p.ID)
		require.True(t, ok)
		assert.Equal(t, p, got)
	}
}

func TestRelevantContextRespectsBudget(t *testing.T) {
	m := New("short question")
	for _, p := range somePapers(20) {
		p.Abstract = "An abstract that takes a fair number of tokens to include in context."
		m.AddPapers(p)
	}

	full := m.GetRelevantContext(100000)
	small := m.GetRelevantContext(30)
	assert.Greater(t, len(full), len(small))
	assert.LessOrEqual(t, (len(small)+3)/4, 30)
	assert.Contains(t, full, "Research question: short question")
}
