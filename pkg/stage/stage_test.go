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

package stage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/federation"
	"github.com/kadirpekel/deepquest/pkg/llm"
	"github.com/kadirpekel/deepquest/pkg/memory"
	"github.com/kadirpekel/deepquest/pkg/paper"
	"github.com/kadirpekel/deepquest/pkg/stream"
)

func newEmitter() (*Emitter, *stream.Writer) {
	w := stream.NewWriter(512)
	return NewEmitter(w), w
}

func drain(w *stream.Writer) []stream.Frame {
	var out []stream.Frame
	for {
		select {
		case f := <-w.Frames():
			out = append(out, f)
		default:
			return out
		}
	}
}

func framesOfType(frames []stream.Frame, t stream.FrameType) []stream.Frame {
	var out []stream.Frame
	for _, f := range frames {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

func TestPlannerProducesPlanAndCard(t *testing.T) {
	fake := &llm.Fake{StructuredResponses: []json.RawMessage{json.RawMessage(`{
		"main_question": "How does sleep affect memory?",
		"sub_questions": ["REM role", "age effects"],
		"search_strategies": [{"keywords": ["sleep", "memory"], "year_from": 2015}],
		"expected_sections": ["Introduction", "Findings"]
	}`)}}

	em, w := newEmitter()
	mem := memory.New("How does sleep affect memory?")

	plan, cardID, err := (&Planner{Provider: fake}).Run(context.Background(), "How does sleep affect memory?", "", mem, em)
	require.NoError(t, err)
	require.NotEmpty(t, cardID)
	assert.Equal(t, []string{"REM role", "age effects"}, plan.SubQuestions)
	assert.Equal(t, plan, mem.Plan())

	frames := drain(w)
	cards := framesOfType(frames, stream.FramePlan)
	require.Len(t, cards, 1)
	assert.Equal(t, cardID, cards[0].Data.(stream.PlanCard).ID)

	completes := framesOfType(frames, stream.FrameAgentEventComplete)
	require.Len(t, completes, 1)
	assert.Equal(t, stream.StatusSuccess, completes[0].Data.(stream.AgentEventComplete).Status)
}

func TestPlannerRejectsEmptyPlan(t *testing.T) {
	fake := &llm.Fake{StructuredResponses: []json.RawMessage{json.RawMessage(`{"main_question": "q", "sub_questions": []}`)}}
	em, _ := newEmitter()

	_, _, err := (&Planner{Provider: fake}).Run(context.Background(), "q", "", memory.New("q"), em)
	require.Error(t, err)
	assert.Equal(t, fault.KindValidation, fault.Classify(err))
}

func TestPlannerFoldsFeedbackIntoPrompt(t *testing.T) {
	fake := &llm.Fake{StructuredResponses: []json.RawMessage{json.RawMessage(`{
		"main_question": "q", "sub_questions": ["a"], "search_strategies": [{"keywords": ["a"]}], "expected_sections": ["S"]
	}`)}}
	em, _ := newEmitter()

	_, _, err := (&Planner{Provider: fake}).Run(context.Background(), "q", "focus on clinical trials", memory.New("q"), em)
	require.NoError(t, err)
	require.Len(t, fake.StructuredCalls, 1)
	assert.Contains(t, fake.StructuredCalls[0].Prompt, "focus on clinical trials")
}

type fakeSearch struct {
	calls   []string
	papers  []*paper.Paper
	err     error
}

func (f *fakeSearch) Search(ctx context.Context, opts paper.SearchOptions, sessionID string) (*federation.Result, error) {
	f.calls = append(f.calls, opts.Query)
	if f.err != nil {
		return nil, f.err
	}
	return &federation.Result{
		Papers:          f.papers,
		TotalHits:       len(f.papers),
		SourceBreakdown: map[string]int{"openalex": len(f.papers)},
	}, nil
}

func TestSearcherSkipsRedundantQueries(t *testing.T) {
	svc := &fakeSearch{papers: []*paper.Paper{
		{ID: "doi:10.1/a", Title: "Sleep and memory consolidation", Abstract: "memory effects of sleep"},
	}}
	mem := memory.New("q")
	mem.AddSearchRound("sleep memory", "prior", nil, nil)

	plan := &memory.ResearchPlan{
		MainQuestion: "q",
		SubQuestions: []string{"memory consolidation during sleep"},
		SearchStrategies: []memory.SearchStrategy{
			{Keywords: []string{"Sleep", "Memory"}},      // redundant with prior round
			{Keywords: []string{"circadian", "rhythm"}},  // fresh
		},
	}

	em, w := newEmitter()
	found, err := (&Searcher{Service: svc, MaxRounds: 5}).Run(context.Background(), "s1", plan, mem, em)
	require.NoError(t, err)

	assert.Equal(t, []string{"circadian rhythm"}, svc.calls)
	assert.Equal(t, 1, found)

	frames := drain(w)
	assert.Len(t, framesOfType(frames, stream.FramePaperList), 1)
	assert.True(t, mem.IsTopicProcessed("memory consolidation during sleep", 1), "coverage tracked for the sub-question")
}

func TestSearcherHonorsRoundCap(t *testing.T) {
	svc := &fakeSearch{}
	plan := &memory.ResearchPlan{
		SubQuestions: []string{"x"},
		SearchStrategies: []memory.SearchStrategy{
			{Keywords: []string{"one"}},
			{Keywords: []string{"two"}},
			{Keywords: []string{"three"}},
		},
	}

	em, _ := newEmitter()
	_, err := (&Searcher{Service: svc, MaxRounds: 2}).Run(context.Background(), "s1", plan, memory.New("q"), em)
	require.NoError(t, err)
	assert.Len(t, svc.calls, 2)
}

func TestWriterStreamsAndRecordsCitations(t *testing.T) {
	fake := &llm.Fake{StreamResponses: [][]string{
		{"Sleep helps memory ", "[Lovelace2022]."},
		{"In conclusion, rest matters."},
	}}

	mem := memory.New("q")
	mem.AddPapers(&paper.Paper{ID: "doi:10.1/a", Title: "Sleep study", Authors: []string{"Ada Lovelace"}, Year: 2022})

	plan := &memory.ResearchPlan{MainQuestion: "q", ExpectedSections: []string{"Findings", "Conclusion"}}
	em, w := newEmitter()

	content, err := (&Writer{Provider: fake}).Run(context.Background(), plan, nil, "", mem, em)
	require.NoError(t, err)
	assert.Contains(t, content, "## Findings")
	assert.Contains(t, content, "[Lovelace2022]")

	cites := mem.Citations()
	require.Len(t, cites, 1)
	assert.Equal(t, "doi:10.1/a", cites[0].PaperID)

	deltas := framesOfType(drain(w), stream.FrameTextDelta)
	require.NotEmpty(t, deltas)
	firstID := deltas[0].Data.(stream.TextDelta).ID
	for _, d := range deltas {
		assert.Equal(t, firstID, d.Data.(stream.TextDelta).ID, "all deltas share the document id")
	}
}

func TestCriticDecisions(t *testing.T) {
	// Empty memory and an off-topic report zero the computed metrics,
	// so the blended score is half the model's.
	plan := &memory.ResearchPlan{MainQuestion: "q", SubQuestions: []string{"quantum decoherence mitigation"}}
	report := "Entirely unrelated text."

	cases := []struct {
		name     string
		score    string
		gate     float64
		expected Decision
	}{
		{"pass", "90", 40, DecisionPass},
		{"iterate", "90", 60, DecisionIterate},
		{"fail", "10", 60, DecisionFail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &llm.Fake{StructuredResponses: []json.RawMessage{
				json.RawMessage(`{"overall_score": ` + tc.score + `, "gaps_identified": ["missing recent work"]}`),
			}}
			em, _ := newEmitter()
			mem := memory.New("q")

			metrics, analysis, decision, err := (&Critic{Provider: fake, Gate: Gate{MinOverallScore: tc.gate}}).Run(context.Background(), plan, report, mem, em)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, decision)
			assert.NotNil(t, metrics)
			assert.Equal(t, []string{"missing recent work"}, analysis.GapsIdentified)
			assert.Len(t, mem.TrackedGaps(), 1)
		})
	}
}

func TestValidatorFlagsUnresolvedMarkers(t *testing.T) {
	mem := memory.New("q")
	mem.AddPapers(&paper.Paper{ID: "doi:10.1/a", Title: "Good", Authors: []string{"Jane Good"}, Year: 2020})

	em, _ := newEmitter()
	issues := (&Validator{}).Run("Cited [Good2020] and [Phantom1999].", mem, em)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "Phantom1999")

	issues = (&Validator{}).Run("Only [Good2020] here.", mem, em)
	assert.Empty(t, issues)
}

func TestCoverageHeuristic(t *testing.T) {
	papers := []*paper.Paper{
		{Title: "Quantum error correction with surface codes", Abstract: "decoherence analysis"},
	}
	score := coverage("surface codes decoherence analysis", papers)
	assert.Greater(t, score, 99.0)

	partial := coverage("How do surface codes mitigate decoherence?", papers)
	assert.InDelta(t, 75.0, partial, 0.1)

	assert.Zero(t, coverage("totally unrelated biology topic", papers))
	assert.Zero(t, coverage("a an it", papers))
}
