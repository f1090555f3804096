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
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/kadirpekel/deepquest/pkg/llm"
	"github.com/kadirpekel/deepquest/pkg/memory"
	"github.com/kadirpekel/deepquest/pkg/stream"
)

const criticSystem = "You are a demanding research report reviewer. Score the report 0-100 and name concrete gaps and improvements. Be specific; vague criticism is useless."

// Decision is the critic's quality-gate verdict.
type Decision string

const (
	DecisionPass    Decision = "pass"
	DecisionIterate Decision = "iterate"
	DecisionFail    Decision = "fail"
)

// failMargin is how far below the gate a score must fall before the
// verdict is fail rather than iterate.
const failMargin = 25.0

type criticShape struct {
	OverallScore           float64           `json:"overall_score" jsonschema:"required,description=Overall report quality 0-100"`
	GapsIdentified         []string          `json:"gaps_identified,omitempty"`
	ImprovementSuggestions []string          `json:"improvement_suggestions,omitempty"`
	PerSectionNotes        map[string]string `json:"per_section_notes,omitempty"`
}

var criticSchema = llm.MustSchemaFor[criticShape]("report_review")

// Gate is the quality threshold the critic compares against.
type Gate struct {
	MinOverallScore float64
}

// Critic scores report drafts and decides whether to iterate.
type Critic struct {
	Provider llm.Provider
	Gate     Gate
}

// Run reviews the draft, folds identified gaps into memory as tracked
// gaps, and returns the verdict.
func (c *Critic) Run(ctx context.Context, plan *memory.ResearchPlan, report string, mem *memory.ResearchMemory, em *Emitter) (*memory.QualityMetrics, *memory.CriticAnalysis, Decision, error) {
	ev := em.StartEvent(stream.StageReviewing, "Reviewing report quality", "评审报告质量")

	metrics := c.computeMetrics(plan, report, mem)

	analysis := &memory.CriticAnalysis{OverallScore: metrics.OverallScore}
	raw, err := c.Provider.GenerateStructured(ctx, llm.Request{
		System:    criticSystem,
		Prompt:    c.prompt(plan, report),
		MaxTokens: 2000,
	}, criticSchema)
	if err != nil {
		if ctx.Err() != nil {
			em.CompleteEvent(ev, stream.StatusError, nil)
			return nil, nil, DecisionFail, err
		}
		// The computed metrics still allow a verdict.
		slog.Warn("critic review call failed, using computed metrics only", "error", err)
	} else if review, derr := llm.Decode[criticShape](raw); derr == nil {
		analysis.GapsIdentified = review.GapsIdentified
		analysis.ImprovementSuggestions = review.ImprovementSuggestions
		analysis.PerSectionNotes = review.PerSectionNotes
		if review.OverallScore > 0 {
			// Blend the model's judgement with the computed metrics.
			metrics.OverallScore = (review.OverallScore + metrics.OverallScore) / 2
			analysis.OverallScore = metrics.OverallScore
		}
	}

	for _, gap := range analysis.GapsIdentified {
		mem.AddTrackedGap(gap, fmt.Sprintf("iteration %d review", mem.Iteration()))
	}

	decision := DecisionPass
	switch {
	case metrics.OverallScore >= c.Gate.MinOverallScore:
		decision = DecisionPass
	case metrics.OverallScore >= c.Gate.MinOverallScore-failMargin:
		decision = DecisionIterate
	default:
		decision = DecisionFail
	}

	em.CompleteEvent(ev, stream.StatusSuccess, map[string]any{
		"overall_score": math.Round(metrics.OverallScore),
		"decision":      string(decision),
		"gaps":          len(analysis.GapsIdentified),
	})
	return metrics, analysis, decision, nil
}

func (c *Critic) prompt(plan *memory.ResearchPlan, report string) string {
	return fmt.Sprintf("Research question: %s\n\nSub-questions that must be covered:\n- %s\n\nReport draft:\n%s",
		plan.MainQuestion, strings.Join(plan.SubQuestions, "\n- "), report)
}

// computeMetrics derives the mechanical quality numbers from the
// draft and memory; the model only contributes the holistic score.
func (c *Critic) computeMetrics(plan *memory.ResearchPlan, report string, mem *memory.ResearchMemory) *memory.QualityMetrics {
	words := len(strings.Fields(report))
	citations := mem.Citations()

	density := 0.0
	if words > 0 {
		density = float64(len(citations)) / (float64(words) / 500.0)
	}

	papers := mem.Papers()
	sources := make(map[string]bool)
	openAccess := 0
	recencySum := 0.0
	year := time.Now().Year()
	for _, p := range papers {
		for _, origin := range p.SourceOrigin {
			sources[origin] = true
		}
		if p.OpenAccess {
			openAccess++
		}
		if p.Year > 0 {
			recencySum += math.Max(0, 1-float64(year-p.Year)/20)
		}
	}

	recency := 0.0
	oaPct := 0.0
	if len(papers) > 0 {
		recency = 100 * recencySum / float64(len(papers))
		oaPct = 100 * float64(openAccess) / float64(len(papers))
	}

	lower := strings.ToLower(report)
	subCoverage := make(map[string]float64, len(plan.SubQuestions))
	coverageSum := 0.0
	for _, sub := range plan.SubQuestions {
		score := coverage(sub, papers)
		// A sub-question mentioned in the report counts as addressed
		// even when keyword coverage in the corpus is thin.
		if tokensPresent(lower, sub) {
			score = math.Max(score, 60)
		}
		subCoverage[sub] = score
		coverageSum += score
	}
	coverageScore := 0.0
	if len(plan.SubQuestions) > 0 {
		coverageScore = coverageSum / float64(len(plan.SubQuestions))
	}

	overall := 0.4*coverageScore + 0.2*recency + 0.2*math.Min(100, density*25) + 0.2*math.Min(100, float64(len(sources))*20)

	return &memory.QualityMetrics{
		OverallScore:         overall,
		CoverageScore:        coverageScore,
		CitationDensity:      density,
		RecencyScore:         recency,
		UniqueSourcesUsed:    len(sources),
		OpenAccessPercentage: oaPct,
		SubQuestionCoverage:  subCoverage,
	}
}

// tokensPresent reports whether most significant tokens of the
// sub-question appear in the report text.
func tokensPresent(lowerReport, subQuestion string) bool {
	total, found := 0, 0
	for _, tok := range strings.Fields(strings.ToLower(subQuestion)) {
		tok = strings.Trim(tok, ".,?!:;\"'()")
		if len(tok) <= 3 {
			continue
		}
		total++
		if strings.Contains(lowerReport, tok) {
			found++
		}
	}
	return total > 0 && float64(found)/float64(total) >= 0.5
}
