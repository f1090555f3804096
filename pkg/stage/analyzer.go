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
	"strings"

	"github.com/kadirpekel/deepquest/pkg/llm"
	"github.com/kadirpekel/deepquest/pkg/memory"
	"github.com/kadirpekel/deepquest/pkg/sources"
	"github.com/kadirpekel/deepquest/pkg/stream"
)

const analyzerSystem = "You are a research analyst. Read the collected papers against the sub-questions and distill concrete insights and the knowledge gaps the literature leaves open."

type analysisShape struct {
	Insights []string `json:"insights" jsonschema:"required,description=Concrete findings supported by the papers"`
	Gaps     []string `json:"gaps,omitempty" jsonschema:"description=Questions the collected literature does not answer"`
}

var analysisSchema = llm.MustSchemaFor[analysisShape]("paper_analysis")

// maxEnriched caps how many records get a full-text fetch per run.
const maxEnriched = 3

// Analyzer distills insights and candidate gaps from collected papers.
type Analyzer struct {
	Provider llm.Provider
	// Enricher, when set, upgrades a few open-access records to full
	// text before analysis.
	Enricher *sources.FullTextEnricher
	// ContextTokens bounds how much memory context goes into the
	// analysis prompt.
	ContextTokens int
}

// Run analyzes memory's papers and folds insights and gaps back in.
func (a *Analyzer) Run(ctx context.Context, plan *memory.ResearchPlan, mem *memory.ResearchMemory, em *Emitter) error {
	ev := em.StartEvent(stream.StageAnalyzing, "Analyzing papers", "分析论文")

	if a.Enricher != nil {
		enriched := 0
		for _, p := range mem.Papers() {
			if enriched >= maxEnriched || ctx.Err() != nil {
				break
			}
			if p.PDFURL == "" || !p.OpenAccess {
				continue
			}
			if err := a.Enricher.Enrich(ctx, p); err != nil {
				slog.Debug("full-text enrichment failed", "paper", p.ID, "error", err)
				continue
			}
			enriched++
		}
		if enriched > 0 {
			em.Log(fmt.Sprintf("Fetched full text for %d papers", enriched), "📄")
		}
	}

	budget := a.ContextTokens
	if budget <= 0 {
		budget = 6000
	}
	prompt := fmt.Sprintf("Sub-questions:\n- %s\n\nCollected literature:\n%s",
		strings.Join(plan.SubQuestions, "\n- "),
		mem.GetRelevantContext(budget),
	)

	raw, err := a.Provider.GenerateStructured(ctx, llm.Request{
		System:    analyzerSystem,
		Prompt:    prompt,
		MaxTokens: 2000,
	}, analysisSchema)
	if err != nil {
		em.CompleteEvent(ev, stream.StatusError, nil)
		return err
	}
	analysis, err := llm.Decode[analysisShape](raw)
	if err != nil {
		em.CompleteEvent(ev, stream.StatusError, nil)
		return err
	}

	for _, insight := range analysis.Insights {
		mem.AddInsight(insight)
	}
	for _, gap := range analysis.Gaps {
		mem.AddGap(gap)
	}

	em.CompleteEvent(ev, stream.StatusSuccess, map[string]any{
		"insights": len(analysis.Insights),
		"gaps":     len(analysis.Gaps),
	})
	return nil
}
