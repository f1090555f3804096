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

	"github.com/google/uuid"

	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/llm"
	"github.com/kadirpekel/deepquest/pkg/memory"
	"github.com/kadirpekel/deepquest/pkg/stream"
)

const plannerSystem = "You are a research planner. Decompose the research question into focused sub-questions, concrete literature search strategies, and the sections the final report should have."

type planShape struct {
	MainQuestion     string `json:"main_question" jsonschema:"required,description=The research question being answered"`
	SubQuestions     []string `json:"sub_questions" jsonschema:"required,description=Three to six focused sub-questions"`
	SearchStrategies []struct {
		Description      string   `json:"description,omitempty"`
		Keywords         []string `json:"keywords" jsonschema:"required"`
		YearFrom         int      `json:"year_from,omitempty"`
		YearTo           int      `json:"year_to,omitempty"`
		PreferredSources []string `json:"preferred_sources,omitempty"`
	} `json:"search_strategies" jsonschema:"required"`
	ExpectedSections []string `json:"expected_sections" jsonschema:"required"`
}

var planSchema = llm.MustSchemaFor[planShape]("research_plan")

// Planner produces a ResearchPlan from the query.
type Planner struct {
	Provider llm.Provider
}

// Run generates the plan, emits the plan card, and returns the plan
// with the card id the approval checkpoint will reference. A non-empty
// feedback is folded in when the client asked for an edited plan.
func (p *Planner) Run(ctx context.Context, query, feedback string, mem *memory.ResearchMemory, em *Emitter) (*memory.ResearchPlan, string, error) {
	ev := em.StartEvent(stream.StagePlanning, "Planning research", "制定研究计划")

	prompt := fmt.Sprintf("Research question: %s", query)
	if feedback != "" {
		prompt += "\n\nThe user asked for these changes to the previous plan:\n" + feedback
	}

	raw, err := p.Provider.GenerateStructured(ctx, llm.Request{
		System:    plannerSystem,
		Prompt:    prompt,
		MaxTokens: 2000,
	}, planSchema)
	if err != nil {
		em.CompleteEvent(ev, stream.StatusError, nil)
		return nil, "", err
	}

	plan, err := llm.Decode[memory.ResearchPlan](raw)
	if err != nil {
		em.CompleteEvent(ev, stream.StatusError, nil)
		return nil, "", fault.Wrap(fault.KindValidation, err, "planner output malformed")
	}
	if plan.MainQuestion == "" {
		plan.MainQuestion = query
	}
	if len(plan.SubQuestions) == 0 {
		em.CompleteEvent(ev, stream.StatusError, nil)
		return nil, "", fault.New(fault.KindValidation, "plan has no sub-questions")
	}
	if len(plan.SearchStrategies) == 0 {
		plan.SearchStrategies = []memory.SearchStrategy{{Keywords: plan.SubQuestions}}
	}

	mem.SetPlan(plan)

	cardID := uuid.NewString()
	em.Emit(stream.Frame{Type: stream.FramePlan, Data: stream.PlanCard{ID: cardID, Plan: plan}})
	em.CompleteEvent(ev, stream.StatusSuccess, map[string]any{
		"sub_questions": len(plan.SubQuestions),
		"strategies":    len(plan.SearchStrategies),
	})
	return plan, cardID, nil
}
