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
	"strings"

	"github.com/google/uuid"

	"github.com/kadirpekel/deepquest/pkg/federation"
	"github.com/kadirpekel/deepquest/pkg/memory"
	"github.com/kadirpekel/deepquest/pkg/paper"
	"github.com/kadirpekel/deepquest/pkg/stream"
)

// SearchService is what the searcher needs from the federation layer.
type SearchService interface {
	Search(ctx context.Context, opts paper.SearchOptions, sessionID string) (*federation.Result, error)
}

// Searcher runs federated search rounds driven by the plan's
// strategies, skipping queries memory already answered.
type Searcher struct {
	Service   SearchService
	MaxRounds int
}

// Run executes up to MaxRounds search rounds for the session and
// returns the number of new papers landed in memory.
func (s *Searcher) Run(ctx context.Context, sessionID string, plan *memory.ResearchPlan, mem *memory.ResearchMemory, em *Emitter) (int, error) {
	maxRounds := s.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 5
	}

	ev := em.StartEvent(stream.StageSearching, "Searching literature", "检索文献")
	totalNew := 0
	roundsRun := 0

	for _, strategy := range plan.SearchStrategies {
		if roundsRun >= maxRounds {
			break
		}
		if err := ctx.Err(); err != nil {
			em.CompleteEvent(ev, stream.StatusError, nil)
			return totalNew, err
		}

		query := strings.Join(strategy.Keywords, " ")
		if query == "" {
			continue
		}
		if mem.IsSearchRedundant(query) {
			em.Log(fmt.Sprintf("Skipping redundant search %q", query), "⏭")
			continue
		}

		result, err := s.Service.Search(ctx, paper.SearchOptions{
			Query:    query,
			YearFrom: strategy.YearFrom,
			YearTo:   strategy.YearTo,
		}, sessionID)
		if err != nil {
			em.CompleteEvent(ev, stream.StatusError, nil)
			return totalNew, err
		}
		roundsRun++

		round := mem.AddSearchRound(query, strategy.Description, result.Papers, result.SourceBreakdown)
		totalNew += len(round.Papers)

		for _, sub := range plan.SubQuestions {
			score := coverage(sub, result.Papers)
			if score > 0 {
				mem.TrackProcessedTopic(sub, query, paperIDs(round.Papers), score)
			}
		}

		em.UpdateEvent(ev, map[string]any{
			"round":        round.Round,
			"query":        query,
			"papers_found": len(round.Papers),
			"total_hits":   result.TotalHits,
			"from_cache":   result.FromCache,
		})
		em.Emit(stream.Frame{Type: stream.FramePaperList, Data: stream.PaperListCard{
			ID:     uuid.NewString(),
			Round:  round.Round,
			Papers: round.Papers,
		}})
		em.Log(fmt.Sprintf("Round %d: %d new papers for %q", round.Round, len(round.Papers), query), "🔍")
	}

	em.CompleteEvent(ev, stream.StatusSuccess, map[string]any{
		"rounds":       roundsRun,
		"papers_found": totalNew,
	})
	return totalNew, nil
}

// coverage is the fraction (0-100) of a sub-question's significant
// keywords present in the returned titles and abstracts.
func coverage(subQuestion string, papers []*paper.Paper) float64 {
	var keywords []string
	for _, tok := range strings.Fields(strings.ToLower(subQuestion)) {
		tok = strings.Trim(tok, ".,?!:;\"'()")
		if len(tok) > 3 {
			keywords = append(keywords, tok)
		}
	}
	if len(keywords) == 0 || len(papers) == 0 {
		return 0
	}

	var text strings.Builder
	for _, p := range papers {
		text.WriteString(strings.ToLower(p.Title))
		text.WriteString(" ")
		text.WriteString(strings.ToLower(p.Abstract))
		text.WriteString(" ")
	}
	haystack := text.String()

	found := 0
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			found++
		}
	}
	return 100 * float64(found) / float64(len(keywords))
}

func paperIDs(papers []*paper.Paper) []string {
	ids := make([]string, len(papers))
	for i, p := range papers {
		ids[i] = p.ID
	}
	return ids
}
