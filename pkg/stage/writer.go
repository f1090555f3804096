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
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/kadirpekel/deepquest/pkg/compression"
	"github.com/kadirpekel/deepquest/pkg/llm"
	"github.com/kadirpekel/deepquest/pkg/memory"
	"github.com/kadirpekel/deepquest/pkg/stream"
)

const writerSystem = "You are a research report writer. Write the requested section in clear academic prose. Cite papers with their citation key in square brackets, for example [Lovelace2022]. Only cite papers from the provided context."

var defaultSections = []string{"Introduction", "Findings", "Discussion", "Conclusion"}

// citationMarker matches in-text markers like [Hopper1953].
var citationMarker = regexp.MustCompile(`\[([A-Z][A-Za-z]*\d{4}[a-z]?)\]`)

// Writer streams the report section by section.
type Writer struct {
	Provider llm.Provider
}

// Run generates one report draft. Deltas stream under a single stable
// document id; citation markers found in the output are recorded in
// memory against their papers.
func (w *Writer) Run(ctx context.Context, plan *memory.ResearchPlan, bundle *compression.Bundle, feedback string, mem *memory.ResearchMemory, em *Emitter) (string, error) {
	ev := em.StartEvent(stream.StageWriting, "Writing report", "撰写报告")
	docID := uuid.NewString()

	sections := plan.ExpectedSections
	if len(sections) == 0 {
		sections = defaultSections
	}

	contextBlock := w.contextBlock(bundle, mem)

	var report strings.Builder
	report.WriteString("# " + plan.MainQuestion + "\n")
	for i, section := range sections {
		if err := ctx.Err(); err != nil {
			em.CompleteEvent(ev, stream.StatusError, nil)
			return report.String(), err
		}

		em.Log(fmt.Sprintf("Writing section %q", section), "✍️")
		em.UpdateEvent(ev, map[string]any{"section": section, "progress": fmt.Sprintf("%d/%d", i+1, len(sections))})

		heading := "\n## " + section + "\n\n"
		report.WriteString(heading)
		em.Delta(docID, heading)

		prompt := w.sectionPrompt(plan, section, contextBlock, report.String(), feedback)
		chunks, err := w.Provider.Stream(ctx, llm.Request{System: writerSystem, Prompt: prompt, MaxTokens: 3000})
		if err != nil {
			em.CompleteEvent(ev, stream.StatusError, nil)
			return report.String(), err
		}
		for chunk := range chunks {
			if chunk.Err != nil {
				em.CompleteEvent(ev, stream.StatusError, nil)
				return report.String(), chunk.Err
			}
			report.WriteString(chunk.Text)
			em.Delta(docID, chunk.Text)
		}
	}

	content := report.String()
	w.recordCitations(content, mem)

	em.CompleteEvent(ev, stream.StatusSuccess, map[string]any{
		"sections":  len(sections),
		"words":     len(strings.Fields(content)),
		"citations": len(mem.Citations()),
	})
	return content, nil
}

func (w *Writer) contextBlock(bundle *compression.Bundle, mem *memory.ResearchMemory) string {
	if bundle != nil {
		var b strings.Builder
		b.WriteString("Available papers (cite by key):\n")
		for _, p := range bundle.Papers {
			b.WriteString(fmt.Sprintf("- [%s] %s. %s (%d).", p.CitationKey, p.Authors, p.Title, p.Year))
			if len(p.KeyFindings) > 0 {
				b.WriteString(" Findings: " + strings.Join(p.KeyFindings, "; "))
			}
			b.WriteString("\n")
		}
		return b.String()
	}
	return mem.GetRelevantContext(6000)
}

func (w *Writer) sectionPrompt(plan *memory.ResearchPlan, section, contextBlock, soFar, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research question: %s\n\n%s\n", plan.MainQuestion, contextBlock)
	if feedback != "" {
		b.WriteString("\nReviewer feedback to address in this draft:\n" + feedback + "\n")
	}
	if soFar != "" {
		b.WriteString("\nReport so far (do not repeat it):\n" + tail(soFar, 2000) + "\n")
	}
	fmt.Fprintf(&b, "\nWrite the %q section now.", section)
	return b.String()
}

// recordCitations resolves [Key] markers against memory's papers.
func (w *Writer) recordCitations(content string, mem *memory.ResearchMemory) {
	byKey := make(map[string]string)
	for _, p := range mem.Papers() {
		byKey[compression.CitationKey(p)] = p.ID
	}
	for _, match := range citationMarker.FindAllStringSubmatch(content, -1) {
		key := match[1]
		if paperID, ok := byKey[key]; ok {
			mem.RecordCitation(key, paperID, "")
		}
	}
}

func tail(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	return s[len(s)-maxChars:]
}
