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
	"fmt"

	"github.com/kadirpekel/deepquest/pkg/compression"
	"github.com/kadirpekel/deepquest/pkg/memory"
	"github.com/kadirpekel/deepquest/pkg/stream"
)

// Validator cross-checks the report's citations against memory.
type Validator struct{}

// Run verifies that every in-text marker resolves to a collected
// paper and that every recorded citation still points at one. It
// returns the list of inconsistencies found.
func (v *Validator) Run(report string, mem *memory.ResearchMemory, em *Emitter) []string {
	ev := em.StartEvent(stream.StageValidating, "Validating citations", "校验引用")

	byKey := make(map[string]bool)
	for _, p := range mem.Papers() {
		byKey[compression.CitationKey(p)] = true
	}

	var issues []string
	seen := make(map[string]bool)
	for _, match := range citationMarker.FindAllStringSubmatch(report, -1) {
		key := match[1]
		if seen[key] {
			continue
		}
		seen[key] = true
		if !byKey[key] {
			issues = append(issues, fmt.Sprintf("citation [%s] does not resolve to any collected paper", key))
		}
	}

	for _, c := range mem.Citations() {
		if _, ok := mem.GetPaper(c.PaperID); !ok {
			issues = append(issues, fmt.Sprintf("citation %s references unknown paper %s", c.ID, c.PaperID))
		}
	}

	status := stream.StatusSuccess
	if len(issues) > 0 {
		status = stream.StatusError
		for _, issue := range issues {
			em.Log(issue, "⚠️")
		}
	}
	em.CompleteEvent(ev, status, map[string]any{
		"markers_checked": len(seen),
		"issues":          len(issues),
	})
	return issues
}
