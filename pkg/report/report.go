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

// Package report exports finished research reports to Markdown and
// Word documents.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/memory"
)

// Meta is the front-matter block prepended to Markdown exports.
type Meta struct {
	Query       string
	GeneratedAt time.Time
	Iteration   int
	PaperCount  int
	Score       float64
}

// MetaFrom derives export metadata from session memory.
func MetaFrom(mem *memory.ResearchMemory) Meta {
	m := Meta{
		Query:       mem.Query(),
		GeneratedAt: time.Now(),
		Iteration:   mem.Iteration(),
		PaperCount:  len(mem.Papers()),
	}
	if latest := mem.LatestReport(); latest != nil && latest.Metrics != nil {
		m.Score = latest.Metrics.OverallScore
	}
	return m
}

// ExportMarkdown writes the report with a YAML front-matter header.
func ExportMarkdown(w io.Writer, content string, meta Meta) error {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "query: %q\n", meta.Query)
	fmt.Fprintf(&b, "generated: %s\n", meta.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "iterations: %d\n", meta.Iteration)
	fmt.Fprintf(&b, "papers: %d\n", meta.PaperCount)
	if meta.Score > 0 {
		fmt.Fprintf(&b, "quality_score: %.1f\n", meta.Score)
	}
	b.WriteString("---\n\n")
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fault.Wrap(fault.KindInternal, err, "writing markdown export")
	}
	return nil
}

// WriteMarkdownFile exports the report to path, creating or
// truncating it.
func WriteMarkdownFile(path, content string, meta Meta) error {
	f, err := os.Create(path)
	if err != nil {
		return fault.Wrap(fault.KindInternal, err, "creating %s", path)
	}
	defer f.Close()
	return ExportMarkdown(f, content, meta)
}
