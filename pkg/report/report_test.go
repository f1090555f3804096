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

package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/nguyenthenguyen/docx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepquest/pkg/memory"
	"github.com/kadirpekel/deepquest/pkg/paper"
)

func TestExportMarkdownFrontMatter(t *testing.T) {
	var buf bytes.Buffer
	meta := Meta{
		Query:       "How does sleep affect memory?",
		GeneratedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Iteration:   2,
		PaperCount:  14,
		Score:       81.5,
	}
	require.NoError(t, ExportMarkdown(&buf, "# Report\n\nBody text.", meta))

	out := buf.String()
	assert.Contains(t, out, `query: "How does sleep affect memory?"`)
	assert.Contains(t, out, "generated: 2025-06-01T12:00:00Z")
	assert.Contains(t, out, "iterations: 2")
	assert.Contains(t, out, "papers: 14")
	assert.Contains(t, out, "quality_score: 81.5")
	assert.Contains(t, out, "# Report\n\nBody text.\n")
}

func TestMetaFromMemory(t *testing.T) {
	mem := memory.New("q")
	mem.AddPapers(
		&paper.Paper{ID: "doi:10.1/a", Title: "A"},
		&paper.Paper{ID: "doi:10.1/b", Title: "B"},
	)
	mem.SaveReportVersion("draft", &memory.QualityMetrics{OverallScore: 72}, nil)

	meta := MetaFrom(mem)
	assert.Equal(t, "q", meta.Query)
	assert.Equal(t, 2, meta.PaperCount)
	assert.Equal(t, 72.0, meta.Score)
}

func TestExportDOCXRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	content := "## Findings\n\nSleep helps memory & learning.\n\n- first point\n"
	require.NoError(t, ExportDOCX(&buf, "Sleep and memory", content))

	// The produced package must load back as a Word document.
	reader, err := docx.ReadDocxFromMemory(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	defer reader.Close()

	body := reader.Editable().GetContent()
	assert.Contains(t, body, "Sleep and memory")
	assert.Contains(t, body, `<w:pStyle w:val="Heading2"/>`)
	assert.Contains(t, body, "Sleep helps memory &amp; learning.")
	assert.Contains(t, body, `<w:pStyle w:val="ListParagraph"/>`)
	assert.NotContains(t, body, "placeholder")
}
