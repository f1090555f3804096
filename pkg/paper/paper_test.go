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

package paper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDOI(t *testing.T) {
	cases := map[string]string{
		"10.1000/ABC":                 "10.1000/abc",
		"https://doi.org/10.1000/abc": "10.1000/abc",
		"doi:10.1000/abc":             "10.1000/abc",
		"  HTTP://DX.DOI.ORG/10.5/x ": "10.5/x",
		"":                            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeDOI(in), "input %q", in)
	}
}

func TestTitleKey(t *testing.T) {
	assert.Equal(t, TitleKey("Quantum Error-Correction!"), TitleKey("quantum error correction"))
	long := strings.Repeat("abcde", 20)
	assert.Len(t, TitleKey(long), 50)
}

func TestCanonicalIDPrefersDOI(t *testing.T) {
	p := &Paper{ID: "arxiv:1234", DOI: "https://doi.org/10.1/X", Title: "T"}
	assert.Equal(t, "doi:10.1/x", CanonicalID(p))

	noDOI := &Paper{ID: "arxiv:1234", Title: "T"}
	assert.Equal(t, "arxiv:1234", CanonicalID(noDOI))
}

func TestDedupKeyTitleFallback(t *testing.T) {
	a := &Paper{Title: "A Survey of Things", SourceOrigin: []string{"arxiv"}}
	b := &Paper{Title: "a survey of THINGS!!", SourceOrigin: []string{"pubmed"}}
	assert.Equal(t, DedupKey(a), DedupKey(b))
}

func TestMergeHigherAvailabilityWins(t *testing.T) {
	r1 := &Paper{
		DOI:          "10.1/x",
		Title:        "The Paper",
		Abstract:     "abstract text",
		Availability: WithAbstract,
		SourceOrigin: []string{"openalex"},
		Subjects:     []string{"cs"},
		Citations:    40,
		Year:         2021,
	}
	r2 := &Paper{
		DOI:          "10.1/x",
		PDFURL:       "https://host/p.pdf",
		Availability: WithPDFLink,
		SourceOrigin: []string{"core"},
		Subjects:     []string{"cs", "ml"},
		Citations:    13,
	}

	m := Merge(r1, r2)

	assert.Equal(t, WithPDFLink, m.Availability)
	assert.Equal(t, "The Paper", m.Title)
	assert.Equal(t, "abstract text", m.Abstract)
	assert.Equal(t, "https://host/p.pdf", m.PDFURL)
	assert.ElementsMatch(t, []string{"openalex", "core"}, m.SourceOrigin)
	assert.ElementsMatch(t, []string{"cs", "ml"}, m.Subjects)
	assert.Equal(t, 40, m.Citations)
	assert.Equal(t, 2021, m.Year)
	assert.Equal(t, "doi:10.1/x", m.ID)

	// Inputs untouched.
	assert.Equal(t, []string{"openalex"}, r1.SourceOrigin)
	assert.Equal(t, []string{"core"}, r2.SourceOrigin)
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t,
		NormalizeQuery("Quantum Error Correction!"),
		NormalizeQuery("correction,  ERROR quantum"),
	)
}

func TestFilterByYear(t *testing.T) {
	papers := []*Paper{
		{Title: "a", Year: 2018},
		{Title: "b", Year: 2022},
		{Title: "c"},
	}
	out := FilterByYear(papers, 2020, 2023)
	assert.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Title)

	assert.Len(t, FilterByYear(papers, 0, 0), 3)
}
