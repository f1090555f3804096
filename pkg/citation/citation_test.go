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

package citation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepquest/pkg/paper"
)

func testData() []Data {
	return []Data{
		{ID: "c1", Paper: &paper.Paper{
			Title:   "Notes on the Analytical Engine",
			Authors: []string{"Ada Lovelace"},
			Year:    1843,
			Journal: "Scientific Memoirs",
			DOI:     "10.1/engine",
		}},
		{ID: "c2", Paper: &paper.Paper{
			Title:   "Compiling Routines",
			Authors: []string{"Grace Hopper", "John Mauchly"},
			Year:    1953,
			Venue:   "ACM National Meeting",
		}},
		{ID: "c3", Paper: &paper.Paper{
			Title:   "On Computable Numbers",
			Authors: []string{"Alan Turing"},
			Year:    1936,
		}},
	}
}

func TestParseStyle(t *testing.T) {
	style, err := ParseStyle("")
	require.NoError(t, err)
	assert.Equal(t, StyleAPA, style)

	style, err = ParseStyle("IEEE")
	require.NoError(t, err)
	assert.Equal(t, StyleIEEE, style)

	_, err = ParseStyle("harvard")
	assert.Error(t, err)
}

func TestAPAInTextAndReference(t *testing.T) {
	f, err := Format(StyleAPA, testData())
	require.NoError(t, err)

	assert.Equal(t, "(Lovelace, 1843)", f.InText("c1"))
	assert.Equal(t, "(Hopper & Mauchly, 1953)", f.InText("c2"))
	assert.Equal(t, "", f.InText("missing"))

	ref := f.Reference("c1")
	assert.Contains(t, ref, "Lovelace, A.")
	assert.Contains(t, ref, "(1843)")
	assert.Contains(t, ref, "Scientific Memoirs")
	assert.Contains(t, ref, "https://doi.org/10.1/engine")
}

func TestNumericStylesNumberByAppearance(t *testing.T) {
	f, err := Format(StyleIEEE, testData())
	require.NoError(t, err)

	assert.Equal(t, "[1]", f.InText("c1"))
	assert.Equal(t, "[2]", f.InText("c2"))
	assert.Equal(t, "[3]", f.InText("c3"))

	lines := strings.Split(f.List(), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "[1] A. Lovelace"))
	assert.True(t, strings.HasPrefix(lines[1], "[2] G. Hopper and J. Mauchly"))
}

func TestAuthorYearListSortsByAuthor(t *testing.T) {
	f, err := Format(StyleAPA, testData())
	require.NoError(t, err)

	lines := strings.Split(f.List(), "\n")
	require.Len(t, lines, 3)
	// Hopper < Lovelace < Turing by family name.
	assert.Contains(t, lines[0], "Hopper")
	assert.Contains(t, lines[1], "Lovelace")
	assert.Contains(t, lines[2], "Turing")
}

func TestGBT7714Rendering(t *testing.T) {
	f, err := Format(StyleGBT7714, testData())
	require.NoError(t, err)

	ref := f.Reference("c2")
	assert.True(t, strings.HasPrefix(ref, "[2] HOPPER G, MAUCHLY J."), ref)
	assert.Contains(t, ref, "Compiling Routines[J]")
}

func TestChicagoAndMLA(t *testing.T) {
	f, err := Format(StyleChicago, testData())
	require.NoError(t, err)
	assert.Equal(t, "(Lovelace 1843)", f.InText("c1"))
	assert.Contains(t, f.Reference("c1"), "Lovelace, Ada. 1843.")

	f, err = Format(StyleMLA, testData())
	require.NoError(t, err)
	assert.Equal(t, "(Hopper)", f.InText("c2"))
	assert.Contains(t, f.Reference("c2"), "Hopper, Grace, and John Mauchly.")
}

func TestDuplicateIDsKeepFirst(t *testing.T) {
	data := testData()
	data = append(data, Data{ID: "c1", Paper: &paper.Paper{Title: "Other", Authors: []string{"X Y"}, Year: 2000}})

	f, err := Format(StyleIEEE, data)
	require.NoError(t, err)
	assert.Equal(t, "[1]", f.InText("c1"))
	assert.Contains(t, f.Reference("c1"), "Analytical Engine")
}
