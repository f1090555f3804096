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

// Package citation renders bibliographies. Formatters are pure: given
// a style and the cited papers, they expose in-text markers, reference
// entries and a full reference list. Numeric styles number entries by
// order of appearance; author-year styles sort the list by author.
package citation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/paper"
)

// Style selects the citation format.
type Style string

const (
	StyleAPA     Style = "apa"
	StyleMLA     Style = "mla"
	StyleChicago Style = "chicago"
	StyleIEEE    Style = "ieee"
	StyleGBT7714 Style = "gbt7714"
)

// ParseStyle validates a style name, defaulting empty to APA.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(s)) {
	case "":
		return StyleAPA, nil
	case StyleAPA, StyleMLA, StyleChicago, StyleIEEE, StyleGBT7714:
		return Style(strings.ToLower(s)), nil
	default:
		return "", fault.New(fault.KindValidation, "unknown citation style %q", s)
	}
}

func (s Style) numeric() bool { return s == StyleIEEE || s == StyleGBT7714 }

// Data is one cited paper keyed by its citation id.
type Data struct {
	ID    string
	Paper *paper.Paper
}

// Formatter renders one style over a fixed citation set.
type Formatter struct {
	style   Style
	order   []string // appearance order
	entries map[string]*paper.Paper
	numbers map[string]int // numeric styles only
}

// Format builds a formatter. Data order is appearance order.
func Format(style Style, data []Data) (*Formatter, error) {
	if style == "" {
		style = StyleAPA
	}
	switch style {
	case StyleAPA, StyleMLA, StyleChicago, StyleIEEE, StyleGBT7714:
	default:
		return nil, fault.New(fault.KindValidation, "unknown citation style %q", style)
	}

	f := &Formatter{
		style:   style,
		entries: make(map[string]*paper.Paper, len(data)),
		numbers: make(map[string]int, len(data)),
	}
	for _, d := range data {
		if d.Paper == nil {
			continue
		}
		if _, ok := f.entries[d.ID]; ok {
			continue
		}
		f.entries[d.ID] = d.Paper
		f.order = append(f.order, d.ID)
		f.numbers[d.ID] = len(f.order)
	}
	return f, nil
}

// InText returns the in-text marker for a citation id, or "" when the
// id is unknown.
func (f *Formatter) InText(id string) string {
	p, ok := f.entries[id]
	if !ok {
		return ""
	}
	switch f.style {
	case StyleIEEE, StyleGBT7714:
		return fmt.Sprintf("[%d]", f.numbers[id])
	case StyleMLA:
		return fmt.Sprintf("(%s)", familyName(firstAuthor(p)))
	case StyleChicago:
		return fmt.Sprintf("(%s %d)", familyName(firstAuthor(p)), p.Year)
	default: // APA
		name := familyName(firstAuthor(p))
		if len(p.Authors) > 2 {
			name += " et al."
		} else if len(p.Authors) == 2 {
			name += " & " + familyName(p.Authors[1])
		}
		return fmt.Sprintf("(%s, %d)", name, p.Year)
	}
}

// Reference returns the reference-list entry for a citation id.
func (f *Formatter) Reference(id string) string {
	p, ok := f.entries[id]
	if !ok {
		return ""
	}
	entry := f.render(p)
	if f.style.numeric() {
		return fmt.Sprintf("[%d] %s", f.numbers[id], entry)
	}
	return entry
}

// List renders the full reference list, one entry per line. Numeric
// styles keep appearance order; author-year styles sort by author.
func (f *Formatter) List() string {
	ids := make([]string, len(f.order))
	copy(ids, f.order)
	if !f.style.numeric() {
		sort.SliceStable(ids, func(i, j int) bool {
			return familyName(firstAuthor(f.entries[ids[i]])) < familyName(firstAuthor(f.entries[ids[j]]))
		})
	}
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, f.Reference(id))
	}
	return strings.Join(lines, "\n")
}

func (f *Formatter) render(p *paper.Paper) string {
	venue := p.Journal
	if venue == "" {
		venue = p.Venue
	}

	switch f.style {
	case StyleIEEE:
		var b strings.Builder
		b.WriteString(ieeeAuthors(p.Authors))
		b.WriteString(fmt.Sprintf(", \"%s,\"", p.Title))
		if venue != "" {
			b.WriteString(" " + venue + ",")
		}
		b.WriteString(fmt.Sprintf(" %d.", p.Year))
		return appendDOI(b.String(), p.DOI)

	case StyleGBT7714:
		var b strings.Builder
		b.WriteString(gbAuthors(p.Authors))
		b.WriteString(". " + p.Title + "[J].")
		if venue != "" {
			b.WriteString(" " + venue + ",")
		}
		b.WriteString(fmt.Sprintf(" %d.", p.Year))
		return appendDOI(b.String(), p.DOI)

	case StyleMLA:
		var b strings.Builder
		b.WriteString(mlaAuthors(p.Authors))
		b.WriteString(fmt.Sprintf(" \"%s.\"", p.Title))
		if venue != "" {
			b.WriteString(" " + venue + ",")
		}
		b.WriteString(fmt.Sprintf(" %d.", p.Year))
		return appendDOI(b.String(), p.DOI)

	case StyleChicago:
		var b strings.Builder
		b.WriteString(mlaAuthors(p.Authors))
		b.WriteString(fmt.Sprintf(" %d. \"%s.\"", p.Year, p.Title))
		if venue != "" {
			b.WriteString(" " + venue + ".")
		}
		return appendDOI(b.String(), p.DOI)

	default: // APA
		var b strings.Builder
		b.WriteString(apaAuthors(p.Authors))
		b.WriteString(fmt.Sprintf(" (%d). %s.", p.Year, p.Title))
		if venue != "" {
			b.WriteString(" " + venue + ".")
		}
		return appendDOI(b.String(), p.DOI)
	}
}

func appendDOI(entry, doi string) string {
	if doi == "" {
		return entry
	}
	return entry + " https://doi.org/" + paper.NormalizeDOI(doi)
}

func firstAuthor(p *paper.Paper) string {
	if len(p.Authors) == 0 {
		return "Anonymous"
	}
	return p.Authors[0]
}

func familyName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return full
	}
	return fields[len(fields)-1]
}

func givenInitials(full string) string {
	fields := strings.Fields(full)
	if len(fields) < 2 {
		return ""
	}
	initials := make([]string, 0, len(fields)-1)
	for _, g := range fields[:len(fields)-1] {
		initials = append(initials, string([]rune(g)[0])+".")
	}
	return strings.Join(initials, " ")
}

// apaAuthors renders "Lovelace, A., & Babbage, C." capping long lists
// with et al.
func apaAuthors(authors []string) string {
	if len(authors) == 0 {
		return "Anonymous."
	}
	inverted := make([]string, 0, len(authors))
	for i, a := range authors {
		if i == 3 {
			inverted = append(inverted, "et al.")
			break
		}
		name := familyName(a)
		if ini := givenInitials(a); ini != "" {
			name += ", " + ini
		}
		inverted = append(inverted, name)
	}
	if len(inverted) > 1 && inverted[len(inverted)-1] != "et al." {
		last := inverted[len(inverted)-1]
		return strings.Join(inverted[:len(inverted)-1], ", ") + ", & " + last
	}
	return strings.Join(inverted, ", ")
}

// mlaAuthors renders "Lovelace, Ada, and Charles Babbage." or a single
// inverted name; three or more become et al.
func mlaAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return "Anonymous."
	case 1:
		return invert(authors[0]) + "."
	case 2:
		return invert(authors[0]) + ", and " + authors[1] + "."
	default:
		return invert(authors[0]) + ", et al."
	}
}

// ieeeAuthors renders "A. Lovelace and C. Babbage".
func ieeeAuthors(authors []string) string {
	if len(authors) == 0 {
		return "Anonymous"
	}
	formatted := make([]string, 0, len(authors))
	for i, a := range authors {
		if i == 3 {
			formatted = append(formatted, "et al.")
			break
		}
		if ini := givenInitials(a); ini != "" {
			formatted = append(formatted, ini+" "+familyName(a))
		} else {
			formatted = append(formatted, a)
		}
	}
	if len(formatted) > 1 && formatted[len(formatted)-1] != "et al." {
		return strings.Join(formatted[:len(formatted)-1], ", ") + " and " + formatted[len(formatted)-1]
	}
	return strings.Join(formatted, ", ")
}

// gbAuthors renders "LOVELACE A, BABBAGE C" per GB/T 7714.
func gbAuthors(authors []string) string {
	if len(authors) == 0 {
		return "ANON"
	}
	formatted := make([]string, 0, len(authors))
	for i, a := range authors {
		if i == 3 {
			formatted = append(formatted, "et al")
			break
		}
		entry := strings.ToUpper(familyName(a))
		if ini := givenInitials(a); ini != "" {
			entry += " " + strings.ReplaceAll(strings.ReplaceAll(ini, ".", ""), " ", "")
		}
		formatted = append(formatted, entry)
	}
	return strings.Join(formatted, ", ")
}

func invert(full string) string {
	fields := strings.Fields(full)
	if len(fields) < 2 {
		return full
	}
	return fields[len(fields)-1] + ", " + strings.Join(fields[:len(fields)-1], " ")
}
