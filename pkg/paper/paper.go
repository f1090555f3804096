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

// Package paper defines the canonical bibliographic record shared by
// every source client, the caches, the federator and research memory.
//
// A Paper carries an availability level describing how much content the
// record holds. Records for the same work coming from different catalogs
// are merged with the higher-availability record as the base; identity is
// DOI-first with a normalized-title fallback.
package paper

import (
	"fmt"
	"strings"
	"unicode"
)

// Availability is the ordered content tier of a record.
type Availability int

const (
	MetadataOnly Availability = iota
	WithAbstract
	WithPDFLink
	WithFullText
)

var availabilityNames = map[Availability]string{
	MetadataOnly: "metadata_only",
	WithAbstract: "with_abstract",
	WithPDFLink:  "with_pdf_link",
	WithFullText: "with_full_text",
}

func (a Availability) String() string {
	if name, ok := availabilityNames[a]; ok {
		return name
	}
	return fmt.Sprintf("availability(%d)", int(a))
}

// ParseAvailability converts a wire name back to an Availability.
// Unknown names map to MetadataOnly.
func ParseAvailability(s string) Availability {
	for level, name := range availabilityNames {
		if name == s {
			return level
		}
	}
	return MetadataOnly
}

// Paper is the canonical bibliographic record.
type Paper struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Authors      []string     `json:"authors,omitempty"`
	Year         int          `json:"year,omitempty"`
	Journal      string       `json:"journal,omitempty"`
	Venue        string       `json:"venue,omitempty"`
	Volume       string       `json:"volume,omitempty"`
	Issue        string       `json:"issue,omitempty"`
	Pages        string       `json:"pages,omitempty"`
	DOI          string       `json:"doi,omitempty"`
	ArxivID      string       `json:"arxiv_id,omitempty"`
	PMID         string       `json:"pmid,omitempty"`
	Abstract     string       `json:"abstract,omitempty"`
	PDFURL       string       `json:"pdf_url,omitempty"`
	FullText     string       `json:"full_text,omitempty"`
	Subjects     []string     `json:"subjects,omitempty"`
	Availability Availability `json:"availability"`
	SourceOrigin []string     `json:"source_origin,omitempty"`
	Citations    int          `json:"citations,omitempty"`
	OpenAccess   bool         `json:"open_access,omitempty"`
}

// NormalizeDOI lowercases a DOI and strips the resolver URL prefixes so
// the same work coming from different catalogs compares equal.
func NormalizeDOI(doi string) string {
	d := strings.TrimSpace(strings.ToLower(doi))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		d = strings.TrimPrefix(d, prefix)
	}
	return d
}

// TitleKey reduces a title to lowercase alphanumerics truncated to 50
// characters. Two DOI-less records with the same key collapse.
func TitleKey(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	key := b.String()
	if len(key) > 50 {
		key = key[:50]
	}
	return key
}

// CanonicalID derives the session-stable identity of a record: the
// normalized DOI when present, else the source-prefixed native id.
func CanonicalID(p *Paper) string {
	if d := NormalizeDOI(p.DOI); d != "" {
		return "doi:" + d
	}
	if p.ID != "" {
		return p.ID
	}
	source := "unknown"
	if len(p.SourceOrigin) > 0 {
		source = p.SourceOrigin[0]
	}
	return source + ":" + TitleKey(p.Title)
}

// DedupKey is the key used for cross-source deduplication: DOI when
// present, normalized title otherwise.
func DedupKey(p *Paper) string {
	if d := NormalizeDOI(p.DOI); d != "" {
		return "doi:" + d
	}
	return "title:" + TitleKey(p.Title)
}

// Merge combines two records for the same work. The higher-availability
// record wins as the base; SourceOrigin and Subjects are unioned,
// Citations takes the maximum, and scalar fields fall back to the other
// side only when the base lacks them. Neither input is mutated.
func Merge(a, b *Paper) *Paper {
	base, other := a, b
	if b.Availability > a.Availability {
		base, other = b, a
	}

	merged := *base
	merged.SourceOrigin = unionStrings(base.SourceOrigin, other.SourceOrigin)
	merged.Subjects = unionStrings(base.Subjects, other.Subjects)
	if other.Citations > merged.Citations {
		merged.Citations = other.Citations
	}
	merged.OpenAccess = base.OpenAccess || other.OpenAccess

	fillString(&merged.Title, other.Title)
	fillString(&merged.Journal, other.Journal)
	fillString(&merged.Venue, other.Venue)
	fillString(&merged.Volume, other.Volume)
	fillString(&merged.Issue, other.Issue)
	fillString(&merged.Pages, other.Pages)
	fillString(&merged.DOI, other.DOI)
	fillString(&merged.ArxivID, other.ArxivID)
	fillString(&merged.PMID, other.PMID)
	fillString(&merged.Abstract, other.Abstract)
	fillString(&merged.PDFURL, other.PDFURL)
	fillString(&merged.FullText, other.FullText)
	if merged.Year == 0 {
		merged.Year = other.Year
	}
	if len(merged.Authors) == 0 {
		merged.Authors = other.Authors
	}
	merged.ID = CanonicalID(&merged)
	return &merged
}

func fillString(dst *string, fallback string) {
	if *dst == "" {
		*dst = fallback
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
