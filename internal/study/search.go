package study

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/p-n-ai/pai-titulos/internal/content"
)

// SnippetLen is the number of characters kept from a matching unit.
const SnippetLen = 150

const ellipsis = "..."

// UnitRef locates the content unit a result came from.
type UnitRef struct {
	Section int `json:"section"`
	Unit    int `json:"unit"`
}

// SearchResult is one matching content unit.
type SearchResult struct {
	SectionID    string  `json:"section_id"`
	SectionTitle string  `json:"section_title"`
	Snippet      string  `json:"snippet"`
	Ref          UnitRef `json:"ref"`
}

type indexedSection struct {
	section content.Section
	folded  string
	units   []string
}

// Index matches queries against the section text. It is read-only after
// construction and safe to share between sessions.
type Index struct {
	sections []indexedSection
}

// NewIndex folds the text of every section once.
func NewIndex(sections []content.Section) *Index {
	idx := &Index{sections: make([]indexedSection, len(sections))}
	for i, s := range sections {
		is := indexedSection{
			section: s,
			folded:  fold(s.Text()),
			units:   make([]string, len(s.Units)),
		}
		for j, u := range s.Units {
			is.units[j] = fold(u.Text)
		}
		idx.sections[i] = is
	}
	return idx
}

// Search returns every unit containing query, case-insensitively, in
// document order. A blank query returns nil.
func (idx *Index) Search(query string) []SearchResult {
	q := fold(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var results []SearchResult
	for i, s := range idx.sections {
		if !strings.Contains(s.folded, q) {
			continue
		}
		for j, unit := range s.units {
			if !strings.Contains(unit, q) {
				continue
			}
			results = append(results, SearchResult{
				SectionID:    s.section.ID,
				SectionTitle: s.section.Title,
				Snippet:      Snippet(s.section.Units[j].Text),
				Ref:          UnitRef{Section: i, Unit: j},
			})
		}
	}
	return results
}

// Snippet keeps the first SnippetLen characters of text and appends an
// ellipsis.
func Snippet(text string) string {
	n := 0
	for i := range text {
		if n == SnippetLen {
			return text[:i] + ellipsis
		}
		n++
	}
	return text + ellipsis
}

func fold(s string) string {
	// A Caser is not safe for concurrent use.
	return cases.Lower(language.BrazilianPortuguese).String(s)
}
