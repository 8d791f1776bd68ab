// Package content holds the read-only study material: ordered sections of
// text and the quiz question set.
package content

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedContent is returned when loaded content breaks a load-time
// precondition. A session must never start on malformed content.
var ErrMalformedContent = errors.New("malformed content")

// DefaultQuizSection is the section completed automatically by a passing quiz.
const DefaultQuizSection = "quiz"

// Unit kinds mirror the rendered elements the search scans.
const (
	KindParagraph = "paragraph"
	KindListItem  = "item"
	KindHeading   = "heading"
)

// Question is a multiple-choice question.
type Question struct {
	Prompt      string   `yaml:"prompt" json:"prompt"`
	Options     []string `yaml:"options" json:"options"`
	Correct     int      `yaml:"correct" json:"correct"`
	Explanation string   `yaml:"explanation" json:"explanation"`
}

// Validate checks the option list and the correct-option bounds.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Prompt) == "" {
		return fmt.Errorf("%w: empty prompt", ErrMalformedContent)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: question %q has %d options, need at least 2", ErrMalformedContent, q.Prompt, len(q.Options))
	}
	for i, o := range q.Options {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("%w: question %q option %d is empty", ErrMalformedContent, q.Prompt, i)
		}
	}
	if q.Correct < 0 || q.Correct >= len(q.Options) {
		return fmt.Errorf("%w: question %q correct index %d out of range [0,%d)", ErrMalformedContent, q.Prompt, q.Correct, len(q.Options))
	}
	return nil
}

// Unit is one searchable block of a section (paragraph, list item or heading).
type Unit struct {
	Kind string `yaml:"kind" json:"kind"`
	Text string `yaml:"text" json:"text"`
}

// Section is one top-level navigable block of the material.
type Section struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
	Units []Unit `yaml:"units" json:"units"`
}

// Text returns the full concatenated text of the section, title included.
func (s Section) Text() string {
	var b strings.Builder
	b.WriteString(s.Title)
	for _, u := range s.Units {
		b.WriteString("\n")
		b.WriteString(u.Text)
	}
	return b.String()
}

// Content is the complete dataset loaded once at startup.
type Content struct {
	Title       string
	QuizSection string
	Sections    []Section
	Questions   []Question
	Version     string
}

// SectionIDs returns the fixed ordered list of section ids.
func (c *Content) SectionIDs() []string {
	ids := make([]string, len(c.Sections))
	for i, s := range c.Sections {
		ids[i] = s.ID
	}
	return ids
}

// Section returns a section by id.
func (c *Content) Section(id string) (Section, bool) {
	for _, s := range c.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// Validate enforces the load-time preconditions.
func (c *Content) Validate() error {
	if len(c.Sections) == 0 {
		return fmt.Errorf("%w: no sections", ErrMalformedContent)
	}
	seen := make(map[string]bool, len(c.Sections))
	for i, s := range c.Sections {
		if s.ID == "" {
			return fmt.Errorf("%w: section %d has no id", ErrMalformedContent, i)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate section id %q", ErrMalformedContent, s.ID)
		}
		seen[s.ID] = true
	}
	if c.QuizSection != "" && !seen[c.QuizSection] {
		return fmt.Errorf("%w: quiz section %q is not a known section", ErrMalformedContent, c.QuizSection)
	}
	if len(c.Questions) == 0 {
		return fmt.Errorf("%w: empty question set", ErrMalformedContent)
	}
	for _, q := range c.Questions {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// document is the on-disk shape of one YAML content file.
type document struct {
	Title       string     `yaml:"title"`
	QuizSection string     `yaml:"quiz_section"`
	Sections    []Section  `yaml:"sections"`
	Questions   []Question `yaml:"questions"`
}
