package study

import "math"

// DefaultPassThreshold is the minimum quiz percentage that completes the quiz section.
const DefaultPassThreshold = 60

// Progress holds the set of completed sections.
type Progress struct {
	sections  []string
	known     map[string]bool
	completed map[string]bool
}

// NewProgress creates an empty completion set over the given sections.
func NewProgress(sections []string) *Progress {
	p := &Progress{
		sections:  append([]string(nil), sections...),
		known:     make(map[string]bool, len(sections)),
		completed: make(map[string]bool, len(sections)),
	}
	for _, id := range sections {
		p.known[id] = true
	}
	return p
}

// Toggle adds id to the completed set, or removes it if already there.
// Unknown ids are ignored.
func (p *Progress) Toggle(id string) bool {
	if !p.known[id] {
		return false
	}
	if p.completed[id] {
		delete(p.completed, id)
	} else {
		p.completed[id] = true
	}
	return true
}

// MarkCompleteIfThreshold adds id when scorePercent reaches threshold.
// It never removes a section. The result reports whether id is complete
// because of this call's score.
func (p *Progress) MarkCompleteIfThreshold(id string, scorePercent, threshold int) bool {
	if !p.known[id] || scorePercent < threshold {
		return false
	}
	p.completed[id] = true
	return true
}

// IsComplete reports whether id is in the completed set.
func (p *Progress) IsComplete(id string) bool {
	return p.completed[id]
}

// Count returns the number of completed sections.
func (p *Progress) Count() int {
	return len(p.completed)
}

// Completed returns the completed ids in section order.
func (p *Progress) Completed() []string {
	out := make([]string, 0, len(p.completed))
	for _, id := range p.sections {
		if p.completed[id] {
			out = append(out, id)
		}
	}
	return out
}

// Percent returns round(100 * completed / total).
func (p *Progress) Percent() int {
	return percent(len(p.completed), len(p.sections))
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}
