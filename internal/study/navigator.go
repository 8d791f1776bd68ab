// Package study implements the study session core: section navigation,
// completion progress, the quiz state machine and the content search.
package study

// NavState describes the current position in the section list.
type NavState struct {
	Current     string `json:"current"`
	Index       int    `json:"index"`
	Total       int    `json:"total"`
	CanPrevious bool   `json:"can_previous"`
	CanNext     bool   `json:"can_next"`
}

// Navigator tracks the current section among a fixed ordered list.
type Navigator struct {
	sections []string
	index    map[string]int
	current  int
}

// NewNavigator starts at the first section. The list must be non-empty.
func NewNavigator(sections []string) *Navigator {
	n := &Navigator{
		sections: append([]string(nil), sections...),
		index:    make(map[string]int, len(sections)),
	}
	for i, id := range n.sections {
		n.index[id] = i
	}
	return n
}

// Known reports whether id is in the section list.
func (n *Navigator) Known(id string) bool {
	_, ok := n.index[id]
	return ok
}

// Current returns the current section id.
func (n *Navigator) Current() string {
	return n.sections[n.current]
}

// GoTo moves to the section id. Unknown ids are ignored.
func (n *Navigator) GoTo(id string) bool {
	i, ok := n.index[id]
	if !ok {
		return false
	}
	n.current = i
	return true
}

// Next moves to the following section; no-op on the last one.
func (n *Navigator) Next() bool {
	if n.current >= len(n.sections)-1 {
		return false
	}
	return n.GoTo(n.sections[n.current+1])
}

// Previous moves to the preceding section; no-op on the first one.
func (n *Navigator) Previous() bool {
	if n.current <= 0 {
		return false
	}
	return n.GoTo(n.sections[n.current-1])
}

// State returns the position and which of previous/next are enabled.
func (n *Navigator) State() NavState {
	return NavState{
		Current:     n.sections[n.current],
		Index:       n.current,
		Total:       len(n.sections),
		CanPrevious: n.current > 0,
		CanNext:     n.current < len(n.sections)-1,
	}
}
