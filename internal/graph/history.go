package graph

import (
	"maps"
	"time"
)

// Entry is a layout snapshot recorded when a drag completes.
type Entry struct {
	Positions map[string]Position `json:"positions"`
	At        time.Time           `json:"at"`
}

func (e Entry) clone() Entry {
	return Entry{Positions: maps.Clone(e.Positions), At: e.At}
}

// History is a bounded, linear undo timeline. The cursor points at the
// entry that matches the current layout.
type History struct {
	entries []Entry
	cursor  int
	max     int
}

func NewHistory(max int) *History {
	if max < 2 {
		max = 2
	}
	return &History{cursor: -1, max: max}
}

// Push records e after the cursor. Entries past the cursor are discarded
// first, and the oldest entry is dropped once the bound is reached.
func (h *History) Push(e Entry) {
	h.entries = append(h.entries[:h.cursor+1], e.clone())
	if over := len(h.entries) - h.max; over > 0 {
		h.entries = append([]Entry(nil), h.entries[over:]...)
	}
	h.cursor = len(h.entries) - 1
}

func (h *History) Len() int {
	return len(h.entries)
}

func (h *History) CanUndo() bool {
	return h.cursor > 0
}

func (h *History) CanRedo() bool {
	return h.cursor < len(h.entries)-1
}

func (h *History) Undo() (Entry, bool) {
	if !h.CanUndo() {
		return Entry{}, false
	}
	h.cursor--
	return h.entries[h.cursor].clone(), true
}

func (h *History) Redo() (Entry, bool) {
	if !h.CanRedo() {
		return Entry{}, false
	}
	h.cursor++
	return h.entries[h.cursor].clone(), true
}

func (h *History) Reset() {
	h.entries = nil
	h.cursor = -1
}
