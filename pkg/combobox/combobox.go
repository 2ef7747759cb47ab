// Package combobox is the interaction model of the artist autocomplete.
//
// Transition is a pure function: it takes the current Model and an Event
// and returns the next Model plus the effects the owner must carry out
// (start a search, notify the selection consumer). The same machine drives
// the server-rendered search page and the terminal picker.
package combobox

import (
	"strings"

	"Spotify-Likes-Go/pkg/music"
)

// State is the visible mode of the combobox.
type State int

const (
	Closed State = iota
	OpenEmpty
	OpenWithResults
	Committed
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case OpenEmpty:
		return "open-empty"
	case OpenWithResults:
		return "open-with-results"
	case Committed:
		return "committed"
	default:
		return "unknown"
	}
}

// Model is the full combobox state. The zero value is a closed, empty
// combobox.
type Model struct {
	State State
	Query string
	// Candidates is the latest returned batch. It stays visible while a
	// newer search is in flight.
	Candidates []music.Candidate
	// Highlight indexes Candidates, -1 when nothing is highlighted.
	Highlight int
	// Selected is the committed candidate, if any.
	Selected *music.Candidate
}

// New returns the initial model.
func New() Model {
	return Model{State: Closed, Highlight: -1}
}

// Open reports whether the dropdown is shown.
func (m Model) Open() bool {
	return m.State == OpenEmpty || m.State == OpenWithResults
}

// Highlighted returns the highlighted candidate.
func (m Model) Highlighted() (music.Candidate, bool) {
	if m.Highlight < 0 || m.Highlight >= len(m.Candidates) {
		return music.Candidate{}, false
	}
	return m.Candidates[m.Highlight], true
}

// Event is an input to Transition.
type Event interface{ isEvent() }

// InputChanged is sent on every edit of the text field.
type InputChanged struct{ Query string }

// ResultsArrived carries a completed search for Query.
type ResultsArrived struct {
	Query      string
	Candidates []music.Candidate
}

// HighlightNext and HighlightPrev move the highlight by one row.
type (
	HighlightNext struct{}
	HighlightPrev struct{}
)

// Commit finalizes a selection. Index selects a row directly (pointer);
// a negative Index commits the highlighted row (keyboard).
type Commit struct{ Index int }

// Dismiss closes the dropdown on escape or blur.
type Dismiss struct{}

// Reopen shows the dropdown again, e.g. on focus.
type Reopen struct{}

func (InputChanged) isEvent()   {}
func (ResultsArrived) isEvent() {}
func (HighlightNext) isEvent()  {}
func (HighlightPrev) isEvent()  {}
func (Commit) isEvent()         {}
func (Dismiss) isEvent()        {}
func (Reopen) isEvent()         {}

// Effect is work requested by Transition.
type Effect interface{ isEffect() }

// FetchRequested asks the owner to schedule a debounced search.
type FetchRequested struct{ Query string }

// SelectionChanged notifies the selection consumer.
type SelectionChanged struct{ CandidateID string }

func (FetchRequested) isEffect()   {}
func (SelectionChanged) isEffect() {}

// Transition applies ev to m.
func Transition(m Model, ev Event) (Model, []Effect) {
	switch ev := ev.(type) {
	case InputChanged:
		return inputChanged(m, ev)
	case ResultsArrived:
		return resultsArrived(m, ev), nil
	case HighlightNext:
		if m.Open() && len(m.Candidates) > 0 {
			m.Highlight = min(m.Highlight+1, len(m.Candidates)-1)
		}
		return m, nil
	case HighlightPrev:
		if m.Open() && len(m.Candidates) > 0 {
			m.Highlight = max(m.Highlight-1, 0)
		}
		return m, nil
	case Commit:
		return commit(m, ev)
	case Dismiss:
		m.State = Closed
		return m, nil
	case Reopen:
		if m.State == Closed || m.State == Committed {
			m.State = openState(m.Candidates)
		}
		return m, nil
	default:
		return m, nil
	}
}

func inputChanged(m Model, ev InputChanged) (Model, []Effect) {
	m.Query = ev.Query
	if m.Selected != nil && !sameText(m.Selected.Name, ev.Query) {
		m.Selected = nil
	}
	m.State = openState(m.Candidates)
	return m, []Effect{FetchRequested{Query: ev.Query}}
}

func resultsArrived(m Model, ev ResultsArrived) Model {
	if !sameText(ev.Query, m.Query) {
		return m
	}
	m.Candidates = ev.Candidates
	if len(m.Candidates) == 0 {
		m.Highlight = -1
	} else {
		m.Highlight = 0
	}
	if m.Open() {
		m.State = openState(m.Candidates)
	}
	return m
}

func commit(m Model, ev Commit) (Model, []Effect) {
	idx := ev.Index
	if idx < 0 {
		idx = m.Highlight
	}
	if idx < 0 || idx >= len(m.Candidates) {
		return m, nil
	}
	chosen := m.Candidates[idx]
	m.Selected = &chosen
	m.Highlight = idx
	m.Query = chosen.Name
	m.State = Committed
	return m, []Effect{SelectionChanged{CandidateID: chosen.ID}}
}

func openState(c []music.Candidate) State {
	if len(c) > 0 {
		return OpenWithResults
	}
	return OpenEmpty
}

// sameText compares queries the way a user perceives them.
func sameText(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
