// Package picker is a terminal artist picker built on bubbletea.
//
// Keystrokes become [combobox] events; the combobox asks for fetches, which
// go through a debounced [search.Controller]. Results come back to the
// program over a channel and are applied only when they answer the latest
// request. Committing a row ends the program with the chosen artist
// available from [Model.Selected].
package picker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"Spotify-Likes-Go/pkg/combobox"
	"Spotify-Likes-Go/pkg/music"
	"Spotify-Likes-Go/pkg/search"
)

// Options configures a picker.
type Options struct {
	Searcher music.Searcher
	Delay    time.Duration
	Limit    int
	Clock    search.Clock
	Log      logrus.FieldLogger
}

// resultMsg carries a finished search into the update loop.
type resultMsg search.Result

// Model is the bubbletea model of the picker.
type Model struct {
	ctx      context.Context
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap
	combo    combobox.Model
	search   *search.Controller
	results  chan search.Result
	lastSeq  uint64
	err      error
	selected *music.Candidate
	quitting bool
}

// New builds a picker. Searches stop being delivered once ctx is done.
func New(ctx context.Context, opts Options) *Model {
	ti := textinput.New()
	ti.Placeholder = "Search for an artist"
	ti.Prompt = "› "
	ti.CharLimit = 100
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.cursor

	m := &Model{
		ctx:     ctx,
		input:   ti,
		spinner: sp,
		help:    help.New(),
		keys:    newKeyMap(),
		combo:   combobox.New(),
		results: make(chan search.Result, 8),
	}
	m.search = search.New(search.Options{
		Searcher: opts.Searcher,
		Delay:    opts.Delay,
		Limit:    opts.Limit,
		Clock:    opts.Clock,
		Log:      opts.Log,
		Notify:   m.deliver,
	})
	return m
}

func (m *Model) deliver(r search.Result) {
	select {
	case m.results <- r:
	case <-m.ctx.Done():
	}
}

// Selected returns the committed artist, or nil when the user quit without
// choosing.
func (m *Model) Selected() *music.Candidate {
	return m.selected
}

// Init starts the cursor blink, the spinner and the result listener.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForResult())
}

// fetching reports whether a search is on the wire.
func (m *Model) fetching() bool {
	return m.search.State() == search.Pending
}

func (m *Model) waitForResult() tea.Cmd {
	return func() tea.Msg {
		select {
		case r := <-m.results:
			return resultMsg(r)
		case <-m.ctx.Done():
			return nil
		}
	}
}

// Update handles key presses, search results and spinner ticks.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case resultMsg:
		if msg.Seq != m.lastSeq {
			return m, m.waitForResult()
		}
		m.err = msg.Err
		m.apply(combobox.ResultsArrived{Query: msg.Query, Candidates: msg.Candidates})
		return m, m.waitForResult()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m.quit()

	case key.Matches(msg, m.keys.up):
		m.apply(combobox.HighlightPrev{})
		return m, nil

	case key.Matches(msg, m.keys.down):
		if !m.combo.Open() {
			m.apply(combobox.Reopen{})
			return m, nil
		}
		m.apply(combobox.HighlightNext{})
		return m, nil

	case key.Matches(msg, m.keys.enter):
		if !m.combo.Open() {
			return m, nil
		}
		if m.apply(combobox.Commit{Index: -1}) {
			return m.quit()
		}
		return m, nil

	case key.Matches(msg, m.keys.close):
		if m.combo.Open() {
			m.apply(combobox.Dismiss{})
			return m, nil
		}
		return m.quit()
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() == before {
		return m, cmd
	}
	m.apply(combobox.InputChanged{Query: m.input.Value()})
	return m, cmd
}

// apply runs ev through the combobox and carries out its effects. It
// reports whether a selection was made.
func (m *Model) apply(ev combobox.Event) bool {
	var effects []combobox.Effect
	m.combo, effects = combobox.Transition(m.combo, ev)
	chose := false
	for _, eff := range effects {
		switch eff := eff.(type) {
		case combobox.FetchRequested:
			m.lastSeq = m.search.Schedule(eff.Query)
		case combobox.SelectionChanged:
			m.selected = m.combo.Selected
			m.input.SetValue(m.combo.Query)
			chose = true
		}
	}
	return chose
}

func (m *Model) quit() (tea.Model, tea.Cmd) {
	m.search.Cancel()
	m.quitting = true
	return m, tea.Quit
}

// View renders the input, the listbox and the key help.
func (m *Model) View() string {
	if m.quitting {
		if m.selected != nil {
			return styles.selected.Render("Selected "+m.selected.Name) + "\n"
		}
		return ""
	}

	var b strings.Builder
	b.WriteString(styles.title.Render("Pick an artist"))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	if m.fetching() {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(styles.err.Render("Search failed, keep typing to retry"))
		b.WriteString("\n\n")
	}

	switch m.combo.State {
	case combobox.OpenWithResults:
		for i, c := range m.combo.Candidates {
			b.WriteString(m.renderRow(i, c))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	case combobox.OpenEmpty:
		if strings.TrimSpace(m.combo.Query) != "" && !m.fetching() {
			b.WriteString(styles.empty.Render("No Results"))
			b.WriteString("\n\n")
		}
	}

	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) renderRow(i int, c music.Candidate) string {
	cursor := "  "
	name := styles.row.Render(c.Name)
	if i == m.combo.Highlight {
		cursor = styles.cursor.Render("> ")
		name = styles.cursor.Render(c.Name)
	}
	row := cursor + name
	if len(c.Tags) > 0 {
		row += " " + styles.tags.Render(fmt.Sprintf("(%s)", strings.Join(c.Tags, ", ")))
	}
	return row
}
