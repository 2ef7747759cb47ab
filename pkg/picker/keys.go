package picker

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping of the picker.
type keyMap struct {
	up    key.Binding
	down  key.Binding
	enter key.Binding
	close key.Binding
	quit  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:    key.NewBinding(key.WithKeys("up", "ctrl+p"), key.WithHelp("↑", "previous")),
		down:  key.NewBinding(key.WithKeys("down", "ctrl+n"), key.WithHelp("↓", "next")),
		enter: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		close: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
		quit:  key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.up, k.down, k.enter, k.close, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.up, k.down, k.enter}, {k.close, k.quit}}
}
