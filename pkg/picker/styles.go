package picker

import "github.com/charmbracelet/lipgloss"

var styles = newPalette("#1DB954", "#FF5F56", "#626262", "#FFFFFF")

// palette holds the named [lipgloss.Style] values used by the view.
type palette struct {
	title    lipgloss.Style
	cursor   lipgloss.Style
	row      lipgloss.Style
	tags     lipgloss.Style
	err      lipgloss.Style
	empty    lipgloss.Style
	selected lipgloss.Style
}

func newPalette(accent, errColor, muted, fg string) palette {
	return palette{
		title:    newBold(accent).MarginBottom(1),
		cursor:   newBold(accent),
		row:      newStyle(fg),
		tags:     newStyle(muted).Italic(true),
		err:      newBold(errColor),
		empty:    newStyle(muted).Italic(true),
		selected: newBold(accent),
	}
}

func newStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func newBold(fg string) lipgloss.Style {
	return newStyle(fg).Bold(true)
}
