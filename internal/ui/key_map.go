package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up     key.Binding
	down   key.Binding
	enter  key.Binding
	tracks key.Binding
	back   key.Binding
	toggle key.Binding
	next   key.Binding
	prev   key.Binding
	moveUp key.Binding
	moveDn key.Binding
	remove key.Binding
	open   key.Binding
	quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play")),
		tracks: key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "tracks")),
		back:   key.NewBinding(key.WithKeys("esc", "left", "h"), key.WithHelp("esc", "back")),
		toggle: key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "play/pause")),
		next:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
		prev:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "prev")),
		moveUp: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "move up")),
		moveDn: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "move down")),
		remove: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "remove")),
		open:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open")),
		quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter, k.tracks, k.back},
		{k.toggle, k.next, k.prev},
		{k.moveUp, k.moveDn, k.remove, k.open, k.quit},
	}
}
