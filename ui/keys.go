package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Toggle key.Binding
	Stop   key.Binding
	Next   key.Binding
	Prev   key.Binding
	Faster key.Binding
	Slower key.Binding
	Voice  key.Binding
	Clear  key.Binding
	Up     key.Binding
	Down   key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Toggle: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		Stop:   key.NewBinding(key.WithKeys("s", "esc"), key.WithHelp("s", "stop")),
		Next:   key.NewBinding(key.WithKeys("n", "right", "l"), key.WithHelp("n/→", "next")),
		Prev:   key.NewBinding(key.WithKeys("p", "left", "h"), key.WithHelp("p/←", "previous")),
		Faster: key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "faster")),
		Slower: key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "slower")),
		Voice:  key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "next voice")),
		Clear:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear audio")),
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll down")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Next, k.Prev, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Stop, k.Next, k.Prev},
		{k.Faster, k.Slower, k.Voice, k.Clear},
		{k.Up, k.Down, k.Help, k.Quit},
	}
}
