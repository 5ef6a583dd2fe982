package main

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up          key.Binding
	Down        key.Binding
	PageUp      key.Binding
	PageDown    key.Binding
	Top         key.Binding
	Bottom      key.Binding
	BucketLeft  key.Binding
	BucketRight key.Binding
	Enter       key.Binding
	Back        key.Binding
	Filter      key.Binding
	Tags        key.Binding
	Debug       key.Binding
	Info        key.Binding
	Warn        key.Binding
	Error       key.Binding
	Range       key.Binding
	ZoomIn      key.Binding
	ZoomOut     key.Binding
	PanLeft     key.Binding
	PanRight    key.Binding
	Refresh     key.Binding
	Scale       key.Binding
	Chart       key.Binding
	Verbose     key.Binding
	Help        key.Binding
	Quit        key.Binding
	ForceQuit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Filter, k.Tags, k.Range, k.ZoomIn, k.ZoomOut, k.Help}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Top, k.Bottom},
		{k.BucketLeft, k.BucketRight, k.Enter, k.Back},
		{k.Filter, k.Tags, k.Debug, k.Info, k.Warn, k.Error},
		{k.Range, k.ZoomIn, k.ZoomOut, k.PanLeft, k.PanRight, k.Refresh},
		{k.Scale, k.Chart, k.Verbose, k.Help, k.Quit},
	}
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "newer"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "older"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup", "ctrl+u"),
		key.WithHelp("pgup", "page up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown", "ctrl+d"),
		key.WithHelp("pgdn", "page down"),
	),
	Top: key.NewBinding(
		key.WithKeys("g", "home"),
		key.WithHelp("g", "top"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("G", "end"),
		key.WithHelp("G", "bottom"),
	),
	BucketLeft: key.NewBinding(
		key.WithKeys("h", "left"),
		key.WithHelp("h/←", "prev bucket"),
	),
	BucketRight: key.NewBinding(
		key.WithKeys("l", "right"),
		key.WithHelp("l/→", "next bucket"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "jump/details"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	Tags: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "tags"),
	),
	Debug: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "debug"),
	),
	Info: key.NewBinding(
		key.WithKeys("i"),
		key.WithHelp("i", "info"),
	),
	Warn: key.NewBinding(
		key.WithKeys("w"),
		key.WithHelp("w", "warn"),
	),
	Error: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "error"),
	),
	Range: key.NewBinding(
		key.WithKeys("1", "2", "3", "4", "5", "6"),
		key.WithHelp("1-6", "5m…24h"),
	),
	ZoomIn: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "zoom in"),
	),
	ZoomOut: key.NewBinding(
		key.WithKeys("-"),
		key.WithHelp("-", "zoom out"),
	),
	PanLeft: key.NewBinding(
		key.WithKeys("["),
		key.WithHelp("[", "earlier"),
	),
	PanRight: key.NewBinding(
		key.WithKeys("]"),
		key.WithHelp("]", "later"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "to now"),
	),
	Scale: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "log/lin"),
	),
	Chart: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "bars/lines"),
	),
	Verbose: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "layout info"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q"),
		key.WithHelp("q", "quit"),
	),
	ForceQuit: key.NewBinding(
		key.WithKeys("ctrl+c"),
	),
}
