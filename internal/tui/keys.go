package tui

import "github.com/charmbracelet/bubbles/key"

// KeyBindings are the chat view shortcuts.
type KeyBindings struct {
	Quit            key.Binding
	NewConversation key.Binding
	Interrupt       key.Binding
	Submit          key.Binding
	ScrollUp        key.Binding
	ScrollDown      key.Binding
}

// DefaultKeyBindings returns the default key bindings.
func DefaultKeyBindings() KeyBindings {
	return KeyBindings{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
		NewConversation: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "new chat"),
		),
		Interrupt: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "interrupt"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		ScrollUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		ScrollDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
	}
}

// helpLine renders the bindings shown in the status bar.
func (k KeyBindings) helpLine() string {
	var s string
	for i, b := range []key.Binding{k.Submit, k.Interrupt, k.NewConversation, k.Quit} {
		if i > 0 {
			s += " • "
		}
		h := b.Help()
		s += h.Key + " " + h.Desc
	}
	return s
}
