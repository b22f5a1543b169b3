// Package tui is the full-screen chat view: a scrolling history with
// markdown-rendered agent replies, a permission prompt panel and an input
// box, driven by a session loop through Sink.
package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/inercia/agentchat/internal/logging"
)

// Run shows the chat view until the operator quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	logger := logging.UI()
	if opts.Hub != nil {
		unsubscribe := opts.Hub.Subscribe(opts.Sink.StatusChanged)
		defer unsubscribe()
	}
	defer opts.Sink.Close()

	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	logger.Debug("Starting chat view")
	_, err := p.Run()
	logger.Debug("Chat view exited", "error", err)

	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
