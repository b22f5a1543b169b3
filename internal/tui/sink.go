package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/inercia/agentchat/internal/session"
)

// eventBuffer bounds how far the loop can run ahead of the screen.
const eventBuffer = 256

type renderMsg struct{ ev session.TurnEvent }

type showPromptMsg struct {
	toolName  string
	toolInput any
}

type hidePromptMsg struct{}

type thinkingMsg bool

type statusMsg struct{}

type sinkClosedMsg struct{}

// Sink delivers session events to the chat view through a channel that
// the bubbletea model drains. It can be created before the program runs.
type Sink struct {
	events    chan tea.Msg
	status    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ session.Sink = (*Sink)(nil)

// NewSink returns a sink ready to receive events.
func NewSink() *Sink {
	return &Sink{
		events: make(chan tea.Msg, eventBuffer),
		status: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *Sink) send(msg tea.Msg) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- msg:
	case <-s.done:
	}
}

func (s *Sink) Render(ev session.TurnEvent) { s.send(renderMsg{ev: ev}) }

func (s *Sink) ShowPermissionPrompt(toolName string, toolInput any) {
	s.send(showPromptMsg{toolName: toolName, toolInput: toolInput})
}

func (s *Sink) HidePermissionPrompt() { s.send(hidePromptMsg{}) }

func (s *Sink) SetThinking(thinking bool) { s.send(thinkingMsg(thinking)) }

// StatusChanged asks the header to redraw. Repeated calls coalesce.
func (s *Sink) StatusChanged() {
	select {
	case s.status <- struct{}{}:
	default:
	}
}

// Close stops delivery. Pending and later events are dropped.
func (s *Sink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// wait returns a command yielding the next event.
func (s *Sink) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-s.events:
			return msg
		case <-s.status:
			return statusMsg{}
		case <-s.done:
			return sinkClosedMsg{}
		}
	}
}
