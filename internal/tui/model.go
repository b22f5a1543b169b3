package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/time/rate"

	"github.com/inercia/agentchat/internal/display"
	"github.com/inercia/agentchat/internal/export"
	"github.com/inercia/agentchat/internal/logging"
	"github.com/inercia/agentchat/internal/permission"
	"github.com/inercia/agentchat/internal/session"
	"github.com/inercia/agentchat/internal/status"
)

const (
	// streamInterval is the minimum time between redraws while text streams in.
	streamInterval = 50 * time.Millisecond
	inputHeight    = 3
	defaultPrompt  = "Ask anything... (/ for commands)"
	decidePrompt   = "Allow? enter=yes, esc=no, or tell the agent what to do instead"
)

// Controller receives the operator's actions. *session.Loop implements it.
type Controller interface {
	Submit(text string) error
	NewConversation() error
	Interrupt(ctx context.Context) bool
	Decide(text string) (permission.Decision, error)
	PermissionPending() bool
}

var _ Controller = (*session.Loop)(nil)

// Options configures the chat view.
type Options struct {
	Controller Controller
	Sink       *Sink
	// Hub colors the provider list in the header. Optional.
	Hub *status.Hub
	// Servers are the provider names shown in the header.
	Servers []string
	// ConversationsDir is where /save writes transcripts.
	ConversationsDir string
	// PlainText disables markdown rendering of agent replies.
	PlainText bool
}

type flushMsg struct{}

// Model is the bubbletea model of the chat view.
type Model struct {
	ctl     Controller
	sink    *Sink
	hub     *status.Hub
	servers []string
	convDir string

	keys       KeyBindings
	viewport   viewport.Model
	input      textarea.Model
	spinner    spinner.Model
	chat       chatView
	transcript *export.Transcript

	limiter      *rate.Limiter
	flushPending bool
	dirty        bool

	thinking bool
	prompt   *showPromptMsg
	notice   string

	width  int
	height int
	ready  bool
}

// New returns the chat view model.
func New(opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = defaultPrompt
	ta.Prompt = "│ "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = thinkingStyle

	return Model{
		ctl:        opts.Controller,
		sink:       opts.Sink,
		hub:        opts.Hub,
		servers:    opts.Servers,
		convDir:    opts.ConversationsDir,
		keys:       DefaultKeyBindings(),
		viewport:   viewport.New(80, 20),
		input:      ta,
		spinner:    sp,
		chat:       chatView{markdown: !opts.PlainText},
		transcript: export.NewTranscript(),
		limiter:    rate.NewLimiter(rate.Every(streamInterval), 1),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.sink.wait())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.input.SetWidth(msg.Width)
		m.chat.setWidth(msg.Width - 2)
		m.layout()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case renderMsg:
		m.transcript.Record(msg.ev)
		if _, streaming := msg.ev.(session.StreamChunk); streaming {
			cmds = append(cmds, m.scheduleRefresh())
		} else {
			m.refresh()
		}
		cmds = append(cmds, m.sink.wait())

	case showPromptMsg:
		m.prompt = &msg
		m.input.Reset()
		m.input.Placeholder = decidePrompt
		m.layout()
		cmds = append(cmds, m.sink.wait())

	case hidePromptMsg:
		m.prompt = nil
		m.input.Placeholder = defaultPrompt
		m.layout()
		cmds = append(cmds, m.sink.wait())

	case thinkingMsg:
		wasThinking := m.thinking
		m.thinking = bool(msg)
		if m.thinking && !wasThinking {
			cmds = append(cmds, m.spinner.Tick)
		}
		cmds = append(cmds, m.sink.wait())

	case statusMsg:
		cmds = append(cmds, m.sink.wait())

	case sinkClosedMsg:
		return m, nil

	case flushMsg:
		m.flushPending = false
		if m.dirty {
			m.refresh()
		}

	case spinner.TickMsg:
		if m.thinking {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Interrupt):
		if m.prompt != nil {
			m.decide("no")
			return m, nil
		}
		if !m.ctl.Interrupt(context.Background()) {
			m.notice = "Answer the permission prompt first"
		}
		return m, nil

	case key.Matches(msg, m.keys.NewConversation):
		m.newConversation()
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	m.notice = ""

	if m.prompt != nil || m.ctl.PermissionPending() {
		m.decide(text)
		return m, nil
	}
	if text == "" {
		return m, nil
	}
	if strings.HasPrefix(text, "/") {
		return m.runCommand(text)
	}
	if err := m.ctl.Submit(text); err != nil {
		m.notice = fmt.Sprintf("Could not send message: %v", err)
	}
	return m, nil
}

func (m *Model) decide(text string) {
	if _, err := m.ctl.Decide(text); err != nil {
		logging.UI().Debug("Permission answer ignored", "error", err)
	}
}

// runCommand executes a slash command.
func (m Model) runCommand(text string) (tea.Model, tea.Cmd) {
	switch strings.Fields(text)[0] {
	case "/new":
		m.newConversation()
	case "/clear":
		m.transcript.Clear()
		m.chat.reset()
		m.refresh()
	case "/save":
		fields := strings.Fields(text)
		format, err := export.ParseFormat(strings.Join(fields[1:], " "))
		if err != nil {
			m.notice = errorStyle.Render(err.Error())
			break
		}
		path, err := m.transcript.SaveAs(m.convDir, format)
		if err != nil {
			m.notice = errorStyle.Render(err.Error())
		} else {
			m.notice = "Saved conversation to " + path
		}
	case "/exit", "/quit":
		return m, tea.Quit
	case "/help":
		m.notice = "/new new conversation • /clear clear history • /save [html] save transcript • /exit quit"
	default:
		m.notice = fmt.Sprintf("Unknown command %s (try /help)", text)
	}
	return m, nil
}

func (m *Model) newConversation() {
	if err := m.ctl.NewConversation(); err != nil {
		m.notice = fmt.Sprintf("Could not start a new conversation: %v", err)
		return
	}
	m.transcript.Clear()
	m.chat.reset()
	m.refresh()
}

func (m *Model) scheduleRefresh() tea.Cmd {
	if m.limiter.Allow() {
		m.refresh()
		return nil
	}
	m.dirty = true
	if m.flushPending {
		return nil
	}
	m.flushPending = true
	return tea.Tick(streamInterval, func(time.Time) tea.Msg { return flushMsg{} })
}

func (m *Model) refresh() {
	m.dirty = false
	m.viewport.SetContent(m.chat.render(m.transcript.Entries()))
	m.viewport.GotoBottom()
}

// layout sizes the viewport to what the other panels leave.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	used := lipgloss.Height(m.headerView()) + lipgloss.Height(m.statusView()) + inputHeight
	if m.prompt != nil {
		used += lipgloss.Height(m.promptView())
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-used, 1)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	parts := []string{m.headerView(), m.viewport.View()}
	if m.prompt != nil {
		parts = append(parts, m.promptView())
	}
	parts = append(parts, m.statusView(), m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) headerView() string {
	var sb strings.Builder
	sb.WriteString(headerBrandStyle.Render("agentchat"))
	for _, name := range m.servers {
		sb.WriteString(serverIdleStyle.Render("  "))
		if m.hub != nil && m.hub.IsAttached(name) {
			sb.WriteString(serverConnectedStyle.Render("● " + name))
		} else {
			sb.WriteString(serverIdleStyle.Render("○ " + name))
		}
	}
	return headerStyle.Width(m.width).Render(display.Truncate(sb.String(), m.width))
}

func (m Model) promptView() string {
	if m.prompt == nil {
		return ""
	}
	title := promptTitleStyle.Render("Confirm tool: " + display.ParseToolName(m.prompt.toolName).String())
	body := title
	if input := display.FormatToolInput(m.prompt.toolInput); input != "" {
		body += "\n" + clipLines(input, maxToolInputLines, m.width-6)
	}
	body += "\n" + systemStyle.Render(decidePrompt)
	return permissionBoxStyle.Width(max(m.width-2, 10)).Render(body)
}

func (m Model) statusView() string {
	switch {
	case m.thinking:
		return statusStyle.Render(m.spinner.View() + " Thinking…")
	case m.notice != "":
		return statusStyle.Render(m.notice)
	default:
		return statusStyle.Render(m.keys.helpLine())
	}
}
