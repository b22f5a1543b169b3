package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/inercia/agentchat/internal/display"
	"github.com/inercia/agentchat/internal/session"
)

// Printer writes session events to a terminal as plain text. It also tracks
// whether a turn is still running so the shell knows when to read again.
type Printer struct {
	mu        sync.Mutex
	out       io.Writer
	quiet     bool
	streaming bool
	thinking  bool

	busy      bool
	prompting bool
	wake      chan struct{}
}

var _ session.Sink = (*Printer)(nil)

// NewPrinter returns a printer writing to out. A quiet printer leaves out
// tool calls and the thinking indicator.
func NewPrinter(out io.Writer, quiet bool) *Printer {
	return &Printer{out: out, quiet: quiet, wake: make(chan struct{}, 1)}
}

func (p *Printer) Render(ev session.TurnEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e := ev.(type) {
	case session.StreamChunk:
		p.streaming = true
		fmt.Fprint(p.out, e.Text)

	case session.AssistantContent:
		p.endStream()
		for _, b := range e.Blocks {
			switch b := b.(type) {
			case session.TextBlock:
				fmt.Fprintln(p.out, b.Text)
			case session.ToolUseBlock:
				if p.quiet {
					continue
				}
				fmt.Fprintf(p.out, "🔧 %s\n", display.ParseToolName(b.Name))
				if input := display.FormatToolInput(b.Input); input != "" {
					fmt.Fprintln(p.out, display.Indent(input, 3))
				}
			}
		}

	case session.SystemNotice:
		p.endStream()
		fmt.Fprintf(p.out, "ℹ️  %s\n", e.Text)

	case session.TurnComplete:
		p.endStream()
		if e.Pending == 0 {
			p.busy = false
			p.notify()
		}

	case session.UserEcho, session.PermissionRequest:
		// the operator typed it, or the prompt already shows it
		p.endStream()
	}
}

func (p *Printer) ShowPermissionPrompt(toolName string, toolInput any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endStream()
	fmt.Fprintf(p.out, "\n🔐 Allow %s?\n", display.ParseToolName(toolName))
	if input := display.FormatToolInput(toolInput); input != "" {
		fmt.Fprintln(p.out, display.Indent(input, 3))
	}
	fmt.Fprintln(p.out, "   Answer yes, no, or tell the agent what to do instead.")
	p.prompting = true
	p.notify()
}

func (p *Printer) HidePermissionPrompt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompting = false
}

func (p *Printer) SetThinking(thinking bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if thinking && !p.thinking && !p.quiet && !p.streaming {
		fmt.Fprintln(p.out, "⏳ Thinking...")
	}
	p.thinking = thinking
}

// Printf writes a line of shell output.
func (p *Printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endStream()
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	fmt.Fprint(p.out, msg)
}

// expect marks a turn as started.
func (p *Printer) expect() {
	p.mu.Lock()
	p.busy = true
	p.mu.Unlock()
}

// settle marks the current turn as finished without waiting for it.
func (p *Printer) settle() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
}

// awaiting reports what the shell should do next: answer a prompt, keep
// waiting, or read a new message.
func (p *Printer) awaiting() (prompt, busy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompting, p.busy
}

func (p *Printer) endStream() {
	if p.streaming {
		fmt.Fprintln(p.out)
		p.streaming = false
	}
}

func (p *Printer) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}
