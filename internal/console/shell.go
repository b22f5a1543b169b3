// Package console implements the line-oriented chat interface: a readline
// shell that submits messages to the session loop and prints its events.
package console

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/reeflective/readline"

	"github.com/inercia/agentchat/internal/export"
	"github.com/inercia/agentchat/internal/logging"
	"github.com/inercia/agentchat/internal/permission"
	"github.com/inercia/agentchat/internal/session"
)

const (
	messagePrompt    = "agentchat> "
	permissionPrompt = "allow> "
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

// LineReader reads one line of operator input. *readline.Shell implements it.
type LineReader interface {
	Readline() (string, error)
}

// Options configures a Shell.
type Options struct {
	Controller Controller
	Printer    *Printer
	// Transcript backs /save and /clear. Optional.
	Transcript *export.Transcript
	// ConversationsDir is where /save writes transcripts.
	ConversationsDir string
	// Reader defaults to a readline shell with history and completion.
	Reader LineReader
	// Signals interrupt the running turn. Optional.
	Signals <-chan os.Signal
}

// Shell is the interactive readline front end.
type Shell struct {
	ctl        Controller
	printer    *Printer
	transcript *export.Transcript
	convDir    string
	reader     LineReader
	signals    <-chan os.Signal

	answering bool
}

// New returns a shell.
func New(opts Options) *Shell {
	s := &Shell{
		ctl:        opts.Controller,
		printer:    opts.Printer,
		transcript: opts.Transcript,
		convDir:    opts.ConversationsDir,
		reader:     opts.Reader,
		signals:    opts.Signals,
	}
	if s.reader == nil {
		s.reader = s.newReadline()
	}
	return s
}

func (s *Shell) newReadline() *readline.Shell {
	rl := readline.NewShell()
	rl.Prompt.Primary(func() string {
		if s.answering {
			return permissionPrompt
		}
		return messagePrompt
	})
	rl.History.Add("default", readline.NewInMemoryHistory())
	rl.Completer = func(line []rune, cursor int) readline.Completions {
		return completeInput(string(line), cursor)
	}
	return rl
}

// Run reads and dispatches operator input until ctx ends, the input is
// exhausted, or the operator exits.
func (s *Shell) Run(ctx context.Context) error {
	s.printer.Printf("📝 Type your message and press Enter. Use /help for commands. Tab completes commands.")

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := s.reader.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				s.printer.Printf("👋 Goodbye!")
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)

		if s.ctl.PermissionPending() {
			s.answer(line)
			s.wait(ctx)
			continue
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := s.handleCommand(ctx, line); quit {
				s.printer.Printf("👋 Goodbye!")
				return nil
			}
			continue
		}
		s.send(ctx, line)
	}
}

// RunOnce sends a single message and returns when the turn is over.
func (s *Shell) RunOnce(ctx context.Context, text string) error {
	if err := s.submit(text); err != nil {
		return err
	}
	for s.wait(ctx) {
		line, err := s.reader.Readline()
		if err != nil {
			return err
		}
		s.answer(strings.TrimSpace(line))
	}
	return ctx.Err()
}

func (s *Shell) send(ctx context.Context, text string) {
	if err := s.submit(text); err != nil {
		s.printer.Printf("❌ Could not send message: %v", err)
		return
	}
	s.wait(ctx)
}

func (s *Shell) submit(text string) error {
	s.printer.expect()
	if err := s.ctl.Submit(text); err != nil {
		s.printer.settle()
		return err
	}
	return nil
}

// wait blocks until the turn is over or a permission prompt needs an
// answer, in which case it returns true.
func (s *Shell) wait(ctx context.Context) bool {
	s.answering = false
	for {
		prompt, busy := s.printer.awaiting()
		if prompt {
			s.answering = true
			return true
		}
		if !busy {
			return false
		}

		select {
		case <-s.printer.wake:
		case <-s.signals:
			if s.ctl.Interrupt(ctx) {
				s.printer.Printf("🛑 Interrupted")
			}
		case <-ctx.Done():
			return false
		}
	}
}

func (s *Shell) answer(text string) {
	s.printer.HidePermissionPrompt()
	s.answering = false
	d, err := s.ctl.Decide(text)
	if err != nil {
		logging.UI().Debug("Permission answer ignored", "error", err)
		return
	}
	s.printer.Printf("   → %s", d.Kind)
}

// handleCommand runs a slash command and reports whether the shell should exit.
func (s *Shell) handleCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.ToLower(strings.TrimPrefix(line, "/")))
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case "quit", "exit", "q":
		return true
	case "cancel":
		if s.ctl.Interrupt(ctx) {
			s.printer.Printf("🛑 Cancelled")
		} else {
			s.printer.Printf("❌ Answer the permission prompt first")
		}
	case "new":
		if err := s.ctl.NewConversation(); err != nil {
			s.printer.Printf("❌ Could not start a new conversation: %v", err)
			return false
		}
		if s.transcript != nil {
			s.transcript.Clear()
		}
		s.printer.Printf("✨ New conversation")
	case "clear":
		if s.transcript != nil {
			s.transcript.Clear()
		}
		s.printer.Printf("🧹 History cleared")
	case "save":
		s.save(strings.Join(parts[1:], " "))
	case "help", "h", "?":
		s.printer.Printf("%s", helpText)
	default:
		s.printer.Printf("❓ Unknown command: %s (use /help for available commands)", parts[0])
	}
	return false
}

func (s *Shell) save(arg string) {
	if s.transcript == nil {
		s.printer.Printf("❌ Nothing to save")
		return
	}
	format, err := export.ParseFormat(arg)
	if err != nil {
		s.printer.Printf("❌ %v", err)
		return
	}
	path, err := s.transcript.SaveAs(s.convDir, format)
	if err != nil {
		s.printer.Printf("❌ %v", err)
		return
	}
	s.printer.Printf("💾 Saved conversation to %s", path)
}

const helpText = `
Available commands:
  /new              - Start a new conversation
  /clear            - Clear the conversation history
  /save [html]      - Save the conversation as markdown or HTML
  /cancel           - Cancel the current operation
  /quit, /exit, /q  - Exit
  /help, /h, /?     - Show this help message

Tips:
  - Type your message and press Enter to send it to the agent
  - When a tool asks for permission, answer yes, no, or type instructions
  - Ctrl+C interrupts a running turn, and exits at the prompt
  - Use Tab to autocomplete slash commands`

// slashCommands are the completions offered for "/".
var slashCommands = []struct {
	name        string
	description string
}{
	{"/help", "Show available commands"},
	{"/new", "Start a new conversation"},
	{"/clear", "Clear the conversation history"},
	{"/save", "Save the conversation (add html for a web page)"},
	{"/cancel", "Cancel the current operation"},
	{"/quit", "Exit"},
	{"/exit", "Exit (alias)"},
}

// matchCommands returns value, description pairs of the commands starting
// with the text before the cursor.
func matchCommands(line string, cursor int) []string {
	if cursor > len(line) {
		cursor = len(line)
	}
	text := line[:cursor]
	if !strings.HasPrefix(text, "/") {
		return nil
	}

	var pairs []string
	for _, cmd := range slashCommands {
		if strings.HasPrefix(cmd.name, text) {
			pairs = append(pairs, cmd.name, cmd.description)
		}
	}
	return pairs
}

func completeInput(line string, cursor int) readline.Completions {
	pairs := matchCommands(line, cursor)
	if len(pairs) == 0 {
		return readline.Completions{}
	}
	return readline.CompleteValuesDescribed(pairs...).
		Tag("commands").
		NoSpace('/')
}
