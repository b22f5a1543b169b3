// Package export records what the operator saw and saves it as a Markdown
// or HTML transcript.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/inercia/agentchat/internal/display"
	"github.com/inercia/agentchat/internal/fileutil"
	"github.com/inercia/agentchat/internal/session"
)

// Role identifies who produced a transcript entry.
type Role int

const (
	RoleSystem Role = iota
	RoleUser
	RoleAgent
	RoleTool
)

// Entry is one message of the transcript.
type Entry struct {
	Role Role
	Text string
	// ToolName and ToolInput are set for RoleTool.
	ToolName  string
	ToolInput any
}

// TimestampFormat names saved transcripts: convo-<timestamp>.md.
const TimestampFormat = "2006-01-02_15-04-05"

// Transcript accumulates rendered turn events. Streamed chunks are merged
// into one agent entry until something else is rendered.
// It is safe for concurrent use.
type Transcript struct {
	mu        sync.Mutex
	entries   []Entry
	streaming bool
	now       func() time.Time
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{now: time.Now}
}

// Record adds ev to the transcript.
func (t *Transcript) Record(ev session.TurnEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case session.StreamChunk:
		if e.Text == "" {
			return
		}
		if t.streaming {
			t.entries[len(t.entries)-1].Text += e.Text
			return
		}
		t.entries = append(t.entries, Entry{Role: RoleAgent, Text: e.Text})
		t.streaming = true
		return
	case session.AssistantContent:
		for _, b := range e.Blocks {
			switch blk := b.(type) {
			case session.TextBlock:
				t.entries = append(t.entries, Entry{Role: RoleAgent, Text: blk.Text})
			case session.ToolUseBlock:
				t.entries = append(t.entries, Entry{Role: RoleTool, ToolName: blk.Name, ToolInput: blk.Input})
			}
		}
	case session.SystemNotice:
		t.entries = append(t.entries, Entry{Role: RoleSystem, Text: e.Text})
	case session.UserEcho:
		t.entries = append(t.entries, Entry{Role: RoleUser, Text: e.Text})
	}
	t.streaming = false
}

// Entries returns a copy of the recorded entries.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Clear forgets everything recorded so far.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
	t.streaming = false
}

// Markdown renders the transcript. Entries are separated by horizontal rules.
func (t *Transcript) Markdown() string {
	entries := t.Entries()
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		switch e.Role {
		case RoleSystem:
			parts = append(parts, "# System\n\n"+e.Text+"\n")
		case RoleUser:
			parts = append(parts, "# You\n\n"+e.Text+"\n")
		case RoleAgent:
			parts = append(parts, "# Agent\n\n"+e.Text+"\n")
		case RoleTool:
			parts = append(parts, fmt.Sprintf("# Tool: %s\n\n```json\n%s\n```\n",
				e.ToolName, display.FormatToolInput(e.ToolInput)))
		}
	}
	return strings.Join(parts, "\n---\n\n")
}

// Save writes the transcript to dir/convo-<timestamp>.md, creating dir,
// and returns the file path.
func (t *Transcript) Save(dir string) (string, error) {
	return t.SaveAs(dir, FormatMarkdown)
}

// SaveAs is Save with a choice of format. HTML transcripts are written as
// convo-<timestamp>.html.
func (t *Transcript) SaveAs(dir string, format Format) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	stamp := t.now().Format(TimestampFormat)

	var data string
	switch format {
	case FormatHTML:
		page, err := t.HTML("Conversation " + stamp)
		if err != nil {
			return "", err
		}
		data = page
	default:
		format = FormatMarkdown
		data = t.Markdown()
	}

	path := filepath.Join(dir, "convo-"+stamp+"."+string(format))
	if err := fileutil.WriteAtomic(path, []byte(data), 0o644); err != nil {
		return "", fmt.Errorf("failed to save conversation: %w", err)
	}
	return path, nil
}

// Recorder is a sink that records every rendered event before passing it on.
type Recorder struct {
	session.Sink
	Transcript *Transcript
}

var _ session.Sink = (*Recorder)(nil)

// NewRecorder wraps sink.
func NewRecorder(sink session.Sink, t *Transcript) *Recorder {
	return &Recorder{Sink: sink, Transcript: t}
}

func (r *Recorder) Render(ev session.TurnEvent) {
	r.Transcript.Record(ev)
	r.Sink.Render(ev)
}
