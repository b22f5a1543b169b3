package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inercia/agentchat/internal/session"
)

func TestTranscript_Record(t *testing.T) {
	tr := NewTranscript()
	for _, ev := range []session.TurnEvent{
		session.SystemNotice{Text: "Connected"},
		session.UserEcho{Text: "Hello"},
		session.StreamChunk{Text: "Hi "},
		session.StreamChunk{Text: ""},
		session.StreamChunk{Text: "there!"},
		session.AssistantContent{Blocks: []session.ContentBlock{
			session.ToolUseBlock{ID: "1", Name: "mcp__github__list_issues", Input: map[string]any{"repo": "x"}},
		}},
		session.StreamChunk{Text: "Done."},
		session.PermissionRequest{ToolName: "Bash"},
		session.TurnComplete{},
	} {
		tr.Record(ev)
	}

	assert.Equal(t, []Entry{
		{Role: RoleSystem, Text: "Connected"},
		{Role: RoleUser, Text: "Hello"},
		{Role: RoleAgent, Text: "Hi there!"},
		{Role: RoleTool, ToolName: "mcp__github__list_issues", ToolInput: map[string]any{"repo": "x"}},
		{Role: RoleAgent, Text: "Done."},
	}, tr.Entries())
}

func TestTranscript_StreamEndsAtTurnBoundary(t *testing.T) {
	tr := NewTranscript()
	tr.Record(session.StreamChunk{Text: "one"})
	tr.Record(session.TurnComplete{})
	tr.Record(session.StreamChunk{Text: "two"})
	assert.Equal(t, 2, tr.Len())
}

func TestTranscript_Markdown(t *testing.T) {
	tr := NewTranscript()
	tr.Record(session.UserEcho{Text: "Hello"})
	tr.Record(session.StreamChunk{Text: "Hi there!"})
	tr.Record(session.AssistantContent{Blocks: []session.ContentBlock{
		session.ToolUseBlock{Name: "Read", Input: map[string]any{"path": "/tmp/a"}},
	}})

	want := "# You\n\nHello\n" +
		"\n---\n\n" +
		"# Agent\n\nHi there!\n" +
		"\n---\n\n" +
		"# Tool: Read\n\n```json\n{\n  \"path\": \"/tmp/a\"\n}\n```\n"
	assert.Equal(t, want, tr.Markdown())
}

func TestTranscript_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "conversations")
	tr := NewTranscript()
	tr.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	tr.Record(session.SystemNotice{Text: "Connection established"})

	path, err := tr.Save(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "convo-2026-03-04_05-06-07.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# System\n\nConnection established"))
}

func TestTranscript_Clear(t *testing.T) {
	tr := NewTranscript()
	tr.Record(session.StreamChunk{Text: "a"})
	tr.Clear()
	tr.Record(session.StreamChunk{Text: "b"})
	assert.Equal(t, []Entry{{Role: RoleAgent, Text: "b"}}, tr.Entries())
}

type nopSink struct{ rendered []session.TurnEvent }

func (s *nopSink) Render(ev session.TurnEvent) { s.rendered = append(s.rendered, ev) }
func (s *nopSink) ShowPermissionPrompt(string, any) {}
func (s *nopSink) HidePermissionPrompt()            {}
func (s *nopSink) SetThinking(bool)                 {}

func TestRecorder(t *testing.T) {
	inner := &nopSink{}
	rec := NewRecorder(inner, NewTranscript())
	rec.Render(session.UserEcho{Text: "hi"})

	assert.Len(t, inner.rendered, 1)
	assert.Equal(t, 1, rec.Transcript.Len())
}

func TestTranscript_SaveAsHTML(t *testing.T) {
	dir := t.TempDir()
	tr := NewTranscript()
	tr.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	tr.Record(session.UserEcho{Text: "Show me <b>bold</b>"})
	tr.Record(session.StreamChunk{Text: "Here:\n\n```go\nfmt.Println(\"hi\")\n```\n\n<script>alert(1)</script>"})

	path, err := tr.SaveAs(dir, FormatHTML)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "convo-2026-03-04_05-06-07.html"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	page := string(data)
	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<title>Conversation 2026-03-04_05-06-07</title>")
	assert.Contains(t, page, "<h1 id=\"you\">You</h1>")
	assert.Contains(t, page, `class="chroma"`)
	assert.NotContains(t, page, "<script>")
}
