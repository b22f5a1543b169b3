package auxiliary

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/inercia/agentchat/internal/config"
	"github.com/inercia/agentchat/internal/logging"
	"github.com/inercia/agentchat/internal/permission"
	"github.com/inercia/agentchat/internal/session"
)

// replyBackend answers every query with the configured events.
type replyBackend struct {
	mu        sync.Mutex
	connects  int
	closes    int
	connErr   error
	queryErr  error
	events    []session.BackendEvent
	prompts   []string
	authorize session.AuthorizeFunc
}

func (b *replyBackend) Connect(ctx context.Context, opts session.ConnectOptions) (session.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects++
	b.authorize = opts.Authorize
	if b.connErr != nil {
		return nil, b.connErr
	}
	return &replyConn{b: b}, nil
}

type replyConn struct{ b *replyBackend }

func (c *replyConn) Query(ctx context.Context, text string) (<-chan session.BackendEvent, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.prompts = append(c.b.prompts, text)
	if err := c.b.queryErr; err != nil {
		c.b.queryErr = nil
		return nil, err
	}
	ch := make(chan session.BackendEvent, len(c.b.events))
	for _, ev := range c.b.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (c *replyConn) Interrupt(ctx context.Context) error { return nil }

func (c *replyConn) Close() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.closes++
	return nil
}

func TestNewManager(t *testing.T) {
	m := NewManager(Options{Agent: config.AgentConfig{Command: "echo test"}})
	if m == nil {
		t.Fatal("NewManager returned nil")
	}
	if m.IsStarted() {
		t.Error("Manager should not be started initially")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close on unstarted manager: %v", err)
	}
}

func TestManager_Prompt(t *testing.T) {
	b := &replyBackend{events: []session.BackendEvent{
		session.SystemMessage{Subtype: session.SubtypeInit, SessionID: "aux"},
		session.TextDelta{Text: "  Hello"},
		session.ThoughtDelta{Text: "ignored"},
		session.TextDelta{Text: ", world  "},
		session.ResultMessage{StopReason: "end_turn"},
	}}
	m := newManager(b, logging.Inference())

	got, err := m.Prompt(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Prompt failed: %v", err)
	}
	if got != "Hello, world" {
		t.Errorf("Prompt = %q, want %q", got, "Hello, world")
	}
	if !m.IsStarted() {
		t.Error("Manager should be started after a prompt")
	}

	if _, err := m.Prompt(context.Background(), "again"); err != nil {
		t.Fatalf("second Prompt failed: %v", err)
	}
	if b.connects != 1 {
		t.Errorf("connects = %d, want 1", b.connects)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if m.IsStarted() || b.closes != 1 {
		t.Errorf("after Close: started=%v closes=%d", m.IsStarted(), b.closes)
	}
}

func TestManager_DeniesTools(t *testing.T) {
	b := &replyBackend{}
	m := newManager(b, logging.Inference())
	if _, err := m.Prompt(context.Background(), "hi"); err != nil {
		t.Fatalf("Prompt failed: %v", err)
	}
	out, err := b.authorize(context.Background(), permission.Request{ToolName: "Bash"})
	if err != nil || out.Allowed() {
		t.Errorf("authorize = %+v, %v; want a denial", out, err)
	}
}

func TestManager_ConnectError(t *testing.T) {
	m := newManager(&replyBackend{connErr: errors.New("no agent")}, logging.Inference())
	_, err := m.Prompt(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "no agent") {
		t.Fatalf("Prompt err = %v", err)
	}
	if m.IsStarted() {
		t.Error("Manager should not be started after a failed connect")
	}
}

func TestManager_FailureResetsSession(t *testing.T) {
	b := &replyBackend{queryErr: errors.New("broken pipe")}
	m := newManager(b, logging.Inference())
	if _, err := m.Prompt(context.Background(), "hi"); err == nil {
		t.Fatal("expected error")
	}
	if m.IsStarted() {
		t.Error("failed session should be dropped")
	}

	b.events = []session.BackendEvent{session.SystemMessage{Subtype: "error", Text: "agent crashed"}}
	_, err := m.Prompt(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "agent crashed") {
		t.Fatalf("Prompt err = %v", err)
	}
	if b.connects != 2 {
		t.Errorf("connects = %d, want 2", b.connects)
	}
}

func TestManager_Classify(t *testing.T) {
	b := &replyBackend{events: []session.BackendEvent{
		session.TextDelta{Text: "```json\n{\"servers\": [\"github\"]}\n```"},
	}}
	m := newManager(b, logging.Inference())
	got, err := m.Classify(context.Background(), "which servers?")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got != `{"servers": ["github"]}` {
		t.Errorf("Classify = %q", got)
	}
}

func TestCleanReply(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"quoted"`, "quoted"},
		{`'single'`, "single"},
		{"  plain  ", "plain"},
		{"```\nfenced\n```", "fenced"},
		{"```json\n{}\n```", "{}"},
		{`"`, `"`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanReply(tt.input); got != tt.want {
			t.Errorf("cleanReply(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestReadOnlyFS(t *testing.T) {
	err := readOnlyFS{}.WriteTextFile("/tmp/x", "data")
	if !errors.Is(err, ErrReadOnly) {
		t.Errorf("WriteTextFile err = %v, want ErrReadOnly", err)
	}
}
