package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/inercia/agentchat/internal/config"
	"github.com/inercia/agentchat/internal/inference"
)

// scriptFunc plays one turn: it sends events to out and returns. The
// channel is closed by the fake connection afterwards.
type scriptFunc func(ctx context.Context, c *fakeConn, text string, out chan<- BackendEvent)

func emit(ctx context.Context, out chan<- BackendEvent, events ...BackendEvent) bool {
	for _, ev := range events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// echoScript answers every message with the init event and one chunk.
func echoScript(sessionID string) scriptFunc {
	return func(ctx context.Context, c *fakeConn, text string, out chan<- BackendEvent) {
		emit(ctx, out,
			SystemMessage{Subtype: SubtypeInit, SessionID: sessionID},
			TextDelta{Text: "echo: " + text},
			ResultMessage{StopReason: "end_turn"},
		)
	}
}

type fakeBackend struct {
	mu          sync.Mutex
	script      scriptFunc
	connects    []ConnectOptions
	conns       []*fakeConn
	failConnect int
	queryErr    error
	inFlight    int
	maxInFlight int
}

func newFakeBackend(script scriptFunc) *fakeBackend {
	return &fakeBackend{script: script}
}

func (b *fakeBackend) Connect(ctx context.Context, opts ConnectOptions) (Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.connects = append(b.connects, opts)
	if b.failConnect > 0 {
		b.failConnect--
		return nil, errors.New("agent not found")
	}
	c := &fakeConn{backend: b, opts: opts}
	b.conns = append(b.conns, c)
	return c, nil
}

func (b *fakeBackend) connectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.connects)
}

func (b *fakeBackend) connectOptions(i int) ConnectOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects[i]
}

func (b *fakeBackend) conn(i int) *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conns[i]
}

func (b *fakeBackend) lastConn() *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.conns) == 0 {
		return nil
	}
	return b.conns[len(b.conns)-1]
}

func (b *fakeBackend) queries() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var all []string
	for _, c := range b.conns {
		all = append(all, c.queries...)
	}
	return all
}

type fakeConn struct {
	backend *fakeBackend
	opts    ConnectOptions

	// guarded by backend.mu
	queries    []string
	interrupts int
	closed     bool
}

func (c *fakeConn) Query(ctx context.Context, text string) (<-chan BackendEvent, error) {
	b := c.backend
	b.mu.Lock()
	c.queries = append(c.queries, text)
	if err := b.queryErr; err != nil {
		b.queryErr = nil
		b.mu.Unlock()
		return nil, err
	}
	b.inFlight++
	if b.inFlight > b.maxInFlight {
		b.maxInFlight = b.inFlight
	}
	script := b.script
	b.mu.Unlock()

	ch := make(chan BackendEvent)
	go func() {
		defer func() {
			b.mu.Lock()
			b.inFlight--
			b.mu.Unlock()
			close(ch)
		}()
		script(ctx, c, text, ch)
	}()
	return ch, nil
}

func (c *fakeConn) Interrupt(ctx context.Context) error {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	c.interrupts++
	return nil
}

func (c *fakeConn) Close() error {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	return c.closed
}

func (c *fakeConn) queryLog() []string {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	return append([]string(nil), c.queries...)
}

func (c *fakeConn) interruptCount() int {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	return c.interrupts
}

type shownPrompt struct {
	ToolName  string
	ToolInput any
}

type recordingSink struct {
	mu       sync.Mutex
	events   []TurnEvent
	thinking []bool
	shown    []shownPrompt
	hidden   int

	promptCh   chan shownPrompt
	completeCh chan TurnComplete
	chunkCh    chan string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		promptCh:   make(chan shownPrompt, 16),
		completeCh: make(chan TurnComplete, 16),
		chunkCh:    make(chan string, 64),
	}
}

func (s *recordingSink) Render(ev TurnEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()

	switch e := ev.(type) {
	case TurnComplete:
		s.completeCh <- e
	case StreamChunk:
		s.chunkCh <- e.Text
	}
}

func (s *recordingSink) ShowPermissionPrompt(toolName string, toolInput any) {
	p := shownPrompt{ToolName: toolName, ToolInput: toolInput}
	s.mu.Lock()
	s.shown = append(s.shown, p)
	s.mu.Unlock()
	s.promptCh <- p
}

func (s *recordingSink) HidePermissionPrompt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hidden++
}

func (s *recordingSink) SetThinking(thinking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thinking = append(s.thinking, thinking)
}

func (s *recordingSink) snapshot() []TurnEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TurnEvent(nil), s.events...)
}

func (s *recordingSink) chunks() []string {
	var out []string
	for _, ev := range s.snapshot() {
		if c, ok := ev.(StreamChunk); ok {
			out = append(out, c.Text)
		}
	}
	return out
}

func (s *recordingSink) notices() []string {
	var out []string
	for _, ev := range s.snapshot() {
		if n, ok := ev.(SystemNotice); ok {
			out = append(out, n.Text)
		}
	}
	return out
}

func (s *recordingSink) lastThinking() (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.thinking) == 0 {
		return false, false
	}
	return s.thinking[len(s.thinking)-1], true
}

func (s *recordingSink) waitComplete(t *testing.T) TurnComplete {
	t.Helper()
	select {
	case tc := <-s.completeCh:
		return tc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for TurnComplete")
		return TurnComplete{}
	}
}

func (s *recordingSink) waitPrompt(t *testing.T) shownPrompt {
	t.Helper()
	select {
	case p := <-s.promptCh:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for permission prompt")
		return shownPrompt{}
	}
}

func (s *recordingSink) waitChunk(t *testing.T) string {
	t.Helper()
	select {
	case c := <-s.chunkCh:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream chunk")
		return ""
	}
}

// scriptedInferrer returns results in order, then empty results.
type scriptedInferrer struct {
	mu       sync.Mutex
	results  []inference.Result
	messages []string
}

func (f *scriptedInferrer) Infer(ctx context.Context, message string, reg *config.Registry, active map[string]bool) inference.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	if len(f.results) == 0 {
		return inference.Result{}
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res
}

func testRegistry() *config.Registry {
	return config.NewRegistry(&config.Config{
		MCPServers: map[string]config.ServerConfig{
			"github":   {Description: "GitHub", Command: "gh-mcp"},
			"postgres": {Description: "Database", Command: "pg-mcp"},
		},
	})
}

// startLoop runs a loop until the test ends.
func startLoop(t *testing.T, opts Options) (*Loop, *recordingSink) {
	t.Helper()
	sink := newRecordingSink()
	opts.Sink = sink
	if opts.ReconnectPause == 0 {
		opts.ReconnectPause = time.Millisecond
	}

	l, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()
	t.Cleanup(func() {
		l.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("loop did not stop")
		}
	})
	return l, sink
}
