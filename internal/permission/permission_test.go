package permission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePrompter struct {
	mu     sync.Mutex
	shown  []Request
	hidden int
	denied []Request
	showCh chan Request
}

func newFakePrompter() *fakePrompter {
	return &fakePrompter{showCh: make(chan Request, 8)}
}

func (f *fakePrompter) ShowPermissionPrompt(req Request) {
	f.mu.Lock()
	f.shown = append(f.shown, req)
	f.mu.Unlock()
	f.showCh <- req
}

func (f *fakePrompter) HidePermissionPrompt() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidden++
}

func (f *fakePrompter) PermissionDenied(req Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied = append(f.denied, req)
}

func (f *fakePrompter) counts() (shown, hidden, denied int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.shown), f.hidden, len(f.denied)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want Decision
	}{
		{"", Decision{Kind: Allow}},
		{"  ", Decision{Kind: Allow}},
		{"y", Decision{Kind: Allow}},
		{"YES", Decision{Kind: Allow}},
		{" Allow ", Decision{Kind: Allow}},
		{"n", Decision{Kind: Deny}},
		{"No", Decision{Kind: Deny}},
		{"deny", Decision{Kind: Deny}},
		{"use the staging db instead", Decision{Kind: DenyWithFollowup, Text: "use the staging db instead"}},
		{"yess", Decision{Kind: DenyWithFollowup, Text: "yess"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func authorizeAsync(g *Gate, req Request) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		out, _ := g.Authorize(context.Background(), req)
		ch <- out
	}()
	return ch
}

func waitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return Outcome{}
	}
}

func TestGate_Allow(t *testing.T) {
	p := newFakePrompter()
	g := NewGate(p)
	input := map[string]any{"path": "/tmp/x"}

	ch := authorizeAsync(g, Request{ToolName: "Read", ToolInput: input})
	<-p.showCh
	assert.True(t, g.Pending())

	d, err := g.Submit("yes")
	require.NoError(t, err)
	assert.Equal(t, Allow, d.Kind)

	out := waitOutcome(t, ch)
	assert.Equal(t, Outcome{Kind: Allow, Input: input}, out)
	assert.False(t, g.Pending())

	shown, hidden, denied := p.counts()
	assert.Equal(t, 1, shown)
	assert.Equal(t, 1, hidden)
	assert.Equal(t, 0, denied)
}

func TestGate_Deny(t *testing.T) {
	p := newFakePrompter()
	g := NewGate(p)

	ch := authorizeAsync(g, Request{ToolName: "mcp__github__delete_repo"})
	<-p.showCh
	_, err := g.Submit("no")
	require.NoError(t, err)

	out := waitOutcome(t, ch)
	assert.Equal(t, Outcome{Kind: Deny, Message: DeniedMessage, Interrupt: true}, out)

	_, hidden, denied := p.counts()
	assert.Equal(t, 1, hidden)
	assert.Equal(t, 1, denied, "denial is reported exactly once")
}

func TestGate_DenyWithFollowup(t *testing.T) {
	p := newFakePrompter()
	g := NewGate(p)

	ch := authorizeAsync(g, Request{ToolName: "Bash"})
	<-p.showCh
	_, err := g.Submit("run the tests first")
	require.NoError(t, err)

	out := waitOutcome(t, ch)
	assert.Equal(t, Outcome{Kind: DenyWithFollowup, Message: "run the tests first", Interrupt: true}, out)

	_, _, denied := p.counts()
	assert.Equal(t, 0, denied, "follow-up is not reported as a plain denial")
}

func TestGate_SubmitWithoutPending(t *testing.T) {
	g := NewGate(newFakePrompter())
	_, err := g.Submit("y")
	assert.ErrorIs(t, err, ErrNoPendingRequest)
}

func TestGate_Serializes(t *testing.T) {
	p := newFakePrompter()
	g := NewGate(p)

	first := authorizeAsync(g, Request{ToolName: "first"})
	req := <-p.showCh
	assert.Equal(t, "first", req.ToolName)

	second := authorizeAsync(g, Request{ToolName: "second"})

	select {
	case <-p.showCh:
		t.Fatal("second prompt shown while the first is outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := g.Submit("y")
	require.NoError(t, err)
	waitOutcome(t, first)

	req = <-p.showCh
	assert.Equal(t, "second", req.ToolName)
	_, err = g.Submit("n")
	require.NoError(t, err)
	assert.Equal(t, Deny, waitOutcome(t, second).Kind)
}

func TestGate_ContextCancel(t *testing.T) {
	p := newFakePrompter()
	g := NewGate(p)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := g.Authorize(ctx, Request{ToolName: "Bash"})
		errCh <- err
	}()
	<-p.showCh
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Authorize did not return after cancel")
	}
	assert.False(t, g.Pending())
	_, hidden, _ := p.counts()
	assert.Equal(t, 1, hidden)
}

func TestGate_AutoApprove(t *testing.T) {
	p := newFakePrompter()
	g := NewGate(p, WithAutoApprove(true))

	out, err := g.Authorize(context.Background(), Request{ToolName: "Bash", ToolInput: "ls"})
	require.NoError(t, err)
	assert.Equal(t, Outcome{Kind: Allow, Input: "ls"}, out)

	shown, _, _ := p.counts()
	assert.Equal(t, 0, shown)
}

func TestGate_Rules(t *testing.T) {
	rules, err := CompileRules([]string{
		"tool == 'Read'",
		"server == 'github' && tool.startsWith('list_')",
		"has(input.path) && input.path.startsWith('/tmp/')",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rules.Len())

	tests := []struct {
		req  Request
		want bool
	}{
		{Request{ToolName: "Read"}, true},
		{Request{ToolName: "mcp__github__list_issues"}, true},
		{Request{ToolName: "mcp__github__delete_repo"}, false},
		{Request{ToolName: "Write", ToolInput: map[string]any{"path": "/tmp/a"}}, true},
		{Request{ToolName: "Write", ToolInput: map[string]any{"path": "/etc/passwd"}}, false},
		{Request{ToolName: "Write", ToolInput: struct {
			Path string `json:"path"`
		}{"/tmp/b"}}, true},
	}
	for _, tt := range tests {
		_, got := rules.Match(tt.req)
		assert.Equal(t, tt.want, got, "request %+v", tt.req)
	}

	p := newFakePrompter()
	g := NewGate(p, WithRules(rules))
	out, err := g.Authorize(context.Background(), Request{ToolName: "Read"})
	require.NoError(t, err)
	assert.True(t, out.Allowed())
}

func TestCompileRules_Errors(t *testing.T) {
	_, err := CompileRules([]string{"tool =="})
	assert.Error(t, err)

	_, err = CompileRules([]string{"tool"})
	assert.Error(t, err, "non-bool expressions are rejected")

	r, err := CompileRules(nil)
	require.NoError(t, err)
	_, ok := r.Match(Request{ToolName: "Read"})
	assert.False(t, ok)
}
