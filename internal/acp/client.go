package acp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/coder/acp-go-sdk"

	"github.com/inercia/agentchat/internal/permission"
	"github.com/inercia/agentchat/internal/session"
)

// turn is the receiving end of one prompt's events.
type turn struct {
	ctx context.Context
	out chan<- session.BackendEvent
	wg  sync.WaitGroup
}

// send delivers ev unless the turn's context ends first.
func (t *turn) send(ev session.BackendEvent) bool {
	select {
	case t.out <- ev:
		return true
	case <-t.ctx.Done():
		return false
	}
}

// sessionClient is the acp.Client of a connection. It turns agent
// notifications into backend events for the current turn and routes
// permission requests to the authorizer.
type sessionClient struct {
	noTerminals

	fs        FileSystem
	authorize session.AuthorizeFunc
	logger    *slog.Logger

	mu      sync.Mutex
	current *turn
	// cancel aborts the agent's current prompt. Set once the session exists.
	cancel func()
}

var _ acp.Client = (*sessionClient)(nil)

func newSessionClient(fs FileSystem, authorize session.AuthorizeFunc, logger *slog.Logger) *sessionClient {
	if fs == nil {
		fs = DefaultFileSystem
	}
	return &sessionClient{fs: fs, authorize: authorize, logger: logger}
}

// begin makes t the receiver of session updates.
func (c *sessionClient) begin(t *turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// end detaches t and waits for deliveries already in progress.
func (c *sessionClient) end(t *turn) {
	c.mu.Lock()
	if c.current == t {
		c.current = nil
	}
	c.mu.Unlock()
	t.wg.Wait()
}

func (c *sessionClient) setCancel(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel = fn
}

// emit forwards ev to the current turn. Updates arriving between turns
// are dropped.
func (c *sessionClient) emit(ev session.BackendEvent) {
	c.mu.Lock()
	t := c.current
	if t == nil {
		c.mu.Unlock()
		c.logger.Debug("dropping update outside of a turn", "event", ev)
		return
	}
	t.wg.Add(1)
	c.mu.Unlock()

	defer t.wg.Done()
	t.send(ev)
}

func (c *sessionClient) SessionUpdate(ctx context.Context, params acp.SessionNotification) error {
	u := params.Update

	switch {
	case u.AgentMessageChunk != nil:
		if text := u.AgentMessageChunk.Content.Text; text != nil {
			c.emit(session.TextDelta{Text: text.Text})
		}

	case u.AgentThoughtChunk != nil:
		if text := u.AgentThoughtChunk.Content.Text; text != nil {
			c.emit(session.ThoughtDelta{Text: text.Text})
		}

	case u.UserMessageChunk != nil:
		if text := u.UserMessageChunk.Content.Text; text != nil {
			c.emit(session.UserMessage{Text: text.Text})
		}

	case u.ToolCall != nil:
		c.emit(session.AssistantMessage{Blocks: []session.ContentBlock{
			session.ToolUseBlock{
				ID:    string(u.ToolCall.ToolCallId),
				Name:  u.ToolCall.Title,
				Input: decodeInput(u.ToolCall.RawInput),
			},
		}})

	case u.ToolCallUpdate != nil:
		var status string
		if u.ToolCallUpdate.Status != nil {
			status = string(*u.ToolCallUpdate.Status)
		}
		c.logger.Debug("tool call update", "tool_call_id", u.ToolCallUpdate.ToolCallId, "status", status)

	case u.Plan != nil:
		if text := renderPlan(u.Plan); text != "" {
			c.emit(session.SystemMessage{Subtype: "plan", Text: text})
		}
	}
	return nil
}

func (c *sessionClient) RequestPermission(ctx context.Context, params acp.RequestPermissionRequest) (acp.RequestPermissionResponse, error) {
	if c.authorize == nil {
		return AutoApprovePermission(params.Options), nil
	}

	req := permission.Request{
		ToolName:  string(params.ToolCall.ToolCallId),
		ToolInput: decodeInput(params.ToolCall.RawInput),
	}
	if params.ToolCall.Title != nil && *params.ToolCall.Title != "" {
		req.ToolName = *params.ToolCall.Title
	}

	out, err := c.authorize(ctx, req)
	if err != nil {
		c.logger.Debug("permission request abandoned", "tool", req.ToolName, "error", err)
		return CancelledPermissionResponse(), nil
	}
	if out.Allowed() {
		return AllowPermission(params.Options), nil
	}

	if out.Interrupt {
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			// the agent is blocked on this response; cancel after replying
			go cancel()
		}
	}
	return RejectPermission(params.Options), nil
}

func (c *sessionClient) ReadTextFile(ctx context.Context, params acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error) {
	content, err := c.fs.ReadTextFile(params.Path, params.Line, params.Limit)
	if err != nil {
		return acp.ReadTextFileResponse{}, err
	}
	c.logger.Debug("agent read file", "path", params.Path, "size", len(content))
	return acp.ReadTextFileResponse{Content: content}, nil
}

func (c *sessionClient) WriteTextFile(ctx context.Context, params acp.WriteTextFileRequest) (acp.WriteTextFileResponse, error) {
	if err := c.fs.WriteTextFile(params.Path, params.Content); err != nil {
		return acp.WriteTextFileResponse{}, err
	}
	c.logger.Debug("agent wrote file", "path", params.Path, "size", len(params.Content))
	return acp.WriteTextFileResponse{}, nil
}

// decodeInput turns raw tool input into plain Go values so that
// permission rules and displays see maps rather than encoded JSON.
func decodeInput(raw any) any {
	var b []byte
	switch v := raw.(type) {
	case nil:
		return nil
	case json.RawMessage:
		b = v
	case []byte:
		b = v
	case string:
		trimmed := strings.TrimSpace(v)
		if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
			return v
		}
		b = []byte(trimmed)
	default:
		return raw
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return string(b)
	}
	return out
}

type planEntry struct {
	Content  string `json:"content"`
	Priority string `json:"priority"`
	Status   string `json:"status"`
}

// renderPlan formats a plan update as a checklist.
func renderPlan(plan any) string {
	b, err := json.Marshal(plan)
	if err != nil {
		return ""
	}
	var p struct {
		Entries []planEntry `json:"entries"`
	}
	if err := json.Unmarshal(b, &p); err != nil || len(p.Entries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Plan:")
	for _, e := range p.Entries {
		mark := " "
		switch e.Status {
		case "completed":
			mark = "x"
		case "in_progress":
			mark = "~"
		}
		sb.WriteString("\n- [" + mark + "] " + e.Content)
	}
	return sb.String()
}
