package acp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/coder/acp-go-sdk"

	"github.com/inercia/agentchat/internal/config"
	"github.com/inercia/agentchat/internal/logging"
	"github.com/inercia/agentchat/internal/runner"
	"github.com/inercia/agentchat/internal/session"
	"github.com/inercia/agentchat/internal/status"
)

// ErrTurnInProgress is returned by Query while a prompt is running.
var ErrTurnInProgress = errors.New("a turn is already in progress")

// Options configures a Backend.
type Options struct {
	Agent config.AgentConfig
	// SystemPrompt is the base prompt; attached providers add their own.
	SystemPrompt    string
	Model           string
	DisallowedTools []string
	// Runner starts the agent. Nil runs it directly.
	Runner *runner.Runner
	// FileSystem serves agent file requests. Nil uses DefaultFileSystem.
	FileSystem FileSystem
	Logger     *slog.Logger
}

// Backend starts one agent process per connection.
type Backend struct {
	opts   Options
	logger *slog.Logger
}

var _ session.Backend = (*Backend)(nil)

// NewBackend returns a backend for opts.
func NewBackend(opts Options) *Backend {
	logger := opts.Logger
	if logger == nil {
		logger = logging.ACP()
	}
	return &Backend{opts: opts, logger: logger}
}

// Connect starts the agent, initializes the protocol and opens a session
// with opts.Capabilities attached. A resumable session is loaded when the
// agent supports it, otherwise a new one is created.
func (b *Backend) Connect(ctx context.Context, opts session.ConnectOptions) (session.Conn, error) {
	servers, err := MCPServers(opts.Capabilities)
	if err != nil {
		return nil, &session.ConnectionError{Op: "configure", Err: err}
	}

	env := make(map[string]string, len(b.opts.Agent.Env)+1)
	for k, v := range b.opts.Agent.Env {
		env[k] = v
	}
	if b.opts.Model != "" {
		env["ANTHROPIC_MODEL"] = b.opts.Model
	}

	client := newSessionClient(b.opts.FileSystem, opts.Authorize, b.logger)
	proc, err := startProcess(processOptions{
		Command: b.opts.Agent.Command,
		Cwd:     b.opts.Agent.Cwd,
		Env:     env,
		Runner:  b.opts.Runner,
		Logger:  b.logger,
	}, client)
	if err != nil {
		return nil, &session.ConnectionError{Op: "start", Err: err}
	}

	initResp, err := proc.conn.Initialize(ctx, acp.InitializeRequest{
		ProtocolVersion: acp.ProtocolVersionNumber,
		ClientCapabilities: acp.ClientCapabilities{
			Fs: acp.FileSystemCapability{
				ReadTextFile:  true,
				WriteTextFile: true,
			},
		},
	})
	if err != nil {
		proc.close()
		return nil, &session.ConnectionError{Op: "initialize", Err: proc.annotate(err)}
	}

	caps := config.Sorted(opts.Capabilities)
	cwd := b.cwd()
	meta := map[string]any{
		"systemPrompt": config.BuildSystemPrompt(b.opts.SystemPrompt, caps),
		"claudeCode": map[string]any{
			"options": map[string]any{"disallowedTools": b.disallowed(caps)},
		},
	}

	var sessionID acp.SessionId
	if opts.ResumeSessionID != "" && initResp.AgentCapabilities.LoadSession {
		_, err := proc.conn.LoadSession(ctx, acp.LoadSessionRequest{
			SessionId:  acp.SessionId(opts.ResumeSessionID),
			Cwd:        cwd,
			McpServers: servers,
			Meta:       meta,
		})
		if err == nil {
			sessionID = acp.SessionId(opts.ResumeSessionID)
			b.logger.Info("Resumed agent session", "session_id", opts.ResumeSessionID)
		} else {
			b.logger.Warn("Failed to load agent session, creating new session",
				"session_id", opts.ResumeSessionID, "error", err)
		}
	}
	if sessionID == "" {
		sess, err := proc.conn.NewSession(ctx, acp.NewSessionRequest{
			Cwd:        cwd,
			McpServers: servers,
			Meta:       meta,
		})
		if err != nil {
			proc.close()
			return nil, &session.ConnectionError{Op: "new session", Err: proc.annotate(err)}
		}
		sessionID = sess.SessionId
	}

	c := &conn{
		proc:      proc,
		client:    client,
		sessionID: sessionID,
		servers:   make([]string, 0, len(caps)),
		logger:    b.logger.With("session_id", string(sessionID)),
	}
	for _, cp := range caps {
		c.servers = append(c.servers, cp.Name)
	}
	client.setCancel(func() {
		if err := c.Interrupt(context.Background()); err != nil {
			c.logger.Debug("cancel after denial failed", "error", err)
		}
	})
	c.logger.Info("Connected to agent", "servers", c.servers,
		"protocol", initResp.ProtocolVersion)
	return c, nil
}

func (b *Backend) cwd() string {
	if b.opts.Agent.Cwd != "" {
		return b.opts.Agent.Cwd
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// disallowed merges the global and per-provider disallowed tools.
func (b *Backend) disallowed(caps []config.Capability) []string {
	out := append([]string{}, b.opts.DisallowedTools...)
	for _, c := range caps {
		out = append(out, c.DisallowedTools...)
	}
	return out
}

// conn is one agent session.
type conn struct {
	proc      *process
	client    *sessionClient
	sessionID acp.SessionId
	servers   []string
	logger    *slog.Logger

	mu          sync.Mutex
	busy        bool
	initialized bool
}

var _ session.Conn = (*conn)(nil)

// Query prompts the agent with text. The first turn of a connection opens
// with an init message naming the session and the servers handed to the
// agent. The agent does not report whether they started, so they are
// listed as attached.
func (c *conn) Query(ctx context.Context, text string) (<-chan session.BackendEvent, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, ErrTurnInProgress
	}
	c.busy = true
	first := !c.initialized
	c.initialized = true
	c.mu.Unlock()

	out := make(chan session.BackendEvent, 16)
	turnCtx, cancel := context.WithCancel(ctx)
	t := &turn{ctx: turnCtx, out: out}
	c.client.begin(t)

	go func() {
		defer func() {
			cancel()
			c.mu.Lock()
			c.busy = false
			c.mu.Unlock()
			close(out)
		}()

		if first && !t.send(c.initMessage()) {
			c.client.end(t)
			return
		}

		resp, err := c.proc.conn.Prompt(turnCtx, acp.PromptRequest{
			SessionId: c.sessionID,
			Prompt:    []acp.ContentBlock{acp.TextBlock(text)},
		})
		// updates sent before the response belong to this turn
		c.client.end(t)

		if err != nil {
			c.logger.Warn("Prompt failed", "error", err)
			t.send(session.SystemMessage{Subtype: "error", Text: c.proc.annotate(err).Error()})
			return
		}
		t.send(session.ResultMessage{StopReason: string(resp.StopReason)})
	}()
	return out, nil
}

func (c *conn) initMessage() session.SystemMessage {
	servers := make([]any, 0, len(c.servers))
	for _, name := range c.servers {
		servers = append(servers, map[string]any{"name": name, "status": string(status.StateAttached)})
	}
	return session.SystemMessage{
		Subtype:   session.SubtypeInit,
		SessionID: string(c.sessionID),
		Data:      map[string]any{"mcp_servers": servers},
	}
}

func (c *conn) Interrupt(ctx context.Context) error {
	if err := c.proc.conn.Cancel(ctx, acp.CancelNotification{SessionId: c.sessionID}); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	return nil
}

func (c *conn) Close() error {
	c.logger.Debug("Closing agent connection")
	return c.proc.close()
}
