// Package auxiliary runs a hidden agent session for utility tasks such as
// capability classification. The session has no capability providers
// attached, is never shown to the operator and is not persisted.
package auxiliary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/inercia/agentchat/internal/acp"
	"github.com/inercia/agentchat/internal/config"
	"github.com/inercia/agentchat/internal/inference"
	"github.com/inercia/agentchat/internal/logging"
	"github.com/inercia/agentchat/internal/permission"
	"github.com/inercia/agentchat/internal/runner"
	"github.com/inercia/agentchat/internal/session"
)

// ErrReadOnly is returned when the hidden session tries to write a file.
var ErrReadOnly = errors.New("the auxiliary session cannot write files")

// Options configures a Manager.
type Options struct {
	Agent  config.AgentConfig
	Model  string
	Runner *runner.Runner
	Logger *slog.Logger
}

// Manager owns the hidden session. It is lazy: the agent is started on the
// first prompt. Safe for concurrent use; prompts are serialized.
type Manager struct {
	backend session.Backend
	logger  *slog.Logger

	mu   sync.Mutex
	conn session.Conn

	requestMu sync.Mutex
}

var _ inference.Classifier = (*Manager)(nil)

// NewManager returns a manager that starts agents as described by opts.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Inference()
	}
	backend := acp.NewBackend(acp.Options{
		Agent:        opts.Agent,
		SystemPrompt: classifierSystemPrompt,
		Model:        opts.Model,
		Runner:       opts.Runner,
		FileSystem:   readOnlyFS{acp.DefaultFileSystem},
		Logger:       logger,
	})
	return newManager(backend, logger)
}

func newManager(backend session.Backend, logger *slog.Logger) *Manager {
	return &Manager{backend: backend, logger: logger}
}

// start connects if needed. Must be called with mu held.
func (m *Manager) start(ctx context.Context) (session.Conn, error) {
	if m.conn != nil {
		return m.conn, nil
	}
	conn, err := m.backend.Connect(ctx, session.ConnectOptions{Authorize: denyAll})
	if err != nil {
		return nil, err
	}
	m.conn = conn
	m.logger.Info("Auxiliary session started")
	return conn, nil
}

// IsStarted reports whether the hidden agent is running.
func (m *Manager) IsStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Close stops the hidden agent. The next prompt starts a new one.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

// Prompt sends message and returns the agent's complete text reply.
func (m *Manager) Prompt(ctx context.Context, message string) (string, error) {
	m.requestMu.Lock()
	defer m.requestMu.Unlock()

	m.mu.Lock()
	conn, err := m.start(ctx)
	m.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("failed to start auxiliary session: %w", err)
	}

	events, err := conn.Query(ctx, message)
	if err != nil {
		m.reset(conn)
		return "", fmt.Errorf("prompt error: %w", err)
	}

	var reply strings.Builder
	var failure string
	for ev := range events {
		switch e := ev.(type) {
		case session.TextDelta:
			reply.WriteString(e.Text)
		case session.SystemMessage:
			if e.Subtype == "error" {
				failure = e.Text
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if failure != "" {
		m.reset(conn)
		return "", fmt.Errorf("prompt error: %s", failure)
	}
	return strings.TrimSpace(reply.String()), nil
}

// Classify answers a classification prompt.
func (m *Manager) Classify(ctx context.Context, prompt string) (string, error) {
	reply, err := m.Prompt(ctx, prompt)
	if err != nil {
		return "", err
	}
	return cleanReply(reply), nil
}

// reset drops conn after a failure so the next prompt reconnects.
func (m *Manager) reset(conn session.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == conn {
		_ = m.conn.Close()
		m.conn = nil
	}
}

// denyAll refuses every tool call of the hidden session.
func denyAll(ctx context.Context, req permission.Request) (permission.Outcome, error) {
	return permission.Outcome{Kind: permission.Deny, Message: permission.DeniedMessage}, nil
}

// readOnlyFS serves reads and refuses writes.
type readOnlyFS struct {
	acp.FileSystem
}

func (readOnlyFS) WriteTextFile(path, content string) error {
	return fmt.Errorf("%s: %w", path, ErrReadOnly)
}
