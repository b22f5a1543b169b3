package session

import (
	"context"
	"fmt"

	"github.com/inercia/agentchat/internal/config"
	"github.com/inercia/agentchat/internal/permission"
)

// AuthorizeFunc decides whether a tool call may proceed.
type AuthorizeFunc func(ctx context.Context, req permission.Request) (permission.Outcome, error)

// ConnectOptions configures a backend connection.
type ConnectOptions struct {
	// Capabilities are the providers to attach, keyed by name.
	Capabilities map[string]config.Capability
	// ResumeSessionID continues an existing conversation when set.
	ResumeSessionID string
	// Authorize is called for every tool permission request.
	Authorize AuthorizeFunc
}

// Backend opens connections to the agent.
type Backend interface {
	Connect(ctx context.Context, opts ConnectOptions) (Conn, error)
}

// Conn is one connection generation. It is never reused after Close.
type Conn interface {
	// Query sends text and returns the turn's events. The channel is closed
	// when the turn ends.
	Query(ctx context.Context, text string) (<-chan BackendEvent, error)
	// Interrupt asks the agent to abort the current turn.
	Interrupt(ctx context.Context) error
	// Close terminates the connection.
	Close() error
}

// ConnectionError reports a failure talking to the backend.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
