package permission

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrNoPendingRequest is returned by Submit when no prompt is waiting.
var ErrNoPendingRequest = errors.New("no pending permission request")

// Prompter presents permission requests to the operator.
// Implementations must be safe for concurrent use.
type Prompter interface {
	// ShowPermissionPrompt presents req and waits for Gate.Submit.
	ShowPermissionPrompt(req Request)
	// HidePermissionPrompt removes the prompt. It is called exactly once
	// for every ShowPermissionPrompt.
	HidePermissionPrompt()
	// PermissionDenied reports a plain denial of req.
	PermissionDenied(req Request)
}

type pendingRequest struct {
	req      Request
	decision chan Decision
}

// Gate serializes tool authorization requests: one prompt is outstanding at
// a time and later requests wait for it to be answered.
type Gate struct {
	prompter    Prompter
	rules       *Rules
	autoApprove bool
	logger      *slog.Logger

	// sem is a one-slot semaphore admitting a single outstanding prompt.
	sem chan struct{}

	mu      sync.Mutex
	pending *pendingRequest
}

// Option configures a Gate.
type Option func(*Gate)

// WithRules sets the auto-allow rules.
func WithRules(r *Rules) Option {
	return func(g *Gate) { g.rules = r }
}

// WithAutoApprove allows every request without asking.
func WithAutoApprove(enabled bool) Option {
	return func(g *Gate) { g.autoApprove = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// NewGate creates a gate presenting prompts through p.
func NewGate(p Prompter, opts ...Option) *Gate {
	g := &Gate{
		prompter: p,
		logger:   slog.Default(),
		sem:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize decides whether a tool call may proceed. Unless a rule matches,
// it shows a prompt and blocks until Submit is called or ctx ends.
// The only error is the context's.
func (g *Gate) Authorize(ctx context.Context, req Request) (Outcome, error) {
	if g.autoApprove {
		g.logger.Debug("Tool auto-approved", "tool", req.ToolName)
		return outcomeFor(req, Decision{Kind: Allow}), nil
	}
	if rule, ok := g.rules.Match(req); ok {
		g.logger.Debug("Tool allowed by rule", "tool", req.ToolName, "rule", rule)
		return outcomeFor(req, Decision{Kind: Allow}), nil
	}

	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	defer func() { <-g.sem }()

	p := &pendingRequest{req: req, decision: make(chan Decision, 1)}
	g.mu.Lock()
	g.pending = p
	g.mu.Unlock()

	g.logger.Debug("Waiting for permission decision", "tool", req.ToolName)
	g.prompter.ShowPermissionPrompt(req)

	var d Decision
	select {
	case d = <-p.decision:
	case <-ctx.Done():
		g.mu.Lock()
		if g.pending == p {
			g.pending = nil
		}
		g.mu.Unlock()
		g.prompter.HidePermissionPrompt()
		return Outcome{}, ctx.Err()
	}

	g.prompter.HidePermissionPrompt()
	g.logger.Info("Permission decided", "tool", req.ToolName, "decision", d.Kind.String())

	if d.Kind == Deny {
		g.prompter.PermissionDenied(req)
	}
	return outcomeFor(req, d), nil
}

// Submit answers the outstanding prompt with raw operator input.
func (g *Gate) Submit(raw string) (Decision, error) {
	g.mu.Lock()
	p := g.pending
	g.pending = nil
	g.mu.Unlock()

	if p == nil {
		return Decision{}, ErrNoPendingRequest
	}

	d := Normalize(raw)
	p.decision <- d
	return d, nil
}

// Pending reports whether a prompt is awaiting a decision.
func (g *Gate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending != nil
}
