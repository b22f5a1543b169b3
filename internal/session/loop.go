package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/inercia/agentchat/internal/config"
	"github.com/inercia/agentchat/internal/display"
	"github.com/inercia/agentchat/internal/inference"
	"github.com/inercia/agentchat/internal/logging"
	"github.com/inercia/agentchat/internal/permission"
	"github.com/inercia/agentchat/internal/status"
)

// DefaultReconnectPause is the delay between announcing new providers and
// reconnecting with them.
const DefaultReconnectPause = 100 * time.Millisecond

// ErrAlreadyRunning is returned by Run when the loop is already running.
var ErrAlreadyRunning = errors.New("session loop already running")

// Inferrer selects the capability providers a message needs.
type Inferrer interface {
	Infer(ctx context.Context, message string, reg *config.Registry, active map[string]bool) inference.Result
}

// Options configures a Loop.
type Options struct {
	Backend  Backend
	Sink     Sink
	Registry *config.Registry
	// Inference enables capability inference when set. Without it every
	// enabled provider is attached at startup.
	Inference Inferrer
	// Rules are auto-allow permission rules.
	Rules       *permission.Rules
	AutoApprove bool
	// ReconnectPause defaults to DefaultReconnectPause.
	ReconnectPause time.Duration
	// Status receives attached provider statuses. Optional.
	Status *status.Hub
	Logger *slog.Logger
}

// Loop is the agent session loop. A single goroutine (Run) processes
// commands; the user-action methods are safe to call from any goroutine.
type Loop struct {
	backend  Backend
	sink     Sink
	registry *config.Registry
	inferrer Inferrer
	hub      *status.Hub
	pause    time.Duration
	logger   *slog.Logger

	gate  *permission.Gate
	queue *Queue

	// interrupted suppresses the rest of the current turn.
	interrupted atomic.Bool

	mu        sync.Mutex
	state     State
	conn      Conn
	sessionID string
	active    map[string]bool
	running   bool

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a loop. Options.Backend and Options.Sink are required.
func New(opts Options) (*Loop, error) {
	if opts.Backend == nil {
		return nil, errors.New("session: backend is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("session: sink is required")
	}
	if opts.Registry == nil {
		opts.Registry = config.NewRegistry(nil)
	}
	if opts.ReconnectPause <= 0 {
		opts.ReconnectPause = DefaultReconnectPause
	}
	if opts.Logger == nil {
		opts.Logger = logging.Session()
	}

	l := &Loop{
		backend:  opts.Backend,
		sink:     opts.Sink,
		registry: opts.Registry,
		inferrer: opts.Inference,
		hub:      opts.Status,
		pause:    opts.ReconnectPause,
		logger:   opts.Logger,
		queue:    NewQueue(),
		active:   make(map[string]bool),
		closed:   make(chan struct{}),
	}
	l.gate = permission.NewGate(sinkPrompter{sink: opts.Sink},
		permission.WithRules(opts.Rules),
		permission.WithAutoApprove(opts.AutoApprove),
		permission.WithLogger(logging.Permission()),
	)
	return l, nil
}

// Run connects to the backend and processes commands until ctx ends or
// Close is called. The connection is closed on return.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	defer func() {
		l.disconnect()
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	_ = l.connect(ctx, l.startupCapabilities(), "")

	for {
		qc, err := l.queue.Pop(ctx)
		if err != nil {
			return nil
		}

		switch cmd := qc.Command.(type) {
		case StartNewConversation:
			l.newConversation(ctx)
		case SendMessage:
			l.runTurn(ctx, cmd.Text)
		default:
			l.logger.Warn("Ignoring unknown command", "type", fmt.Sprintf("%T", cmd))
		}
	}
}

// Close stops Run. It is safe to call more than once.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.queue.Close()
		close(l.closed)
	})
}

// Submit echoes text and queues it as the next message.
func (l *Loop) Submit(text string) error {
	l.sink.Render(UserEcho{Text: text})
	l.sink.SetThinking(true)
	if _, err := l.queue.Add(SendMessage{Text: text}); err != nil {
		l.sink.SetThinking(false)
		return err
	}
	return nil
}

// NewConversation queues a conversation reset.
func (l *Loop) NewConversation() error {
	_, err := l.queue.Add(StartNewConversation{})
	return err
}

// Interrupt abandons the current turn. It does nothing and returns false
// while a permission prompt is waiting for an answer.
func (l *Loop) Interrupt(ctx context.Context) bool {
	if l.gate.Pending() {
		return false
	}

	l.interrupted.Store(true)

	l.mu.Lock()
	conn := l.conn
	busy := l.state == StateQuerying || l.state == StateStreaming
	l.mu.Unlock()

	if busy {
		l.setState(StateInterrupting)
	}
	if conn != nil {
		if err := conn.Interrupt(ctx); err != nil {
			l.logger.Debug("Interrupt request failed", "error", err)
		}
	}
	l.sink.SetThinking(false)
	return true
}

// Decide answers the pending permission prompt with raw operator text.
func (l *Loop) Decide(text string) (permission.Decision, error) {
	d, err := l.gate.Submit(text)
	if err != nil {
		return d, err
	}
	l.sink.SetThinking(true)
	return d, nil
}

// PermissionPending reports whether a permission prompt awaits an answer.
func (l *Loop) PermissionPending() bool {
	return l.gate.Pending()
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SessionID returns the backend session id of the current connection
// generation, empty until the backend reports it.
func (l *Loop) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

// Active returns the names of the attached providers, sorted.
func (l *Loop) Active() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.active))
	for n := range l.active {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	prev := l.state
	l.state = s
	l.mu.Unlock()
	if prev != s {
		l.logger.Debug("Session state changed", "from", prev.String(), "to", s.String())
	}
}

// startupCapabilities is the provider set used for fresh connections.
func (l *Loop) startupCapabilities() map[string]config.Capability {
	if l.inferrer != nil {
		return map[string]config.Capability{}
	}
	return l.registry.Select(l.registry.Names())
}

// reconnectCapabilities is the provider set used to recover a lost connection.
func (l *Loop) reconnectCapabilities() map[string]config.Capability {
	if l.inferrer == nil {
		return l.startupCapabilities()
	}
	return l.registry.Select(l.Active())
}

func (l *Loop) connect(ctx context.Context, caps map[string]config.Capability, resumeID string) error {
	l.setState(StateConnecting)

	names := make([]string, 0, len(caps))
	for n := range caps {
		names = append(names, n)
	}
	sort.Strings(names)
	l.logger.Info("Connecting to agent", "capabilities", names, "resume_session_id", resumeID)

	conn, err := l.backend.Connect(ctx, ConnectOptions{
		Capabilities:    caps,
		ResumeSessionID: resumeID,
		Authorize:       l.authorize,
	})
	if err != nil {
		var cerr *ConnectionError
		if !errors.As(err, &cerr) {
			err = &ConnectionError{Op: "connect", Err: err}
		}
		l.logger.Error("Failed to connect to agent", "error", err)
		l.sink.Render(SystemNotice{Text: fmt.Sprintf("Could not connect to the agent: %v", err)})
		l.setState(StateDisconnected)
		return err
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	l.setState(StateIdle)
	return nil
}

func (l *Loop) disconnect() {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			l.logger.Debug("Error closing agent connection", "error", err)
		}
	}
	l.setState(StateDisconnected)
}

func (l *Loop) currentConn() Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

func (l *Loop) newConversation(ctx context.Context) {
	l.setState(StateReconnecting)

	l.mu.Lock()
	l.active = make(map[string]bool)
	l.sessionID = ""
	l.mu.Unlock()

	l.disconnect()
	if l.hub != nil {
		l.hub.Reset()
	}
	l.logger.Info("Starting new conversation")
	_ = l.connect(ctx, l.startupCapabilities(), "")
}

// inferCapabilities attaches providers the message needs that are not
// attached yet, reconnecting when there are any.
func (l *Loop) inferCapabilities(ctx context.Context, text string) {
	l.mu.Lock()
	active := make(map[string]bool, len(l.active))
	for n := range l.active {
		active[n] = true
	}
	l.mu.Unlock()

	res := l.inferrer.Infer(ctx, text, l.registry, active)
	if len(res.NewlyAdded) == 0 {
		return
	}

	l.sink.Render(SystemNotice{Text: fmt.Sprintf("Connecting to %s...", display.JoinNames(res.NewlyAdded))})
	if !sleepContext(ctx, l.pause) {
		return
	}

	l.setState(StateReconnecting)
	l.disconnect()
	if err := l.connect(ctx, res.Selected, l.SessionID()); err != nil {
		return
	}

	l.mu.Lock()
	for _, n := range res.NewlyAdded {
		l.active[n] = true
	}
	l.mu.Unlock()
}

// runTurn sends text and drains the turn. Exactly one TurnComplete is
// rendered, whatever happens.
func (l *Loop) runTurn(ctx context.Context, text string) {
	defer l.finishTurn()

	if l.inferrer != nil {
		l.inferCapabilities(ctx, text)
	}

	conn := l.currentConn()
	if conn == nil {
		if err := l.connect(ctx, l.reconnectCapabilities(), l.SessionID()); err != nil {
			return
		}
		conn = l.currentConn()
	}

	l.interrupted.Store(false)
	log := logging.WithTurn(l.logger, l.SessionID(), uuid.NewString())
	log.Debug("Sending message", "length", len(text))

	l.setState(StateQuerying)
	events, err := conn.Query(ctx, text)
	if err != nil {
		err = &ConnectionError{Op: "query", Err: err}
		log.Error("Query failed", "error", err)
		l.sink.Render(SystemNotice{Text: fmt.Sprintf("Failed to send message: %v", err)})
		l.disconnect()
		return
	}

	streaming := false
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				log.Debug("Turn drained")
				return
			}
			if !streaming && !l.interrupted.Load() {
				streaming = true
				l.setState(StateStreaming)
			}
			if l.interrupted.Load() {
				// events of an interrupted turn are drained unseen
				continue
			}
			l.translate(log, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop) translate(log *slog.Logger, ev BackendEvent) {
	switch e := ev.(type) {
	case TextDelta:
		if e.Text == "" {
			return
		}
		l.sink.Render(StreamChunk{Text: e.Text})

	case AssistantMessage:
		l.sink.Render(AssistantContent{Blocks: e.Blocks})

	case UserMessage:
		l.sink.Render(UserEcho{Text: e.Text})

	case SystemMessage:
		if e.Subtype == SubtypeInit {
			if e.SessionID != "" {
				l.mu.Lock()
				l.sessionID = e.SessionID
				l.mu.Unlock()
				log.Info("Agent session established", "backend_session_id", e.SessionID)
			}
			if l.hub != nil && e.Data != nil {
				if statuses := status.FromInitData(e.Data["mcp_servers"]); len(statuses) > 0 {
					l.hub.Update(statuses)
				}
			}
			return
		}
		if e.Text != "" {
			l.sink.Render(SystemNotice{Text: e.Text})
		}

	case ThoughtDelta:
		log.Debug("Agent thought", "text", e.Text)

	case ResultMessage:
		log.Debug("Turn finished", "stop_reason", e.StopReason)

	default:
		log.Warn("Ignoring unknown backend event", "type", fmt.Sprintf("%T", ev))
	}
}

func (l *Loop) finishTurn() {
	pending := l.queue.Len()
	l.sink.Render(TurnComplete{Pending: pending})
	if pending == 0 {
		l.sink.SetThinking(false)
	}
	if l.currentConn() != nil {
		l.setState(StateIdle)
	}
}

// authorize is the backend's permission callback.
func (l *Loop) authorize(ctx context.Context, req permission.Request) (permission.Outcome, error) {
	if l.interrupted.Load() {
		l.logger.Debug("Denying tool call of interrupted turn", "tool", req.ToolName)
		return permission.Outcome{Kind: permission.Deny, Message: permission.DeniedMessage, Interrupt: true}, nil
	}

	out, err := l.gate.Authorize(ctx, req)
	if err != nil {
		return out, err
	}
	switch out.Kind {
	case permission.Deny:
		l.followUp(permission.DeniedFollowup)
	case permission.DenyWithFollowup:
		l.sink.Render(UserEcho{Text: out.Message})
		l.followUp(out.Message)
	}
	return out, nil
}

// followUp queues text as the message after the current turn.
func (l *Loop) followUp(text string) {
	if _, err := l.queue.Add(SendMessage{Text: text}); err != nil {
		l.logger.Warn("Dropping follow-up message", "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
