// Package session implements the agent session loop: it owns the backend
// connection, processes user commands one at a time and translates the
// backend's event stream into events for the chat view.
package session

// TurnEvent is an event rendered by a Sink.
type TurnEvent interface {
	turnEvent()
}

// StreamChunk is a piece of streamed agent text.
type StreamChunk struct {
	Text string
}

// AssistantContent is a complete assistant message.
type AssistantContent struct {
	Blocks []ContentBlock
}

// SystemNotice is an informational line from the client itself.
type SystemNotice struct {
	Text string
}

// UserEcho shows a message on behalf of the user.
type UserEcho struct {
	Text string
}

// PermissionRequest shows a tool call awaiting a decision.
type PermissionRequest struct {
	ToolName  string
	ToolInput any
}

// TurnComplete ends a turn. Pending is the number of queued commands.
type TurnComplete struct {
	Pending int
}

func (StreamChunk) turnEvent()       {}
func (AssistantContent) turnEvent()  {}
func (SystemNotice) turnEvent()      {}
func (UserEcho) turnEvent()          {}
func (PermissionRequest) turnEvent() {}
func (TurnComplete) turnEvent()      {}

// ContentBlock is part of an assistant message.
type ContentBlock interface {
	contentBlock()
}

// TextBlock is assistant text.
type TextBlock struct {
	Text string
}

// ToolUseBlock is a tool invocation.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input any
}

func (TextBlock) contentBlock()    {}
func (ToolUseBlock) contentBlock() {}

// BackendEvent is an event produced by a backend connection during a turn.
type BackendEvent interface {
	backendEvent()
}

// SubtypeInit marks the SystemMessage that opens a connection generation.
const SubtypeInit = "init"

// TextDelta is streamed agent text.
type TextDelta struct {
	Text string
}

// ThoughtDelta is streamed agent reasoning.
type ThoughtDelta struct {
	Text string
}

// AssistantMessage is a complete assistant message.
type AssistantMessage struct {
	Blocks []ContentBlock
}

// SystemMessage carries backend metadata. The init message sets SessionID
// and lists attached servers in Data["mcp_servers"].
type SystemMessage struct {
	Subtype   string
	SessionID string
	Text      string
	Data      map[string]any
}

// UserMessage is a user message replayed by the backend.
type UserMessage struct {
	Text string
}

// ResultMessage ends a turn.
type ResultMessage struct {
	StopReason string
}

func (TextDelta) backendEvent()        {}
func (ThoughtDelta) backendEvent()     {}
func (AssistantMessage) backendEvent() {}
func (SystemMessage) backendEvent()    {}
func (UserMessage) backendEvent()      {}
func (ResultMessage) backendEvent()    {}
