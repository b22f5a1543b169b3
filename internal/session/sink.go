package session

import (
	"fmt"

	"github.com/inercia/agentchat/internal/permission"
)

// Sink renders turn events. Implementations must be safe for concurrent use:
// Render is called from the loop goroutine and permission prompts arrive on
// backend goroutines.
type Sink interface {
	Render(ev TurnEvent)
	ShowPermissionPrompt(toolName string, toolInput any)
	HidePermissionPrompt()
	SetThinking(thinking bool)
}

// sinkPrompter presents gate prompts through a Sink.
type sinkPrompter struct {
	sink Sink
}

func (p sinkPrompter) ShowPermissionPrompt(req permission.Request) {
	p.sink.ShowPermissionPrompt(req.ToolName, req.ToolInput)
	p.sink.Render(PermissionRequest{ToolName: req.ToolName, ToolInput: req.ToolInput})
}

func (p sinkPrompter) HidePermissionPrompt() {
	p.sink.HidePermissionPrompt()
}

func (p sinkPrompter) PermissionDenied(req permission.Request) {
	p.sink.Render(SystemNotice{Text: fmt.Sprintf("Permission denied for `%s`", req.ToolName)})
}
