// Package permission implements the tool permission gate: it turns a tool
// call into a prompt for the operator, waits for the answer, and converts the
// free-form answer into an allow or deny outcome for the agent.
package permission

import "strings"

// Kind classifies an operator decision.
type Kind int

const (
	// Allow lets the tool call proceed with its original input.
	Allow Kind = iota
	// Deny rejects the tool call.
	Deny
	// DenyWithFollowup rejects the tool call and sends the operator's text
	// as the next message.
	DenyWithFollowup
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case DenyWithFollowup:
		return "deny_with_followup"
	default:
		return "unknown"
	}
}

// Decision is a normalized operator answer.
type Decision struct {
	Kind Kind
	// Text is the original answer for DenyWithFollowup.
	Text string
}

// DeniedMessage is the message returned to the agent on a plain deny.
const DeniedMessage = "User denied permission"

// DeniedFollowup is queued as the next message after a plain deny.
const DeniedFollowup = "The user has denied the tool"

// Normalize maps raw operator input to a decision. It never fails:
// an empty answer, "y", "yes" and "allow" allow; "n", "no" and "deny" deny;
// anything else denies and becomes a follow-up message.
func Normalize(raw string) Decision {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "y", "yes", "allow":
		return Decision{Kind: Allow}
	case "n", "no", "deny":
		return Decision{Kind: Deny}
	default:
		return Decision{Kind: DenyWithFollowup, Text: raw}
	}
}

// Request is a tool call awaiting authorization.
type Request struct {
	// ToolName is the full tool name, e.g. "mcp__github__list_issues".
	ToolName string
	// ToolInput is the decoded tool arguments.
	ToolInput any
}

// Outcome is what the agent receives for a request.
type Outcome struct {
	Kind Kind
	// Input is the unmodified tool input, set on Allow.
	Input any
	// Message explains a denial; for DenyWithFollowup it is the operator's text.
	Message string
	// Interrupt asks the agent to stop the current turn.
	Interrupt bool
}

// Allowed reports whether the tool call may proceed.
func (o Outcome) Allowed() bool {
	return o.Kind == Allow
}

// outcomeFor converts a decision into the outcome for req.
func outcomeFor(req Request, d Decision) Outcome {
	switch d.Kind {
	case Allow:
		return Outcome{Kind: Allow, Input: req.ToolInput}
	case Deny:
		return Outcome{Kind: Deny, Message: DeniedMessage, Interrupt: true}
	default:
		return Outcome{Kind: DenyWithFollowup, Message: d.Text, Interrupt: true}
	}
}
