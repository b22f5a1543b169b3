// Package display holds text helpers shared by the terminal front ends:
// tool name splitting, tool input formatting, and width-aware wrapping.
package display

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
)

// mcpToolPrefix marks tools exposed by a capability provider,
// named "mcp__<server>__<tool>".
const mcpToolPrefix = "mcp"

// ToolInfo is a tool name split into its provider and tool parts.
type ToolInfo struct {
	// Server is the capability provider name, empty for built-in tools.
	Server string
	// Tool is the bare tool name.
	Tool string
}

// String renders the tool as "server: tool" or just "tool".
func (t ToolInfo) String() string {
	if t.Server == "" {
		return t.Tool
	}
	return t.Server + ": " + t.Tool
}

// ParseToolName splits "mcp__server__tool" into its parts. Any other name is
// returned unchanged as a built-in tool. Tool names may themselves contain "__".
func ParseToolName(name string) ToolInfo {
	parts := strings.Split(name, "__")
	if len(parts) >= 3 && parts[0] == mcpToolPrefix {
		return ToolInfo{
			Server: parts[1],
			Tool:   strings.Join(parts[2:], "__"),
		}
	}
	return ToolInfo{Tool: name}
}

// FormatToolInput renders tool input for display. A string "query" field is
// shown on its own; everything else is indented JSON. Escaped newlines and
// tabs are expanded so multi-line arguments read naturally.
func FormatToolInput(input any) string {
	var result string

	switch v := input.(type) {
	case nil:
		return ""
	case string:
		result = v
	case map[string]any:
		if q, ok := v["query"].(string); ok {
			result = q
			break
		}
		result = marshalIndent(v)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			result = string(v)
			break
		}
		return FormatToolInput(decoded)
	default:
		result = marshalIndent(v)
	}

	result = strings.ReplaceAll(result, `\n`, "\n")
	result = strings.ReplaceAll(result, `\t`, "  ")
	return result
}

func marshalIndent(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Wrap word-wraps text to width columns. A non-positive width disables wrapping.
func Wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	return strings.TrimSuffix(wordwrap.String(text, width), "\n")
}

// Truncate shortens s to at most width columns, ending with an ellipsis when cut.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return truncate.StringWithTail(s, uint(width), "…")
}

// Indent prefixes every line of s with n spaces.
func Indent(s string, n int) string {
	if n <= 0 {
		return s
	}
	return indent.String(s, uint(n))
}

// JoinNames renders a list of names as "a, b, c".
func JoinNames(names []string) string {
	return strings.Join(names, ", ")
}
