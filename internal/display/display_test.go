package display

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseToolName(t *testing.T) {
	tests := []struct {
		name string
		want ToolInfo
	}{
		{"mcp__github__list_issues", ToolInfo{Server: "github", Tool: "list_issues"}},
		{"mcp__db__run__query", ToolInfo{Server: "db", Tool: "run__query"}},
		{"Read", ToolInfo{Tool: "Read"}},
		{"mcp__only", ToolInfo{Tool: "mcp__only"}},
		{"other__x__y", ToolInfo{Tool: "other__x__y"}},
		{"", ToolInfo{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseToolName(tt.name))
		})
	}
}

func TestToolInfo_String(t *testing.T) {
	assert.Equal(t, "github: list_issues", ParseToolName("mcp__github__list_issues").String())
	assert.Equal(t, "Bash", ParseToolName("Bash").String())
}

func TestFormatToolInput(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, ""},
		{"query field", map[string]any{"query": "SELECT 1", "limit": 3}, "SELECT 1"},
		{"escaped newlines in query", map[string]any{"query": `a\nb\tc`}, "a\nb  c"},
		{"json object", map[string]any{"path": "/tmp"}, "{\n  \"path\": \"/tmp\"\n}"},
		{"plain string", "hello", "hello"},
		{"raw json", json.RawMessage(`{"query":"q"}`), "q"},
		{"raw invalid", json.RawMessage(`not json`), "not json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatToolInput(tt.input))
		})
	}
}

func TestWrap(t *testing.T) {
	got := Wrap("the quick brown fox jumps", 10)
	for _, line := range strings.Split(got, "\n") {
		assert.LessOrEqual(t, len(line), 10, "line %q too long", line)
	}
	assert.Equal(t, "unchanged", Wrap("unchanged", 0))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	got := Truncate("a very long line of text", 8)
	assert.True(t, strings.HasSuffix(got, "…"), "got %q", got)
	assert.Equal(t, "", Truncate("x", 0))
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "  a\n  b", Indent("a\nb", 2))
	assert.Equal(t, "a", Indent("a", 0))
}
