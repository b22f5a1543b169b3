package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/inercia/agentchat/internal/display"
	"github.com/inercia/agentchat/internal/export"
)

// maxToolInputLines caps how much of a tool call's input is shown inline.
const maxToolInputLines = 8

// chatView renders transcript entries. Rendered entries are cached; only
// the last one, which may still be streaming, is rendered again.
type chatView struct {
	width    int
	markdown bool
	renderer *glamour.TermRenderer
	cache    []string
}

func (v *chatView) setWidth(width int) {
	if width == v.width && (v.renderer != nil || !v.markdown) {
		return
	}
	v.width = width
	v.cache = nil
	if !v.markdown || width <= 0 {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		v.renderer = r
	}
}

func (v *chatView) reset() {
	v.cache = nil
}

func (v *chatView) render(entries []export.Entry) string {
	if len(v.cache) > len(entries) {
		v.cache = nil
	}
	start := max(len(v.cache)-1, 0)
	v.cache = v.cache[:start]
	for _, e := range entries[start:] {
		v.cache = append(v.cache, v.renderEntry(e))
	}
	return strings.Join(v.cache, "\n\n")
}

func (v *chatView) renderEntry(e export.Entry) string {
	switch e.Role {
	case export.RoleUser:
		return userLabelStyle.Render("You") + "\n" + display.Wrap(e.Text, v.width)
	case export.RoleAgent:
		return agentLabelStyle.Render("Agent") + "\n" + v.renderMarkdown(e.Text)
	case export.RoleTool:
		head := toolLabelStyle.Render("⚙ " + display.ParseToolName(e.ToolName).String())
		input := display.FormatToolInput(e.ToolInput)
		if input == "" {
			return head
		}
		return head + "\n" + toolInputStyle.Render(display.Indent(clipLines(input, maxToolInputLines, v.width-2), 2))
	default:
		return systemStyle.Render(display.Wrap(e.Text, v.width))
	}
}

func (v *chatView) renderMarkdown(text string) string {
	if v.renderer == nil {
		return display.Wrap(text, v.width)
	}
	out, err := v.renderer.Render(text)
	if err != nil {
		return display.Wrap(text, v.width)
	}
	return strings.Trim(out, "\n")
}

// clipLines keeps the first n lines of s, each truncated to width.
func clipLines(s string, n, width int) string {
	lines := strings.Split(s, "\n")
	clipped := len(lines) > n
	if clipped {
		lines = lines[:n]
	}
	if width > 0 {
		for i, l := range lines {
			lines[i] = display.Truncate(l, width)
		}
	}
	if clipped {
		lines = append(lines, "…")
	}
	return strings.Join(lines, "\n")
}
