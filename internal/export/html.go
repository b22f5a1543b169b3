package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"sync"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Format selects how a transcript is saved.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
)

// ParseFormat accepts "md", "markdown" and "html". Empty means markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown transcript format %q (use md or html)", s)
	}
}

// HighlightStyle is the chroma style used for fenced code in HTML exports.
const HighlightStyle = "monokai"

var (
	mdOnce   sync.Once
	mdEngine goldmark.Markdown
	policy   *bluemonday.Policy
)

func converter() (goldmark.Markdown, *bluemonday.Policy) {
	mdOnce.Do(func() {
		mdEngine = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(
					highlighting.WithStyle(HighlightStyle),
					highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
				),
			),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(
				gmhtml.WithHardWraps(),
				gmhtml.WithXHTML(),
			),
		)

		policy = bluemonday.UGCPolicy()
		// highlighted code comes back as classed spans
		policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "span", "div")
		policy.AllowAttrs("id").Matching(bluemonday.Paragraph).OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	})
	return mdEngine, policy
}

// RenderHTML converts markdown to sanitized HTML. Raw HTML in the input is
// dropped.
func RenderHTML(markdown string) (string, error) {
	md, p := converter()
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return p.Sanitize(buf.String()), nil
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { max-width: 50rem; margin: 2rem auto; padding: 0 1rem; font-family: system-ui, sans-serif; line-height: 1.5; }
pre { padding: 0.75rem; overflow-x: auto; border-radius: 4px; }
hr { border: 0; border-top: 1px solid #ccc; margin: 2rem 0; }
%s</style>
</head>
<body>
%s
</body>
</html>
`

// highlightCSS returns the stylesheet for the classes RenderHTML emits.
func highlightCSS() string {
	var buf bytes.Buffer
	f := chromahtml.New(chromahtml.WithClasses(true))
	if err := f.WriteCSS(&buf, styles.Get(HighlightStyle)); err != nil {
		return ""
	}
	return buf.String()
}

// HTML renders the transcript as a standalone HTML page.
func (t *Transcript) HTML(title string) (string, error) {
	body, err := RenderHTML(t.Markdown())
	if err != nil {
		return "", fmt.Errorf("failed to render transcript: %w", err)
	}
	return fmt.Sprintf(pageTemplate, html.EscapeString(title), highlightCSS(), body), nil
}
