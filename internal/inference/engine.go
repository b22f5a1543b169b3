// Package inference selects which capability providers a user message needs.
//
// The Engine asks a Classifier (a small language model behind some
// connection) to pick provider names from the registry, validates the
// reply and reports which of the selected providers are not attached yet.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/inercia/agentchat/internal/config"
)

// ErrMalformedOutput is returned by ParseSelection when the classifier reply
// does not contain a valid selection object.
var ErrMalformedOutput = errors.New("malformed classifier output")

// Classifier answers a classification prompt with raw text.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, prompt string) (string, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Result is the outcome of an inference.
type Result struct {
	// Selected holds every provider the message needs.
	Selected map[string]config.Capability
	// NewlyAdded lists selected providers that were not active, in selection order.
	NewlyAdded []string
}

// Empty reports whether nothing was selected.
func (r Result) Empty() bool {
	return len(r.Selected) == 0
}

// selectionSchema is the shape the classifier must answer with.
var selectionSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"servers": {
			Type:  "array",
			Items: &jsonschema.Schema{Type: "string"},
		},
	},
	Required: []string{"servers"},
}

// DefaultTimeout bounds a classification when no other timeout is set.
const DefaultTimeout = 30 * time.Second

// Engine runs capability inference.
type Engine struct {
	classifier Classifier
	schema     *jsonschema.Resolved
	logger     *slog.Logger
	timeout    time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTimeout bounds each Classify call. Zero keeps DefaultTimeout.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEngine creates an engine using classifier.
func NewEngine(classifier Classifier, logger *slog.Logger, opts ...EngineOption) (*Engine, error) {
	if classifier == nil {
		return nil, errors.New("inference: classifier is required")
	}
	resolved, err := selectionSchema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve selection schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{classifier: classifier, schema: resolved, logger: logger, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Infer selects the providers needed by message. active holds the names
// already attached; they are never reported in NewlyAdded.
// Inference problems degrade to an empty result.
func (e *Engine) Infer(ctx context.Context, message string, reg *config.Registry, active map[string]bool) Result {
	if reg == nil || reg.Len() == 0 {
		return Result{}
	}

	reply, err := e.classify(ctx, BuildPrompt(message, reg.All()))
	if err != nil {
		e.logger.Warn("Capability inference failed", "error", err)
		return Result{}
	}

	names, err := ParseSelection(reply, e.schema)
	if err != nil {
		e.logger.Warn("Ignoring classifier reply", "error", err, "reply", truncate(reply, 200))
		return Result{}
	}

	res := Result{Selected: make(map[string]config.Capability)}
	for _, name := range names {
		c, err := reg.Get(name)
		if err != nil {
			e.logger.Debug("Classifier selected unknown provider", "name", name)
			continue
		}
		res.Selected[name] = c
		if !active[name] {
			res.NewlyAdded = append(res.NewlyAdded, name)
		}
	}

	e.logger.Debug("Capability inference done",
		"selected", len(res.Selected),
		"newly_added", res.NewlyAdded)
	return res
}

type classifyResult struct {
	reply string
	err   error
}

// classify runs the classifier under the engine's timeout. A classifier
// that ignores its context is abandoned when the timeout expires.
func (e *Engine) classify(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan classifyResult, 1)
	go func() {
		reply, err := e.classifier.Classify(ctx, prompt)
		done <- classifyResult{reply, err}
	}()

	select {
	case r := <-done:
		return r.reply, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("classifier did not answer: %w", ctx.Err())
	}
}

// BuildPrompt renders the classification prompt for message.
func BuildPrompt(message string, caps []config.Capability) string {
	var sb strings.Builder
	sb.WriteString("You decide which tool servers an assistant needs to answer a user message.\n\n")
	sb.WriteString("Available servers:\n")
	for _, c := range caps {
		fmt.Fprintf(&sb, "- %s: %s\n", c.Name, c.Description)
	}
	sb.WriteString(`
Select only servers that are clearly needed. Select none for greetings,
general knowledge or questions the assistant can answer by itself.

Examples:
- "list my open pull requests" with a github server: {"servers": ["github"]}
- "hello, how are you?": {"servers": []}

Reply with a single JSON object of the form {"servers": ["name", ...]} and nothing else.

User message:
`)
	sb.WriteString(message)
	sb.WriteString("\n")
	return sb.String()
}

// ParseSelection extracts the selected names from a classifier reply.
// The first JSON object in reply is used; surrounding prose and code fences
// are ignored. Duplicates collapse and first-appearance order is kept.
func ParseSelection(reply string, schema *jsonschema.Resolved) ([]string, error) {
	raw, ok := firstObject(reply)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object", ErrMalformedOutput)
	}

	var instance any
	if err := json.Unmarshal([]byte(raw), &instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if schema != nil {
		if err := schema.Validate(instance); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
	}

	var sel struct {
		Servers []string `json:"servers"`
	}
	if err := json.Unmarshal([]byte(raw), &sel); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	seen := make(map[string]bool, len(sel.Servers))
	names := make([]string, 0, len(sel.Servers))
	for _, n := range sel.Servers {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	return names, nil
}

// firstObject returns the first balanced {...} in s, honoring JSON strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
