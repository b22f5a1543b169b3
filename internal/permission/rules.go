package permission

import (
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/inercia/agentchat/internal/display"
)

// Rules is a compiled set of auto-allow expressions.
//
// Each expression is CEL evaluated with these variables:
//
//	name    full tool name ("mcp__github__list_issues")
//	tool    bare tool name ("list_issues")
//	server  capability provider ("github"), empty for built-in tools
//	input   tool arguments as a map
//
// A request matching any expression is allowed without asking.
type Rules struct {
	sources  []string
	programs []cel.Program
}

// CompileRules compiles the given expressions. Every expression must evaluate
// to a bool.
func CompileRules(exprs []string) (*Rules, error) {
	if len(exprs) == 0 {
		return &Rules{}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("tool", cel.StringType),
		cel.Variable("server", cel.StringType),
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	r := &Rules{}
	for i, expr := range exprs {
		ast, iss := env.Compile(expr)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("auto_allow[%d] %q: %w", i, expr, iss.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("auto_allow[%d] %q: must evaluate to bool, got %s", i, expr, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("auto_allow[%d] %q: %w", i, expr, err)
		}
		r.sources = append(r.sources, expr)
		r.programs = append(r.programs, prg)
	}
	return r, nil
}

// Len returns the number of rules.
func (r *Rules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.programs)
}

// Match returns the first expression allowing req, if any.
// Evaluation errors count as no match.
func (r *Rules) Match(req Request) (string, bool) {
	if r.Len() == 0 {
		return "", false
	}

	info := display.ParseToolName(req.ToolName)
	vars := map[string]any{
		"name":   req.ToolName,
		"tool":   info.Tool,
		"server": info.Server,
		"input":  inputMap(req.ToolInput),
	}

	for i, prg := range r.programs {
		out, _, err := prg.Eval(vars)
		if err != nil {
			continue
		}
		if b, ok := out.Value().(bool); ok && b {
			return r.sources[i], true
		}
	}
	return "", false
}

// inputMap coerces tool input into a map for CEL.
func inputMap(input any) map[string]any {
	switch v := input.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	}

	data, err := json.Marshal(input)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}
