// Package acp connects the session loop to an ACP (Agent Client Protocol)
// agent running as a subprocess.
package acp

import (
	"fmt"
	"os"
	"sort"

	"github.com/google/shlex"
)

// ParseCommand splits an agent command line using shell quoting rules:
//
//	"sh -c 'cd /dir && cmd'"        -> ["sh", "-c", "cd /dir && cmd"]
//	"agent --profile \"my profile\"" -> ["agent", "--profile", "my profile"]
func ParseCommand(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command %q: %w", command, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return args, nil
}

// BuildEnv returns the process environment with extra appended in key order.
// Later entries win, so extra overrides inherited variables.
func BuildEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
