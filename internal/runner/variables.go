package runner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/inercia/agentchat/internal/appdir"
)

// VariableResolver substitutes variables in sandbox paths.
//
// Supported variables, in $VAR or ${VAR} form:
//
//	WORKSPACE     the agent working directory
//	HOME          the user's home directory
//	AGENTCHAT_DIR the agentchat data directory
//	USER          the current username
//	TMPDIR        the system temp directory
type VariableResolver struct {
	vars map[string]string
	home string
}

// NewVariableResolver creates a resolver with runtime values.
func NewVariableResolver(workspace string) (*VariableResolver, error) {
	home, _ := os.UserHomeDir()
	dataDir, _ := appdir.Dir()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	if workspace == "" {
		workspace, _ = os.Getwd()
	}

	return &VariableResolver{
		vars: map[string]string{
			"WORKSPACE":     workspace,
			"HOME":          home,
			"AGENTCHAT_DIR": dataDir,
			"USER":          user,
			"TMPDIR":        os.TempDir(),
		},
		home: home,
	}, nil
}

// Resolve replaces known variables in path and expands a leading ~.
// Unknown variables are left untouched.
func (vr *VariableResolver) Resolve(path string) string {
	path = os.Expand(path, func(name string) string {
		if v, ok := vr.vars[name]; ok {
			return v
		}
		return "${" + name + "}"
	})
	if strings.HasPrefix(path, "~/") {
		path = filepath.Join(vr.home, path[2:])
	}
	return path
}

// ResolvePaths resolves variables in a list of paths.
func (vr *VariableResolver) ResolvePaths(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	resolved := make([]string, len(paths))
	for i, path := range paths {
		resolved[i] = vr.Resolve(path)
	}
	return resolved
}
