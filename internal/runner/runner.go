// Package runner starts the ACP agent process, optionally inside a
// restricted sandbox (sandbox-exec, firejail or docker).
//
// By default the agent runs with no restrictions (exec runner).
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/inercia/go-restricted-runner/pkg/common"
	grrunner "github.com/inercia/go-restricted-runner/pkg/runner"

	"github.com/inercia/agentchat/internal/config"
)

// TypeExec is the unrestricted runner type.
const TypeExec = "exec"

// Runner wraps go-restricted-runner for agent execution.
type Runner struct {
	runner grrunner.Runner
	config *ResolvedConfig
	logger *slog.Logger
	// FallbackInfo is set when the requested runner was unavailable.
	FallbackInfo *FallbackInfo
}

// FallbackInfo contains information about a runner fallback.
type FallbackInfo struct {
	RequestedType string
	FallbackType  string
	Reason        string
}

// ResolvedConfig is the runner configuration with variables expanded.
type ResolvedConfig struct {
	Type              string
	AllowNetworking   *bool
	AllowReadFolders  []string
	AllowWriteFolders []string
	Docker            *config.DockerConfig
}

// NewRunner creates a runner for cfg. A nil cfg or an empty type yields the
// exec runner. When the requested runner is not available on this platform,
// the exec runner is used instead and FallbackInfo is set.
func NewRunner(cfg *config.RunnerConfig, workspace string, logger *slog.Logger) (*Runner, error) {
	varResolver, err := NewVariableResolver(workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to create variable resolver: %w", err)
	}
	resolved := resolveConfig(cfg, varResolver)

	runnerLogger, err := common.NewLogger("", "", common.LogLevelInfo, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create runner logger: %w", err)
	}

	r, err := grrunner.New(toRunnerType(resolved.Type), toRunnerOptions(resolved), runnerLogger)
	if err == nil {
		err = r.CheckImplicitRequirements()
	}

	var fallbackInfo *FallbackInfo
	if err != nil {
		if logger != nil {
			logger.Warn("restricted runner not available, falling back to exec",
				"requested_type", resolved.Type,
				"error", err.Error())
		}
		fallbackInfo = &FallbackInfo{
			RequestedType: resolved.Type,
			FallbackType:  TypeExec,
			Reason:        err.Error(),
		}
		r, err = grrunner.New(grrunner.TypeExec, grrunner.Options{}, runnerLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create fallback exec runner: %w", err)
		}
		resolved.Type = TypeExec
	}

	if logger != nil {
		logger.Debug("created runner",
			"type", resolved.Type,
			"workspace", workspace,
			"fallback", fallbackInfo != nil)
	}

	return &Runner{
		runner:       r,
		config:       resolved,
		logger:       logger,
		FallbackInfo: fallbackInfo,
	}, nil
}

// RunWithPipes starts command through the runner with access to its pipes.
//
// The caller must close stdin when done writing and call wait to release
// resources. Cancelling ctx kills the process.
func (r *Runner) RunWithPipes(
	ctx context.Context,
	command string,
	args []string,
	env []string,
) (stdin WriteCloser, stdout ReadCloser, stderr ReadCloser, wait func() error, err error) {
	return r.runner.RunWithPipes(ctx, command, args, env, nil)
}

// WriteCloser is an alias for io.WriteCloser for documentation clarity.
type WriteCloser = interface {
	Write(p []byte) (n int, err error)
	Close() error
}

// ReadCloser is an alias for io.ReadCloser for documentation clarity.
type ReadCloser = interface {
	Read(p []byte) (n int, err error)
	Close() error
}

// Type returns the runner type being used.
func (r *Runner) Type() string {
	return r.config.Type
}

// IsRestricted returns true if this runner applies restrictions (not exec).
func (r *Runner) IsRestricted() bool {
	return r.config.Type != TypeExec
}

// Config returns the resolved configuration.
func (r *Runner) Config() ResolvedConfig {
	return *r.config
}

// resolveConfig expands variables in cfg. The workspace is always readable
// and writable by the agent.
func resolveConfig(cfg *config.RunnerConfig, vr *VariableResolver) *ResolvedConfig {
	resolved := &ResolvedConfig{Type: TypeExec}
	if cfg == nil {
		return resolved
	}
	if cfg.Type != "" {
		resolved.Type = cfg.Type
	}
	resolved.AllowNetworking = cfg.AllowNetworking
	resolved.Docker = cfg.Docker

	defaults := vr.ResolvePaths([]string{"$WORKSPACE"})
	resolved.AllowReadFolders = mergeFolderLists(defaults, vr.ResolvePaths(cfg.AllowReadFolders))
	resolved.AllowWriteFolders = mergeFolderLists(defaults, vr.ResolvePaths(cfg.AllowWriteFolders))
	return resolved
}

// mergeFolderLists merges two folder lists, removing duplicates and empty entries.
func mergeFolderLists(base, override []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(base)+len(override))
	for _, list := range [][]string{base, override} {
		for _, path := range list {
			if path == "" || seen[path] {
				continue
			}
			result = append(result, path)
			seen[path] = true
		}
	}
	return result
}

// toRunnerOptions converts the resolved config to go-restricted-runner options.
func toRunnerOptions(cfg *ResolvedConfig) grrunner.Options {
	options := grrunner.Options{}
	if cfg == nil || cfg.Type == TypeExec {
		return options
	}

	if cfg.AllowNetworking != nil {
		options["allow_networking"] = *cfg.AllowNetworking
	}
	if len(cfg.AllowReadFolders) > 0 {
		options["allow_read_folders"] = cfg.AllowReadFolders
	}
	if len(cfg.AllowWriteFolders) > 0 {
		options["allow_write_folders"] = cfg.AllowWriteFolders
	}
	if cfg.Docker != nil {
		if cfg.Docker.Image != "" {
			options["image"] = cfg.Docker.Image
		}
		if cfg.Docker.MemoryLimit != "" {
			options["memory_limit"] = cfg.Docker.MemoryLimit
		}
		if cfg.Docker.CPULimit != "" {
			options["cpu_limit"] = cfg.Docker.CPULimit
		}
	}
	return options
}

// toRunnerType converts string to runner.Type.
func toRunnerType(typeStr string) grrunner.Type {
	switch typeStr {
	case "sandbox-exec":
		return grrunner.TypeSandboxExec
	case "firejail":
		return grrunner.TypeFirejail
	case "docker":
		return grrunner.TypeDocker
	default:
		return grrunner.TypeExec
	}
}
