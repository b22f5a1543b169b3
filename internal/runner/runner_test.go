package runner

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/inercia/agentchat/internal/config"
)

func TestVariableResolver_Resolve(t *testing.T) {
	home, _ := os.UserHomeDir()
	t.Setenv("AGENTCHAT_DIR", "/data/agentchat")

	resolver, err := NewVariableResolver("/path/to/workspace")
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"workspace variable", "$WORKSPACE/src", "/path/to/workspace/src"},
		{"workspace with braces", "${WORKSPACE}/src", "/path/to/workspace/src"},
		{"home variable", "$HOME/.config", home + "/.config"},
		{"data dir", "$AGENTCHAT_DIR/logs", "/data/agentchat/logs"},
		{"tilde expansion", "~/.config", filepath.Join(home, ".config")},
		{"multiple variables", "$WORKSPACE/build/$USER", "/path/to/workspace/build/" + resolver.vars["USER"]},
		{"unknown variable kept", "$NOPE/x", "${NOPE}/x"},
		{"no variables", "/absolute/path", "/absolute/path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolver.Resolve(tt.input); got != tt.expected {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestVariableResolver_ResolvePathsEmpty(t *testing.T) {
	resolver, _ := NewVariableResolver("/ws")
	if got := resolver.ResolvePaths(nil); got != nil {
		t.Errorf("ResolvePaths(nil) = %v, want nil", got)
	}
}

func TestResolveConfig(t *testing.T) {
	resolver, _ := NewVariableResolver("/ws")

	if got := resolveConfig(nil, resolver); got.Type != TypeExec || got.AllowReadFolders != nil {
		t.Errorf("nil config resolved to %+v", got)
	}

	allow := false
	got := resolveConfig(&config.RunnerConfig{
		Type:              "firejail",
		AllowNetworking:   &allow,
		AllowReadFolders:  []string{"$WORKSPACE", "/opt/tools"},
		AllowWriteFolders: []string{"$TMPDIR"},
	}, resolver)

	if got.Type != "firejail" {
		t.Errorf("Type = %q", got.Type)
	}
	if !reflect.DeepEqual(got.AllowReadFolders, []string{"/ws", "/opt/tools"}) {
		t.Errorf("AllowReadFolders = %v", got.AllowReadFolders)
	}
	if !reflect.DeepEqual(got.AllowWriteFolders, []string{"/ws", os.TempDir()}) {
		t.Errorf("AllowWriteFolders = %v", got.AllowWriteFolders)
	}

	opts := toRunnerOptions(got)
	if opts["allow_networking"] != false {
		t.Errorf("allow_networking = %v", opts["allow_networking"])
	}
	if _, ok := opts["allow_read_folders"]; !ok {
		t.Error("allow_read_folders missing")
	}
}

func TestToRunnerOptions_Docker(t *testing.T) {
	opts := toRunnerOptions(&ResolvedConfig{
		Type:   "docker",
		Docker: &config.DockerConfig{Image: "node:20", MemoryLimit: "2g", CPULimit: "1"},
	})
	want := map[string]any{"image": "node:20", "memory_limit": "2g", "cpu_limit": "1"}
	for k, v := range want {
		if opts[k] != v {
			t.Errorf("option %s = %v, want %v", k, opts[k], v)
		}
	}

	if len(toRunnerOptions(&ResolvedConfig{Type: TypeExec, AllowReadFolders: []string{"/x"}})) != 0 {
		t.Error("exec runner takes no options")
	}
}

func TestRunnerWithPipes_ExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	r, err := NewRunner(nil, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	if r.Type() != TypeExec || r.IsRestricted() {
		t.Fatalf("expected unrestricted exec runner, got %q", r.Type())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stdin, stdout, _, wait, err := r.RunWithPipes(ctx, "cat", nil, os.Environ())
	if err != nil {
		t.Fatalf("RunWithPipes failed: %v", err)
	}
	if _, err := stdin.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	stdin.Close()

	out, err := io.ReadAll(stdout)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Errorf("output = %q", out)
	}
}

func TestNewRunner_UnknownTypeFallsBack(t *testing.T) {
	r, err := NewRunner(&config.RunnerConfig{Type: "docker", Docker: &config.DockerConfig{}}, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	if r.FallbackInfo != nil && (r.Type() != TypeExec || r.FallbackInfo.RequestedType != "docker") {
		t.Errorf("unexpected fallback state: type=%q info=%+v", r.Type(), r.FallbackInfo)
	}
}
