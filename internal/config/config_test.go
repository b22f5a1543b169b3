package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
agent:
  command: "npx @zed-industries/claude-code-acp"
  env:
    TOKEN: "$AGENTCHAT_TEST_TOKEN"
system_prompt: base.md
model: sonnet
mcp_server_inference: true
permissions:
  auto_allow:
    - "tool == 'Read'"
mcp_servers:
  github:
    description: "GitHub issues and PRs"
    command: docker
    args: ["run", "-i", "${AGENTCHAT_TEST_IMAGE}"]
    env:
      GITHUB_TOKEN: "$AGENTCHAT_TEST_TOKEN"
    prompt: github.md
  docs:
    description: "Documentation search"
    transport: http
    url: "https://docs.example.com/mcp"
    headers:
      Authorization: "Bearer ${AGENTCHAT_TEST_TOKEN}"
  disabled:
    description: "Never used"
    command: nothing
    enabled: false
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func writePrompt(t *testing.T, configPath, name, content string) {
	t.Helper()
	dir := filepath.Join(filepath.Dir(configPath), PromptsDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir prompts: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("AGENTCHAT_TEST_TOKEN", "s3cret")
	t.Setenv("AGENTCHAT_TEST_IMAGE", "ghcr.io/github/github-mcp-server")

	path := writeConfig(t, "agentchat.yaml", validYAML)
	writePrompt(t, path, "base.md", "You are helpful.")
	writePrompt(t, path, "github.md", "Use GitHub tools.")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Path != path {
		t.Errorf("Path = %q, want %q", cfg.Path, path)
	}
	if cfg.SystemPrompt != "You are helpful." {
		t.Errorf("SystemPrompt = %q, want file content", cfg.SystemPrompt)
	}
	if !cfg.MCPServerInference {
		t.Error("MCPServerInference should be true")
	}
	if cfg.Inference.Provider != ProviderAgent {
		t.Errorf("Inference.Provider = %q, want default %q", cfg.Inference.Provider, ProviderAgent)
	}
	if cfg.Inference.Timeout != DefaultInferenceTimeout {
		t.Errorf("Inference.Timeout = %s, want default %s", cfg.Inference.Timeout, DefaultInferenceTimeout)
	}
	if cfg.Agent.Env["TOKEN"] != "s3cret" {
		t.Errorf("agent env not expanded: %q", cfg.Agent.Env["TOKEN"])
	}

	gh := cfg.MCPServers["github"]
	if gh.Transport != TransportStdio {
		t.Errorf("github transport = %q, want stdio", gh.Transport)
	}
	if gh.Env["GITHUB_TOKEN"] != "s3cret" {
		t.Errorf("env not expanded: %q", gh.Env["GITHUB_TOKEN"])
	}
	if gh.Args[2] != "ghcr.io/github/github-mcp-server" {
		t.Errorf("args not expanded: %v", gh.Args)
	}
	if gh.Prompt != "Use GitHub tools." {
		t.Errorf("github prompt = %q, want file content", gh.Prompt)
	}

	docs := cfg.MCPServers["docs"]
	if docs.Headers["Authorization"] != "Bearer s3cret" {
		t.Errorf("headers not expanded: %q", docs.Headers["Authorization"])
	}

	want := "You are helpful.\n\nUse GitHub tools."
	if got := cfg.FullSystemPrompt(); got != want {
		t.Errorf("FullSystemPrompt() = %q, want %q", got, want)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "agentchat.toml", `
system_prompt = "Be brief."
model = "haiku"

[agent]
command = "my-agent --acp"

[inference]
provider = "gemini"
model = "gemini-2.5-flash"
timeout = "5s"

[mcp_servers.fs]
description = "Local files"
command = "mcp-fs"
args = ["/tmp"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.SystemPrompt != "Be brief." {
		t.Errorf("literal system prompt = %q", cfg.SystemPrompt)
	}
	if cfg.Inference.Provider != ProviderGemini {
		t.Errorf("Inference.Provider = %q, want gemini", cfg.Inference.Provider)
	}
	if cfg.Inference.APIKeyEnv != "GEMINI_API_KEY" {
		t.Errorf("APIKeyEnv default = %q", cfg.Inference.APIKeyEnv)
	}
	if cfg.Inference.Timeout != 5*time.Second {
		t.Errorf("Inference.Timeout = %s, want 5s", cfg.Inference.Timeout)
	}
	if got := cfg.MCPServers["fs"].Command; got != "mcp-fs" {
		t.Errorf("fs command = %q", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := writeConfig(t, "agentchat.yaml", "agent: [unclosed")
	_, err := Load(path)
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
	if cerr.Path != path {
		t.Errorf("ConfigError.Path = %q, want %q", cerr.Path, path)
	}
}

func TestValidate(t *testing.T) {
	base := `
agent: {command: agent}
system_prompt: hi
model: sonnet
`
	tests := []struct {
		name      string
		yaml      string
		wantField string
		wantErr   error
	}{
		{"no agent command", "system_prompt: hi\nmodel: sonnet\n", "agent.command", ErrMissingField},
		{"no system prompt", "agent: {command: a}\nmodel: sonnet\n", "system_prompt", ErrMissingField},
		{"no model", "agent: {command: a}\nsystem_prompt: hi\n", "model", ErrMissingField},
		{"no description", base + "mcp_servers:\n  x: {command: c}\n", "mcp_servers.x.description", ErrMissingField},
		{"stdio without command", base + "mcp_servers:\n  x: {description: d}\n", "mcp_servers.x.command", ErrMissingField},
		{"http without url", base + "mcp_servers:\n  x: {description: d, transport: http}\n", "mcp_servers.x.url", ErrMissingField},
		{"unknown transport", base + "mcp_servers:\n  x: {description: d, transport: carrier-pigeon}\n", "mcp_servers.x.transport", ErrInvalidValue},
		{"unknown provider", base + "inference: {provider: oracle}\n", "inference.provider", ErrInvalidValue},
		{"negative inference timeout", base + "inference: {timeout: -1s}\n", "inference.timeout", ErrInvalidValue},
		{"unknown runner", "agent: {command: a, runner: {type: chroot}}\nsystem_prompt: hi\nmodel: m\n", "agent.runner.type", ErrInvalidValue},
		{"bad log level", base + "logging: {level: loud}\n", "logging.level", ErrInvalidValue},
		{"valid", base, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "yaml")
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}
			if cerr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.wantField)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error %v does not wrap %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadPrompt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "p.md"), []byte("from file"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		value string
		want  string
	}{
		{"p.md", "from file"},
		{"missing.md", "missing.md"},
		{"just some text", "just some text"},
		{"multi\nline", "multi\nline"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := LoadPrompt(dir, tt.value); got != tt.want {
			t.Errorf("LoadPrompt(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	if got := BuildSystemPrompt("base", nil); got != "base" {
		t.Errorf("no caps: got %q", got)
	}
	caps := []Capability{{Name: "a", Prompt: "A"}, {Name: "b"}, {Name: "c", Prompt: "C"}}
	if got := BuildSystemPrompt("base", caps); got != "base\n\nA\n\nC" {
		t.Errorf("got %q", got)
	}
}

func TestLocate(t *testing.T) {
	t.Run("explicit wins", func(t *testing.T) {
		t.Setenv(ConfigEnv, "/from/env.yaml")
		got, err := Locate("/explicit.yaml")
		if err != nil || got != "/explicit.yaml" {
			t.Errorf("Locate() = %q, %v", got, err)
		}
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv(ConfigEnv, "/from/env.yaml")
		got, err := Locate("")
		if err != nil || got != "/from/env.yaml" {
			t.Errorf("Locate() = %q, %v", got, err)
		}
	})

	t.Run("working directory", func(t *testing.T) {
		t.Setenv(ConfigEnv, "")
		t.Chdir(t.TempDir())
		if err := os.WriteFile("agentchat.yaml", []byte("x: 1"), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := Locate("")
		if err != nil || !strings.HasSuffix(got, "agentchat.yaml") {
			t.Errorf("Locate() = %q, %v", got, err)
		}
	})
}

func TestConfigError_Message(t *testing.T) {
	err := &ConfigError{Path: "/etc/agentchat.yaml", Field: "model", Err: ErrMissingField}
	want := "config /etc/agentchat.yaml: model: required field missing"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
