// Package config handles configuration loading and management for agentchat.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/inercia/agentchat/internal/appdir"
)

// ConfigEnv is the environment variable pointing at an explicit config file.
const ConfigEnv = "AGENTCHAT_CONFIG"

// PromptsDirName is the directory, next to the config file, holding prompt files.
const PromptsDirName = "prompts"

// Inference providers.
const (
	ProviderAgent  = "agent"
	ProviderGemini = "gemini"
)

// DefaultInferenceTimeout bounds one classifier call.
const DefaultInferenceTimeout = 30 * time.Second

var (
	// ErrMissingField is wrapped by ConfigError when a required field is absent.
	ErrMissingField = errors.New("required field missing")
	// ErrInvalidValue is wrapped by ConfigError when a field has an unsupported value.
	ErrInvalidValue = errors.New("invalid value")
	// ErrNoConfigFile is returned by Locate when no configuration file exists.
	ErrNoConfigFile = errors.New("no configuration file found")
)

// ConfigError describes a malformed or incomplete configuration.
type ConfigError struct {
	// Path is the configuration file (empty for in-memory configs).
	Path string
	// Field is the dotted path of the offending field, if any.
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Transport is the way a capability provider is reached.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
	TransportSSE   Transport = "sse"
)

// DockerConfig holds docker-specific runner settings.
type DockerConfig struct {
	Image       string `yaml:"image" toml:"image"`
	MemoryLimit string `yaml:"memory_limit" toml:"memory_limit"`
	CPULimit    string `yaml:"cpu_limit" toml:"cpu_limit"`
}

// RunnerConfig selects the restricted runner used to start the agent.
type RunnerConfig struct {
	// Type is one of exec, sandbox-exec, firejail or docker. Empty means exec.
	Type              string        `yaml:"type" toml:"type"`
	AllowNetworking   *bool         `yaml:"allow_networking" toml:"allow_networking"`
	AllowReadFolders  []string      `yaml:"allow_read_folders" toml:"allow_read_folders"`
	AllowWriteFolders []string      `yaml:"allow_write_folders" toml:"allow_write_folders"`
	Docker            *DockerConfig `yaml:"docker" toml:"docker"`
}

// AgentConfig describes how to start the ACP agent process.
type AgentConfig struct {
	// Command is the shell command starting the ACP agent (e.g. "npx @zed-industries/claude-code-acp").
	Command string            `yaml:"command" toml:"command"`
	Cwd     string            `yaml:"cwd" toml:"cwd"`
	Env     map[string]string `yaml:"env" toml:"env"`
	Runner  *RunnerConfig     `yaml:"runner" toml:"runner"`
}

// InferenceConfig configures the classifier used for capability inference.
type InferenceConfig struct {
	// Provider is "agent" (a hidden ACP session) or "gemini".
	Provider string `yaml:"provider" toml:"provider"`
	// Model is the classifier model.
	Model string `yaml:"model" toml:"model"`
	// APIKeyEnv names the environment variable holding the Gemini API key.
	APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`
	// Timeout bounds each classification, e.g. "30s". When it expires the
	// message is sent with the providers already attached.
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// PermissionsConfig holds tool permission rules.
type PermissionsConfig struct {
	// AutoAllow is a list of CEL expressions; a tool call matching any of them
	// is allowed without asking.
	AutoAllow []string `yaml:"auto_allow" toml:"auto_allow"`
}

// LoggingConfig mirrors the logging flags.
type LoggingConfig struct {
	Level      string   `yaml:"level" toml:"level"`
	File       string   `yaml:"file" toml:"file"`
	MaxSizeMB  int      `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int      `yaml:"max_backups" toml:"max_backups"`
	JSON       bool     `yaml:"json" toml:"json"`
	Components []string `yaml:"components" toml:"components"`
}

// ServerConfig is a capability provider entry as written in the file.
type ServerConfig struct {
	Description     string            `yaml:"description" toml:"description"`
	Command         string            `yaml:"command" toml:"command"`
	Args            []string          `yaml:"args" toml:"args"`
	Env             map[string]string `yaml:"env" toml:"env"`
	Enabled         *bool             `yaml:"enabled" toml:"enabled"`
	Prompt          string            `yaml:"prompt" toml:"prompt"`
	Transport       Transport         `yaml:"transport" toml:"transport"`
	URL             string            `yaml:"url" toml:"url"`
	Headers         map[string]string `yaml:"headers" toml:"headers"`
	DisallowedTools []string          `yaml:"disallowed_tools" toml:"disallowed_tools"`
}

// IsEnabled reports whether the entry is enabled. Missing means enabled.
func (s ServerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Config represents the complete agentchat configuration.
type Config struct {
	Agent              AgentConfig             `yaml:"agent" toml:"agent"`
	SystemPrompt       string                  `yaml:"system_prompt" toml:"system_prompt"`
	Model              string                  `yaml:"model" toml:"model"`
	MCPServerInference bool                    `yaml:"mcp_server_inference" toml:"mcp_server_inference"`
	Inference          InferenceConfig         `yaml:"inference" toml:"inference"`
	Permissions        PermissionsConfig       `yaml:"permissions" toml:"permissions"`
	DisallowedTools    []string                `yaml:"disallowed_tools" toml:"disallowed_tools"`
	MCPServers         map[string]ServerConfig `yaml:"mcp_servers" toml:"mcp_servers"`
	Logging            LoggingConfig           `yaml:"logging" toml:"logging"`

	// Path is the file the configuration was loaded from.
	Path string `yaml:"-" toml:"-"`
}

// Locate returns the configuration file to use.
// The lookup order is:
//  1. explicit (the --config flag)
//  2. $AGENTCHAT_CONFIG
//  3. ./agentchat.yaml or ./agentchat.toml
//  4. the file in the agentchat data directory
func Locate(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(ConfigEnv); env != "" {
		return env, nil
	}

	candidates := []string{"agentchat.yaml", "agentchat.yml", "agentchat.toml"}
	if p, err := appdir.ConfigPath(); err == nil {
		candidates = append(candidates, p)
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", ErrNoConfigFile
}

// Load reads, parses, expands and validates the configuration file at path.
// The format is chosen by extension: .toml is TOML, anything else is YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = "toml"
	}

	cfg, err := Parse(data, format)
	if err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			cerr.Path = path
		}
		return nil, err
	}
	cfg.Path = path

	cfg.loadPrompts(filepath.Join(filepath.Dir(path), PromptsDirName))
	return cfg, nil
}

// Parse parses configuration data in the given format ("yaml" or "toml")
// and validates it. Prompt values are taken literally.
func Parse(data []byte, format string) (*Config, error) {
	cfg := &Config{}

	switch format {
	case "toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
			return nil, &ConfigError{Err: fmt.Errorf("failed to parse TOML: %w", err)}
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{Err: fmt.Errorf("failed to parse YAML: %w", err)}
		}
	}

	cfg.applyDefaults()
	cfg.expandEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Inference.Provider == "" {
		c.Inference.Provider = ProviderAgent
	}
	if c.Inference.APIKeyEnv == "" {
		c.Inference.APIKeyEnv = "GEMINI_API_KEY"
	}
	if c.Inference.Timeout == 0 {
		c.Inference.Timeout = DefaultInferenceTimeout
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 10
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 3
	}
	for name, s := range c.MCPServers {
		if s.Transport == "" {
			s.Transport = TransportStdio
		}
		c.MCPServers[name] = s
	}
}

// expandEnv expands $VAR and ${VAR} in env values, args, urls and headers.
func (c *Config) expandEnv() {
	for k, v := range c.Agent.Env {
		c.Agent.Env[k] = os.ExpandEnv(v)
	}
	for name, s := range c.MCPServers {
		for k, v := range s.Env {
			s.Env[k] = os.ExpandEnv(v)
		}
		for i, a := range s.Args {
			s.Args[i] = os.ExpandEnv(a)
		}
		s.URL = os.ExpandEnv(s.URL)
		for k, v := range s.Headers {
			s.Headers[k] = os.ExpandEnv(v)
		}
		c.MCPServers[name] = s
	}
}

// loadPrompts replaces prompt references with the content of the matching files.
func (c *Config) loadPrompts(promptsDir string) {
	c.SystemPrompt = LoadPrompt(promptsDir, c.SystemPrompt)
	for name, s := range c.MCPServers {
		if s.Prompt != "" {
			s.Prompt = LoadPrompt(promptsDir, s.Prompt)
		}
		c.MCPServers[name] = s
	}
}

// LoadPrompt returns the content of dir/value when such a file exists,
// otherwise value itself.
func LoadPrompt(dir, value string) string {
	if value == "" || strings.ContainsAny(value, "\n\r") {
		return value
	}
	data, err := os.ReadFile(filepath.Join(dir, value))
	if err != nil {
		return value
	}
	return string(data)
}

// Validate checks required fields and enumerated values.
func (c *Config) Validate() error {
	fail := func(field string, err error) error {
		return &ConfigError{Path: c.Path, Field: field, Err: err}
	}

	if strings.TrimSpace(c.Agent.Command) == "" {
		return fail("agent.command", ErrMissingField)
	}
	if c.Agent.Runner != nil {
		switch c.Agent.Runner.Type {
		case "", "exec", "sandbox-exec", "firejail", "docker":
		default:
			return fail("agent.runner.type", fmt.Errorf("%w: %q", ErrInvalidValue, c.Agent.Runner.Type))
		}
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		return fail("system_prompt", ErrMissingField)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fail("model", ErrMissingField)
	}

	switch c.Inference.Provider {
	case ProviderAgent, ProviderGemini:
	default:
		return fail("inference.provider", fmt.Errorf("%w: %q", ErrInvalidValue, c.Inference.Provider))
	}
	if c.Inference.Timeout < 0 {
		return fail("inference.timeout", fmt.Errorf("%w: %s", ErrInvalidValue, c.Inference.Timeout))
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fail("logging.level", fmt.Errorf("%w: %q", ErrInvalidValue, c.Logging.Level))
	}

	for _, name := range c.ServerNames() {
		s := c.MCPServers[name]
		prefix := "mcp_servers." + name
		if strings.TrimSpace(s.Description) == "" {
			return fail(prefix+".description", ErrMissingField)
		}
		switch s.Transport {
		case "", TransportStdio:
			if strings.TrimSpace(s.Command) == "" {
				return fail(prefix+".command", ErrMissingField)
			}
		case TransportHTTP, TransportSSE:
			if strings.TrimSpace(s.URL) == "" {
				return fail(prefix+".url", ErrMissingField)
			}
		default:
			return fail(prefix+".transport", fmt.Errorf("%w: %q", ErrInvalidValue, s.Transport))
		}
	}

	return nil
}

// ServerNames returns all configured provider names (enabled or not), sorted.
func (c *Config) ServerNames() []string {
	names := make([]string, 0, len(c.MCPServers))
	for name := range c.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FullSystemPrompt returns the base prompt followed by the prompts of every
// enabled provider.
func (c *Config) FullSystemPrompt() string {
	return BuildSystemPrompt(c.SystemPrompt, NewRegistry(c).All())
}

// BuildSystemPrompt joins the base prompt and the prompts of the given
// capabilities with blank lines. Capabilities without a prompt are skipped.
func BuildSystemPrompt(base string, caps []Capability) string {
	parts := []string{base}
	for _, c := range caps {
		if c.Prompt != "" {
			parts = append(parts, c.Prompt)
		}
	}
	if len(parts) == 1 {
		return base
	}
	return strings.Join(parts, "\n\n")
}

// YAML renders the resolved configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
