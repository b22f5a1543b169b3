package config

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCapabilityNotFound is returned by Registry.Get for unknown provider names.
var ErrCapabilityNotFound = errors.New("capability not found")

// Capability is an enabled capability provider (an MCP server) that can be
// attached to the agent session.
type Capability struct {
	Name        string
	Description string

	Transport Transport
	// Command, Args and Env are used by the stdio transport.
	Command string
	Args    []string
	Env     map[string]string
	// URL and Headers are used by the http and sse transports.
	URL     string
	Headers map[string]string

	// Prompt is appended to the system prompt while the provider is attached.
	Prompt          string
	DisallowedTools []string
}

// Registry is the immutable set of enabled capability providers.
// It is safe for concurrent reads.
type Registry struct {
	caps  map[string]Capability
	names []string
}

// NewRegistry builds a registry holding the enabled providers of cfg.
// A nil cfg yields an empty registry.
func NewRegistry(cfg *Config) *Registry {
	r := &Registry{caps: make(map[string]Capability)}
	if cfg == nil {
		return r
	}

	for _, name := range cfg.ServerNames() {
		s := cfg.MCPServers[name]
		if !s.IsEnabled() {
			continue
		}
		transport := s.Transport
		if transport == "" {
			transport = TransportStdio
		}
		r.caps[name] = Capability{
			Name:            name,
			Description:     s.Description,
			Transport:       transport,
			Command:         s.Command,
			Args:            append([]string(nil), s.Args...),
			Env:             copyMap(s.Env),
			URL:             s.URL,
			Headers:         copyMap(s.Headers),
			Prompt:          s.Prompt,
			DisallowedTools: append([]string(nil), s.DisallowedTools...),
		}
		r.names = append(r.names, name)
	}
	return r
}

// LoadRegistry loads the configuration at path and returns its registry.
func LoadRegistry(path string) (*Registry, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewRegistry(cfg), nil
}

// Get returns the provider with the given name.
func (r *Registry) Get(name string) (Capability, error) {
	c, ok := r.caps[name]
	if !ok {
		return Capability{}, fmt.Errorf("%w: %q", ErrCapabilityNotFound, name)
	}
	return c, nil
}

// Has reports whether name is a known provider.
func (r *Registry) Has(name string) bool {
	_, ok := r.caps[name]
	return ok
}

// All returns every provider, sorted by name.
func (r *Registry) All() []Capability {
	out := make([]Capability, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.caps[name])
	}
	return out
}

// Names returns the sorted provider names.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of providers.
func (r *Registry) Len() int {
	return len(r.names)
}

// Select returns the providers named in names. Unknown names are skipped.
func (r *Registry) Select(names []string) map[string]Capability {
	out := make(map[string]Capability, len(names))
	for _, name := range names {
		if c, ok := r.caps[name]; ok {
			out[name] = c
		}
	}
	return out
}

// Sorted returns the values of a selection ordered by name.
func Sorted(caps map[string]Capability) []Capability {
	names := make([]string, 0, len(caps))
	for name := range caps {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Capability, 0, len(names))
	for _, name := range names {
		out = append(out, caps[name])
	}
	return out
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
