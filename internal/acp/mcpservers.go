package acp

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/coder/acp-go-sdk"

	"github.com/inercia/agentchat/internal/config"
)

type nameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MCPServers converts capabilities into the session's MCP server list,
// ordered by name.
func MCPServers(caps map[string]config.Capability) ([]acp.McpServer, error) {
	servers := make([]acp.McpServer, 0, len(caps))
	for _, c := range config.Sorted(caps) {
		s, err := mcpServer(c)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, nil
}

func mcpServer(c config.Capability) (acp.McpServer, error) {
	var raw map[string]any
	switch c.Transport {
	case config.TransportStdio, "":
		if c.Command == "" {
			return acp.McpServer{}, fmt.Errorf("mcp server %q: no command", c.Name)
		}
		args := c.Args
		if args == nil {
			args = []string{}
		}
		raw = map[string]any{"name": c.Name, "command": c.Command, "args": args, "env": pairs(c.Env)}
	case config.TransportHTTP, config.TransportSSE:
		if c.URL == "" {
			return acp.McpServer{}, fmt.Errorf("mcp server %q: no url", c.Name)
		}
		raw = map[string]any{"type": string(c.Transport), "name": c.Name, "url": c.URL, "headers": pairs(c.Headers)}
	default:
		return acp.McpServer{}, fmt.Errorf("mcp server %q: unsupported transport %q", c.Name, c.Transport)
	}

	// the SDK type is a tagged union; its JSON form is the stable contract
	b, err := json.Marshal(raw)
	if err != nil {
		return acp.McpServer{}, err
	}
	var s acp.McpServer
	if err := json.Unmarshal(b, &s); err != nil {
		return acp.McpServer{}, fmt.Errorf("mcp server %q: %w", c.Name, err)
	}
	return s, nil
}

// pairs returns m as name/value entries sorted by name. Never nil.
func pairs(m map[string]string) []nameValue {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]nameValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, nameValue{Name: k, Value: m[k]})
	}
	return out
}
