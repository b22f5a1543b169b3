package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/inercia/agentchat/internal/config"
)

const (
	// DefaultProbeTimeout bounds a single provider probe.
	DefaultProbeTimeout = 15 * time.Second
	// maxConcurrentProbes limits parallel probes.
	maxConcurrentProbes = 4
)

// TransportFunc builds the MCP transport used to reach a provider.
type TransportFunc func(c config.Capability) (mcp.Transport, error)

// Prober checks that providers start and lists their tools.
type Prober struct {
	hub       *Hub
	timeout   time.Duration
	transport TransportFunc
	logger    *slog.Logger
}

// NewProber creates a prober publishing into hub (which may be nil).
func NewProber(hub *Hub, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		hub:       hub,
		timeout:   DefaultProbeTimeout,
		transport: TransportFor,
		logger:    logger,
	}
}

// SetTimeout changes the per-provider timeout.
func (p *Prober) SetTimeout(d time.Duration) {
	p.timeout = d
}

// SetTransportFunc replaces how transports are built.
func (p *Prober) SetTransportFunc(fn TransportFunc) {
	p.transport = fn
}

// Probe checks every provider concurrently, publishes the results and
// returns them sorted by name. Individual failures are reported as
// StateFailed, never as an error.
func (p *Prober) Probe(ctx context.Context, caps []config.Capability) []ServerStatus {
	results := make([]ServerStatus, len(caps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)
	for i, c := range caps {
		g.Go(func() error {
			results[i] = p.probeOne(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	if p.hub != nil {
		p.hub.Update(results)
	}
	return results
}

func (p *Prober) probeOne(ctx context.Context, c config.Capability) ServerStatus {
	st := ServerStatus{Name: c.Name, State: StateFailed}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	transport, err := p.transport(c)
	if err != nil {
		st.Error = err.Error()
		return st
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "agentchat-probe", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		p.logger.Debug("Provider probe failed to connect", "server", c.Name, "error", err)
		st.Error = err.Error()
		return st
	}
	defer session.Close()

	res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		st.Error = err.Error()
		return st
	}

	for _, tool := range res.Tools {
		st.Tools = append(st.Tools, tool.Name)
	}
	sort.Strings(st.Tools)
	st.State = StateConnected
	p.logger.Debug("Provider probed", "server", c.Name, "tools", len(st.Tools))
	return st
}

// TransportFor builds the MCP client transport for a provider.
func TransportFor(c config.Capability) (mcp.Transport, error) {
	switch c.Transport {
	case config.TransportStdio, "":
		if c.Command == "" {
			return nil, errors.New("no command")
		}
		cmd := exec.Command(c.Command, c.Args...)
		cmd.Env = os.Environ()
		for k, v := range c.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		return &mcp.CommandTransport{Command: cmd}, nil

	case config.TransportHTTP:
		return &mcp.StreamableClientTransport{Endpoint: c.URL, HTTPClient: headerClient(c.Headers)}, nil

	case config.TransportSSE:
		return &mcp.SSEClientTransport{Endpoint: c.URL, HTTPClient: headerClient(c.Headers)}, nil

	default:
		return nil, fmt.Errorf("unsupported transport %q", c.Transport)
	}
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

func headerClient(headers map[string]string) *http.Client {
	if len(headers) == 0 {
		return http.DefaultClient
	}
	return &http.Client{Transport: &headerTransport{headers: headers, base: http.DefaultTransport}}
}
