package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/inercia/agentchat/internal/config"
	"github.com/inercia/agentchat/internal/display"
	"github.com/inercia/agentchat/internal/logging"
	"github.com/inercia/agentchat/internal/status"
)

var (
	serversProbe   bool
	serversTimeout time.Duration
	serversVerbose bool
)

// serversCmd lists the configured MCP servers
var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List the configured MCP servers",
	Long: `List the MCP servers from the configuration.

With --probe, every enabled server is started (or contacted, for http and
sse servers) and asked for its tools, without involving the agent.`,
	Args: cobra.NoArgs,
	RunE: runServers,
}

func init() {
	rootCmd.AddCommand(serversCmd)

	serversCmd.Flags().BoolVarP(&serversProbe, "probe", "p", false, "Connect to each enabled server and list its tools")
	serversCmd.Flags().DurationVar(&serversTimeout, "timeout", status.DefaultProbeTimeout, "Timeout for each probe")
	serversCmd.Flags().BoolVarP(&serversVerbose, "verbose", "v", false, "Show tool names and probe errors")
}

func runServers(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(cfg.MCPServers) == 0 {
		fmt.Fprintln(out, "No MCP servers configured.")
		return nil
	}

	var results map[string]status.ServerStatus
	if serversProbe {
		prober := status.NewProber(nil, logging.MCP())
		prober.SetTimeout(serversTimeout)
		results = make(map[string]status.ServerStatus)
		for _, st := range prober.Probe(cmd.Context(), config.NewRegistry(cfg).All()) {
			results[st.Name] = st
		}
	}

	writeServers(out, cfg, results, serversVerbose)
	return nil
}

// writeServers prints one row per configured server. results holds probe
// outcomes by name; nil means no probe was run.
func writeServers(out io.Writer, c *config.Config, results map[string]status.ServerStatus, verbose bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "NAME\tTRANSPORT\tENABLED\tDESCRIPTION"
	if results != nil {
		header = "NAME\tTRANSPORT\tENABLED\tSTATUS\tTOOLS\tDESCRIPTION"
	}
	_, _ = fmt.Fprintln(w, header)

	for _, name := range c.ServerNames() {
		s := c.MCPServers[name]
		transport := string(s.Transport)
		if transport == "" {
			transport = string(config.TransportStdio)
		}
		enabled := "yes"
		if !s.IsEnabled() {
			enabled = "no"
		}
		desc := display.Truncate(s.Description, 60)

		if results == nil {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, transport, enabled, desc)
			continue
		}

		state, tools := "-", "-"
		if st, ok := results[name]; ok {
			state = string(st.State)
			tools = fmt.Sprintf("%d", len(st.Tools))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", name, transport, enabled, state, tools, desc)
	}
	_ = w.Flush()

	if !verbose || results == nil {
		return
	}
	for _, name := range c.ServerNames() {
		st, ok := results[name]
		if !ok {
			continue
		}
		fmt.Fprintf(out, "\n%s:\n", name)
		if st.Error != "" {
			fmt.Fprintf(out, "  error: %s\n", st.Error)
			continue
		}
		if len(st.Tools) > 0 {
			fmt.Fprintln(out, display.Indent(strings.Join(st.Tools, "\n"), 2))
		}
	}
}
