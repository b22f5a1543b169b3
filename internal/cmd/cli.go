package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inercia/agentchat/internal/appdir"
	"github.com/inercia/agentchat/internal/console"
	"github.com/inercia/agentchat/internal/display"
	"github.com/inercia/agentchat/internal/export"
)

var (
	// CLI-specific flags
	oncePrompt string
)

// cliCmd represents the cli command
var cliCmd = &cobra.Command{
	Use:   "cli",
	Short: "Line-oriented chat for plain terminals and scripts",
	Long: `Start an interactive readline session with the agent.

Use --once to send a single prompt and exit:
  agentchat cli --once "What changed in the last commit?"

Commands (interactive mode only):
  /new          - Start a new conversation
  /clear        - Clear the conversation history
  /save         - Save the conversation as markdown
  /cancel       - Cancel the current operation
  /quit, /exit  - Exit the CLI
  /help         - Show available commands`,
	Args: cobra.NoArgs,
	RunE: runCLI,
}

func init() {
	rootCmd.AddCommand(cliCmd)

	cliCmd.Flags().StringVar(&oncePrompt, "once", "", "Send a single prompt and exit (non-interactive mode)")
}

func runCLI(cmd *cobra.Command, args []string) error {
	isOnceMode := oncePrompt != ""

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	// Ctrl+C interrupts the running turn; at the prompt readline reports it.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	convDir, err := appdir.ConversationsDir()
	if err != nil {
		return err
	}

	printer := console.NewPrinter(cmd.OutOrStdout(), isOnceMode && !debug)
	recorder := export.NewRecorder(printer, export.NewTranscript())

	a, err := newApp(cfg, recorder, appOptions{AutoApprove: GetEffectiveAutoApprove(cmd)})
	if err != nil {
		return err
	}
	defer a.close()

	shell := console.New(console.Options{
		Controller:       a.loop,
		Printer:          printer,
		Transcript:       recorder.Transcript,
		ConversationsDir: convDir,
		Signals:          sigs,
	})

	if isOnceMode {
		return a.run(ctx, func(ctx context.Context) error {
			return shell.RunOnce(ctx, oncePrompt)
		})
	}

	printer.Printf("🚀 Starting agent: %s", cfg.Agent.Command)
	if names := a.registry.Names(); len(names) > 0 {
		mode := "attached"
		if cfg.MCPServerInference {
			mode = "attached on demand"
		}
		printer.Printf("   MCP servers (%s): %s", mode, display.JoinNames(names))
	}
	a.watchConfig(func(path string) { recorder.Render(configChangedNotice(path)) })

	return a.run(ctx, func(ctx context.Context) error {
		return untilDone(ctx, shell.Run)
	})
}

// untilDone runs fn and returns when it does or when ctx ends, whichever is
// first. A read blocked on the terminal cannot be cancelled, so fn may
// outlive the call.
func untilDone(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "\n👋 Shutting down...")
		return nil
	}
}
