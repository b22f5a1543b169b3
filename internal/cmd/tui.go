package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inercia/agentchat/internal/appdir"
	"github.com/inercia/agentchat/internal/tui"
)

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	convDir, err := appdir.ConversationsDir()
	if err != nil {
		return err
	}

	sink := tui.NewSink()
	a, err := newApp(cfg, sink, appOptions{AutoApprove: GetEffectiveAutoApprove(cmd)})
	if err != nil {
		return err
	}
	defer a.close()
	a.watchConfig(func(path string) { sink.Render(configChangedNotice(path)) })

	return a.run(ctx, func(ctx context.Context) error {
		return tui.Run(ctx, tui.Options{
			Controller:       a.loop,
			Sink:             sink,
			Hub:              a.hub,
			Servers:          a.registry.Names(),
			ConversationsDir: convDir,
			PlainText:        plainText,
		})
	})
}

// GetEffectiveAutoApprove returns whether tool calls are approved without
// asking. Only the --auto-approve flag enables it.
func GetEffectiveAutoApprove(cmd *cobra.Command) bool {
	if flag := cmd.Flags().Lookup("auto-approve"); flag != nil {
		return flag.Value.String() == "true"
	}
	return autoApprove
}
