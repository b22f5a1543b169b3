// Package cmd provides the CLI commands for agentchat.
package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/agentchat/internal/appdir"
	"github.com/inercia/agentchat/internal/config"
	"github.com/inercia/agentchat/internal/logging"
)

// logFileName is the TUI's default log file inside the logs directory.
const logFileName = "agentchat.log"

// noConfigAnnotation marks commands that run without a configuration file.
const noConfigAnnotation = "agentchat/no-config"

var (
	// Global flags
	configPath    string
	autoApprove   bool
	debug         bool
	logLevel      string // --log-level flag (debug, info, warn, error)
	logFile       string
	logComponents string
	plainText     bool

	// Loaded configuration
	cfg *config.Config
)

// rootCmd runs the full-screen chat when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "agentchat",
	Short: "Chat with an ACP agent in your terminal",
	Long: `agentchat is an interactive terminal chat client for coding agents
that speak the Agent Client Protocol (ACP).

MCP servers listed in the configuration are attached to the agent session.
With mcp_server_inference enabled, they are attached on demand: each message
is classified and the servers it needs are connected before it is sent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentPreRunE = persistentPreRun
	rootCmd.PersistentPostRunE = persistentPostRun
	rootCmd.RunE = runTUI

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file path (YAML or TOML)")
	rootCmd.PersistentFlags().BoolVar(&autoApprove, "auto-approve", false, "Automatically approve every tool permission request")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (shorthand for --log-level=debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "logfile", "l", "", "Log file path")
	rootCmd.PersistentFlags().StringVar(&logComponents, "log-components", "", "Comma-separated list of components to log (e.g., 'session,acp'). Empty means all components.")
	rootCmd.Flags().BoolVar(&plainText, "plain", false, "Show agent replies as plain text instead of rendered markdown")
}

func persistentPreRun(cmd *cobra.Command, args []string) error {
	// Skip config loading for help and completion commands
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	if err := appdir.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create agentchat directory: %w", err)
	}
	if cmd.Annotations[noConfigAnnotation] != "" {
		return initLogging(false)
	}

	path, err := config.Locate(configPath)
	if err != nil {
		return fmt.Errorf("%w (use --config or $%s)", err, config.ConfigEnv)
	}
	cfg, err = config.Load(path)
	if err != nil {
		return err
	}

	return initLogging(isFullScreen(cmd))
}

func persistentPostRun(cmd *cobra.Command, args []string) error {
	// Clean up logging resources
	return logging.Close()
}

// isFullScreen reports whether cmd is the root command, which runs the TUI.
func isFullScreen(cmd *cobra.Command) bool {
	return !cmd.HasParent()
}

// effectiveLogLevel picks the level by priority:
// --log-level flag > --debug flag > configuration > fallback.
func effectiveLogLevel(fallback string) string {
	switch {
	case logLevel != "":
		return logLevel
	case debug:
		return "debug"
	case cfg != nil && cfg.Logging.Level != "":
		return cfg.Logging.Level
	default:
		return fallback
	}
}

// splitComponents parses the --log-components flag.
func splitComponents(s string) []string {
	var components []string
	for _, c := range strings.Split(s, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			components = append(components, c)
		}
	}
	return components
}

// initLogging configures the global logger. The full-screen chat owns the
// terminal, so it logs to a file only.
func initLogging(fullScreen bool) error {
	lc := logging.Config{
		Level:      effectiveLogLevel("info"),
		Components: splitComponents(logComponents),
	}
	if cfg != nil {
		lc.JSON = cfg.Logging.JSON
		if len(lc.Components) == 0 {
			lc.Components = cfg.Logging.Components
		}
	}

	path := logFile
	if path == "" && cfg != nil {
		path = cfg.Logging.File
	}
	if path == "" && fullScreen {
		dir, err := appdir.LogsDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, logFileName)
	}
	if path != "" {
		fl := logging.DefaultFileLogConfig()
		fl.Path = path
		if cfg != nil {
			fl.MaxSizeMB = cfg.Logging.MaxSizeMB
			fl.MaxBackups = cfg.Logging.MaxBackups
		}
		lc.FileLog = &fl
	}
	if fullScreen {
		lc.NoConsole = true
	} else if logLevel == "" && !debug {
		// keep the console readable; everything still goes to the file
		lc.FileLevel = lc.Level
		lc.Level = "warn"
	}

	if err := logging.Initialize(lc); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}
