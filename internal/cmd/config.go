package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	embeddedconfig "github.com/inercia/agentchat/config"
	"github.com/inercia/agentchat/internal/appdir"
	"github.com/inercia/agentchat/internal/config"
	"github.com/inercia/agentchat/internal/permission"
)

var (
	configOutputPath string
	configForce      bool
)

// configCmd represents the config parent command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the agentchat configuration",
	Long: `Inspect the agentchat configuration file.

The file is looked up in this order: --config, $AGENTCHAT_CONFIG,
./agentchat.yaml (or .toml), then the agentchat data directory.`,
}

// configShowCmd represents the config show subcommand
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Long: `Print the configuration after defaults, environment variable
expansion and prompt file loading have been applied.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// configValidateCmd represents the config validate subcommand
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file",
	Long: `Check the configuration file for missing or invalid fields and
compile the permission rules. Exits with an error when a problem is found.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

// configCreateCmd represents the config create subcommand
var configCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a starter configuration file",
	Long: `Write a starter agentchat.yaml and its prompts/ directory.

Examples:
  agentchat config create                    # into the agentchat data directory
  agentchat config create --output .         # into the current directory
  agentchat config create --force            # overwrite existing files`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{noConfigAnnotation: "true"},
	RunE:        runConfigCreate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configCreateCmd)

	configCreateCmd.Flags().StringVarP(&configOutputPath, "output", "o", "",
		"Directory to write the configuration to (default: the agentchat data directory)")
	configCreateCmd.Flags().BoolVarP(&configForce, "force", "f", false,
		"Overwrite existing files")
}

func runConfigCreate(cmd *cobra.Command, args []string) error {
	outputDir := configOutputPath
	if outputDir == "" {
		dir, err := appdir.Dir()
		if err != nil {
			return err
		}
		outputDir = dir
	}

	result, err := embeddedconfig.Deploy(outputDir, configForce)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range result.Deployed {
		fmt.Fprintf(out, "✅ Created %s\n", filepath.Join(outputDir, name))
	}
	for _, name := range result.Skipped {
		fmt.Fprintf(out, "⚠️  Kept existing %s (use --force to overwrite)\n", filepath.Join(outputDir, name))
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("failed to create configuration: %w", errors.Join(result.Errors...))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Set agent.command to the ACP agent you use")
	fmt.Fprintln(out, "  2. Enable the MCP servers you need")
	fmt.Fprintln(out, "  3. Run 'agentchat config validate', then 'agentchat'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	data, err := cfg.YAML()
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n", cfg.Path)
	_, err = out.Write(data)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Load already validated the file; the rules are only checked here.
	rules, err := permission.CompileRules(cfg.Permissions.AutoAllow)
	if err != nil {
		return &config.ConfigError{Path: cfg.Path, Field: "permissions.auto_allow", Err: err}
	}

	reg := config.NewRegistry(cfg)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✅ Configuration is valid: %s\n", cfg.Path)
	fmt.Fprintf(out, "   Agent: %s\n", cfg.Agent.Command)
	fmt.Fprintf(out, "   MCP servers: %d configured, %d enabled\n", len(cfg.MCPServers), reg.Len())
	fmt.Fprintf(out, "   Inference: %s\n", inferenceSummary(cfg))
	fmt.Fprintf(out, "   Auto-allow rules: %d\n", rules.Len())
	return nil
}

func inferenceSummary(c *config.Config) string {
	if !c.MCPServerInference {
		return "off (all enabled servers are attached at startup)"
	}
	model := c.Inference.Model
	if model == "" {
		model = "default model"
	}
	return fmt.Sprintf("%s (%s)", c.Inference.Provider, model)
}
