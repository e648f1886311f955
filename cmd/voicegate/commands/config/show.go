package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/voicegate/internal/cli/output"
	"github.com/marmos91/voicegate/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the current VoiceGate configuration.

The output reflects defaults, the configuration file, and any VOICEGATE_*
environment overrides. By default outputs YAML format.

Examples:
  # Show effective config as YAML
  voicegate config show

  # Show as JSON
  voicegate config show --output json

  # Show specific config file
  voicegate config show --config /etc/voicegate/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Parse output format
	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	// Print configuration
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, cfg)
	default:
		return output.PrintYAML(os.Stdout, cfg)
	}
}
