package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/voicegate/pkg/call/store"
	"github.com/marmos91/voicegate/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the VoiceGate configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  voicegate config validate

  # Validate specific config file
  voicegate config validate --config /etc/voicegate/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load and validate configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Determine path for display
	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	// Additional validation checks
	var warnings []string

	if cfg.Store.Backend == store.BackendMemory {
		warnings = append(warnings, "store backend 'memory' does not persist calls across restarts")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port {
		warnings = append(warnings, "metrics port equals the API port - the metrics listener will fail to bind")
	}

	// Print results
	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Store backend:   %s\n", cfg.Store.Backend)
	fmt.Printf("  API port:        %d\n", cfg.Server.Port)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
