package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/voicegate/internal/cli/prompt"
	"github.com/marmos91/voicegate/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a sample configuration file",
	Long: `Create a sample VoiceGate configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/voicegate/config.yaml.
Use --config to specify a custom path. When the target file already exists
you are asked before it is overwritten.

Examples:
  # Initialize with default location
  voicegate config init

  # Initialize with custom path
  voicegate config init --config /etc/voicegate/config.yaml

  # Overwrite existing config without prompting
  voicegate config init --force`,
	RunE: runConfigInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file without prompting")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")

	targetPath := configFile
	if targetPath == "" {
		targetPath = config.GetDefaultConfigPath()
	}

	// Confirm before overwriting an existing file
	if _, statErr := os.Stat(targetPath); statErr == nil {
		confirmed, err := prompt.ConfirmWithForce(
			fmt.Sprintf("Configuration file already exists at %s. Overwrite?", targetPath),
			initForce,
		)
		if err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("\nAborted.")
				return nil
			}
			return err
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var configPath string
	var err error

	if configFile != "" {
		// Use custom path
		err = config.InitConfigToPath(configFile, true)
		configPath = configFile
	} else {
		// Use default path
		configPath, err = config.InitConfig(true)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: voicegate start")
	fmt.Printf("  3. Or specify custom config: voicegate start --config %s\n", configPath)

	return nil
}
