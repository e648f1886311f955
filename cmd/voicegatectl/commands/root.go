// Package commands implements the CLI commands for the voicegatectl client.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/voicegate/cmd/voicegatectl/cmdutil"
	callscmd "github.com/marmos91/voicegate/cmd/voicegatectl/commands/calls"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "voicegatectl",
	Short: "VoiceGate Control - Remote operator client",
	Long: `voicegatectl is the command-line client for operating a VoiceGate server.

Use this tool to inspect call state, signal call completion, follow the live
event stream, and check server health through the VoiceGate REST/WebSocket API.

Use "voicegatectl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Sync flags to cmdutil.Flags for subcommands
		cmdutil.Flags.ServerURL, _ = cmd.Flags().GetString("server")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
		cmdutil.Flags.Verbose, _ = cmd.Flags().GetBool("verbose")
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().String("server", cmdutil.DefaultServerURL, "Server URL")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(callscmd.Cmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
