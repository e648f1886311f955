package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/voicegate/cmd/voicegatectl/cmdutil"
	"github.com/marmos91/voicegate/internal/cli/output"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	Long: `Check the liveness and readiness of the connected VoiceGate server.

Liveness reports whether the process is up; readiness reports whether the
server can take PBX traffic (store reachable, engine accepting work).

Examples:
  # Check server health
  voicegatectl health

  # Check a specific server
  voicegatectl health --server http://voicegate.example.com:8080

  # Output as JSON
  voicegatectl health -o json`,
	RunE: runHealth,
}

// ServerHealth represents the combined health report for display.
type ServerHealth struct {
	Server  string            `json:"server" yaml:"server"`
	Status  string            `json:"status" yaml:"status"`
	Ready   string            `json:"ready" yaml:"ready"`
	Details map[string]string `json:"details,omitempty" yaml:"details,omitempty"`
	Error   string            `json:"error,omitempty" yaml:"error,omitempty"`
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := cmdutil.GetClient()

	health := ServerHealth{
		Server: client.BaseURL(),
		Status: "unreachable",
		Ready:  "unreachable",
	}

	live, err := client.Health()
	if err != nil {
		health.Error = err.Error()
	} else {
		health.Status = live.Status
	}

	ready, err := client.Ready()
	if err != nil {
		if health.Error == "" {
			health.Error = err.Error()
		}
	} else {
		health.Ready = ready.Status
		health.Details = ready.Data
		if ready.Error != "" {
			health.Error = ready.Error
		}
	}

	// Output based on format
	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, health)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, health)
	default:
		printHealthTable(health)
	}

	return nil
}

func printHealthTable(health ServerHealth) {
	fmt.Println()
	fmt.Println("VoiceGate Server Health")
	fmt.Println("=======================")
	fmt.Println()
	fmt.Printf("  Server:     %s\n", health.Server)
	fmt.Printf("  Liveness:   %s\n", statusDot(health.Status))
	fmt.Printf("  Readiness:  %s\n", statusDot(health.Ready))

	for key, value := range health.Details {
		fmt.Printf("  %-11s %s\n", key+":", value)
	}
	if health.Error != "" {
		fmt.Printf("  Error:      %s\n", health.Error)
	}
	fmt.Println()
}

// statusDot renders a colored status indicator for terminal output.
func statusDot(status string) string {
	switch status {
	case "healthy":
		return fmt.Sprintf("\033[32m● %s\033[0m", status)
	case "unreachable":
		return fmt.Sprintf("\033[31m○ %s\033[0m", status)
	default:
		return fmt.Sprintf("\033[33m● %s\033[0m", status)
	}
}
