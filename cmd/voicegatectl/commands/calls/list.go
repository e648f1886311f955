package calls

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/voicegate/cmd/voicegatectl/cmdutil"
	"github.com/marmos91/voicegate/internal/cli/timeutil"
	"github.com/marmos91/voicegate/pkg/apiclient"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List call snapshots",
	Long: `List call snapshots on the VoiceGate server, newest first.

Examples:
  # List calls as table
  voicegatectl calls list

  # List the 10 most recent calls
  voicegatectl calls list --limit 10

  # List as JSON
  voicegatectl calls list -o json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of calls to return (default: server default)")
}

// CallList is a list of calls for table rendering.
type CallList []apiclient.Call

// Headers implements TableRenderer.
func (cl CallList) Headers() []string {
	return []string{"CALL ID", "STATE", "RECEIVED", "EXPECTED", "MISSING", "UPDATED"}
}

// Rows implements TableRenderer.
func (cl CallList) Rows() [][]string {
	rows := make([][]string, 0, len(cl))
	for _, c := range cl {
		expected := "-"
		if c.ExpectedTotal != nil {
			expected = fmt.Sprintf("%d", *c.ExpectedTotal)
		}
		missing := "-"
		if len(c.MissingSequences) > 0 {
			missing = fmt.Sprintf("%d", len(c.MissingSequences))
		}
		rows = append(rows, []string{
			c.CallID,
			c.State,
			fmt.Sprintf("%d", c.ReceivedCount),
			expected,
			missing,
			timeutil.FormatTime(c.UpdatedAt.Format(time.RFC3339)),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client := cmdutil.GetClient()

	calls, err := client.ListCalls(listLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list calls: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, calls, len(calls) == 0, "No calls found.", CallList(calls))
}
