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

var getCmd = &cobra.Command{
	Use:   "get <call_id>",
	Short: "Get call details",
	Long: `Get detailed information about a call.

Examples:
  # Get call details as table
  voicegatectl calls get call-1234

  # Get as JSON
  voicegatectl calls get call-1234 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

// SingleCallList wraps a single call for table rendering.
type SingleCallList []apiclient.Call

// Headers implements TableRenderer.
func (cl SingleCallList) Headers() []string {
	return []string{"FIELD", "VALUE"}
}

// Rows implements TableRenderer.
func (cl SingleCallList) Rows() [][]string {
	if len(cl) == 0 {
		return nil
	}
	c := cl[0]

	expected := "-"
	if c.ExpectedTotal != nil {
		expected = fmt.Sprintf("%d", *c.ExpectedTotal)
	}
	missing := "-"
	if len(c.MissingSequences) > 0 {
		missing = fmt.Sprintf("%v", c.MissingSequences)
	}
	transcription := "-"
	if c.Transcription != nil {
		transcription = *c.Transcription
	}
	sentiment := "-"
	if c.Sentiment != nil {
		sentiment = *c.Sentiment
	}

	return [][]string{
		{"Call ID", c.CallID},
		{"State", c.State},
		{"Received", fmt.Sprintf("%d", c.ReceivedCount)},
		{"Expected Total", expected},
		{"Expected Next", fmt.Sprintf("%d", c.ExpectedNext)},
		{"Missing Sequences", missing},
		{"Transcription", transcription},
		{"Sentiment", sentiment},
		{"Created", timeutil.FormatTime(c.CreatedAt.Format(time.RFC3339))},
		{"Updated", timeutil.FormatTime(c.UpdatedAt.Format(time.RFC3339))},
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	callID := args[0]

	client := cmdutil.GetClient()

	call, err := client.GetCall(callID)
	if err != nil {
		return fmt.Errorf("failed to get call: %w", err)
	}

	return cmdutil.PrintResource(os.Stdout, call, SingleCallList{*call})
}
