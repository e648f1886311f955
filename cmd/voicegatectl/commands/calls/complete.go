package calls

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/voicegate/cmd/voicegatectl/cmdutil"
)

var completeTotal int64

var completeCmd = &cobra.Command{
	Use:   "complete <call_id>",
	Short: "Signal that a call has ended",
	Long: `Signal the server that a call has ended and how many packets the PBX sent.

The server holds a short grace period for late packets, then runs AI analysis
and archives or fails the call. Repeating the signal for an already completed
call is reported but has no further effect.

Examples:
  # Complete a call that sent 120 packets
  voicegatectl calls complete call-1234 --total 120

  # Inspect the server verdict as JSON
  voicegatectl calls complete call-1234 --total 120 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

func init() {
	completeCmd.Flags().Int64Var(&completeTotal, "total", 0, "Total number of packets the PBX sent (required)")
	_ = completeCmd.MarkFlagRequired("total")
}

func runComplete(cmd *cobra.Command, args []string) error {
	callID := args[0]

	client := cmdutil.GetClient()

	resp, err := client.CompleteCall(callID, completeTotal)
	if err != nil {
		return fmt.Errorf("failed to complete call: %w", err)
	}

	return cmdutil.PrintResourceWithSuccess(os.Stdout, resp,
		fmt.Sprintf("Call '%s' completion signaled (status: %s, expected total: %d)",
			resp.CallID, resp.Status, resp.ExpectedTotalPackets))
}
