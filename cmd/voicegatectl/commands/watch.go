package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/voicegate/cmd/voicegatectl/cmdutil"
)

var watchCall string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live event stream",
	Long: `Subscribe to the server's WebSocket event stream and print events as
JSON lines, one event per line.

The stream carries packet_received, state_changed, ai_completed, and
ai_failed events for all calls. Use --call to show a single call only.

Examples:
  # Watch all events
  voicegatectl watch

  # Watch one call
  voicegatectl watch --call call-1234

  # Pipe into jq
  voicegatectl watch | jq .event`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchCall, "call", "", "Only show events for this call ID")
}

func runWatch(cmd *cobra.Command, args []string) error {
	client := cmdutil.GetClient()

	// Set up signal handling for graceful exit
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	events, err := client.WatchEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl+C to stop)...\n", client.BaseURL())

	for ev := range events {
		if watchCall != "" && ev.CallID != watchCall {
			continue
		}
		fmt.Println(string(ev.Raw))
	}

	// The channel closes on context cancel or when the server goes away.
	if ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "Event stream closed by server.")
	}

	return nil
}
