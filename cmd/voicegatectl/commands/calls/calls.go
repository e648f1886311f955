// Package calls implements call inspection and completion subcommands.
package calls

import (
	"github.com/spf13/cobra"
)

// Cmd is the calls subcommand.
var Cmd = &cobra.Command{
	Use:   "calls",
	Short: "Inspect and complete calls",
	Long: `Inspect call state and signal call completion.

Subcommands:
  list      List call snapshots
  get       Get details for one call
  complete  Signal that a call has ended`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(getCmd)
	Cmd.AddCommand(completeCmd)
}
