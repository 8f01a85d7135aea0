package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerbox/internal/engine"
)

type replayOutput engine.ReplayResult

func (r replayOutput) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Replayed %d transactions across %d accounts\n", r.Transactions, r.Accounts)
	if len(r.Mismatches) == 0 {
		fmt.Fprintln(w, "✓ Replay reproduced every account")
		return
	}
	fmt.Fprintf(w, "✗ %d divergence(s):\n", len(r.Mismatches))
	for _, m := range r.Mismatches {
		switch {
		case m.Seq > 0:
			fmt.Fprintf(w, "  seq %d (%s): %s\n", m.Seq, m.Account, m.Reason)
		default:
			fmt.Fprintf(w, "  account %s: %s\n", m.Account, m.Reason)
		}
	}
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the transaction log and verify determinism",
		Long: `Re-execute the whole transaction log against a scratch in-memory store,
using the recorded timestamps, and compare every account byte for byte.

Exit codes:
  0 - Replay reproduced the live state
  1 - Divergence detected
  2 - Command error (database not found, etc.)

Examples:
  ledgerbox replay --db ./ledgerbox.db
  ledgerbox replay --db ./ledgerbox.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := rootOpts.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			out := rootOpts.formatter(cmd)
			out.VerboseLog("Replaying through seq %d", eng.Clock().Current())

			res, err := eng.Replay(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "replay failed", err)
			}
			if err := out.Success(replayOutput(res)); err != nil {
				return err
			}
			if !res.OK() {
				return NewExitError(ExitFailure, fmt.Sprintf("replay diverged in %d place(s)", len(res.Mismatches)))
			}
			return nil
		},
	}

	return cmd
}
