package cli

import (
	"github.com/spf13/cobra"
)

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		sf  storeFlag
		yes bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all persisted state",
		Long: `Delete every persisted section: records, the sent ledger, answer
dedup keys, recent rows, counters and the eviction watermark. A following
run starts from scratch and may resend creates for calls still visible in
the list.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			if !yes {
				return out.Fail(ExitCommandError, CodeInput, "refusing to reset without --yes", nil)
			}

			st, err := sf.open(rootOpts)
			if err != nil {
				return out.Fail(ExitCommandError, CodeStore, "failed to open store", err)
			}
			defer closeStore(st)

			if err := st.Reset(commandContext(cmd)); err != nil {
				return out.Fail(ExitFailure, CodeStore, "failed to reset store", err)
			}
			return out.Success("State reset.")
		},
	}
	sf.register(cmd)
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
