package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/callrecon/internal/call"
	"github.com/roach88/callrecon/internal/engine"
)

// AckResult reports an acknowledged record.
type AckResult struct {
	Key     string `json:"key"`
	Changed bool   `json:"changed"`
}

// Text renders the acknowledgment.
func (r AckResult) Text() string {
	if !r.Changed {
		return fmt.Sprintf("%s was already called back", r.Key)
	}
	return fmt.Sprintf("%s marked as called back", r.Key)
}

// NewAckCommand creates the ack command.
func NewAckCommand(rootOpts *RootOptions) *cobra.Command {
	var sf storeFlag

	cmd := &cobra.Command{
		Use:   "ack <phone@epoch>",
		Short: "Mark a missed call as called back",
		Long: `Mark a persisted record as called back.

The key is the phone@epoch form listed by the records command. The store is
edited directly, so run this while no monitor is using the same store.

Example:
  callrecon ack 5551234567@1772651700`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)

			key, err := call.ParseRecordKey(args[0])
			if err != nil {
				return out.Fail(ExitCommandError, CodeInput, "invalid record key", err)
			}

			st, err := sf.open(rootOpts)
			if err != nil {
				return out.Fail(ExitCommandError, CodeStore, "failed to open store", err)
			}
			defer closeStore(st)

			ctx := commandContext(cmd)
			state, _ := st.Load(ctx)

			idx := -1
			for i, r := range state.Records {
				if r.Key() == key {
					idx = i
					break
				}
			}
			if idx < 0 {
				return out.Fail(ExitFailure, CodeInput, "record not found",
					fmt.Errorf("acknowledge %s: %w", key, engine.ErrUnknownRecord))
			}

			result := AckResult{Key: key.String()}
			if !state.Records[idx].CalledBack {
				state.Records[idx].CalledBack = true
				if err := st.Save(ctx, state); err != nil {
					return out.Fail(ExitFailure, CodeStore, "failed to save state", err)
				}
				result.Changed = true
			}
			return out.Success(result)
		},
	}
	sf.register(cmd)
	return cmd
}
