package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/callrecon/internal/monitor"
	"github.com/roach88/callrecon/internal/store"
)

// StatusView is the command-line rendering of a monitor status.
type StatusView struct {
	Monitoring     bool      `json:"monitoring"`
	Line           string    `json:"line"`
	Delivered      int       `json:"delivered"`
	Updated        int       `json:"updated"`
	Failed         int       `json:"failed"`
	Records        int       `json:"records"`
	Pending        int       `json:"pending"`
	LastError      string    `json:"last_error,omitempty"`
	LastDeliveryAt time.Time `json:"last_delivery_at,omitzero"`
}

func newStatusView(st monitor.Status) StatusView {
	return StatusView{
		Monitoring: st.Monitoring,
		Line:       st.String(),
		Delivered:  st.Delivered,
		Updated:    st.Updated,
		Failed:     st.Failed,
		Records:    st.Records,
		Pending:    st.Pending,
		LastError:  st.LastError,
	}
}

// Text returns the status line.
func (v StatusView) Text() string {
	return v.Line
}

// storeFlag is the --store override shared by the offline commands.
type storeFlag struct {
	DSN string
}

func (f *storeFlag) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.DSN, "store", "", "state store DSN (overrides config)")
}

// open opens the configured store, preferring the flag.
func (f *storeFlag) open(opts *RootOptions) (*store.Store, error) {
	dsn := opts.Config.Store.DSN
	if f.DSN != "" {
		dsn = f.DSN
	}
	slog.Debug("opening store", "dsn", dsn)
	return store.Open(dsn)
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing store", "error", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var sf storeFlag

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show delivery counters and pending records from the store",
		Long: `Show the persisted state as a status line.

The counters are those saved by the last monitoring session. A record is
pending until an answer reclassifies it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)

			st, err := sf.open(rootOpts)
			if err != nil {
				return out.Fail(ExitCommandError, CodeStore, "failed to open store", err)
			}
			defer closeStore(st)

			state, report := st.Load(commandContext(cmd))
			view := statusFromState(state)
			if len(report.Corrupt) > 0 {
				view.LastError = fmt.Sprintf("corrupt sections: %v", report.Corrupt)
				view.Line += " (" + view.LastError + ")"
			}
			return out.Success(view)
		},
	}
	sf.register(cmd)
	return cmd
}

func statusFromState(state store.State) StatusView {
	ms := monitor.Status{
		Delivered: state.Stats.Delivered,
		Updated:   state.Stats.Updated,
		Failed:    state.Stats.Failed,
		Records:   len(state.Records),
	}
	for _, r := range state.Records {
		if !r.IsAnswered {
			ms.Pending++
		}
	}
	view := newStatusView(ms)
	view.LastDeliveryAt = state.Stats.LastDeliveryAt
	return view
}
