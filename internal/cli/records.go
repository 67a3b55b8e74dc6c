package cli

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/callrecon/internal/call"
)

// RecordView is one persisted record as shown by the records command.
type RecordView struct {
	Key        string     `json:"key"`
	Contact    string     `json:"contact"`
	Name       string     `json:"name,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	State      call.State `json:"state"`
	CalledBack bool       `json:"called_back"`
}

// RecordList is the records command result, newest first.
type RecordList struct {
	Records []RecordView `json:"records"`
	Total   int          `json:"total"`
}

// Text renders one line per record.
func (l RecordList) Text() string {
	if len(l.Records) == 0 {
		return "No records."
	}
	var b strings.Builder
	for _, r := range l.Records {
		ack := ""
		if r.CalledBack {
			ack = " called back"
		}
		fmt.Fprintf(&b, "%s  %-16s  %-22s  %s%s\n",
			r.Timestamp.Format("2006-01-02 15:04"), r.Contact, r.State, r.Key, ack)
	}
	fmt.Fprintf(&b, "%d record(s)", l.Total)
	return b.String()
}

// NewRecordsCommand creates the records command.
func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		sf      storeFlag
		pending bool
	)

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List persisted missed-call records",
		Long: `List the missed-call records kept in the store, newest first.

The key column is the phone@epoch form accepted by the ack command.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)

			loc, err := rootOpts.Config.Engine.LoadLocation()
			if err != nil {
				return out.Fail(ExitCommandError, CodeConfig, "invalid location", err)
			}

			st, err := sf.open(rootOpts)
			if err != nil {
				return out.Fail(ExitCommandError, CodeStore, "failed to open store", err)
			}
			defer closeStore(st)

			state, _ := st.Load(commandContext(cmd))
			return out.Success(buildRecordList(state.Records, loc, pending))
		},
	}
	sf.register(cmd)
	cmd.Flags().BoolVar(&pending, "pending", false, "only records not yet reclassified as answered")
	return cmd
}

func buildRecordList(records []call.Record, loc *time.Location, pendingOnly bool) RecordList {
	list := RecordList{Records: []RecordView{}}
	for _, r := range records {
		if pendingOnly && r.IsAnswered {
			continue
		}
		list.Records = append(list.Records, RecordView{
			Key:        r.Key().String(),
			Contact:    r.Contact,
			Name:       r.Name,
			Timestamp:  r.Timestamp.In(loc),
			State:      r.State(),
			CalledBack: r.CalledBack,
		})
	}
	slices.SortStableFunc(list.Records, func(a, b RecordView) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	list.Total = len(list.Records)
	return list
}
