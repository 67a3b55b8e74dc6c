package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/callrecon/internal/call"
	"github.com/roach88/callrecon/internal/classify"
	"github.com/roach88/callrecon/internal/source"
)

// ClassifyResult is the classification of one snapshot.
type ClassifyResult struct {
	Events   []call.Event `json:"events"`
	Skipped  int          `json:"skipped"`
	Failures []string     `json:"failures,omitempty"`
}

// Text renders one line per event, then the failures.
func (r ClassifyResult) Text() string {
	var b strings.Builder
	for _, ev := range r.Events {
		fmt.Fprintf(&b, "%-8s  %s  %-16s  row %s\n",
			ev.Kind, ev.Timestamp.Format("2006-01-02 15:04"), ev.DisplayContact, ev.SourceIndex)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "failed  %s\n", f)
	}
	fmt.Fprintf(&b, "%d event(s), %d skipped, %d failed", len(r.Events), r.Skipped, len(r.Failures))
	return b.String()
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(rootOpts *RootOptions) *cobra.Command {
	var now string

	cmd := &cobra.Command{
		Use:   "classify <rows.json|->",
		Short: "Classify a snapshot of call rows without delivering anything",
		Long: `Classify a snapshot of the call list and print the resulting events.

The input is {"rows": [...]} or a bare array of rows; "-" reads stdin.
Relative labels such as "Yesterday" are resolved against --now.

Example:
  callrecon classify ./rows.json --now 2026-03-04T15:00:00-05:00`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)

			loc, err := rootOpts.Config.Engine.LoadLocation()
			if err != nil {
				return out.Fail(ExitCommandError, CodeConfig, "invalid location", err)
			}

			clock := time.Now
			if now != "" {
				t, err := time.Parse(time.RFC3339, now)
				if err != nil {
					return out.Fail(ExitCommandError, CodeInput, "invalid --now (want RFC3339)", err)
				}
				clock = func() time.Time { return t }
			}

			data, err := readInput(cmd, args[0])
			if err != nil {
				return out.Fail(ExitCommandError, CodeInput, "failed to read rows", err)
			}
			rows, err := source.DecodeSnapshot(data)
			if err != nil {
				return out.Fail(ExitCommandError, CodeInput, "failed to decode rows", err)
			}

			c := classify.New(classify.WithNow(clock), classify.WithLocation(loc))
			return out.Success(newClassifyResult(c.ClassifyBatch(rows)))
		},
	}
	cmd.Flags().StringVar(&now, "now", "", "reference time for relative labels (RFC3339, default: current time)")
	return cmd
}

func newClassifyResult(b classify.Batch) ClassifyResult {
	r := ClassifyResult{Events: b.Events, Skipped: b.Skipped}
	if r.Events == nil {
		r.Events = []call.Event{}
	}
	for _, err := range b.Failures {
		r.Failures = append(r.Failures, err.Error())
	}
	return r
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
