package cli

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/callrecon/internal/delivery"
)

type recordingSink struct {
	mu         sync.Mutex
	deliveries []delivery.Delivery
}

func (s *recordingSink) Send(_ context.Context, d delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
	return nil
}

func TestRunCommand_RequiresSource(t *testing.T) {
	opts := testRootOptions(t, "text")
	opts.Config.Source.DSN = ""

	out, err := runCommand(NewRunCommand(opts), "--sink", "http://localhost:9/hook")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "source is required")
}

func TestRunCommand_RequiresSink(t *testing.T) {
	opts := testRootOptions(t, "json")

	out, err := runCommand(NewRunCommand(opts), "--source", filepath.Join(t.TempDir(), "rows.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeSink, resp.Error.Code)
}

func TestRunCommand_BadStore(t *testing.T) {
	opts := testRootOptions(t, "text")

	_, err := runCommand(NewRunCommand(opts),
		"--source", filepath.Join(t.TempDir(), "rows.json"),
		"--sink", "http://localhost:9/hook",
		"--store", "ftp://nowhere",
	)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommand_UnsupportedSource(t *testing.T) {
	opts := testRootOptions(t, "text")

	_, err := runCommand(NewRunCommand(opts),
		"--source", "gopher://feed",
		"--sink", "http://localhost:9/hook",
	)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommand_MonitorsUntilCancelled(t *testing.T) {
	opts := testRootOptions(t, "text")
	opts.Config.Monitor.Debounce = 0

	rows := filepath.Join(t.TempDir(), "rows.json")
	require.NoError(t, os.WriteFile(rows, []byte(snapshotJSON), 0o644))

	sink := &recordingSink{}
	runOpts := &RunOptions{RootOptions: opts, Source: rows, Sink: sink}
	cmd := NewRunCommand(opts)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runMonitor(runOpts, cmd)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	cmd.SetContext(ctx)

	out, err := runCommand(cmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Monitoring "+rows)
	assert.Contains(t, out, "stopped:")

	st := loadStore(t, opts)
	assert.NotEmpty(t, st.Records, "the missed row is persisted on stop")
}
