package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/callrecon/internal/config"
	"github.com/roach88/callrecon/internal/delivery"
	"github.com/roach88/callrecon/internal/engine"
	"github.com/roach88/callrecon/internal/monitor"
	"github.com/roach88/callrecon/internal/source"
	"github.com/roach88/callrecon/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Source  string
	SinkURL string
	Store   string

	// Sink replaces the HTTP sink (for testing).
	Sink delivery.Sink
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor a live call list until interrupted",
		Long: `Start monitoring a live call-history view.

The source is a JSON snapshot file (watched for changes) or a ws:// feed.
New missed calls are sent to the sink as creates; answers inside the match
window send updates. State is persisted to the store so a restart does not
resend what was already delivered.

Example:
  callrecon run --source ./rows.json --sink https://hooks.example.com/calls
  callrecon run --source ws://localhost:9000/feed --store sqlite://./state.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "row source: file path, file:// or ws:// URL (overrides config)")
	cmd.Flags().StringVar(&opts.SinkURL, "sink", "", "sink URL (overrides config)")
	cmd.Flags().StringVar(&opts.Store, "store", "", "state store DSN (overrides config)")

	return cmd
}

func runMonitor(opts *RunOptions, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts.RootOptions)

	cfg := opts.Config
	if opts.Source != "" {
		cfg.Source.DSN = opts.Source
	}
	if opts.SinkURL != "" {
		cfg.Sink.URL = opts.SinkURL
	}
	if opts.Store != "" {
		cfg.Store.DSN = opts.Store
	}
	if cfg.Source.DSN == "" {
		return out.Fail(ExitCommandError, CodeSource, "source is required (--source or "+config.EnvSourceDSN+")", nil)
	}

	sink := opts.Sink
	if sink == nil {
		httpSink, err := newHTTPSink(cfg.Sink)
		if err != nil {
			return out.Fail(ExitCommandError, CodeSink, "failed to configure sink", err)
		}
		sink = httpSink
	}

	loc, err := cfg.Engine.LoadLocation()
	if err != nil {
		return out.Fail(ExitCommandError, CodeConfig, "invalid location", err)
	}

	slog.Info("opening store", "dsn", cfg.Store.DSN)
	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return out.Fail(ExitCommandError, CodeStore, "failed to open store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()

	src, err := source.Open(cfg.Source.DSN, source.WithDebounce(cfg.Monitor.Debounce.Std()))
	if err != nil {
		return out.Fail(ExitCommandError, CodeSource, "failed to open source", err)
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			slog.Error("error closing source", "error", closeErr)
		}
	}()

	mon := monitor.New(src, st, sink, monitorOptions(cfg), engineOptions(cfg, loc)...)

	// Use the command's context if available (for testing).
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := mon.Start(ctx); err != nil {
		return out.Fail(ExitFailure, CodeSource, "failed to start monitor", err)
	}
	if opts.Format != "json" {
		fmt.Fprintf(cmd.OutOrStdout(), "Monitoring %s. Press Ctrl-C to stop.\n", cfg.Source.DSN)
	}

	<-ctx.Done()
	mon.Stop()

	return out.Success(newStatusView(mon.Status()))
}

func newHTTPSink(cfg config.SinkConfig) (*delivery.HTTPSink, error) {
	sinkOpts := []delivery.HTTPSinkOption{
		delivery.WithHTTPClient(&http.Client{Timeout: cfg.Timeout.Std()}),
	}
	for k, v := range cfg.Headers {
		sinkOpts = append(sinkOpts, delivery.WithHeader(k, v))
	}
	return delivery.NewHTTPSink(cfg.URL, sinkOpts...)
}

func monitorOptions(cfg config.Config) monitor.Options {
	return monitor.Options{
		PollInterval:        cfg.Monitor.PollInterval.Std(),
		TopCheckInterval:    cfg.Monitor.TopCheckInterval.Std(),
		SweepInterval:       cfg.Monitor.SweepInterval.Std(),
		Jitter:              cfg.Monitor.Jitter,
		DeliveryTimeout:     cfg.Sink.Timeout.Std(),
		DeliveryConcurrency: cfg.Sink.Concurrency,
	}
}

func engineOptions(cfg config.Config, loc *time.Location) []engine.Option {
	return []engine.Option{
		engine.WithLocation(loc),
		engine.WithSource(cfg.Engine.SourceLabel),
		engine.WithMatchWindow(cfg.Engine.MatchWindow.Std()),
		engine.WithMaxCandidates(cfg.Engine.MaxCandidates),
		engine.WithLimits(cfg.StoreLimits()),
		engine.WithWindow(cfg.Engine.WindowHorizon.Std(), cfg.Engine.WindowCapacity),
	}
}
