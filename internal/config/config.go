// Package config holds every tunable of a callrecon process.
//
// Values come from Default, then an optional YAML or TOML file, then
// CALLRECON_* environment variables. The result is checked against an
// embedded CUE schema before use.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/roach88/callrecon/internal/store"
)

//go:embed schema.cue
var schemaSource string

// ErrInvalid wraps configuration constraint violations.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full process configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine" toml:"engine"`
	Limits  LimitsConfig  `yaml:"limits" toml:"limits"`
	Monitor MonitorConfig `yaml:"monitor" toml:"monitor"`
	Sink    SinkConfig    `yaml:"sink" toml:"sink"`
	Store   StoreConfig   `yaml:"store" toml:"store"`
	Source  SourceConfig  `yaml:"source" toml:"source"`
	Log     LogConfig     `yaml:"log" toml:"log"`
}

// EngineConfig tunes reconciliation.
type EngineConfig struct {
	MatchWindow    Duration `yaml:"match_window" toml:"match_window"`
	MaxCandidates  int      `yaml:"max_candidates" toml:"max_candidates"`
	WindowHorizon  Duration `yaml:"window_horizon" toml:"window_horizon"`
	WindowCapacity int      `yaml:"window_capacity" toml:"window_capacity"`
	// Location is an IANA zone name for reading row times. Empty means local.
	Location    string `yaml:"location" toml:"location"`
	SourceLabel string `yaml:"source_label" toml:"source_label"`
}

// LimitsConfig bounds persisted state.
type LimitsConfig struct {
	Records      int      `yaml:"records" toml:"records"`
	Indices      int      `yaml:"indices" toml:"indices"`
	Sent         int      `yaml:"sent" toml:"sent"`
	Answers      int      `yaml:"answers" toml:"answers"`
	RecordMaxAge Duration `yaml:"record_max_age" toml:"record_max_age"`
}

// MonitorConfig sets the trigger cadence.
type MonitorConfig struct {
	PollInterval     Duration `yaml:"poll_interval" toml:"poll_interval"`
	TopCheckInterval Duration `yaml:"top_check_interval" toml:"top_check_interval"`
	SweepInterval    Duration `yaml:"sweep_interval" toml:"sweep_interval"`
	Debounce         Duration `yaml:"debounce" toml:"debounce"`
	// Jitter is the poll interval jitter ratio in [0, 1].
	Jitter float64 `yaml:"jitter" toml:"jitter"`
}

// SinkConfig describes the delivery endpoint.
type SinkConfig struct {
	URL         string            `yaml:"url" toml:"url"`
	Timeout     Duration          `yaml:"timeout" toml:"timeout"`
	Concurrency int               `yaml:"concurrency" toml:"concurrency"`
	Headers     map[string]string `yaml:"headers" toml:"headers"`
}

// StoreConfig selects the state backend.
type StoreConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"`
}

// SourceConfig selects the row source.
type SourceConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	limits := store.DefaultLimits()
	return Config{
		Engine: EngineConfig{
			MatchWindow:    Duration(time.Hour),
			MaxCandidates:  3,
			WindowHorizon:  Duration(2 * time.Hour),
			WindowCapacity: 10,
			SourceLabel:    "callrecon",
		},
		Limits: LimitsConfig{
			Records:      limits.Records,
			Indices:      limits.Indices,
			Sent:         limits.Sent,
			Answers:      limits.Answers,
			RecordMaxAge: Duration(limits.RecordMaxAge),
		},
		Monitor: MonitorConfig{
			PollInterval:     Duration(5 * time.Second),
			TopCheckInterval: Duration(time.Second),
			SweepInterval:    Duration(time.Minute),
			Debounce:         Duration(100 * time.Millisecond),
			Jitter:           0.2,
		},
		Sink: SinkConfig{
			Timeout:     Duration(10 * time.Second),
			Concurrency: 4,
		},
		Store: StoreConfig{DSN: "callrecon.db"},
		Log:   LogConfig{Level: "info", Format: "auto"},
	}
}

// Load builds the effective configuration: defaults, then the file at path
// (if non-empty), then the environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(c); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config %s: unsupported format (want .yaml, .yml or .toml)", path)
	}
	return nil
}

// Validate checks the configuration against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.Encode(c.constraintView())
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.TrimSpace(cueerrors.Details(err, nil)))
	}

	if _, err := c.Engine.LoadLocation(); err != nil {
		return fmt.Errorf("%w: engine.location: %v", ErrInvalid, err)
	}
	return nil
}

// constraintView is the shape the schema constrains. Durations are in
// milliseconds so the schema can bound them numerically.
func (c Config) constraintView() map[string]any {
	ms := func(d Duration) int64 { return int64(time.Duration(d) / time.Millisecond) }
	return map[string]any{
		"engine": map[string]any{
			"match_window_ms":   ms(c.Engine.MatchWindow),
			"max_candidates":    c.Engine.MaxCandidates,
			"window_horizon_ms": ms(c.Engine.WindowHorizon),
			"window_capacity":   c.Engine.WindowCapacity,
			"location":          c.Engine.Location,
			"source_label":      c.Engine.SourceLabel,
		},
		"limits": map[string]any{
			"records":           c.Limits.Records,
			"indices":           c.Limits.Indices,
			"sent":              c.Limits.Sent,
			"answers":           c.Limits.Answers,
			"record_max_age_ms": ms(c.Limits.RecordMaxAge),
		},
		"monitor": map[string]any{
			"poll_interval_ms":      ms(c.Monitor.PollInterval),
			"top_check_interval_ms": ms(c.Monitor.TopCheckInterval),
			"sweep_interval_ms":     ms(c.Monitor.SweepInterval),
			"debounce_ms":           ms(c.Monitor.Debounce),
			"jitter":                c.Monitor.Jitter,
		},
		"sink": map[string]any{
			"url":         c.Sink.URL,
			"timeout_ms":  ms(c.Sink.Timeout),
			"concurrency": c.Sink.Concurrency,
		},
		"store":  map[string]any{"dsn": c.Store.DSN},
		"source": map[string]any{"dsn": c.Source.DSN},
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
	}
}

// LoadLocation resolves the configured zone.
func (e EngineConfig) LoadLocation() (*time.Location, error) {
	if e.Location == "" || strings.EqualFold(e.Location, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(e.Location)
}

// StoreLimits converts the limits section.
func (c Config) StoreLimits() store.Limits {
	return store.Limits{
		Records:      c.Limits.Records,
		Indices:      c.Limits.Indices,
		Sent:         c.Limits.Sent,
		Answers:      c.Limits.Answers,
		RecordMaxAge: c.Limits.RecordMaxAge.Std(),
	}
}
