package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, time.Hour, cfg.Engine.MatchWindow.Std())
	assert.Equal(t, 3, cfg.Engine.MaxCandidates)
	assert.Equal(t, 2*time.Hour, cfg.Engine.WindowHorizon.Std())
	assert.Equal(t, 10, cfg.Engine.WindowCapacity)
	assert.Equal(t, 100, cfg.Limits.Records)
	assert.Equal(t, 300, cfg.Limits.Indices)
	assert.Equal(t, 50, cfg.Limits.Sent)
	assert.Equal(t, 50, cfg.Limits.Answers)
	assert.Equal(t, 10*time.Second, cfg.Sink.Timeout.Std())
	assert.Equal(t, 5*time.Second, cfg.Monitor.PollInterval.Std())
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv(EnvSinkURL, "")
	path := writeFile(t, "callrecon.yaml", `
engine:
  match_window: 45m
  max_candidates: 2
  location: America/New_York
limits:
  records: 20
monitor:
  poll_interval: 2s
sink:
  url: https://example.test/hook
  headers:
    X-Api-Key: secret
store:
  dsn: memory://
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Minute, cfg.Engine.MatchWindow.Std())
	assert.Equal(t, 2, cfg.Engine.MaxCandidates)
	assert.Equal(t, 20, cfg.Limits.Records)
	assert.Equal(t, 300, cfg.Limits.Indices, "unset fields keep defaults")
	assert.Equal(t, 2*time.Second, cfg.Monitor.PollInterval.Std())
	assert.Equal(t, "https://example.test/hook", cfg.Sink.URL)
	assert.Equal(t, "secret", cfg.Sink.Headers["X-Api-Key"])
	assert.Equal(t, "memory://", cfg.Store.DSN)

	loc, err := cfg.Engine.LoadLocation()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestLoad_YAMLUnknownField(t *testing.T) {
	path := writeFile(t, "callrecon.yml", "engine:\n  match_windw: 45m\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "match_windw")
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "callrecon.toml", `
[engine]
match_window = "30m"
source_label = "front-desk"

[sink]
url = "https://example.test/hook"
timeout = "3s"

[log]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Engine.MatchWindow.Std())
	assert.Equal(t, "front-desk", cfg.Engine.SourceLabel)
	assert.Equal(t, 3*time.Second, cfg.Sink.Timeout.Std())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_TOMLUnknownField(t *testing.T) {
	path := writeFile(t, "callrecon.toml", "[engine]\nbogus = 1\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, "callrecon.ini", "x=1")
	_, err := Load(path)
	assert.ErrorContains(t, err, "unsupported format")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeFile(t, "callrecon.yaml", "engine:\n  match_window: soon\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid duration")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvSinkURL, "https://env.test/hook")
	t.Setenv(EnvMatchWindow, "20m")
	t.Setenv(EnvMaxCandidates, "5")
	t.Setenv(EnvStoreDSN, "file:///tmp/state.json")
	t.Setenv(EnvPollInterval, "not-a-duration")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://env.test/hook", cfg.Sink.URL)
	assert.Equal(t, 20*time.Minute, cfg.Engine.MatchWindow.Std())
	assert.Equal(t, 5, cfg.Engine.MaxCandidates)
	assert.Equal(t, "file:///tmp/state.json", cfg.Store.DSN)
	assert.Equal(t, 5*time.Second, cfg.Monitor.PollInterval.Std(), "bad values fall back")
}

func TestApplyEnv_UsesGetenv(t *testing.T) {
	env := map[string]string{
		EnvSourceDSN:   "ws://view.local/feed",
		EnvPollJitter:  "0.5",
		EnvLogLevel:    "warn",
		EnvSourceLabel: "clinic",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "ws://view.local/feed", cfg.Source.DSN)
	assert.Equal(t, 0.5, cfg.Monitor.Jitter)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "clinic", cfg.Engine.SourceLabel)
}

func TestValidate_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero records", func(c *Config) { c.Limits.Records = 0 }, "records"},
		{"too many candidates", func(c *Config) { c.Engine.MaxCandidates = 50 }, "max_candidates"},
		{"horizon shorter than match window", func(c *Config) { c.Engine.WindowHorizon = Duration(30 * time.Minute) }, "window_horizon_ms"},
		{"jitter above one", func(c *Config) { c.Monitor.Jitter = 1.5 }, "jitter"},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "level"},
		{"empty store", func(c *Config) { c.Store.DSN = "" }, "dsn"},
		{"bad location", func(c *Config) { c.Engine.Location = "Mars/Olympus" }, "engine.location"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStoreLimits(t *testing.T) {
	cfg := Default()
	cfg.Limits.Records = 7
	l := cfg.StoreLimits()
	assert.Equal(t, 7, l.Records)
	assert.Equal(t, 7*24*time.Hour, l.RecordMaxAge)
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1h30m")))
	assert.Equal(t, 90*time.Minute, d.Std())

	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1h30m0s", string(b))
}
