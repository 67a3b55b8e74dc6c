package config

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Environment variable names.
const (
	EnvSourceDSN     = "CALLRECON_SOURCE"
	EnvSinkURL       = "CALLRECON_SINK_URL"
	EnvSinkTimeout   = "CALLRECON_SINK_TIMEOUT"
	EnvStoreDSN      = "CALLRECON_STORE"
	EnvLocation      = "CALLRECON_LOCATION"
	EnvSourceLabel   = "CALLRECON_SOURCE_LABEL"
	EnvMatchWindow   = "CALLRECON_MATCH_WINDOW"
	EnvMaxCandidates = "CALLRECON_MAX_CANDIDATES"
	EnvPollInterval  = "CALLRECON_POLL_INTERVAL"
	EnvPollJitter    = "CALLRECON_POLL_JITTER"
	EnvLogLevel      = "CALLRECON_LOG_LEVEL"
	EnvLogFormat     = "CALLRECON_LOG_FORMAT"
)

// ApplyEnv overrides fields from CALLRECON_* variables read through getenv.
// Unparseable values are logged and ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.Source.DSN = envOrDefault(getenv, EnvSourceDSN, c.Source.DSN)
	c.Sink.URL = envOrDefault(getenv, EnvSinkURL, c.Sink.URL)
	c.Sink.Timeout = durationEnv(getenv, EnvSinkTimeout, c.Sink.Timeout)
	c.Store.DSN = envOrDefault(getenv, EnvStoreDSN, c.Store.DSN)
	c.Engine.Location = envOrDefault(getenv, EnvLocation, c.Engine.Location)
	c.Engine.SourceLabel = envOrDefault(getenv, EnvSourceLabel, c.Engine.SourceLabel)
	c.Engine.MatchWindow = durationEnv(getenv, EnvMatchWindow, c.Engine.MatchWindow)
	c.Engine.MaxCandidates = intEnv(getenv, EnvMaxCandidates, c.Engine.MaxCandidates)
	c.Monitor.PollInterval = durationEnv(getenv, EnvPollInterval, c.Monitor.PollInterval)
	c.Monitor.Jitter = floatEnv(getenv, EnvPollJitter, c.Monitor.Jitter)
	c.Log.Level = envOrDefault(getenv, EnvLogLevel, c.Log.Level)
	c.Log.Format = envOrDefault(getenv, EnvLogFormat, c.Log.Format)
}

func envOrDefault(getenv func(string) string, name, fallback string) string {
	value := strings.TrimSpace(getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(getenv func(string) string, name string, fallback Duration) Duration {
	raw := strings.TrimSpace(getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid environment value, using fallback", "name", name, "value", raw, "fallback", fallback.String())
		return fallback
	}
	return Duration(value)
}

func intEnv(getenv func(string) string, name string, fallback int) int {
	raw := strings.TrimSpace(getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid environment value, using fallback", "name", name, "value", raw, "fallback", fallback)
		return fallback
	}
	return value
}

func floatEnv(getenv func(string) string, name string, fallback float64) float64 {
	raw := strings.TrimSpace(getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("invalid environment value, using fallback", "name", name, "value", raw, "fallback", fallback)
		return fallback
	}
	return value
}
