// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for notes-go. Settings resolve through a
// four-layer override chain: defaults -> config file -> environment -> CLI
// flags.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Network NetworkConfig `toml:"network"`
	Logging LoggingConfig `toml:"logging"`
	Watch   WatchConfig   `toml:"watch"`
}

// ServerConfig locates the notes API.
type ServerConfig struct {
	BaseURL string `toml:"base_url"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
	// RequestsPerSecond caps the API request rate; 0 means unlimited.
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// WatchConfig controls the long-running watch command: how often the node
// list is polled and where the change feed and metrics are served. An empty
// address disables that listener.
type WatchConfig struct {
	PollInterval  string `toml:"poll_interval"`
	Listen        string `toml:"listen"`
	MetricsListen string `toml:"metrics_listen"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty means "not specified".
type CLIOverrides struct {
	ConfigPath string // --config
	Server     string // --server
}

// Resolved is the final configuration after all override layers, plus the
// paths derived from it.
type Resolved struct {
	Config

	ConfigPath string
	StateDir   string
}

// StatePath returns the path of the state database.
func (r *Resolved) StatePath() string {
	return StatePath(r.StateDir)
}

// PIDPath returns the path of the watch daemon's PID file.
func (r *Resolved) PIDPath() string {
	return PIDPath(r.StateDir)
}

// ConnectTimeoutDuration returns connect_timeout, or the default if unset
// or unparsable. Validate rejects unparsable values before this is used.
func (n *NetworkConfig) ConnectTimeoutDuration() time.Duration {
	return durationOr(n.ConnectTimeout, defaultConnectTimeout)
}

// DataTimeoutDuration returns data_timeout; see ConnectTimeoutDuration.
func (n *NetworkConfig) DataTimeoutDuration() time.Duration {
	return durationOr(n.DataTimeout, defaultDataTimeout)
}

// PollIntervalDuration returns poll_interval; see ConnectTimeoutDuration.
func (w *WatchConfig) PollIntervalDuration() time.Duration {
	return durationOr(w.PollInterval, defaultPollInterval)
}

func durationOr(s, fallback string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}

	d, _ := time.ParseDuration(fallback)

	return d
}
