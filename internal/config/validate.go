package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Validation bounds.
const (
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
	minPollInterval   = 5 * time.Second
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users see
// a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateWatch(&cfg.Watch)...)

	return errors.Join(errs...)
}

// ValidateResolved checks the configuration after env and CLI overrides,
// which can replace values the file validation already accepted.
func ValidateResolved(r *Resolved) error {
	var errs []error

	errs = append(errs, validateServer(&r.Server)...)

	if r.StateDir == "" {
		errs = append(errs, errors.New("state directory: cannot be determined; set "+EnvStateDir))
	}

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return []error{fmt.Errorf("base_url: %w", err)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return []error{fmt.Errorf("base_url: scheme must be http or https, got %q", s.BaseURL)}
	}

	if u.Host == "" {
		return []error{fmt.Errorf("base_url: must include a host, got %q", s.BaseURL)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("data_timeout", n.DataTimeout, minDataTimeout)...)

	if n.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests_per_second: must be >= 0, got %g", n.RequestsPerSecond))
	}

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateWatch(w *WatchConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("poll_interval", w.PollInterval, minPollInterval)...)
	errs = append(errs, validateListen("listen", w.Listen)...)
	errs = append(errs, validateListen("metrics_listen", w.MetricsListen)...)

	if w.Listen != "" && w.Listen == w.MetricsListen {
		errs = append(errs, fmt.Errorf("metrics_listen: must differ from listen (%q)", w.Listen))
	}

	return errs
}

func validateListen(field, addr string) []error {
	if addr == "" {
		return nil
	}

	if _, _, err := net.SplitHostPort(addr); err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	return nil
}
