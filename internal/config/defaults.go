package config

// Default values for configuration options. These are "layer 0" of the
// override chain and work against a locally running server without any
// config file.
const (
	defaultBaseURL        = "http://localhost:8080/api"
	defaultConnectTimeout = "10s"
	defaultDataTimeout    = "60s"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultPollInterval   = "1m"
	defaultListen         = "127.0.0.1:8765"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding (so unset fields keep their
// defaults) and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: defaultBaseURL,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Watch: WatchConfig{
			PollInterval: defaultPollInterval,
			Listen:       defaultListen,
		},
	}
}
