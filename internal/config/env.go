package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "NOTES_GO_CONFIG"
	EnvServer   = "NOTES_GO_SERVER"
	EnvStateDir = "NOTES_GO_STATE_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // NOTES_GO_CONFIG: config file path
	Server     string // NOTES_GO_SERVER: API base URL
	StateDir   string // NOTES_GO_STATE_DIR: directory holding state.db
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Server:     os.Getenv(EnvServer),
		StateDir:   os.Getenv(EnvStateDir),
	}
}
