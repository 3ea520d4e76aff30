package config

import "strings"

// Environment identifies the deployment the broker runs in.
type Environment string

const (
	EnvDev     Environment = "dev"
	EnvStaging Environment = "staging"
	// EnvProd requires https to the venue and defaults to JSON logs.
	EnvProd Environment = "prod"
)

// Valid reports whether e is a known environment.
func (e Environment) Valid() bool {
	switch e {
	case EnvDev, EnvStaging, EnvProd:
		return true
	default:
		return false
	}
}

// LogFormat selects the logrus formatter.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Valid reports whether f names a supported formatter.
func (f LogFormat) Valid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

func normalizeVenueName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
