package config

import "errors"

// Validation errors returned by Config.Validate.
var (
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")
	ErrInvalidTimeout     = errors.New("invalid timeout: must be positive")
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be positive")
	ErrInvalidBaseDelay   = errors.New("invalid base delay: must be non-negative")
	ErrInvalidRPS         = errors.New("invalid requests per second: must be non-negative")
	ErrInvalidMaxItems    = errors.New("invalid max items: must be positive")
	ErrInvalidFormat      = errors.New("invalid report format: want text, json, html or markdown")
	ErrInvalidMetricsPort = errors.New("invalid metrics port: must be between 0 and 65535")
)

// ErrConfigNotFound is returned when an explicitly named config file does
// not exist.
var ErrConfigNotFound = errors.New("configuration file not found")
