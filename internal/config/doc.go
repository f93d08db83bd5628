// Package config holds rankr's run configuration: defaults, validation and
// loading from a YAML file, RANKR_* environment variables and CLI flags.
package config
