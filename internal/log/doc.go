// Package log builds the slog loggers used by rankr. Every logger it returns
// masks secrets, most importantly the search API key, before records reach
// the underlying handler, so verbose output can be shared safely.
//
//	logger := log.New(os.Stderr, log.Options{Verbose: true})
//	logger.Debug("probe", "api_key", key) // api_key=***REDACTED***
package log
