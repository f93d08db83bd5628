package pipeline

import "errors"

// Batch-fatal errors. They are returned before any request is dispatched
// and no record is produced.
var (
	ErrMissingAPIKey  = errors.New("pipeline: API key is required")
	ErrNoKeywords     = errors.New("pipeline: at least one keyword is required")
	ErrMissingDomain  = errors.New("pipeline: target domain is required")
	ErrUnknownCountry = errors.New("pipeline: unknown country")
	// ErrAuthFailed wraps the probe error when the API key is not accepted.
	ErrAuthFailed = errors.New("pipeline: API key check failed")
)
