package config

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	AppName = "rankr"

	DefaultEndpoint = "https://google.serper.dev/search"
	DefaultCountry  = "in"

	// DefaultConcurrency is the number of lookups in flight at once.
	DefaultConcurrency = 10
	DefaultTimeout     = 30 * time.Second

	// DefaultMaxAttempts and DefaultBaseDelay bound the HTTP 429 backoff:
	// 5s, 10s, 20s and 40s sleeps before giving up.
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 5 * time.Second
	DefaultMaxJitter   = 3 * time.Second

	// DefaultMaxItems caps the keyword and location lists.
	DefaultMaxItems = 500

	DefaultFormat     = "text"
	DefaultTLSProfile = "go"
	DefaultDevice     = "desktop"
	DefaultSearchType = "search"
)

// Formats lists the report formats accepted by Validate.
var Formats = []string{"text", "json", "html", "markdown"}

// Config holds every option of a rank check.
type Config struct {
	APIKey   string
	Endpoint string

	Domain        string
	Keywords      []string
	KeywordsFile  string
	Locations     []string
	LocationsFile string
	Country       string
	Device        string
	SearchType    string
	Strict        bool

	Concurrency int
	// RPS limits request starts per second. 0 disables the limiter.
	RPS         float64
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
	MaxItems    int

	Format      string
	Output      string
	CSVPath     string
	NDJSONPath  string
	SQLiteDSN   string
	PostgresDSN string

	// MetricsPort exposes /metrics when non-zero.
	MetricsPort int
	TLSProfile  string
	ProxyFile   string

	Verbose    bool
	ConfigFile string
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Endpoint:    DefaultEndpoint,
		Country:     DefaultCountry,
		Device:      DefaultDevice,
		SearchType:  DefaultSearchType,
		Concurrency: DefaultConcurrency,
		Timeout:     DefaultTimeout,
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxJitter:   DefaultMaxJitter,
		MaxItems:    DefaultMaxItems,
		Format:      DefaultFormat,
		TLSProfile:  DefaultTLSProfile,
	}
}

// XDGConfigDir returns the per-user config directory, e.g. ~/.config/rankr.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks option ranges. Inputs the dispatch engine checks itself
// (API key, keywords, domain, country) are left to it.
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if c.BaseDelay < 0 {
		return ErrInvalidBaseDelay
	}
	if c.RPS < 0 {
		return ErrInvalidRPS
	}
	if c.MaxItems <= 0 {
		return ErrInvalidMaxItems
	}
	if !slices.Contains(Formats, c.Format) {
		return ErrInvalidFormat
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return ErrInvalidMetricsPort
	}
	return nil
}
