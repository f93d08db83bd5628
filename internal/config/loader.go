package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Keys shared by the config file, RANKR_* environment variables and CLI
// flags. A key "api-key" is read from RANKR_API_KEY.
const (
	KeyAPIKey        = "api-key"
	KeyEndpoint      = "endpoint"
	KeyDomain        = "domain"
	KeyKeywords      = "keyword"
	KeyKeywordsFile  = "keywords-file"
	KeyLocations     = "location"
	KeyLocationsFile = "locations-file"
	KeyCountry       = "country"
	KeyDevice        = "device"
	KeySearchType    = "search-type"
	KeyStrict        = "strict"
	KeyConcurrency   = "concurrency"
	KeyRPS           = "rps"
	KeyTimeout       = "timeout"
	KeyMaxAttempts   = "max-attempts"
	KeyBaseDelay     = "base-delay"
	KeyMaxJitter     = "max-jitter"
	KeyMaxItems      = "max-items"
	KeyFormat        = "format"
	KeyOutput        = "output"
	KeyCSV           = "csv"
	KeyNDJSON        = "ndjson"
	KeySQLite        = "sqlite"
	KeyPostgres      = "postgres"
	KeyMetricsPort   = "metrics-port"
	KeyTLSProfile    = "tls-profile"
	KeyProxyFile     = "proxy-file"
	KeyVerbose       = "verbose"
	KeyConfig        = "config"
)

// EnvPrefix prefixes every environment variable rankr reads.
const EnvPrefix = "RANKR"

// NewViper returns a viper instance with rankr's defaults and environment
// binding applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	d := NewConfig()
	v.SetDefault(KeyEndpoint, d.Endpoint)
	v.SetDefault(KeyCountry, d.Country)
	v.SetDefault(KeyDevice, d.Device)
	v.SetDefault(KeySearchType, d.SearchType)
	v.SetDefault(KeyConcurrency, d.Concurrency)
	v.SetDefault(KeyTimeout, d.Timeout)
	v.SetDefault(KeyMaxAttempts, d.MaxAttempts)
	v.SetDefault(KeyBaseDelay, d.BaseDelay)
	v.SetDefault(KeyMaxJitter, d.MaxJitter)
	v.SetDefault(KeyMaxItems, d.MaxItems)
	v.SetDefault(KeyFormat, d.Format)
	v.SetDefault(KeyTLSProfile, d.TLSProfile)
	return v
}

// ReadFile merges a YAML config file into v. An explicit path must exist;
// otherwise rankr.yaml is searched in the working directory and then in
// XDGConfigDir, and a missing file is not an error. It returns the path
// that was read, or "".
func ReadFile(v *viper.Viper, path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return "", fmt.Errorf("config: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(XDGConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
	}
	return v.ConfigFileUsed(), nil
}

// Load builds a Config from v. Flags bound to v take precedence over the
// environment, which takes precedence over the config file.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		APIKey:        strings.TrimSpace(v.GetString(KeyAPIKey)),
		Endpoint:      v.GetString(KeyEndpoint),
		Domain:        strings.TrimSpace(v.GetString(KeyDomain)),
		Keywords:      v.GetStringSlice(KeyKeywords),
		KeywordsFile:  v.GetString(KeyKeywordsFile),
		Locations:     v.GetStringSlice(KeyLocations),
		LocationsFile: v.GetString(KeyLocationsFile),
		Country:       v.GetString(KeyCountry),
		Device:        v.GetString(KeyDevice),
		SearchType:    v.GetString(KeySearchType),
		Strict:        v.GetBool(KeyStrict),
		Concurrency:   v.GetInt(KeyConcurrency),
		RPS:           v.GetFloat64(KeyRPS),
		Timeout:       v.GetDuration(KeyTimeout),
		MaxAttempts:   v.GetInt(KeyMaxAttempts),
		BaseDelay:     v.GetDuration(KeyBaseDelay),
		MaxJitter:     v.GetDuration(KeyMaxJitter),
		MaxItems:      v.GetInt(KeyMaxItems),
		Format:        strings.ToLower(v.GetString(KeyFormat)),
		Output:        v.GetString(KeyOutput),
		CSVPath:       v.GetString(KeyCSV),
		NDJSONPath:    v.GetString(KeyNDJSON),
		SQLiteDSN:     v.GetString(KeySQLite),
		PostgresDSN:   v.GetString(KeyPostgres),
		MetricsPort:   v.GetInt(KeyMetricsPort),
		TLSProfile:    v.GetString(KeyTLSProfile),
		ProxyFile:     v.GetString(KeyProxyFile),
		Verbose:       v.GetBool(KeyVerbose),
		ConfigFile:    v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
