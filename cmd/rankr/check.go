package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/FranksOps/rankr/internal/config"
	"github.com/FranksOps/rankr/internal/fingerprint"
	rankrlog "github.com/FranksOps/rankr/internal/log"
	"github.com/FranksOps/rankr/internal/metrics"
	"github.com/FranksOps/rankr/internal/pipeline"
	"github.com/FranksOps/rankr/internal/report"
	"github.com/FranksOps/rankr/internal/serp"
	"github.com/FranksOps/rankr/internal/storage"
	"github.com/FranksOps/rankr/internal/storage/csvbackend"
	"github.com/FranksOps/rankr/internal/storage/jsonbackend"
	"github.com/FranksOps/rankr/internal/storage/postgres"
	"github.com/FranksOps/rankr/internal/storage/sqlite"
	"github.com/FranksOps/rankr/pkg/httpclient"
	"github.com/FranksOps/rankr/pkg/proxy"
	"github.com/FranksOps/rankr/pkg/ratelimit"
	"github.com/FranksOps/rankr/pkg/useragent"
)

// limiterJitter spreads request starts by up to 20% of the limiter interval.
const limiterJitter = 0.2

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [keyword...]",
		Short: "Look up the rank of a domain for a list of keywords",
		Long: `Check queries the search API once per keyword and location and reports
the 1-based position of the first organic result on the target domain.

Keywords come from positional arguments, --keyword and --keywords-file
(one per line). Locations come from --location and --locations-file. Each
list is capped at --max-items entries. Without locations every keyword is
looked up once without location targeting.

Examples:
  # One keyword, two locations
  rankr check -d example.com -k "best coffee" -l "Austin, Texas" -l "Denver, Colorado"

  # Keywords from a file, Markdown report, CSV export
  rankr check -d example.com --keywords-file keywords.txt --format markdown --csv ranks.csv

  # Only count exact host matches, search from the UK
  rankr check -d example.com --strict --country uk "running shoes"

Config file (rankr.yaml in the working directory or ~/.config/rankr):
  api-key: your-serper-key
  domain: example.com
  country: us
  location:
    - Austin, Texas`,
		Args: cobra.ArbitraryArgs,
		RunE: runCheckCmd,
	}

	registerCheckFlags(cmd.Flags())
	return cmd
}

// registerCheckFlags defines the check flags. Names match the config keys so
// viper can bind them directly.
func registerCheckFlags(f *pflag.FlagSet) {
	f.StringP(config.KeyDomain, "d", "", "Domain to look for in the results")
	f.StringArrayP(config.KeyKeywords, "k", nil, "Keyword to look up (repeatable)")
	f.String(config.KeyKeywordsFile, "", "File with one keyword per line")
	f.StringArrayP(config.KeyLocations, "l", nil, `Location to search from, e.g. "Austin, Texas" (repeatable)`)
	f.String(config.KeyLocationsFile, "", "File with one location per line")
	f.StringP(config.KeyCountry, "c", config.DefaultCountry, "Country name or code, see 'rankr countries'")
	f.String(config.KeyDevice, config.DefaultDevice, "Device to emulate: desktop or mobile")
	f.String(config.KeySearchType, config.DefaultSearchType, "Search vertical: search, news, images or videos")
	f.Bool(config.KeyStrict, false, "Only match the exact host instead of any host containing the domain")
	f.String(config.KeyAPIKey, "", "Serper.dev API key (or RANKR_API_KEY)")

	f.Int(config.KeyConcurrency, config.DefaultConcurrency, "Number of lookups in flight")
	f.Float64(config.KeyRPS, 0, "Maximum lookups started per second (0 = unlimited)")
	f.Duration(config.KeyTimeout, config.DefaultTimeout, "Timeout for each HTTP request")
	f.Int(config.KeyMaxAttempts, config.DefaultMaxAttempts, "Attempts per lookup when rate limited")
	f.Duration(config.KeyBaseDelay, config.DefaultBaseDelay, "First backoff delay after HTTP 429, doubled on each retry")
	f.Duration(config.KeyMaxJitter, config.DefaultMaxJitter, "Upper bound of the random delay added to each backoff")
	f.Int(config.KeyMaxItems, config.DefaultMaxItems, "Maximum number of keywords and of locations")

	f.StringP(config.KeyFormat, "f", config.DefaultFormat, "Report format: text, json, html or markdown")
	f.StringP(config.KeyOutput, "o", "", "Write the report to this file instead of stdout")
	f.String(config.KeyCSV, "", "Append results to a CSV file (Keyword, Location, Ranking, URL)")
	f.String(config.KeyNDJSON, "", "Append full result records to an NDJSON file")
	f.String(config.KeySQLite, "", "Store result records in a SQLite database")
	f.String(config.KeyPostgres, "", "Store result records in PostgreSQL (DSN)")

	f.Int(config.KeyMetricsPort, 0, "Expose Prometheus metrics on this port (0 = off)")
	f.String(config.KeyTLSProfile, config.DefaultTLSProfile, "TLS fingerprint: go, chrome, firefox, safari or random")
	f.String(config.KeyProxyFile, "", "File with one egress proxy URL per line")
	f.String(config.KeyConfig, "", "Config file path (default: rankr.yaml in the working or XDG config directory)")

	f.String(config.KeyEndpoint, config.DefaultEndpoint, "Search API endpoint")
	_ = f.MarkHidden(config.KeyEndpoint)
}

func runCheckCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Keywords = append(cfg.Keywords, args...)

	logger := rankrlog.New(cmd.ErrOrStderr(), rankrlog.Options{Verbose: cfg.Verbose})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCheck(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
}

// buildConfig merges flags, RANKR_* environment variables and the config
// file, in that order of precedence.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.NewViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	path, err := cmd.Flags().GetString(config.KeyConfig)
	if err != nil {
		return nil, err
	}
	if _, err := config.ReadFile(v, path); err != nil {
		return nil, err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// readList returns the inline items followed by the lines of path, if set.
func readList(inline []string, path string, limit int) ([]string, error) {
	items := append([]string(nil), inline...)
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // user supplied input list
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		items = append(items, pipeline.SplitLines(string(data), 0)...)
	}
	return pipeline.CleanList(items, limit), nil
}

func runCheck(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer, logger *slog.Logger) error {
	keywords, err := readList(cfg.Keywords, cfg.KeywordsFile, cfg.MaxItems)
	if err != nil {
		return err
	}
	locations, err := readList(cfg.Locations, cfg.LocationsFile, cfg.MaxItems)
	if err != nil {
		return err
	}

	device, err := serp.ParseDevice(cfg.Device)
	if err != nil {
		return err
	}
	searchType, err := serp.ParseSearchType(cfg.SearchType)
	if err != nil {
		return err
	}

	client, err := newSearchClient(cfg, logger)
	if err != nil {
		return err
	}

	var limiter *ratelimit.Limiter
	if cfg.RPS > 0 {
		limiter = ratelimit.NewLimiter(cfg.RPS, limiterJitter)
		defer limiter.Stop()
	}

	if cfg.MetricsPort > 0 {
		srv := metrics.Start(cfg.MetricsPort, logger)
		defer srv.Stop(context.Background())
		logger.Info("metrics available", "addr", fmt.Sprintf(":%d/metrics", cfg.MetricsPort))
	}

	sink, err := openSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error("closing result sinks", "err", err)
		}
	}()

	progress := newProgressPrinter(stderr)
	engine, err := pipeline.New(pipeline.Config{
		Provider:    client,
		Concurrency: cfg.Concurrency,
		MaxItems:    cfg.MaxItems,
		Limiter:     limiter,
		Logger:      logger,
		Progress: func(completed, total int) {
			metrics.SetProgress(completed, total)
			progress.update(completed, total)
		},
	})
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Domain:      cfg.Domain,
		Country:     cfg.Country,
		Device:      device,
		SearchType:  searchType,
		StrictMatch: cfg.Strict,
	}

	batch, err := engine.Collect(ctx, cfg.APIKey, keywords, locations, opts, func(r *storage.RankRecord) {
		metrics.RecordQuery(r)
		if err := sink.Save(ctx, r); err != nil {
			logger.Error("saving result", "keyword", r.Keyword, "location", r.Location, "err", err)
		}
	})
	progress.done()
	if err != nil {
		return err
	}

	summary := report.GenerateSummary(batch.Records)
	summary.BatchID = batch.ID
	summary.Domain = opts.Domain
	summary.Expected = batch.Total
	summary.Partial = batch.Partial

	if err := writeReport(cfg, stdout, summary, batch.Records); err != nil {
		return err
	}

	if advisory := report.AuthAdvisory(summary); advisory != "" && (cfg.Format != "text" || cfg.Output != "") {
		fmt.Fprintln(stderr, "WARNING:", advisory)
	}
	if batch.Partial {
		return fmt.Errorf("cancelled after %d of %d lookups", len(batch.Records), batch.Total)
	}
	return nil
}

func newSearchClient(cfg *config.Config, logger *slog.Logger) (*serp.Client, error) {
	profile, err := fingerprint.ParseProfile(cfg.TLSProfile)
	if err != nil {
		return nil, err
	}

	var pool *proxy.Pool
	tlsOpts := fingerprint.Options{Profile: profile}
	if cfg.ProxyFile != "" {
		pool = proxy.NewPool(proxy.Config{})
		if err := pool.LoadFile(cfg.ProxyFile); err != nil {
			return nil, err
		}
		tlsOpts.Proxy = pool.Func()
		logger.Info("routing API requests through proxies", "count", pool.Len())
	}

	transport, err := fingerprint.Transport(tlsOpts)
	if err != nil {
		return nil, err
	}
	hc, err := httpclient.New(httpclient.Config{
		Timeout:   cfg.Timeout,
		UserAgent: "rankr/" + getVersion(),
		Transport: transport,
	})
	if err != nil {
		return nil, err
	}

	return serp.NewClient(serp.ClientConfig{
		Endpoint:    cfg.Endpoint,
		HTTP:        hc,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     ratelimit.Backoff{BaseDelay: cfg.BaseDelay, MaxJitter: cfg.MaxJitter},
		Proxies:     pool,
		UserAgents:  useragent.ForBrowser(string(profile)),
		OnRetry:     metrics.RecordRetry,
		Logger:      logger,
	})
}

// openSinks opens every configured export target.
func openSinks(ctx context.Context, cfg *config.Config) (storage.MultiSink, error) {
	var sinks storage.MultiSink
	fail := func(err error) (storage.MultiSink, error) {
		return nil, errors.Join(err, sinks.Close())
	}

	if cfg.CSVPath != "" {
		s, err := csvbackend.New(cfg.CSVPath)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if cfg.NDJSONPath != "" {
		s, err := jsonbackend.New(cfg.NDJSONPath)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if cfg.SQLiteDSN != "" {
		s, err := sqlite.New(cfg.SQLiteDSN)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if cfg.PostgresDSN != "" {
		s, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func writeReport(cfg *config.Config, stdout io.Writer, summary report.Summary, records []storage.RankRecord) error {
	w := stdout
	if cfg.Output != "" {
		if dir := filepath.Dir(cfg.Output); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create report directory: %w", err)
			}
		}
		f, err := os.Create(cfg.Output)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch cfg.Format {
	case "json":
		return report.WriteJSON(w, summary, records)
	case "html":
		return report.WriteHTML(w, summary, records)
	case "markdown":
		return report.WriteMarkdown(w, summary, records)
	default:
		return report.WriteText(w, summary, records)
	}
}

// progressPrinter rewrites one stderr line with the batch percentage.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	printed bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) update(completed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\rProgress: %3.0f%% (%d/%d)", pipeline.Fraction(completed, total)*100, completed, total)
	p.printed = true
}

func (p *progressPrinter) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed {
		fmt.Fprintln(p.w)
		p.printed = false
	}
}
