// Package pipeline fans keyword and location lists out into rank lookups,
// runs them on a bounded worker pool and streams one record per lookup.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/rankr/internal/locale"
	"github.com/FranksOps/rankr/internal/serp"
	"github.com/FranksOps/rankr/internal/storage"
	"github.com/FranksOps/rankr/pkg/ratelimit"
)

const (
	// DefaultConcurrency is the worker pool size.
	DefaultConcurrency = 10
	// DefaultMaxItems caps each of the keyword and location lists.
	DefaultMaxItems = 500
)

// ProgressFunc is called after each record is emitted. completed grows by
// one per call and never exceeds total. Calls are serialized.
type ProgressFunc func(completed, total int)

// Config wires an Engine.
type Config struct {
	Provider serp.SERPProvider
	// Locales resolves Options.Country. Defaults to locale.DefaultTable().
	Locales     *locale.Table
	Concurrency int
	MaxItems    int
	// Limiter, when set, paces request starts across all workers.
	Limiter  *ratelimit.Limiter
	Progress ProgressFunc
	Logger   *slog.Logger
}

// Options describe what a batch looks up.
type Options struct {
	Domain string
	// Country is a locale name or code. Empty selects locale.DefaultCountry.
	Country     string
	Device      serp.Device
	SearchType  serp.SearchType
	StrictMatch bool
}

// Engine dispatches batches of rank lookups. It holds no per-batch state and
// may run several batches at once.
type Engine struct {
	provider    serp.SERPProvider
	locales     *locale.Table
	concurrency int
	maxItems    int
	limiter     *ratelimit.Limiter
	progress    ProgressFunc
	logger      *slog.Logger
	now         func() time.Time
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Provider == nil {
		return nil, errors.New("pipeline: provider is required")
	}
	if cfg.Locales == nil {
		cfg.Locales = locale.DefaultTable()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		provider:    cfg.Provider,
		locales:     cfg.Locales,
		concurrency: cfg.Concurrency,
		maxItems:    cfg.MaxItems,
		limiter:     cfg.Limiter,
		progress:    cfg.Progress,
		logger:      cfg.Logger,
		now:         time.Now,
	}, nil
}

// plan is a validated batch ready for dispatch.
type plan struct {
	batchID  string
	requests []serp.Request
}

// prepare runs the pre-flight checks and expands the Cartesian product.
func (e *Engine) prepare(ctx context.Context, apiKey string, keywords, locations []string, opts Options) (*plan, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	keywords = CleanList(keywords, e.maxItems)
	if len(keywords) == 0 {
		return nil, ErrNoKeywords
	}

	domain := strings.TrimSpace(opts.Domain)
	if domain == "" {
		return nil, ErrMissingDomain
	}

	country := opts.Country
	if strings.TrimSpace(country) == "" {
		country = locale.DefaultCountry
	}
	loc, err := e.locales.Lookup(country)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCountry, country)
	}

	if err := e.provider.Probe(ctx, apiKey); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	locations = CleanList(locations, e.maxItems)
	if len(locations) == 0 {
		// one untargeted lookup per keyword
		locations = []string{""}
	}

	requests := make([]serp.Request, 0, len(keywords)*len(locations))
	for _, kw := range keywords {
		for _, l := range locations {
			requests = append(requests, serp.Request{
				Keyword:            kw,
				Location:           l,
				CountryCode:        loc.Code,
				SearchEngineDomain: loc.Domain,
				LanguageCode:       loc.Language,
				Device:             opts.Device,
				SearchType:         opts.SearchType,
				Domain:             domain,
				StrictMatch:        opts.StrictMatch,
			})
		}
	}

	return &plan{batchID: uuid.NewString(), requests: requests}, nil
}

// Run validates the batch and starts it. The returned channel yields one
// record per (keyword, location) pair in completion order and is closed once
// every dispatched lookup has produced its record. Callers must drain it.
//
// Cancelling ctx stops new lookups from being dispatched; lookups already
// running observe ctx and still produce their record.
func (e *Engine) Run(ctx context.Context, apiKey string, keywords, locations []string, opts Options) (<-chan storage.RankRecord, error) {
	p, err := e.prepare(ctx, apiKey, keywords, locations, opts)
	if err != nil {
		return nil, err
	}
	return e.dispatch(ctx, apiKey, p), nil
}

func (e *Engine) dispatch(ctx context.Context, apiKey string, p *plan) <-chan storage.RankRecord {
	out := make(chan storage.RankRecord, e.concurrency)
	total := len(p.requests)
	logger := e.logger.With("batch", p.batchID)
	logger.Info("dispatching batch", "lookups", total, "workers", e.concurrency)

	var (
		mu        sync.Mutex
		completed int
	)
	emit := func(rec storage.RankRecord) {
		mu.Lock()
		defer mu.Unlock()
		out <- rec
		completed++
		if e.progress != nil {
			e.progress(completed, total)
		}
	}

	go func() {
		defer close(out)

		var g errgroup.Group
		g.SetLimit(e.concurrency)

		submitted := 0
		for _, req := range p.requests {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				e.lookup(ctx, apiKey, p.batchID, req, emit)
				return nil
			})
			submitted++
		}
		_ = g.Wait()

		if submitted < total {
			logger.Warn("batch cancelled", "dispatched", submitted, "lookups", total)
			return
		}
		logger.Info("batch complete", "lookups", total)
	}()

	return out
}

// lookup resolves one request and emits exactly one record, even when the
// provider panics.
func (e *Engine) lookup(ctx context.Context, apiKey, batchID string, req serp.Request, emit func(storage.RankRecord)) {
	start := e.now()
	sent := false
	send := func(out serp.Outcome) {
		rec := storage.NewRecord(batchID, req, out, e.now())
		sent = true
		emit(rec)
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lookup panicked", "keyword", req.Keyword, "location", req.Location, "panic", r)
			if !sent {
				out := serp.TransportError(fmt.Errorf("internal error: %v", r))
				out.Duration = e.now().Sub(start)
				send(out)
			}
		}
	}()

	if err := e.limiter.Wait(ctx); err != nil {
		out := serp.TransportError(fmt.Errorf("not sent: %w", err))
		out.Duration = e.now().Sub(start)
		send(out)
		return
	}

	send(e.provider.Query(ctx, apiKey, req))
}

// Batch is a fully collected run.
type Batch struct {
	ID      string
	Records []storage.RankRecord
	// Total is the number of (keyword, location) pairs in the batch.
	Total int
	// Partial is set when the run was cancelled before every pair produced
	// a record.
	Partial    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// AuthWarning reports whether any lookup was rejected for bad credentials.
func (b *Batch) AuthWarning() bool {
	for i := range b.Records {
		if b.Records[i].Status == serp.StatusAuthError {
			return true
		}
	}
	return false
}

// Collect runs a batch and gathers its records. each, when non-nil, sees
// every record as it arrives.
func (e *Engine) Collect(ctx context.Context, apiKey string, keywords, locations []string, opts Options, each func(*storage.RankRecord)) (*Batch, error) {
	started := e.now()
	p, err := e.prepare(ctx, apiKey, keywords, locations, opts)
	if err != nil {
		return nil, err
	}

	b := &Batch{
		ID:        p.batchID,
		Total:     len(p.requests),
		Records:   make([]storage.RankRecord, 0, len(p.requests)),
		StartedAt: started,
	}
	for rec := range e.dispatch(ctx, apiKey, p) {
		if each != nil {
			each(&rec)
		}
		b.Records = append(b.Records, rec)
	}
	b.Partial = len(b.Records) < b.Total
	b.FinishedAt = e.now()
	return b, nil
}
