package serp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/rankr/internal/analyzer"
	"github.com/FranksOps/rankr/internal/waf"
	"github.com/FranksOps/rankr/pkg/httpclient"
	"github.com/FranksOps/rankr/pkg/proxy"
	"github.com/FranksOps/rankr/pkg/ratelimit"
	"github.com/FranksOps/rankr/pkg/useragent"
)

const (
	// DefaultEndpoint is the Serper.dev Google search endpoint.
	DefaultEndpoint = "https://google.serper.dev/search"
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 30 * time.Second
	// MaxResults is the result depth requested for every lookup.
	MaxResults = 100

	apiKeyHeader = "X-API-KEY"
	probeKeyword = "rank tracker"
)

// ErrInvalidAPIKey is returned by Probe when the provider rejects the key.
var ErrInvalidAPIKey = errors.New("serp: invalid API key")

// Field names the provider has used for the organic list and for result
// links. The first one present wins.
var (
	organicKeys = []string{"organic", "organic_results"}
	linkKeys    = []string{"link", "url"}
)

// ClientConfig configures a Serper client. Zero values select defaults.
type ClientConfig struct {
	Endpoint string
	// HTTP is the client used for every attempt. Defaults to a client with
	// DefaultTimeout.
	HTTP        *httpclient.Client
	MaxAttempts int
	Backoff     ratelimit.Backoff
	Sleeper     ratelimit.Sleeper
	// Proxies, when set, picks an egress proxy per attempt. The HTTP
	// transport must use Proxies.Func() for the choice to take effect.
	Proxies *proxy.Pool
	// UserAgents, when set, overrides the User-Agent on each attempt.
	UserAgents *useragent.Pool
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration)
	Logger  *slog.Logger
}

// Client queries Serper.dev and scans the organic results for a domain.
// It is safe for concurrent use.
type Client struct {
	endpoint    string
	http        *httpclient.Client
	maxAttempts int
	backoff     ratelimit.Backoff
	sleeper     ratelimit.Sleeper
	proxies     *proxy.Pool
	userAgents  *useragent.Pool
	onRetry     func(int, time.Duration)
	detectors   []waf.Detector
	logger      *slog.Logger
	now         func() time.Time
}

var _ SERPProvider = (*Client)(nil)

// NewClient creates a Serper client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.HTTP == nil {
		hc, err := httpclient.New(httpclient.Config{Timeout: DefaultTimeout})
		if err != nil {
			return nil, fmt.Errorf("serp: %w", err)
		}
		cfg.HTTP = hc
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = ratelimit.DefaultMaxAttempts
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = ratelimit.TimerSleeper{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		endpoint:    cfg.Endpoint,
		http:        cfg.HTTP,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		sleeper:     cfg.Sleeper,
		proxies:     cfg.Proxies,
		userAgents:  cfg.UserAgents,
		onRetry:     cfg.OnRetry,
		detectors:   waf.DefaultDetectors(),
		logger:      cfg.Logger,
		now:         time.Now,
	}, nil
}

// payload is the Serper request body.
type payload struct {
	Q            string     `json:"q"`
	GL           string     `json:"gl,omitempty"`
	HL           string     `json:"hl,omitempty"`
	Num          int        `json:"num"`
	Location     string     `json:"location,omitempty"`
	Device       Device     `json:"device,omitempty"`
	SearchType   SearchType `json:"searchType,omitempty"`
	GoogleDomain string     `json:"google_domain,omitempty"`
}

func newPayload(req Request) payload {
	return payload{
		Q:            req.Keyword,
		GL:           req.CountryCode,
		HL:           req.LanguageCode,
		Num:          MaxResults,
		Location:     req.Location,
		Device:       req.Device,
		SearchType:   req.SearchType,
		GoogleDomain: req.SearchEngineDomain,
	}
}

// retryState tracks consecutive 429 responses for one request.
type retryState struct {
	attempt     int
	maxAttempts int
}

// next records a 429 and reports the backoff index to wait on, or false
// when the attempt budget is spent.
func (r *retryState) next() (int, bool) {
	idx := r.attempt
	r.attempt++
	return idx, r.attempt < r.maxAttempts
}

// Query runs the lookup described by req. 429 responses are retried with
// exponential backoff up to the attempt budget; every other failure is
// terminal on first sight.
func (c *Client) Query(ctx context.Context, apiKey string, req Request) Outcome {
	start := c.now()
	out := c.query(ctx, apiKey, req)
	out.Duration = c.now().Sub(start)
	return out
}

func (c *Client) query(ctx context.Context, apiKey string, req Request) Outcome {
	logger := c.logger.With("keyword", req.Keyword, "location", req.Location)
	body := newPayload(req)
	state := retryState{maxAttempts: c.maxAttempts}

	for attempts := 1; ; attempts++ {
		resp, blockedBy, err := c.send(ctx, apiKey, body)
		if err != nil {
			logger.Debug("search request failed", "attempt", attempts, "err", err)
			out := TransportError(err)
			out.Attempts = attempts
			return out
		}

		var out Outcome
		switch resp.StatusCode {
		case http.StatusOK:
			out = scanOrganic(resp.Body, req.Domain, req.StrictMatch)
		case http.StatusUnauthorized, http.StatusForbidden:
			logger.Warn("search API rejected the API key", "status", resp.StatusCode, "blocked_by", blockedBy)
			out = AuthError(resp.StatusCode)
		case http.StatusTooManyRequests:
			idx, retry := state.next()
			if !retry {
				logger.Warn("rate limit retries exhausted", "attempts", attempts)
				out = RateLimited()
				break
			}
			delay := c.backoff.Delay(idx)
			logger.Info("rate limited, backing off", "attempt", attempts, "delay", delay)
			if c.onRetry != nil {
				c.onRetry(attempts, delay)
			}
			if err := c.sleeper.Sleep(ctx, delay); err != nil {
				out = TransportError(fmt.Errorf("backoff interrupted: %w", err))
				out.Attempts = attempts
				return out
			}
			continue
		default:
			logger.Warn("search API error", "status", resp.StatusCode, "blocked_by", blockedBy)
			out = APIError(resp.StatusCode)
		}
		if blockedBy != "" {
			out.Message = "blocked by " + blockedBy
		}

		out.Attempts = attempts
		return out
	}
}

// Probe sends a single-result query and succeeds only on HTTP 200.
func (c *Client) Probe(ctx context.Context, apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return ErrInvalidAPIKey
	}

	resp, blockedBy, err := c.send(ctx, apiKey, payload{Q: probeKeyword, Num: 1})
	if err != nil {
		return fmt.Errorf("serp: probe: %w", err)
	}
	if blockedBy != "" {
		return fmt.Errorf("serp: probe blocked by %s (HTTP %d)", blockedBy, resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w (HTTP %d)", ErrInvalidAPIKey, resp.StatusCode)
	default:
		return fmt.Errorf("serp: probe returned HTTP %d", resp.StatusCode)
	}
}

// send posts one request. blockedBy names the bot protection vendor when the
// response is a block page rather than an answer from the API; the proxy
// that drew it is counted as failed.
func (c *Client) send(ctx context.Context, apiKey string, body payload) (resp *httpclient.Response, blockedBy string, err error) {
	egress := c.pickProxy()
	if egress != nil {
		ctx = proxy.WithURL(ctx, egress)
	}

	headers := map[string]string{apiKeyHeader: apiKey}
	if ua := c.userAgents.Next(); ua != "" {
		headers["User-Agent"] = ua
	}

	resp, err = c.http.PostJSON(ctx, c.endpoint, headers, body)
	if err == nil {
		blockedBy, _ = waf.Detect(resp, c.detectors)
	}

	if egress != nil {
		if err != nil || blockedBy != "" {
			_ = c.proxies.MarkFailure(egress)
		} else {
			_ = c.proxies.MarkSuccess(egress)
		}
	}
	return resp, blockedBy, err
}

func (c *Client) pickProxy() *url.URL {
	if c.proxies == nil {
		return nil
	}
	return c.proxies.Next()
}

// scanOrganic finds the first organic result on domain. Ranks are 1-based
// positions in the list as returned; entries without a link keep their slot.
func scanOrganic(body []byte, domain string, strict bool) Outcome {
	entries, err := organicEntries(body)
	if err != nil {
		return TransportError(err)
	}

	for i, entry := range entries {
		link := entryLink(entry)
		if link == "" {
			continue
		}
		if analyzer.MatchDomain(link, domain, strict) {
			return Matched(i+1, link)
		}
	}
	return NotFound()
}

func organicEntries(body []byte) ([]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}

	for _, key := range organicKeys {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		var entries []json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("malformed %q list: %w", key, err)
		}
		return entries, nil
	}
	return nil, nil
}

// entryLink returns the entry's link, or "" when it has none or the entry
// is not an object.
func entryLink(raw json.RawMessage) string {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	for _, key := range linkKeys {
		if s, ok := fields[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
