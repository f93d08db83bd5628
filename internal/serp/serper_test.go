package serp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/rankr/pkg/httpclient"
	"github.com/FranksOps/rankr/pkg/ratelimit"
	"github.com/FranksOps/rankr/pkg/useragent"
)

// recordingSleeper returns immediately and remembers every requested delay.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func (s *recordingSleeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

// scriptedServer answers each request with the next status/body pair and
// repeats the last one once the script runs out.
func scriptedServer(t *testing.T, statuses []int, bodies []string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(hits.Add(1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statuses[i])
		_, _ = io.WriteString(w, bodies[i])
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

func newTestClient(t *testing.T, endpoint string, sleeper ratelimit.Sleeper) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		Endpoint: endpoint,
		Sleeper:  sleeper,
		Backoff:  ratelimit.Backoff{BaseDelay: 5 * time.Second, MaxJitter: 3 * time.Second, Rand: func() float64 { return 0 }},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

const organicWithMatchAt3 = `{"organic":[
	{"title":"one","link":"https://first.org/a"},
	{"title":"two","link":"https://second.net/b"},
	{"title":"three","link":"https://www.example.com/page"},
	{"title":"four","link":"https://example.com/other"}
]}`

func TestQuery_RetriesRateLimitThenMatches(t *testing.T) {
	t.Parallel()

	ts, hits := scriptedServer(t,
		[]int{http.StatusTooManyRequests, http.StatusOK},
		[]string{`{"message":"Too many requests"}`, organicWithMatchAt3},
	)
	sleeper := &recordingSleeper{}
	c := newTestClient(t, ts.URL, sleeper)

	out := c.Query(context.Background(), "key", Request{Keyword: "widgets", CountryCode: "us", Domain: "example.com"})

	if out.Status != StatusMatched || out.Rank != 3 || out.URL != "https://www.example.com/page" {
		t.Fatalf("expected Matched(3), got %+v", out)
	}
	if sleeper.count() != 1 {
		t.Errorf("expected exactly one backoff delay, got %d", sleeper.count())
	}
	if sleeper.delays[0] != 5*time.Second {
		t.Errorf("expected first delay 5s, got %v", sleeper.delays[0])
	}
	if hits.Load() != 2 || out.Attempts != 2 {
		t.Errorf("expected 2 attempts, server saw %d, outcome says %d", hits.Load(), out.Attempts)
	}
}

func TestQuery_RateLimitBudgetIsBounded(t *testing.T) {
	t.Parallel()

	ts, hits := scriptedServer(t, []int{http.StatusTooManyRequests}, []string{`{}`})
	sleeper := &recordingSleeper{}
	c := newTestClient(t, ts.URL, sleeper)

	out := c.Query(context.Background(), "key", Request{Keyword: "widgets", Domain: "example.com"})

	if out.Status != StatusRateLimited {
		t.Fatalf("expected RateLimited, got %+v", out)
	}
	if hits.Load() != 5 || out.Attempts != 5 {
		t.Errorf("expected exactly 5 attempts, server saw %d, outcome says %d", hits.Load(), out.Attempts)
	}
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second}
	if len(sleeper.delays) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), sleeper.delays)
	}
	for i, d := range want {
		if sleeper.delays[i] != d {
			t.Errorf("delay %d = %v, want %v", i, sleeper.delays[i], d)
		}
	}
}

func TestQuery_AuthErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	ts, hits := scriptedServer(t, []int{http.StatusForbidden}, []string{`{"message":"Unauthorized"}`})
	sleeper := &recordingSleeper{}
	c := newTestClient(t, ts.URL, sleeper)

	out := c.Query(context.Background(), "bad", Request{Keyword: "widgets", Domain: "example.com"})

	if out.Status != StatusAuthError || out.Code != http.StatusForbidden {
		t.Fatalf("expected AuthError(403), got %+v", out)
	}
	if hits.Load() != 1 || sleeper.count() != 0 {
		t.Errorf("expected a single attempt and no retries, got %d hits and %d sleeps", hits.Load(), sleeper.count())
	}
}

func TestQuery_OtherStatusIsAPIError(t *testing.T) {
	t.Parallel()

	ts, hits := scriptedServer(t, []int{http.StatusInternalServerError}, []string{`oops`})
	c := newTestClient(t, ts.URL, &recordingSleeper{})

	out := c.Query(context.Background(), "key", Request{Keyword: "widgets", Domain: "example.com"})
	if out.Status != StatusAPIError || out.Code != 500 {
		t.Fatalf("expected APIError(500), got %+v", out)
	}
	if hits.Load() != 1 {
		t.Errorf("expected no retry, got %d hits", hits.Load())
	}
	if out.Ranking() != "API error (HTTP 500)" {
		t.Errorf("unexpected ranking text %q", out.Ranking())
	}
}

func TestQuery_NotFound(t *testing.T) {
	t.Parallel()

	ts, _ := scriptedServer(t, []int{http.StatusOK}, []string{organicWithMatchAt3})
	c := newTestClient(t, ts.URL, &recordingSleeper{})

	out := c.Query(context.Background(), "key", Request{Keyword: "widgets", Domain: "absent.io"})
	if out.Status != StatusNotFound {
		t.Fatalf("expected NotFound, got %+v", out)
	}
	if out.Ranking() != "Not in Top 100" {
		t.Errorf("unexpected ranking text %q", out.Ranking())
	}
}

func TestQuery_StrictMatchSkipsSubdomains(t *testing.T) {
	t.Parallel()

	body := `{"organic":[{"link":"https://blog.example.com/"},{"link":"https://example.com/"}]}`
	ts, _ := scriptedServer(t, []int{http.StatusOK}, []string{body})
	c := newTestClient(t, ts.URL, &recordingSleeper{})

	loose := c.Query(context.Background(), "key", Request{Keyword: "k", Domain: "example.com"})
	if loose.Rank != 1 {
		t.Errorf("substring match should hit rank 1, got %+v", loose)
	}
	strict := c.Query(context.Background(), "key", Request{Keyword: "k", Domain: "example.com", StrictMatch: true})
	if strict.Rank != 2 {
		t.Errorf("strict match should hit rank 2, got %+v", strict)
	}
}

func TestQuery_AlternateFieldNamesAndSkippedLinks(t *testing.T) {
	t.Parallel()

	// Missing links keep their slot: the match is the fourth entry.
	body := `{"organic_results":[
		{"title":"no link"},
		"not an object",
		{"url":""},
		{"url":"https://example.com/found"}
	]}`
	ts, _ := scriptedServer(t, []int{http.StatusOK}, []string{body})
	c := newTestClient(t, ts.URL, &recordingSleeper{})

	out := c.Query(context.Background(), "key", Request{Keyword: "k", Domain: "example.com"})
	if out.Status != StatusMatched || out.Rank != 4 {
		t.Fatalf("expected Matched(4), got %+v", out)
	}
}

func TestQuery_FirstOrganicKeyWins(t *testing.T) {
	t.Parallel()

	body := `{"organic":[{"link":"https://other.org"}],"organic_results":[{"link":"https://example.com"}]}`
	ts, _ := scriptedServer(t, []int{http.StatusOK}, []string{body})
	c := newTestClient(t, ts.URL, &recordingSleeper{})

	out := c.Query(context.Background(), "key", Request{Keyword: "k", Domain: "example.com"})
	if out.Status != StatusNotFound {
		t.Fatalf("expected the organic list to win, got %+v", out)
	}
}

func TestQuery_MalformedBodyIsTransportError(t *testing.T) {
	t.Parallel()

	ts, _ := scriptedServer(t, []int{http.StatusOK}, []string{`{"organic": "nope"`})
	c := newTestClient(t, ts.URL, &recordingSleeper{})

	out := c.Query(context.Background(), "key", Request{Keyword: "k", Domain: "example.com"})
	if out.Status != StatusTransportError || out.Message == "" {
		t.Fatalf("expected TransportError with message, got %+v", out)
	}
	if !strings.HasPrefix(out.Ranking(), "Request failed: ") {
		t.Errorf("unexpected ranking text %q", out.Ranking())
	}
}

func TestQuery_ConnectionFailureIsTransportError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := ts.URL
	ts.Close()

	sleeper := &recordingSleeper{}
	c := newTestClient(t, endpoint, sleeper)
	out := c.Query(context.Background(), "key", Request{Keyword: "k", Domain: "example.com"})
	if out.Status != StatusTransportError || out.Attempts != 1 {
		t.Fatalf("expected a single TransportError attempt, got %+v", out)
	}
	if sleeper.count() != 0 {
		t.Error("transport errors must not be retried")
	}
}

func TestQuery_TimeoutIsTransportError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	hc, _ := httpclient.New(httpclient.Config{Timeout: 20 * time.Millisecond})
	c, err := NewClient(ClientConfig{Endpoint: ts.URL, HTTP: hc, Sleeper: &recordingSleeper{}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	out := c.Query(context.Background(), "key", Request{Keyword: "k", Domain: "example.com"})
	if out.Status != StatusTransportError {
		t.Fatalf("expected TransportError, got %+v", out)
	}
}

func TestQuery_CancelledBackoff(t *testing.T) {
	t.Parallel()

	ts, hits := scriptedServer(t, []int{http.StatusTooManyRequests}, []string{`{}`})
	ctx, cancel := context.WithCancel(context.Background())
	sleeper := ratelimit.SleeperFunc(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})
	c := newTestClient(t, ts.URL, sleeper)

	out := c.Query(ctx, "key", Request{Keyword: "k", Domain: "example.com"})
	if out.Status != StatusTransportError {
		t.Fatalf("expected TransportError after cancelled backoff, got %+v", out)
	}
	if hits.Load() != 1 {
		t.Errorf("expected one attempt, got %d", hits.Load())
	}
}

func TestQuery_Payload(t *testing.T) {
	t.Parallel()

	var got map[string]any
	var apiKey string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("X-API-KEY")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"organic":[]}`)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, &recordingSleeper{})
	_ = c.Query(context.Background(), "secret", Request{
		Keyword:            "best coffee",
		Location:           "Austin, Texas",
		CountryCode:        "us",
		SearchEngineDomain: "google.com",
		LanguageCode:       "en",
		Device:             DeviceMobile,
		SearchType:         SearchNews,
		Domain:             "example.com",
	})

	if apiKey != "secret" {
		t.Errorf("expected api key header, got %q", apiKey)
	}
	want := map[string]any{
		"q":             "best coffee",
		"gl":            "us",
		"hl":            "en",
		"num":           float64(100),
		"location":      "Austin, Texas",
		"device":        "mobile",
		"searchType":    "news",
		"google_domain": "google.com",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("payload[%q] = %v, want %v", k, got[k], v)
		}
	}
}

func TestQuery_PayloadOmitsEmptyOptionals(t *testing.T) {
	t.Parallel()

	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{}`)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, &recordingSleeper{})
	_ = c.Query(context.Background(), "k", Request{Keyword: "coffee", CountryCode: "in", Domain: "example.com"})

	for _, k := range []string{"hl", "location", "device", "searchType", "google_domain"} {
		if _, ok := got[k]; ok {
			t.Errorf("expected %q to be omitted, payload %v", k, got)
		}
	}
}

func TestQuery_UserAgentRotation(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		uas []string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		uas = append(uas, r.Header.Get("User-Agent"))
		mu.Unlock()
		_, _ = io.WriteString(w, `{"organic":[]}`)
	}))
	defer ts.Close()

	c, err := NewClient(ClientConfig{
		Endpoint:   ts.URL,
		UserAgents: useragent.NewPool([]string{"ua-one", "ua-two"}),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	for i := 0; i < 3; i++ {
		_ = c.Query(context.Background(), "k", Request{Keyword: "coffee", Domain: "example.com"})
	}

	want := []string{"ua-one", "ua-two", "ua-one"}
	if strings.Join(uas, ",") != strings.Join(want, ",") {
		t.Errorf("User-Agents = %v, want %v", uas, want)
	}
}

func TestQuery_BlockPageIsAnnotated(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "<html><title>Attention Required! | Cloudflare</title></html>")
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, &recordingSleeper{})
	out := c.Query(context.Background(), "k", Request{Keyword: "coffee", Domain: "example.com"})

	if out.Status != StatusAuthError || out.Code != http.StatusForbidden {
		t.Fatalf("expected auth error 403, got %+v", out)
	}
	if out.Message != "blocked by Cloudflare" {
		t.Errorf("Message = %q", out.Message)
	}
	if out.Ranking() != "Auth error (HTTP 403)" {
		t.Errorf("block annotation must not change the ranking cell, got %q", out.Ranking())
	}

	if err := c.Probe(context.Background(), "k"); err == nil || errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected a block error distinct from a bad key, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		var num float64
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var p map[string]any
			_ = json.NewDecoder(r.Body).Decode(&p)
			num, _ = p["num"].(float64)
			_, _ = io.WriteString(w, `{"organic":[]}`)
		}))
		defer ts.Close()

		c := newTestClient(t, ts.URL, &recordingSleeper{})
		if err := c.Probe(context.Background(), "key"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if num != 1 {
			t.Errorf("probe should request a single result, got num=%v", num)
		}
	})

	t.Run("forbidden", func(t *testing.T) {
		t.Parallel()
		ts, _ := scriptedServer(t, []int{http.StatusForbidden}, []string{`{}`})
		c := newTestClient(t, ts.URL, &recordingSleeper{})
		if err := c.Probe(context.Background(), "key"); !errors.Is(err, ErrInvalidAPIKey) {
			t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		t.Parallel()
		ts, hits := scriptedServer(t, []int{http.StatusTooManyRequests}, []string{`{}`})
		c := newTestClient(t, ts.URL, &recordingSleeper{})
		err := c.Probe(context.Background(), "key")
		if err == nil || errors.Is(err, ErrInvalidAPIKey) {
			t.Fatalf("expected a non-auth probe error, got %v", err)
		}
		if hits.Load() != 1 {
			t.Errorf("probe must not retry, got %d hits", hits.Load())
		}
	})

	t.Run("blank key", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, "http://127.0.0.1:0", &recordingSleeper{})
		if err := c.Probe(context.Background(), "  "); !errors.Is(err, ErrInvalidAPIKey) {
			t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
		}
	})
}

func TestParseDeviceAndSearchType(t *testing.T) {
	t.Parallel()

	if d, err := ParseDevice("Mobile"); err != nil || d != DeviceMobile {
		t.Errorf("ParseDevice(Mobile) = %v, %v", d, err)
	}
	if d, err := ParseDevice(""); err != nil || d != DeviceDesktop {
		t.Errorf("ParseDevice(\"\") = %v, %v", d, err)
	}
	if _, err := ParseDevice("tablet"); err == nil {
		t.Error("expected error for tablet")
	}

	if st, err := ParseSearchType("IMAGES"); err != nil || st != SearchImages {
		t.Errorf("ParseSearchType(IMAGES) = %v, %v", st, err)
	}
	if st, err := ParseSearchType(""); err != nil || st != SearchWeb {
		t.Errorf("ParseSearchType(\"\") = %v, %v", st, err)
	}
	if _, err := ParseSearchType("maps"); err == nil {
		t.Error("expected error for maps")
	}
}
