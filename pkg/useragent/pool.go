package useragent

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync/atomic"
)

// Browser families. They share names with the TLS fingerprint profiles so a
// request can present a User-Agent consistent with its ClientHello.
const (
	Chrome  = "chrome"
	Firefox = "firefox"
	Safari  = "safari"
)

var byBrowser = map[string][]string{
	Chrome: {
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	},
	Firefox: {
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
	},
	Safari: {
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	},
}

// All returns every known User-Agent, Chrome first.
func All() []string {
	var out []string
	for _, b := range []string{Chrome, Firefox, Safari} {
		out = append(out, byBrowser[b]...)
	}
	return out
}

// ForBrowser returns a pool of User-Agents for the browser family. "random"
// and unknown families get every known User-Agent. "go" and "" return nil:
// the plain Go TLS stack should keep the client's own User-Agent.
func ForBrowser(family string) *Pool {
	family = strings.ToLower(strings.TrimSpace(family))
	switch family {
	case "", "go":
		return nil
	}
	if uas, ok := byBrowser[family]; ok {
		return NewPool(uas)
	}
	return NewPool(nil)
}

// Pool hands out User-Agents round-robin or at random. It is safe for
// concurrent use. A nil Pool yields "".
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// NewPool creates a pool over uas, or over All() when uas is empty.
func NewPool(uas []string) *Pool {
	if len(uas) == 0 {
		uas = All()
	}
	return &Pool{uas: append([]string(nil), uas...)}
}

// Next returns the next User-Agent in round-robin order.
func (p *Pool) Next() string {
	if p == nil || len(p.uas) == 0 {
		return ""
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// Random returns a User-Agent picked with crypto/rand, falling back to Next.
func (p *Pool) Random() string {
	if p == nil || len(p.uas) == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.uas))))
	if err != nil {
		return p.Next()
	}
	return p.uas[n.Int64()]
}

// Len returns the pool size.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.uas)
}
