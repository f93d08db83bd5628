package analyzer

import (
	"net/url"
	"strings"
)

// MatchDomain reports whether rawURL belongs to the target domain.
//
// Both sides are normalized with NormalizeHost. In strict mode the hosts must
// be equal. Otherwise the normalized target only has to occur somewhere in the
// normalized host, so "blog.example.com" and "myexample.com" both match
// "example.com". Empty or unparsable URLs never match.
func MatchDomain(rawURL, target string, strict bool) bool {
	host := NormalizeHost(rawURL)
	if host == "" {
		return false
	}
	want := NormalizeHost(target)
	if want == "" {
		return false
	}

	if strict {
		return host == want
	}
	return strings.Contains(host, want)
}

// NormalizeHost extracts the host of rawURL, lowercases it and strips a
// leading "www." and any port. Input without a scheme ("example.com/page") is
// treated as a host-first reference. It returns "" when no host can be found.
func NormalizeHost(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "//" + strings.TrimPrefix(s, "//")
	}

	u, err := url.Parse(s)
	if err != nil {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "www.")
	return host
}
