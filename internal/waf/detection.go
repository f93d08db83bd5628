// Package waf recognises block pages served by bot protection in front of
// the search API, usually when requests leave through a flagged proxy.
package waf

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/FranksOps/rankr/pkg/httpclient"
)

// Detector reports whether resp is a block page and which vendor served it.
type Detector func(resp *httpclient.Response) (detected bool, source string)

// DefaultDetectors returns the standard list of detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Detect runs resp through detectors and returns the first vendor found.
// 2xx and 429 responses are never block pages.
func Detect(resp *httpclient.Response, detectors []Detector) (string, bool) {
	if resp == nil || resp.StatusCode < 400 || resp.StatusCode == http.StatusTooManyRequests {
		return "", false
	}
	for _, d := range detectors {
		if detected, source := d(resp); detected {
			return source, true
		}
	}
	return "", false
}

func server(resp *httpclient.Response) string {
	return strings.ToLower(resp.Header.Get("Server"))
}

func bodyContains(resp *httpclient.Response, markers ...string) bool {
	for _, m := range markers {
		if bytes.Contains(resp.Body, []byte(m)) {
			return true
		}
	}
	return false
}

// detectCloudflare looks for Cloudflare challenge and block pages, served
// as 403 or 503.
func detectCloudflare(resp *httpclient.Response) (bool, string) {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(server(resp), "cloudflare") && !isJSON(resp) {
		return true, "Cloudflare"
	}
	if bodyContains(resp, "cf-browser-verification", "cf-turnstile", "Attention Required! | Cloudflare") {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(resp *httpclient.Response) (bool, string) {
	if resp.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(server(resp), "akamai") {
		return true, "Akamai"
	}
	// generic "Access Denied ... Reference #" page
	if bodyContains(resp, "Reference #") && bodyContains(resp, "Access Denied") {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(resp *httpclient.Response) (bool, string) {
	if resp.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(server(resp), "datadome") ||
		resp.Header.Get("X-DataDome") != "" ||
		resp.Header.Get("X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bodyContains(resp, "geo.captcha-delivery.com") {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(resp *httpclient.Response) (bool, string) {
	if resp.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if resp.Header.Get("X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	if bodyContains(resp, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return true, "PerimeterX"
	}
	return false, ""
}

// isJSON reports whether the response claims a JSON body. APIs fronted by
// Cloudflare answer their own errors in JSON with a cloudflare Server header.
func isJSON(resp *httpclient.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "json")
}
