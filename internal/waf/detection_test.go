package waf

import (
	"net/http"
	"testing"

	"github.com/FranksOps/rankr/pkg/httpclient"
)

func response(status int, header map[string]string, body string) *httpclient.Response {
	h := http.Header{}
	for k, v := range header {
		h.Set(k, v)
	}
	return &httpclient.Response{StatusCode: status, Header: h, Body: []byte(body)}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		resp   *httpclient.Response
		source string
	}{
		{"ok", response(200, map[string]string{"Server": "cloudflare"}, "cf-turnstile"), ""},
		{"rate limited", response(429, map[string]string{"Server": "cloudflare"}, ""), ""},
		{"plain api 403", response(403, map[string]string{"Content-Type": "application/json"}, `{"message":"Unauthorized."}`), ""},
		{"api 403 behind cloudflare", response(403, map[string]string{"Server": "cloudflare", "Content-Type": "application/json"}, `{"message":"Unauthorized."}`), ""},
		{"cloudflare header", response(403, map[string]string{"Server": "cloudflare", "Content-Type": "text/html"}, "Access Denied"), "Cloudflare"},
		{"cloudflare body", response(503, nil, "<html>... cf-turnstile ...</html>"), "Cloudflare"},
		{"akamai header", response(403, map[string]string{"Server": "AkamaiGHost"}, ""), "Akamai"},
		{"akamai body", response(403, nil, "Access Denied... Reference #123.456"), "Akamai"},
		{"datadome header", response(403, map[string]string{"X-DataDome": "1"}, ""), "DataDome"},
		{"datadome body", response(403, nil, "script src='https://geo.captcha-delivery.com/'"), "DataDome"},
		{"perimeterx header", response(403, map[string]string{"X-Px-Captcha": "required"}, ""), "PerimeterX"},
		{"perimeterx body", response(403, nil, "window._pxBlock = true;"), "PerimeterX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			source, ok := Detect(tt.resp, DefaultDetectors())
			if ok != (tt.source != "") || source != tt.source {
				t.Errorf("Detect() = %q, %v; want %q", source, ok, tt.source)
			}
		})
	}
}

func TestDetect_Nil(t *testing.T) {
	t.Parallel()

	if _, ok := Detect(nil, DefaultDetectors()); ok {
		t.Error("nil response must not be detected")
	}
	if _, ok := Detect(response(403, map[string]string{"X-DataDome": "1"}, ""), nil); ok {
		t.Error("no detectors must detect nothing")
	}
}
