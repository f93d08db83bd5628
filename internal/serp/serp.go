package serp

import (
	"context"
	"fmt"
	"strings"
)

// Device selects the result layout the provider emulates.
type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
)

// SearchType selects the provider vertical.
type SearchType string

const (
	SearchWeb    SearchType = "search"
	SearchNews   SearchType = "news"
	SearchImages SearchType = "images"
	SearchVideos SearchType = "videos"
)

// ParseDevice accepts "desktop" or "mobile" in any case. Empty input means desktop.
func ParseDevice(s string) (Device, error) {
	switch Device(strings.ToLower(strings.TrimSpace(s))) {
	case "", DeviceDesktop:
		return DeviceDesktop, nil
	case DeviceMobile:
		return DeviceMobile, nil
	}
	return "", fmt.Errorf("serp: unknown device %q (want desktop or mobile)", s)
}

// ParseSearchType accepts search, news, images or videos. Empty input means search.
func ParseSearchType(s string) (SearchType, error) {
	switch t := SearchType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return SearchWeb, nil
	case SearchWeb, SearchNews, SearchImages, SearchVideos:
		return t, nil
	}
	return "", fmt.Errorf("serp: unknown search type %q (want search, news, images or videos)", s)
}

// Request describes one lookup: a keyword searched from one location.
// It is passed by value and never modified after construction.
type Request struct {
	Keyword string
	// Location is free text understood by the provider, e.g. "Austin, Texas".
	// Empty means no location targeting.
	Location           string
	CountryCode        string
	SearchEngineDomain string
	LanguageCode       string
	Device             Device
	SearchType         SearchType
	// Domain is the site whose rank is being checked.
	Domain      string
	StrictMatch bool
}

// SERPProvider resolves rank lookups against a search API.
type SERPProvider interface {
	// Query runs one lookup and always returns a terminal Outcome; failures
	// are reported through Outcome.Status, never as a panic or an error.
	Query(ctx context.Context, apiKey string, req Request) Outcome
	// Probe checks that apiKey is accepted with a single cheap request.
	Probe(ctx context.Context, apiKey string) error
}
