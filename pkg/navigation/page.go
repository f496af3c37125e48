// Package navigation keeps the requested page in sync with a shareable address.
//
// The address carries a single query parameter, "page". Every page beyond the
// first is requested by navigating to an address with that parameter set, so
// reloading or sharing the address reproduces the same window.
package navigation

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

const (
	// PageParam is the query parameter holding the requested page.
	PageParam = "page"

	// DefaultPage is used whenever the parameter is missing or invalid.
	DefaultPage = 1

	// MaxSafePage is the largest page value accepted (2^53 - 1). Larger values
	// cannot be represented exactly by every client sharing the address.
	MaxSafePage = 1<<53 - 1
)

// ParseRequestedPage sanitizes a raw page parameter. It returns DefaultPage
// for empty, non-numeric, fractional, non-positive or unsafe values.
func ParseRequestedPage(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultPage
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return DefaultPage
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value != math.Trunc(value) {
		return DefaultPage
	}
	if value < 1 || value > MaxSafePage {
		return DefaultPage
	}

	return int(value)
}

// PageFromAddress returns the sanitized page requested by address.
// Unparseable addresses yield DefaultPage.
func PageFromAddress(address string) int {
	u, err := url.Parse(address)
	if err != nil {
		return DefaultPage
	}
	return ParseRequestedPage(u.Query().Get(PageParam))
}
