package helpers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	mathrand "math/rand"
	"net/http"
	"slices"

	"golang.org/x/net/html/charset"
)

// HeaderProfile describes the browser-like headers sent with every request
type HeaderProfile struct {
	UserAgents     []string
	Referers       []string
	AcceptLanguage string
}

// DefaultHeaderProfile returns the desktop browser profile used against the card sites
func DefaultHeaderProfile() HeaderProfile {
	return HeaderProfile{
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		},
		Referers: []string{
			"https://www.google.com/",
			"https://www.bing.com/",
			"https://duckduckgo.com/",
		},
		AcceptLanguage: "en-US,en;q=0.5",
	}
}

// rateLimitStatuses are the status codes the card sites use to throttle clients
var rateLimitStatuses = []int{http.StatusTooManyRequests, 430}

// IsRateLimitStatus reports whether the status code signals throttling
func IsRateLimitStatus(code int) bool {
	return slices.Contains(rateLimitStatuses, code)
}

// NewBrowserRequest builds a GET request carrying randomized browser-like headers
func NewBrowserRequest(ctx context.Context, url string, profile HeaderProfile, rnd *mathrand.Rand) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if len(profile.UserAgents) > 0 {
		req.Header.Set("User-Agent", profile.UserAgents[rnd.Intn(len(profile.UserAgents))])
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	if profile.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", profile.AcceptLanguage)
	}
	req.Header.Set("Cache-Control", "no-cache")
	if len(profile.Referers) > 0 {
		req.Header.Set("Referer", profile.Referers[rnd.Intn(len(profile.Referers))])
	}
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Sec-Fetch-User", "?1")

	return req, nil
}

// DecodeBody converts a response body to a UTF-8 string using the Content-Type
// header and any charset declared in the document itself.
func DecodeBody(body []byte, contentType string) (string, error) {
	encoding, name, _ := charset.DetermineEncoding(body, contentType)

	// If already UTF-8, return as is
	if name == "utf-8" || name == "UTF-8" {
		return string(body), nil
	}

	utf8Reader := encoding.NewDecoder().Reader(bytes.NewReader(body))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, utf8Reader); err != nil {
		return "", fmt.Errorf("failed to read converted UTF-8 body: %w", err)
	}

	return buf.String(), nil
}
