// Package discovery produces the URLs to process for a seed.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Discoverer lists the pages belonging to a seed URL.
type Discoverer interface {
	Discover(ctx context.Context, seed string) ([]string, error)
}

// Seed discovers only the seed itself.
type Seed struct{}

func (Seed) Discover(_ context.Context, seed string) ([]string, error) {
	if _, err := parseHTTP(seed); err != nil {
		return nil, err
	}
	return []string{seed}, nil
}

// Limits bound what a Discoverer returns.
type Limits struct {
	// MaxPages caps the number of URLs per seed; zero means no cap.
	MaxPages int
	// SameDomain keeps only URLs on the seed's host.
	SameDomain bool
}

// List discovers URLs from a fixed list, typically read from a file.
type List struct {
	urls   []string
	limits Limits
}

// NewList returns a List over urls.
func NewList(urls []string, limits Limits) *List {
	return &List{urls: urls, limits: limits}
}

// Discover returns the seed followed by the listed URLs that pass the limits,
// without duplicates. Fragments are ignored when comparing URLs.
func (l *List) Discover(ctx context.Context, seed string) ([]string, error) {
	seedURL, err := parseHTTP(seed)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{normalize(seedURL): {}}
	out := []string{seed}
	for _, raw := range l.urls {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if l.limits.MaxPages > 0 && len(out) >= l.limits.MaxPages {
			break
		}
		u, err := parseHTTP(raw)
		if err != nil {
			continue
		}
		if l.limits.SameDomain && !strings.EqualFold(u.Hostname(), seedURL.Hostname()) {
			continue
		}
		key := normalize(u)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, raw)
	}
	return out, nil
}

// Seeds picks one seed per host from urls, in first-seen order. Used when a
// run is driven by a URL file alone.
func Seeds(urls []string) []string {
	var out []string
	hosts := make(map[string]struct{})
	for _, raw := range urls {
		u, err := parseHTTP(raw)
		if err != nil {
			continue
		}
		h := strings.ToLower(u.Host)
		if _, ok := hosts[h]; ok {
			continue
		}
		hosts[h] = struct{}{}
		out = append(out, raw)
	}
	return out
}

func parseHTTP(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("discovery: invalid url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("discovery: %q is not an absolute http(s) url", raw)
	}
	return u, nil
}

func normalize(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.Host = strings.ToLower(c.Host)
	return c.String()
}
