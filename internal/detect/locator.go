package detect

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Locator proposes URLs that may serve a machine-readable API specification
// for a documentation page.
type Locator struct {
	// WellKnown are root-relative paths tried against every page's host.
	WellKnown []string
}

// DefaultWellKnownPaths are the spec locations common server frameworks expose.
var DefaultWellKnownPaths = []string{
	"/swagger.json",
	"/openapi.json",
	"/api-docs",
	"/v1/swagger.json",
	"/v2/api-docs",
	"/swagger/v1/swagger.json",
}

// docSuffixes are page path endings that are replaced by a spec file name.
var docSuffixes = []string{"/api.html", "/api-reference.html", "/api-reference", "/docs/", "/docs"}

var specLinkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)["']([^"']*swagger\.json[^"']*)["']`),
	regexp.MustCompile(`(?i)["']([^"']*openapi\.json[^"']*)["']`),
	regexp.MustCompile(`(?i)["']([^"']*api-docs[^"']*)["']`),
}

// NewLocator returns a Locator using DefaultWellKnownPaths.
func NewLocator() *Locator {
	return &Locator{WellKnown: DefaultWellKnownPaths}
}

// Locate returns scanned candidates followed by synthesized ones, deduplicated
// with first occurrence kept.
func (l *Locator) Locate(pageURL, html string) []string {
	return dedupe(l.Scan(pageURL, html), l.Synthesize(pageURL))
}

// Scan extracts quoted spec-like references from the raw page source and
// resolves them against pageURL. Only http and https results are kept.
func (l *Locator) Scan(pageURL, html string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	var out []string
	for _, re := range specLinkPatterns {
		for _, m := range re.FindAllStringSubmatch(html, -1) {
			ref := strings.TrimSpace(m[1])
			if ref == "" {
				continue
			}
			u, err := url.Parse(ref)
			if err != nil {
				continue
			}
			abs := base.ResolveReference(u)
			if abs.Scheme != "http" && abs.Scheme != "https" {
				continue
			}
			abs.Fragment = ""
			out = append(out, abs.String())
		}
	}
	return dedupe(out)
}

// Synthesize guesses spec URLs from the page URL alone.
func (l *Locator) Synthesize(pageURL string) []string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	root := u.Scheme + "://" + u.Host
	wellKnown := l.WellKnown
	if wellKnown == nil {
		wellKnown = DefaultWellKnownPaths
	}
	out := make([]string, 0, len(wellKnown)+2)
	for _, p := range wellKnown {
		out = append(out, root+p)
	}

	p := u.Path
	for _, suffix := range docSuffixes {
		if strings.HasSuffix(strings.ToLower(p), suffix) {
			prefix := p[:len(p)-len(suffix)]
			return append(out, root+prefix+"/swagger.json", root+prefix+"/openapi.json")
		}
	}
	dir := path.Dir(p)
	if dir == "/" || dir == "." {
		dir = ""
	}
	if strings.HasSuffix(p, "/") {
		dir = strings.TrimSuffix(p, "/")
	}
	return append(out, root+dir+"/swagger.json")
}

func dedupe(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
