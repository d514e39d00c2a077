// Package detect classifies documentation pages as API documentation and
// proposes machine-readable specification URLs for them.
package detect

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mark3labs/docharvest/internal/spec"
)

// Result is the classification of one page.
type Result struct {
	URL            string                `json:"url"`
	IsAPI          bool                  `json:"is_api"`
	Confidence     float64               `json:"confidence"`
	Indicators     []string              `json:"indicators"`
	SpecCandidates []string              `json:"spec_candidates"`
	Method         spec.ExtractionMethod `json:"method"`
}

// Page is the input shared by all rules. Doc may be nil when the content could
// not be parsed as HTML.
type Page struct {
	URL   string
	Path  string
	HTML  string
	Lower string
	Doc   *goquery.Document
}

// Rule is one weighted indicator. Check reports whether the indicator is
// present on the page.
type Rule struct {
	Name   string
	Weight float64
	Check  func(p *Page) (bool, error)
}

var (
	swaggerClassRe  = regexp.MustCompile(`(?i)swagger-ui`)
	opblockClassRe  = regexp.MustCompile(`(?i)opblock`)
	httpMethodRe    = regexp.MustCompile(`\b(GET|POST|PUT|DELETE|PATCH)\b`)
	errNoHTMLParsed = errors.New("detect: page has no parsed document")
)

// DefaultRules is the indicator table used by NewDetector.
var DefaultRules = []Rule{
	{Name: "swagger-ui container", Weight: 0.9, Check: func(p *Page) (bool, error) {
		if p.Doc == nil {
			return false, errNoHTMLParsed
		}
		return p.Doc.Find("#swagger-ui").Length() > 0, nil
	}},
	{Name: "swagger-ui class", Weight: 0.9, Check: func(p *Page) (bool, error) {
		return hasClassMatching(p, swaggerClassRe)
	}},
	{Name: "swagger.json link", Weight: 0.95, Check: func(p *Page) (bool, error) {
		return hasLinkContaining(p, "swagger.json")
	}},
	{Name: "openapi.json link", Weight: 0.95, Check: func(p *Page) (bool, error) {
		return hasLinkContaining(p, "openapi.json")
	}},
	{Name: "swagger title", Weight: 0.7, Check: func(p *Page) (bool, error) {
		if p.Doc == nil {
			return false, errNoHTMLParsed
		}
		return strings.Contains(strings.ToLower(p.Doc.Find("title").First().Text()), "swagger"), nil
	}},
	{Name: "opblock class", Weight: 0.8, Check: func(p *Page) (bool, error) {
		return hasClassMatching(p, opblockClassRe)
	}},
	{Name: "swagger-ui-bundle script", Weight: 0.8, Check: contains("swagger-ui-bundle")},
	{Name: "try it out", Weight: 0.6, Check: contains("try it out")},
	{Name: "swagger ui text", Weight: 0.5, Check: contains("swagger ui")},
	{Name: "openapi text", Weight: 0.4, Check: contains("openapi")},
	{Name: "api documentation text", Weight: 0.3, Check: contains("api documentation")},
	{Name: "api.html url", Weight: 0.6, Check: func(p *Page) (bool, error) {
		return strings.HasSuffix(strings.ToLower(p.Path), "/api.html"), nil
	}},
	{Name: "api docs url", Weight: 0.5, Check: func(p *Page) (bool, error) {
		u := strings.ToLower(p.URL)
		return strings.Contains(u, "/api") && (strings.Contains(u, "doc") || strings.Contains(u, "api.html")), nil
	}},
	{Name: "rest api terms", Weight: 0.4, Check: func(p *Page) (bool, error) {
		for _, term := range []string{"rest api", "api endpoint", "api reference"} {
			if strings.Contains(p.Lower, term) {
				return true, nil
			}
		}
		return false, nil
	}},
	{Name: "http method tokens", Weight: 0.5, Check: func(p *Page) (bool, error) {
		return len(httpMethodRe.FindAllStringIndex(p.HTML, 3)) >= 3, nil
	}},
	{Name: "application/json", Weight: 0.3, Check: contains("application/json")},
}

func contains(term string) func(p *Page) (bool, error) {
	return func(p *Page) (bool, error) { return strings.Contains(p.Lower, term), nil }
}

func hasClassMatching(p *Page, re *regexp.Regexp) (bool, error) {
	if p.Doc == nil {
		return false, errNoHTMLParsed
	}
	found := false
	p.Doc.Find("[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		for _, token := range strings.Fields(class) {
			if re.MatchString(token) {
				found = true
				return false
			}
		}
		return true
	})
	return found, nil
}

func hasLinkContaining(p *Page, needle string) (bool, error) {
	if p.Doc == nil {
		return false, errNoHTMLParsed
	}
	found := false
	p.Doc.Find("a[href], link[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if strings.Contains(strings.ToLower(href), needle) {
			found = true
			return false
		}
		return true
	})
	return found, nil
}

// Detector scores pages against a rule table.
type Detector struct {
	rules   []Rule
	locator *Locator
	// trustGuessed lets synthesized spec candidates classify a page on their
	// own, like scanned ones do.
	trustGuessed bool
}

// Option configures a Detector.
type Option func(*Detector)

// WithRules replaces the indicator table.
func WithRules(rules []Rule) Option { return func(d *Detector) { d.rules = rules } }

// WithLocator replaces the spec candidate locator.
func WithLocator(l *Locator) Option { return func(d *Detector) { d.locator = l } }

// WithTrustGuessedCandidates makes any spec candidate, including URLs
// synthesized from the page path, enough to classify a page as API
// documentation.
func WithTrustGuessedCandidates(trust bool) Option {
	return func(d *Detector) { d.trustGuessed = trust }
}

// NewDetector returns a Detector using DefaultRules and NewLocator.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{rules: DefaultRules, locator: NewLocator()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect classifies a page. The URL fragment is ignored. Rules that fail or
// panic are skipped.
func (d *Detector) Detect(rawURL, html string) Result {
	clean := stripFragment(rawURL)
	page := &Page{URL: clean, HTML: html, Lower: strings.ToLower(html)}
	if u, err := url.Parse(clean); err == nil {
		page.Path = u.Path
	}
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		page.Doc = doc
	}

	res := Result{URL: clean, Indicators: []string{}}
	for _, rule := range d.rules {
		if evaluate(rule, page) {
			res.Confidence += rule.Weight
			res.Indicators = append(res.Indicators, rule.Name)
		}
	}
	if res.Confidence > 1.0 {
		res.Confidence = 1.0
	}

	scanned := d.locator.Scan(clean, html)
	res.SpecCandidates = dedupe(scanned, d.locator.Synthesize(clean))
	if res.SpecCandidates == nil {
		res.SpecCandidates = []string{}
	}

	decisive := len(scanned) > 0
	if d.trustGuessed {
		decisive = len(res.SpecCandidates) > 0
	}
	res.IsAPI = res.Confidence > 0.3 || decisive

	switch {
	case res.IsAPI && len(res.SpecCandidates) > 0:
		res.Method = spec.SpecBased
	case res.IsAPI:
		res.Method = spec.HTMLFallback
	default:
		res.Method = spec.Standard
	}
	return res
}

func evaluate(rule Rule, page *Page) (hit bool) {
	defer func() {
		if recover() != nil {
			hit = false
		}
	}()
	ok, err := rule.Check(page)
	return err == nil && ok
}

func stripFragment(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i]
	}
	return raw
}
