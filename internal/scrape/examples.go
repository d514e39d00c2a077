package scrape

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mark3labs/docharvest/internal/spec"
)

// Examples holds example values mined from a page, grouped by their likely use.
type Examples struct {
	Parameters []string `json:"parameters,omitempty"`
	Responses  []string `json:"responses,omitempty"`
	Code       []string `json:"code,omitempty"`
}

const (
	maxResponseExamples = 3
	maxCodeExamples     = 2
	maxResponseLen      = 200
	minCodeLen          = 10
	minParamExampleLen  = 2
)

var (
	paramExampleRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)example:\s*([^\n\r]+)`),
		regexp.MustCompile(`(?i)"example":\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)"example":\s*([^,\}\]]+)`),
	}
	responseExampleRe = regexp.MustCompile(`\{[^{}]*"[^"]*":\s*"[^"]*"[^{}]*\}`)
	sourceCodeMarkers = []string{"function", "class", "import", "def "}
)

// MineExamples collects example candidates from a page. Parameter and response
// candidates come from the visible text, code candidates from code and pre
// elements that do not look like program source.
func MineExamples(html string) Examples {
	var ex Examples
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ex
	}
	text := doc.Text()

	for _, re := range paramExampleRes {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			v := strings.Trim(strings.TrimSpace(m[1]), `"'`)
			if len(v) > minParamExampleLen {
				ex.Parameters = append(ex.Parameters, v)
			}
		}
	}

	for _, m := range responseExampleRe.FindAllString(text, -1) {
		if len(m) < maxResponseLen {
			ex.Responses = append(ex.Responses, m)
		}
	}

	seen := make(map[string]struct{})
	doc.Find("code, pre").Each(func(_ int, s *goquery.Selection) {
		code := strings.TrimSpace(s.Text())
		if len(code) <= minCodeLen || looksLikeSource(code) {
			return
		}
		if _, dup := seen[code]; dup {
			return
		}
		seen[code] = struct{}{}
		ex.Code = append(ex.Code, code)
	})
	return ex
}

func looksLikeSource(code string) bool {
	lower := strings.ToLower(code)
	for _, marker := range sourceCodeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Enrich attaches mined examples to endpoints in place. A parameter without an
// example takes the first candidate mentioning its name, or the only candidate
// when there is exactly one. An endpoint that had no examples gets up to three
// response candidates and two code candidates.
func Enrich(endpoints []spec.EndpointModel, ex Examples) {
	for i := range endpoints {
		ep := &endpoints[i]
		for j := range ep.Parameters {
			p := &ep.Parameters[j]
			if p.Example != nil {
				continue
			}
			if v, ok := exampleForParameter(p.Name, ex.Parameters); ok {
				p.Example = v
			}
		}

		if len(ep.Examples) > 0 {
			continue
		}
		for _, r := range first(ex.Responses, maxResponseExamples) {
			ep.Examples = append(ep.Examples, spec.ExampleRecord{Kind: spec.HTMLExtractedExample, Value: r})
		}
		for _, c := range first(ex.Code, maxCodeExamples) {
			ep.Examples = append(ep.Examples, spec.ExampleRecord{Kind: spec.CodeExample, Value: c})
		}
	}
}

func exampleForParameter(name string, candidates []string) (string, bool) {
	if name != "" {
		lower := strings.ToLower(name)
		for _, c := range candidates {
			if strings.Contains(strings.ToLower(c), lower) {
				return c, true
			}
		}
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	return "", false
}

func first(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}
