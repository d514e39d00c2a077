// Package scrape mines rendered API documentation pages for endpoints and
// example values when no machine-readable specification is reachable.
package scrape

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/mark3labs/docharvest/internal/spec"
)

var (
	titleClassRe = regexp.MustCompile(`(?i)title|header`)
	blockClassRe = regexp.MustCompile(`(?i)opblock|endpoint|operation`)

	// Patterns are tried in order; the first that matches anything wins.
	methodClassRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)opblock-summary-method`),
		regexp.MustCompile(`(?i)method`),
	}
	pathClassRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)opblock-summary-path`),
		regexp.MustCompile(`(?i)endpoint-path`),
		regexp.MustCompile(`(?i)path`),
	}
	descClassRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)opblock-summary-description`),
		regexp.MustCompile(`(?i)description`),
		regexp.MustCompile(`(?i)summary`),
	}

	paramNameClassRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)parameter__name`),
		regexp.MustCompile(`(?i)parameter.*name|param.*name`),
	}

	paramRowClassRe  = regexp.MustCompile(`(?i)parameter`)
	paramDescClassRe = regexp.MustCompile(`(?i)parameter.*description|param.*desc`)
	paramInClassRe   = regexp.MustCompile(`(?i)parameter__in`)
	requiredClassRe  = regexp.MustCompile(`(?i)^required$`)
	exampleClassRe   = regexp.MustCompile(`(?i)example|sample`)

	invisible = strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "")
)

// Fallback extracts an endpoint model from a rendered documentation page such
// as Swagger UI. Blocks without both a method and a path are dropped.
func Fallback(pageURL, html string) *spec.APIDoc {
	api := &spec.APIDoc{Source: pageURL, Endpoints: []spec.EndpointModel{}}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return api
	}

	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		api.Title = cleanText(h1.Text())
	} else if el := firstWithClass(doc.Selection, titleClassRe); el != nil {
		api.Title = cleanText(el.Text())
	}

	seen := make(map[string]struct{})
	eachWithClass(doc.Selection, blockClassRe, func(block *goquery.Selection) {
		ep, ok := endpointFromBlock(block)
		if !ok {
			return
		}
		key := string(ep.Method) + " " + ep.Path
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		api.Endpoints = append(api.Endpoints, ep)
	})
	return api
}

func endpointFromBlock(block *goquery.Selection) (spec.EndpointModel, bool) {
	var ep spec.EndpointModel

	// Containers grouping several operations, such as tag sections, are not
	// endpoints themselves; their children are visited separately.
	if selectWithClass(block, methodClassRes[len(methodClassRes)-1]).Length() > 1 {
		return ep, false
	}
	methodEl := firstByPriority(block, methodClassRes)
	if methodEl == nil {
		return ep, false
	}
	method, ok := spec.ParseMethod(cleanText(methodEl.Text()))
	if !ok {
		return ep, false
	}

	pathEl := firstByPriority(block, pathClassRes)
	if pathEl == nil {
		return ep, false
	}
	path, _ := pathEl.Attr("data-path")
	if path = cleanText(path); path == "" {
		path = cleanText(pathEl.Text())
	}
	if path == "" {
		return ep, false
	}

	ep.Method = method
	ep.Path = path
	ep.Description = descriptionFromBlock(block, methodEl, pathEl, path)
	ep.Parameters = parametersFromBlock(block)

	eachWithClass(block, exampleClassRe, func(s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) > 5 {
			ep.Examples = append(ep.Examples, spec.ExampleRecord{Kind: spec.HTMLExtractedExample, Value: text})
		}
	})
	return ep, true
}

// descriptionFromBlock picks the first description candidate by class
// priority. Parameter cells are ignored, and a summary row that wraps the
// method and path contributes only the text left after removing them.
func descriptionFromBlock(block, methodEl, pathEl *goquery.Selection, path string) string {
	for _, re := range descClassRes {
		var desc string
		selectWithClass(block, re).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if classMatches(s, paramRowClassRe) || classMatches(s, paramDescClassRe) {
				return true
			}
			if n := s.Get(0); within(methodEl, n) || within(pathEl, n) {
				return true
			}
			text := cleanText(s.Text())
			if s.Contains(methodEl.Get(0)) || s.Contains(pathEl.Get(0)) {
				text = stripOnce(text, cleanText(methodEl.Text()))
				text = stripOnce(text, cleanText(pathEl.Text()))
				text = stripOnce(text, path)
			}
			desc = text
			return desc == ""
		})
		if desc != "" {
			return desc
		}
	}
	return ""
}

// within reports whether n is the element of sel or one of its descendants.
func within(sel *goquery.Selection, n *html.Node) bool {
	return sel.Get(0) == n || sel.Contains(n)
}

func stripOnce(text, part string) string {
	if part == "" {
		return text
	}
	return cleanText(strings.Replace(text, part, "", 1))
}

func parametersFromBlock(block *goquery.Selection) []spec.Parameter {
	rows := block.Find("tr")
	if rows.Length() == 0 {
		rows = selectWithClass(block, paramRowClassRe)
	}
	var params []spec.Parameter
	rows.Each(func(_ int, row *goquery.Selection) {
		nameEl := firstByPriority(row, paramNameClassRes)
		if nameEl == nil {
			return
		}
		name := paramName(nameEl)
		if name == "" {
			return
		}
		p := spec.Parameter{
			Name:     name,
			In:       spec.InQuery,
			Required: strings.Contains(strings.ToLower(row.Text()), "required") || classMatches(nameEl, requiredClassRe),
		}
		if descEl := firstWithClass(row, paramDescClassRe); descEl != nil {
			p.Description = cleanText(descEl.Text())
		}
		if inEl := firstWithClass(row, paramInClassRe); inEl != nil {
			p.In = spec.ParseLocation(strings.Trim(cleanText(inEl.Text()), "()"))
		}
		params = append(params, p)
	})
	return params
}

// paramName reads the first token of a Swagger UI name cell, which may carry a
// trailing "*" or "required" marker.
func paramName(s *goquery.Selection) string {
	fields := strings.Fields(cleanText(s.Text()))
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimRight(fields[0], "*")
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(invisible.Replace(s)), " ")
}

func classMatches(s *goquery.Selection, re *regexp.Regexp) bool {
	class, ok := s.Attr("class")
	if !ok {
		return false
	}
	for _, token := range strings.Fields(class) {
		if re.MatchString(token) {
			return true
		}
	}
	return false
}

// eachWithClass visits descendants of root with a class token matching re, in
// document order.
func eachWithClass(root *goquery.Selection, re *regexp.Regexp, fn func(*goquery.Selection)) {
	root.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		if classMatches(s, re) {
			fn(s)
		}
	})
}

func selectWithClass(root *goquery.Selection, re *regexp.Regexp) *goquery.Selection {
	return root.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return classMatches(s, re)
	})
}

func firstWithClass(root *goquery.Selection, re *regexp.Regexp) *goquery.Selection {
	var found *goquery.Selection
	root.Find("[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if classMatches(s, re) {
			found = s
			return false
		}
		return true
	})
	return found
}

func firstByPriority(root *goquery.Selection, res []*regexp.Regexp) *goquery.Selection {
	for _, re := range res {
		if s := firstWithClass(root, re); s != nil {
			return s
		}
	}
	return nil
}
