package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/docharvest/internal/spec"
)

// FormatForTransform prefixes the original page content with a markdown
// overview of the extracted API so the transformation sees structured
// endpoint data first.
func FormatForTransform(pageURL string, ex *Extraction, original string) string {
	api := ex.API
	var b strings.Builder
	b.WriteString("# API Documentation Overview\n")
	fmt.Fprintf(&b, "**Source URL:** %s\n", pageURL)
	fmt.Fprintf(&b, "**Detection Method:** %s\n", ex.Method)
	fmt.Fprintf(&b, "**Confidence:** %.2f\n", ex.Detection.Confidence)
	if api.Title != "" {
		fmt.Fprintf(&b, "**API Title:** %s\n", api.Title)
	}
	if api.Version != "" {
		fmt.Fprintf(&b, "**API Version:** %s\n", api.Version)
	}
	if api.Description != "" {
		fmt.Fprintf(&b, "**Description:** %s\n", api.Description)
	}
	if api.BaseURL != "" {
		fmt.Fprintf(&b, "**Base URL:** %s\n", api.BaseURL)
	}
	if ex.SpecURL != "" {
		fmt.Fprintf(&b, "**Specification:** %s\n", ex.SpecURL)
	}
	fmt.Fprintf(&b, "**Total Endpoints:** %d\n\n", api.TotalEndpoints())

	if len(api.Endpoints) > 0 {
		b.WriteString("# API Endpoints\n\n")
		for i, ep := range api.Endpoints {
			writeEndpoint(&b, i+1, ep)
		}
	}

	b.WriteString("\n# Original Page Content\n\n")
	b.WriteString(original)
	return b.String()
}

func writeEndpoint(b *strings.Builder, n int, ep spec.EndpointModel) {
	fmt.Fprintf(b, "## Endpoint %d: %s %s\n", n, ep.Method, ep.Path)
	if ep.Summary != "" {
		fmt.Fprintf(b, "**Summary:** %s\n", ep.Summary)
	}
	if ep.Description != "" {
		fmt.Fprintf(b, "**Description:** %s\n", ep.Description)
	}

	if len(ep.Parameters) > 0 {
		b.WriteString("### Parameters\n")
		for _, p := range ep.Parameters {
			fmt.Fprintf(b, "- **%s** (%s)", p.Name, p.In)
			if p.Required {
				b.WriteString(" *[Required]*")
			}
			if p.Type != "" {
				fmt.Fprintf(b, " - Type: %s", p.Type)
			}
			if p.Description != "" {
				fmt.Fprintf(b, " - %s", p.Description)
			}
			if p.Example != nil {
				fmt.Fprintf(b, " - Example: `%s`", render(p.Example))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(ep.Responses) > 0 {
		b.WriteString("### Responses\n")
		codes := make([]string, 0, len(ep.Responses))
		for code := range ep.Responses {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			desc := ep.Responses[code].Description
			if desc == "" {
				desc = "No description"
			}
			fmt.Fprintf(b, "- **%s**: %s\n", code, desc)
		}
		b.WriteString("\n")
	}

	if len(ep.Examples) > 0 {
		b.WriteString("### Examples\n")
		for _, ex := range ep.Examples {
			label := string(ex.Kind)
			if ex.StatusCode != "" {
				label += " " + ex.StatusCode
			}
			if ex.ContentType != "" {
				label += " " + ex.ContentType
			}
			fmt.Fprintf(b, "%s:\n```\n%s\n```\n", label, render(ex.Value))
		}
		b.WriteString("\n")
	}
	b.WriteString("---\n\n")
}

// render prints strings as-is and everything else as indented JSON.
func render(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
