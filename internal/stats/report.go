package stats

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	reportTimeFormat  = "2006-01-02 15:04:05"
	examplesPerReason = 3
)

// Totals aggregates snapshots of several sites.
type Totals struct {
	Sites                int     `json:"websites_processed"`
	Discovered           int     `json:"total_urls_discovered"`
	Successful           int     `json:"total_successful"`
	Failed               int     `json:"total_failed"`
	SwaggerPages         int     `json:"total_swagger_pages"`
	EndpointsExtracted   int     `json:"total_api_endpoints"`
	SuccessRate          float64 `json:"overall_success_rate_percent"`
	SwaggerDetectionRate float64 `json:"swagger_detection_rate_percent"`
}

// Sum totals snaps.
func Sum(snaps []Snapshot) Totals {
	t := Totals{Sites: len(snaps)}
	for _, s := range snaps {
		t.Discovered += s.Discovered
		t.Successful += s.SuccessCount()
		t.Failed += s.FailureCount()
		t.SwaggerPages += s.SwaggerPages
		t.EndpointsExtracted += s.EndpointsExtracted
	}
	if t.Discovered > 0 {
		t.SuccessRate = float64(t.Successful) * 100 / float64(t.Discovered)
		t.SwaggerDetectionRate = float64(t.SwaggerPages) * 100 / float64(t.Discovered)
	}
	return t
}

// Domain returns the host of the snapshot's base URL, or the base URL itself
// when it does not parse.
func (s Snapshot) Domain() string {
	if u, err := url.Parse(s.BaseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return s.BaseURL
}

// WriteLog renders the per-site processing log as markdown.
func WriteLog(w io.Writer, s Snapshot, generated time.Time) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Processing Log: %s\n\n", s.Domain())
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- **Website**: %s\n", s.Domain())
	fmt.Fprintf(&b, "- **Base URL**: %s\n", s.BaseURL)
	fmt.Fprintf(&b, "- **Processing Date**: %s\n", generated.Format(reportTimeFormat))
	fmt.Fprintf(&b, "- **Total URLs Discovered**: %d\n", s.Discovered)
	fmt.Fprintf(&b, "- **Successfully Processed**: %d\n", s.SuccessCount())
	fmt.Fprintf(&b, "- **Failed to Process**: %d\n", s.FailureCount())
	fmt.Fprintf(&b, "- **Success Rate**: %.1f%%\n", s.SuccessRate)
	fmt.Fprintf(&b, "- **Processing Duration**: %.2f seconds\n", s.DurationSeconds)
	fmt.Fprintf(&b, "- **Swagger Pages Detected**: %d\n", s.SwaggerPages)
	fmt.Fprintf(&b, "- **API Endpoints Extracted**: %d\n", s.EndpointsExtracted)
	fmt.Fprintf(&b, "- **Swagger Detection Rate**: %.1f%%\n", s.SwaggerDetectionRate)

	fmt.Fprintf(&b, "\n## Successful URLs (%d)\n", s.SuccessCount())
	for _, u := range s.Successful {
		fmt.Fprintf(&b, "- %s\n", u)
	}

	if s.FailureCount() > 0 {
		fmt.Fprintf(&b, "\n## Failed URLs (%d)\n\n", s.FailureCount())
		byReason := s.FailuresByReason()
		for _, reason := range Reasons {
			urls := byReason[reason]
			if len(urls) == 0 {
				continue
			}
			fmt.Fprintf(&b, "### %s (%d URLs)\n\n", reason.Title(), len(urls))
			for _, u := range urls {
				f := s.Failed[u]
				fmt.Fprintf(&b, "- **%s**\n", u)
				fmt.Fprintf(&b, "  - Error: %s\n", f.Message)
				fmt.Fprintf(&b, "  - Time: %s\n\n", f.Timestamp.Format(time.RFC3339))
			}
		}
	}

	if len(s.Notes) > 0 {
		fmt.Fprintf(&b, "\n## Notes (%d)\n\n", len(s.Notes))
		for _, n := range s.Notes {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", n.URL, n.Message, n.Reason.Title())
		}
	}

	b.WriteString("\n## Processing Details\n")
	fmt.Fprintf(&b, "- Start Time: %s\n", s.Start.Format(reportTimeFormat))
	if !s.End.IsZero() {
		fmt.Fprintf(&b, "- End Time: %s\n", s.End.Format(reportTimeFormat))
	}
	fmt.Fprintf(&b, "- Duration: %.2f seconds\n", s.DurationSeconds)

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteSummary renders the run-wide summary as markdown. Each failure reason
// lists its first three URLs.
func WriteSummary(w io.Writer, snaps []Snapshot, elapsed time.Duration, generated time.Time) error {
	t := Sum(snaps)
	var b strings.Builder
	b.WriteString("# Overall Processing Summary\n\n")
	fmt.Fprintf(&b, "**Generated**: %s\n\n", generated.Format(reportTimeFormat))
	b.WriteString("## Overall Statistics\n")
	fmt.Fprintf(&b, "- **Total Processing Time**: %.2f seconds\n", elapsed.Seconds())
	fmt.Fprintf(&b, "- **Websites Processed**: %d\n", t.Sites)
	fmt.Fprintf(&b, "- **Total URLs Discovered**: %d\n", t.Discovered)
	fmt.Fprintf(&b, "- **Successfully Processed**: %d\n", t.Successful)
	fmt.Fprintf(&b, "- **Failed to Process**: %d\n", t.Failed)
	fmt.Fprintf(&b, "- **Overall Success Rate**: %.1f%%\n", t.SuccessRate)
	b.WriteString("\n## Swagger/API Detection\n")
	fmt.Fprintf(&b, "- **Swagger Pages Detected**: %d\n", t.SwaggerPages)
	fmt.Fprintf(&b, "- **API Endpoints Extracted**: %d\n", t.EndpointsExtracted)
	fmt.Fprintf(&b, "- **Swagger Detection Rate**: %.1f%%\n", t.SwaggerDetectionRate)
	b.WriteString("\n## Per-Website Results\n\n")

	for _, s := range snaps {
		fmt.Fprintf(&b, "### %s\n", s.Domain())
		fmt.Fprintf(&b, "- **Base URL**: %s\n", s.BaseURL)
		fmt.Fprintf(&b, "- **URLs Discovered**: %d\n", s.Discovered)
		fmt.Fprintf(&b, "- **Successfully Processed**: %d\n", s.SuccessCount())
		fmt.Fprintf(&b, "- **Failed**: %d\n", s.FailureCount())
		fmt.Fprintf(&b, "- **Success Rate**: %.1f%%\n", s.SuccessRate)
		fmt.Fprintf(&b, "- **Processing Time**: %.2f seconds\n", s.DurationSeconds)
		fmt.Fprintf(&b, "- **Swagger Pages**: %d\n", s.SwaggerPages)
		fmt.Fprintf(&b, "- **API Endpoints**: %d\n\n", s.EndpointsExtracted)

		if len(s.ExtractionMethods) > 0 {
			b.WriteString("**Swagger Extraction Methods:**\n")
			methods := make([]string, 0, len(s.ExtractionMethods))
			for m := range s.ExtractionMethods {
				methods = append(methods, m)
			}
			sort.Strings(methods)
			for _, m := range methods {
				fmt.Fprintf(&b, "- %s: %d pages\n", titleCase(m), s.ExtractionMethods[m])
			}
			b.WriteString("\n")
		}

		if s.FailureCount() > 0 {
			b.WriteString("**Failure Breakdown:**\n")
			byReason := s.FailuresByReason()
			for _, reason := range Reasons {
				urls := byReason[reason]
				if len(urls) == 0 {
					continue
				}
				fmt.Fprintf(&b, "- %s: %d URLs\n", reason.Title(), len(urls))
				for _, u := range urls[:min(len(urls), examplesPerReason)] {
					fmt.Fprintf(&b, "  - %s\n", u)
				}
				if extra := len(urls) - examplesPerReason; extra > 0 {
					fmt.Fprintf(&b, "  - ... and %d more\n", extra)
				}
			}
			b.WriteString("\n")
		}
		b.WriteString("---\n\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Title renders the reason for reports, e.g. "Timeout Error".
func (r Reason) Title() string { return titleCase(string(r)) }

func titleCase(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
