// Package stats tracks per-site processing outcomes of a harvesting run.
package stats

import (
	"sync"
	"time"
)

// Reason classifies why a URL failed.
type Reason string

const (
	ConnectionError         Reason = "connection_error"
	TimeoutError            Reason = "timeout_error"
	HTTPError               Reason = "http_error"
	ProcessingError         Reason = "processing_error"
	ContentExtractionError  Reason = "content_extraction_error"
	TransformError          Reason = "transform_error"
	SwaggerDetectionError   Reason = "swagger_detection_error"
	SpecError               Reason = "spec_error"
	EndpointExtractionError Reason = "endpoint_extraction_error"
	UnknownError            Reason = "unknown_error"
)

// Reasons lists every reason in report order.
var Reasons = []Reason{
	ConnectionError, TimeoutError, HTTPError, ProcessingError, ContentExtractionError,
	TransformError, SwaggerDetectionError, SpecError, EndpointExtractionError, UnknownError,
}

// FailureRecord describes one failed URL, or one auxiliary note when used as a
// Note.
type FailureRecord struct {
	Reason    Reason    `json:"reason"`
	Message   string    `json:"error_msg"`
	Timestamp time.Time `json:"timestamp"`
}

// Note is a non-fatal problem observed while processing a URL.
type Note struct {
	URL string `json:"url"`
	FailureRecord
}

// ProcessingStats accumulates outcomes for one base URL. It is safe for
// concurrent use. A URL is never both successful and failed.
type ProcessingStats struct {
	baseURL string
	now     func() time.Time

	mu           sync.Mutex
	discovered   map[string]struct{}
	successes    []string
	succeeded    map[string]struct{}
	failures     map[string]FailureRecord
	failureOrder []string
	notes        []Note
	swaggerPages int
	endpoints    int
	methods      map[string]int
	swaggerURLs  []string
	start        time.Time
	end          time.Time
}

// Option configures ProcessingStats.
type Option func(*ProcessingStats)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *ProcessingStats) { s.now = now }
}

// New starts tracking baseURL. The start time is taken from the clock.
func New(baseURL string, opts ...Option) *ProcessingStats {
	s := &ProcessingStats{
		baseURL:    baseURL,
		now:        time.Now,
		discovered: make(map[string]struct{}),
		succeeded:  make(map[string]struct{}),
		failures:   make(map[string]FailureRecord),
		methods:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.now()
	return s
}

// BaseURL returns the site this instance tracks.
func (s *ProcessingStats) BaseURL() string { return s.baseURL }

// AddDiscovered records URLs found for the site.
func (s *ProcessingStats) AddDiscovered(urls ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range urls {
		s.discovered[u] = struct{}{}
	}
}

// AddSuccess records a processed URL. It reports false when the URL has
// already failed; repeated successes are ignored.
func (s *ProcessingStats) AddSuccess(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, failed := s.failures[url]; failed {
		return false
	}
	s.discovered[url] = struct{}{}
	if _, ok := s.succeeded[url]; !ok {
		s.succeeded[url] = struct{}{}
		s.successes = append(s.successes, url)
	}
	return true
}

// AddFailure records a failed URL with its reason. It reports false when the
// URL has already succeeded. A later failure replaces an earlier one.
func (s *ProcessingStats) AddFailure(url string, reason Reason, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.succeeded[url]; ok {
		return false
	}
	s.discovered[url] = struct{}{}
	if _, seen := s.failures[url]; !seen {
		s.failureOrder = append(s.failureOrder, url)
	}
	s.failures[url] = FailureRecord{Reason: reason, Message: msg, Timestamp: s.now()}
	return true
}

// AddNote records a non-fatal problem. Notes do not affect success or failure.
func (s *ProcessingStats) AddNote(url string, reason Reason, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, Note{URL: url, FailureRecord: FailureRecord{Reason: reason, Message: msg, Timestamp: s.now()}})
}

// AddSwaggerDetection records a page detected as API documentation.
func (s *ProcessingStats) AddSwaggerDetection(url, method string, endpoints int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swaggerPages++
	s.swaggerURLs = append(s.swaggerURLs, url)
	s.endpoints += endpoints
	s.methods[method]++
}

// Finish sets the end time. Calling it again keeps the later time.
func (s *ProcessingStats) Finish(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.end) {
		s.end = t
	}
}

// Snapshot is a point-in-time copy of ProcessingStats.
type Snapshot struct {
	BaseURL              string                   `json:"base_url"`
	Discovered           int                      `json:"total_urls_discovered"`
	Successful           []string                 `json:"successful_urls"`
	Failed               map[string]FailureRecord `json:"failed_urls"`
	FailureOrder         []string                 `json:"-"`
	Notes                []Note                   `json:"notes,omitempty"`
	SwaggerPages         int                      `json:"swagger_pages_detected"`
	EndpointsExtracted   int                      `json:"api_endpoints_extracted"`
	ExtractionMethods    map[string]int           `json:"swagger_extraction_methods"`
	SwaggerURLs          []string                 `json:"swagger_urls"`
	Start                time.Time                `json:"processing_start_time"`
	End                  time.Time                `json:"processing_end_time"`
	SuccessRate          float64                  `json:"success_rate_percent"`
	SwaggerDetectionRate float64                  `json:"swagger_detection_rate_percent"`
	DurationSeconds      float64                  `json:"processing_duration_seconds"`
}

// Snapshot copies the current state. Rates are percentages of discovered URLs;
// an unfinished run measures duration up to now.
func (s *ProcessingStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		BaseURL:            s.baseURL,
		Discovered:         len(s.discovered),
		Successful:         append([]string(nil), s.successes...),
		Failed:             make(map[string]FailureRecord, len(s.failures)),
		FailureOrder:       append([]string(nil), s.failureOrder...),
		Notes:              append([]Note(nil), s.notes...),
		SwaggerPages:       s.swaggerPages,
		EndpointsExtracted: s.endpoints,
		ExtractionMethods:  make(map[string]int, len(s.methods)),
		SwaggerURLs:        append([]string(nil), s.swaggerURLs...),
		Start:              s.start,
		End:                s.end,
	}
	for u, f := range s.failures {
		snap.Failed[u] = f
	}
	for m, n := range s.methods {
		snap.ExtractionMethods[m] = n
	}
	if snap.Discovered > 0 {
		snap.SuccessRate = float64(len(snap.Successful)) * 100 / float64(snap.Discovered)
		snap.SwaggerDetectionRate = float64(snap.SwaggerPages) * 100 / float64(snap.Discovered)
	}
	end := s.end
	if end.IsZero() {
		end = s.now()
	}
	snap.DurationSeconds = end.Sub(s.start).Seconds()
	return snap
}

// SuccessCount is the number of successful URLs.
func (s Snapshot) SuccessCount() int { return len(s.Successful) }

// FailureCount is the number of failed URLs.
func (s Snapshot) FailureCount() int { return len(s.Failed) }

// FailuresByReason groups failed URLs by reason, in first-failure order.
func (s Snapshot) FailuresByReason() map[Reason][]string {
	out := make(map[Reason][]string)
	for _, u := range s.FailureOrder {
		f := s.Failed[u]
		out[f.Reason] = append(out[f.Reason], u)
	}
	return out
}
