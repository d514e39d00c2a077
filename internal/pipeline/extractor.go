package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mark3labs/docharvest/internal/detect"
	"github.com/mark3labs/docharvest/internal/fetch"
	"github.com/mark3labs/docharvest/internal/limiter"
	"github.com/mark3labs/docharvest/internal/scrape"
	"github.com/mark3labs/docharvest/internal/spec"
)

// SpecGetter fetches spec candidate documents.
type SpecGetter interface {
	Get(ctx context.Context, url string) (*fetch.Response, error)
}

// Extraction is what the detection and extraction stages learned about a page.
type Extraction struct {
	Detection detect.Result
	// Method is the method that produced API, which may differ from the
	// detected one when no spec candidate resolved.
	Method  spec.ExtractionMethod
	API     *spec.APIDoc
	SpecURL string
	// DetectErr is set when detection failed; the page is then treated as
	// ordinary content.
	DetectErr error
	// CandidateErrs holds why each tried spec candidate was rejected.
	CandidateErrs []error
}

// IsAPI reports whether the page was classified as API documentation.
func (e *Extraction) IsAPI() bool { return e.DetectErr == nil && e.Detection.IsAPI }

// Endpoints returns the number of extracted endpoints.
func (e *Extraction) Endpoints() int { return e.API.TotalEndpoints() }

// Extractor runs detection, spec resolution, HTML fallback and example
// enrichment for a page.
type Extractor struct {
	detector      *detect.Detector
	specs         SpecGetter
	hosts         *limiter.Hosts
	maxCandidates int
	specTimeout   time.Duration
	log           *zap.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

func WithDetector(d *detect.Detector) ExtractorOption   { return func(e *Extractor) { e.detector = d } }
func WithHostPacing(h *limiter.Hosts) ExtractorOption   { return func(e *Extractor) { e.hosts = h } }
func WithMaxCandidates(n int) ExtractorOption           { return func(e *Extractor) { e.maxCandidates = n } }
func WithSpecTimeout(d time.Duration) ExtractorOption   { return func(e *Extractor) { e.specTimeout = d } }
func WithExtractorLogger(l *zap.Logger) ExtractorOption { return func(e *Extractor) { e.log = l } }

// NewExtractor returns an Extractor fetching spec candidates through specs.
func NewExtractor(specs SpecGetter, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		detector:      detect.NewDetector(),
		specs:         specs,
		hosts:         limiter.NewHosts(2, 1),
		maxCandidates: 12,
		specTimeout:   10 * time.Second,
		log:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("extract")
	return e
}

// Extract classifies a page and, when it documents an API, builds its endpoint
// model. Failures of these optional steps never escape; they downgrade the
// result instead.
func (e *Extractor) Extract(ctx context.Context, pageURL, html string) *Extraction {
	ex := &Extraction{Method: spec.Standard}
	det, err := e.detect(pageURL, html)
	if err != nil {
		ex.DetectErr = err
		e.log.Warn("detection failed", zap.String("url", pageURL), zap.Error(err))
		return ex
	}
	ex.Detection = det
	if !det.IsAPI {
		return ex
	}

	if det.Method == spec.SpecBased && e.specs != nil {
		e.resolveSpec(ctx, ex)
	}
	if ex.API == nil {
		ex.Method = spec.HTMLFallback
		ex.API = e.fallback(pageURL, html)
	}
	e.enrich(ex, html)
	e.log.Debug("extracted",
		zap.String("url", pageURL),
		zap.String("method", string(ex.Method)),
		zap.Int("endpoints", ex.Endpoints()))
	return ex
}

func (e *Extractor) detect(pageURL, html string) (res detect.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("swagger detection panicked: %v", r)
		}
	}()
	return e.detector.Detect(pageURL, html), nil
}

// resolveSpec tries candidates in order until one decodes and validates.
func (e *Extractor) resolveSpec(ctx context.Context, ex *Extraction) {
	candidates := ex.Detection.SpecCandidates
	if e.maxCandidates > 0 && len(candidates) > e.maxCandidates {
		candidates = candidates[:e.maxCandidates]
	}
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return
		}
		api, err := e.tryCandidate(ctx, candidate)
		if err != nil {
			ex.CandidateErrs = append(ex.CandidateErrs, err)
			e.log.Debug("spec candidate rejected", zap.String("candidate", candidate), zap.Error(err))
			continue
		}
		ex.API = api
		ex.SpecURL = candidate
		ex.Method = spec.SpecBased
		return
	}
}

func (e *Extractor) tryCandidate(ctx context.Context, candidate string) (*spec.APIDoc, error) {
	ctx, cancel := context.WithTimeout(ctx, e.specTimeout)
	defer cancel()
	if e.hosts != nil {
		if err := e.hosts.Wait(ctx, candidate); err != nil {
			return nil, err
		}
	}
	resp, err := e.specs.Get(ctx, candidate)
	if err != nil {
		return nil, err
	}
	doc, err := spec.DecodeDocument([]byte(resp.Body), resp.ContentType, candidate)
	if err != nil {
		return nil, err
	}
	if !spec.Validate(doc) {
		return nil, &spec.SpecError{Code: spec.ValidationError, Message: "not a swagger/openapi document", Location: candidate}
	}
	api := parseSafely(doc)
	if api == nil {
		return nil, &spec.SpecError{Code: spec.ParseError, Message: "spec could not be walked", Location: candidate}
	}
	api.Source = candidate
	api.Conformance = checkSafely(ctx, doc)
	return api, nil
}

func parseSafely(doc map[string]any) (api *spec.APIDoc) {
	defer func() {
		if recover() != nil {
			api = nil
		}
	}()
	return spec.Parse(doc)
}

// checkSafely runs the kin-openapi conformance view, which is informational.
func checkSafely(ctx context.Context, doc map[string]any) (c *spec.Conformance) {
	defer func() {
		if r := recover(); r != nil {
			c = &spec.Conformance{Problem: fmt.Sprintf("conformance check panicked: %v", r)}
		}
	}()
	return spec.Check(ctx, doc)
}

func (e *Extractor) fallback(pageURL, html string) (api *spec.APIDoc) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("html fallback failed", zap.String("url", pageURL), zap.Any("panic", r))
			api = &spec.APIDoc{Source: pageURL, Endpoints: []spec.EndpointModel{}}
		}
	}()
	return scrape.Fallback(pageURL, html)
}

func (e *Extractor) enrich(ex *Extraction, html string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("example enrichment failed", zap.Any("panic", r))
		}
	}()
	scrape.Enrich(ex.API.Endpoints, scrape.MineExamples(html))
}
