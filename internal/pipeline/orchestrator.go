package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mark3labs/docharvest/internal/discovery"
	"github.com/mark3labs/docharvest/internal/fetch"
	"github.com/mark3labs/docharvest/internal/limiter"
	"github.com/mark3labs/docharvest/internal/retry"
	"github.com/mark3labs/docharvest/internal/stats"
	"github.com/mark3labs/docharvest/internal/transform"
)

// ErrStopped is returned by Process for URLs skipped after Stop.
var ErrStopped = errors.New("pipeline: stopped")

// Failure is a URL-level failure already recorded in stats.
type Failure struct {
	Reason stats.Reason
	Err    error
}

func (f *Failure) Error() string { return fmt.Sprintf("%s: %v", f.Reason, f.Err) }
func (f *Failure) Unwrap() error { return f.Err }

// Event reports the completion of one URL. Exactly one of Record and Failure
// is set unless Skipped.
type Event struct {
	Task    Task
	Record  *Record
	Failure *Failure
	Skipped bool
}

// Site is the result of processing one seed.
type Site struct {
	BaseURL string
	Stats   *stats.ProcessingStats
	Records []Record
}

// Settings tunes an Orchestrator.
type Settings struct {
	Workers int
	// StageRetries and StageDelay drive the outer retry of the fetch and
	// transform stages.
	StageRetries int
	StageDelay   time.Duration
	// TransformRetries and TransformBase drive the classified backoff around
	// each transformation call.
	TransformRetries int
	TransformBase    time.Duration
	TransformTimeout time.Duration
}

// DefaultSettings mirrors the limits of the content and transformation services.
func DefaultSettings() Settings {
	return Settings{
		Workers:          20,
		StageRetries:     2,
		StageDelay:       2 * time.Second,
		TransformRetries: 2,
		TransformBase:    time.Second,
		TransformTimeout: 120 * time.Second,
	}
}

// Orchestrator owns the shared limiters and runs pages through the stages.
type Orchestrator struct {
	settings    Settings
	discoverer  discovery.Discoverer
	fetcher     fetch.Fetcher
	extractor   *Extractor
	transformer transform.Transformer
	window      *limiter.Window
	gate        *limiter.Gate
	metrics     *Metrics
	log         *zap.Logger
	sleep       retry.SleepFunc
	now         func() time.Time
	onEvent     func(Event)

	eventMu sync.Mutex
	stopped atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithSettings(s Settings) Option                 { return func(o *Orchestrator) { o.settings = s } }
func WithDiscoverer(d discovery.Discoverer) Option   { return func(o *Orchestrator) { o.discoverer = d } }
func WithTransformer(t transform.Transformer) Option { return func(o *Orchestrator) { o.transformer = t } }
func WithWindow(w *limiter.Window) Option            { return func(o *Orchestrator) { o.window = w } }
func WithGate(g *limiter.Gate) Option                { return func(o *Orchestrator) { o.gate = g } }
func WithMetrics(m *Metrics) Option                  { return func(o *Orchestrator) { o.metrics = m } }
func WithLogger(l *zap.Logger) Option                { return func(o *Orchestrator) { o.log = l } }
func WithSleep(s retry.SleepFunc) Option             { return func(o *Orchestrator) { o.sleep = s } }
func WithClock(now func() time.Time) Option          { return func(o *Orchestrator) { o.now = now } }
func WithOnEvent(fn func(Event)) Option              { return func(o *Orchestrator) { o.onEvent = fn } }

// New builds an Orchestrator. Unset collaborators default to seed-only
// discovery, a pass-through transformation, a 20 per minute window and a five
// permit transformation gate.
func New(fetcher fetch.Fetcher, extractor *Extractor, opts ...Option) (*Orchestrator, error) {
	if fetcher == nil {
		return nil, errors.New("pipeline: fetcher is required")
	}
	if extractor == nil {
		return nil, errors.New("pipeline: extractor is required")
	}
	o := &Orchestrator{
		settings:    DefaultSettings(),
		discoverer:  discovery.Seed{},
		fetcher:     fetcher,
		extractor:   extractor,
		transformer: transform.Passthrough{},
		gate:        limiter.NewGate(5),
		log:         zap.NewNop(),
		sleep:       retry.Sleep,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.window == nil {
		w, err := limiter.NewWindow(20, time.Minute, nil)
		if err != nil {
			return nil, err
		}
		o.window = w
	}
	if o.settings.Workers < 1 {
		o.settings.Workers = 1
	}
	o.log = o.log.Named("pipeline")
	return o, nil
}

// Stop asks the orchestrator to skip URLs that have not started fetching.
// In-flight URLs finish normally.
func (o *Orchestrator) Stop() {
	if o.stopped.CompareAndSwap(false, true) {
		o.log.Info("stop requested")
	}
}

// Stopped reports whether Stop was called.
func (o *Orchestrator) Stopped() bool { return o.stopped.Load() }

// Run discovers every seed and processes all of their URLs through one
// worker pool. One Site is returned per seed, in seed order, with records in
// completion order. Seeds not reached before Stop or cancellation come back
// with empty, finalized stats.
func (o *Orchestrator) Run(ctx context.Context, seeds []string) ([]Site, error) {
	sites := make([]Site, len(seeds))
	for i, seed := range seeds {
		sites[i] = Site{BaseURL: seed, Stats: stats.New(seed, stats.WithClock(o.now))}
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.settings.Workers)
	for i := range sites {
		if o.Stopped() || ctx.Err() != nil {
			break
		}
		site := &sites[i]
		urls := o.discover(ctx, site.BaseURL)
		site.Stats.AddDiscovered(urls...)
		for _, u := range urls {
			task := Task{URL: u, BaseURL: site.BaseURL}
			if o.Stopped() {
				o.emit(Event{Task: task, Skipped: true})
				continue
			}
			g.Go(func() error {
				rec, err := o.Process(ctx, task, site.Stats)
				switch {
				case err == nil:
					mu.Lock()
					site.Records = append(site.Records, *rec)
					mu.Unlock()
					o.emit(Event{Task: task, Record: rec})
				case errors.Is(err, ErrStopped):
					o.emit(Event{Task: task, Skipped: true})
				default:
					var f *Failure
					if !errors.As(err, &f) {
						f = &Failure{Reason: stats.UnknownError, Err: err}
					}
					o.emit(Event{Task: task, Failure: f})
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	for _, site := range sites {
		site.Stats.Finish(o.now())
		snap := site.Stats.Snapshot()
		o.log.Info("site complete",
			zap.String("seed", site.BaseURL),
			zap.Int("succeeded", snap.SuccessCount()),
			zap.Int("failed", snap.FailureCount()),
			zap.Int("api_pages", snap.SwaggerPages))
	}
	return sites, ctx.Err()
}

func (o *Orchestrator) discover(ctx context.Context, seed string) []string {
	urls, err := o.discoverer.Discover(ctx, seed)
	if err != nil || len(urls) == 0 {
		o.log.Warn("discovery failed, processing seed only", zap.String("seed", seed), zap.Error(err))
		urls = []string{seed}
	}
	o.log.Info("processing site", zap.String("seed", seed), zap.Int("urls", len(urls)))
	return urls
}

func (o *Orchestrator) emit(ev Event) {
	if ev.Skipped {
		o.metrics.outcome("skipped")
	}
	if o.onEvent == nil {
		return
	}
	o.eventMu.Lock()
	defer o.eventMu.Unlock()
	o.onEvent(ev)
}

// Process runs one URL through every stage and records the outcome in st.
// Failures are returned as *Failure after being recorded; a panic becomes a
// processing_error failure.
func (o *Orchestrator) Process(ctx context.Context, task Task, st *stats.ProcessingStats) (rec *Record, err error) {
	if o.Stopped() {
		return nil, ErrStopped
	}
	o.metrics.track(1)
	defer o.metrics.track(-1)
	log := o.log.With(zap.String("url", task.URL))

	defer func() {
		if r := recover(); r != nil {
			log.Error("processing panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			rec, err = nil, o.fail(st, task.URL, stats.ProcessingError, fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	content, err := o.fetchContent(ctx, task.URL, log)
	o.metrics.observe("fetch", start)
	if err != nil {
		return nil, o.fail(st, task.URL, classifyFetchError(err), err)
	}

	start = time.Now()
	ex := o.extractor.Extract(ctx, task.URL, content)
	o.metrics.observe("extract", start)
	if ex.DetectErr != nil {
		st.AddNote(task.URL, stats.SwaggerDetectionError, ex.DetectErr.Error())
	}
	if ex.IsAPI() && ex.SpecURL == "" && len(ex.CandidateErrs) > 0 {
		st.AddNote(task.URL, stats.SpecError, fmt.Sprintf("%d spec candidates rejected, last: %v",
			len(ex.CandidateErrs), ex.CandidateErrs[len(ex.CandidateErrs)-1]))
	}

	text := content
	if ex.IsAPI() && ex.Endpoints() > 0 {
		text = FormatForTransform(task.URL, ex, content)
	}

	start = time.Now()
	out, err := o.transformContent(ctx, text, task.URL, log)
	o.metrics.observe("transform", start)
	if err != nil {
		return nil, o.fail(st, task.URL, stats.TransformError, err)
	}

	if !st.AddSuccess(task.URL) {
		return nil, &Failure{Reason: stats.ProcessingError, Err: errors.New("url already recorded as failed")}
	}
	info := SwaggerInfo{
		IsSwagger:        ex.IsAPI(),
		Confidence:       ex.Detection.Confidence,
		ExtractionMethod: string(ex.Method),
		EndpointsCount:   ex.Endpoints(),
	}
	if info.IsSwagger {
		st.AddSwaggerDetection(task.URL, info.ExtractionMethod, info.EndpointsCount)
		o.metrics.detected(info.ExtractionMethod, info.EndpointsCount)
	}
	o.metrics.outcome("success")
	log.Info("processed",
		zap.Bool("api", info.IsSwagger),
		zap.String("method", info.ExtractionMethod),
		zap.Int("endpoints", info.EndpointsCount))

	rec = &Record{
		URL:         task.URL,
		BaseURL:     task.BaseURL,
		RawContent:  content,
		Transformed: out,
		Timestamp:   o.now(),
		SwaggerInfo: info,
		Indicators:  ex.Detection.Indicators,
	}
	if info.IsSwagger {
		rec.API = ex.API
	}
	return rec, nil
}

func (o *Orchestrator) fail(st *stats.ProcessingStats, url string, reason stats.Reason, err error) error {
	st.AddFailure(url, reason, err.Error())
	o.metrics.failure(string(reason))
	o.log.Warn("url failed", zap.String("url", url), zap.String("reason", string(reason)), zap.Error(err))
	return &Failure{Reason: reason, Err: err}
}

func (o *Orchestrator) stagePolicy(stage string, log *zap.Logger) retry.Policy {
	return retry.Policy{
		MaxRetries: o.settings.StageRetries,
		Delay:      retry.Fixed(o.settings.StageDelay),
		Sleep:      o.sleep,
		OnRetry: func(attempt int, err error, d time.Duration) {
			o.metrics.retry(stage)
			log.Warn("stage attempt failed",
				zap.String("stage", stage),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", d),
				zap.Error(err))
		},
	}
}

// fetchContent takes a window slot for every attempt. Whitespace-only content
// counts as a failed attempt.
func (o *Orchestrator) fetchContent(ctx context.Context, url string, log *zap.Logger) (string, error) {
	var content string
	err := retry.Do(ctx, o.stagePolicy("fetch", log), func(ctx context.Context, _ int) error {
		if err := o.window.Acquire(ctx); err != nil {
			return retry.Permanent(err)
		}
		text, err := o.fetcher.Fetch(ctx, url)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return &fetch.Error{Kind: fetch.KindEmpty, URL: url}
		}
		content = text
		return nil
	})
	return content, err
}

// transformContent wraps classified per-call backoff in the outer stage retry.
// Each call holds a gate permit only while it runs.
func (o *Orchestrator) transformContent(ctx context.Context, text, url string, log *zap.Logger) (string, error) {
	var out string
	inner := retry.Policy{
		MaxRetries: o.settings.TransformRetries,
		Delay:      transform.Backoff(o.settings.TransformBase),
		Sleep:      o.sleep,
		OnRetry: func(attempt int, err error, d time.Duration) {
			o.metrics.retry("transform_call")
			log.Warn("transformation call failed",
				zap.String("kind", string(transform.Classify(err))),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", d),
				zap.Error(err))
		},
	}
	err := retry.Do(ctx, o.stagePolicy("transform", log), func(ctx context.Context, _ int) error {
		return retry.Do(ctx, inner, func(ctx context.Context, _ int) error {
			return o.gate.Do(ctx, func(ctx context.Context) error {
				callCtx := ctx
				if o.settings.TransformTimeout > 0 {
					var cancel context.CancelFunc
					callCtx, cancel = context.WithTimeout(ctx, o.settings.TransformTimeout)
					defer cancel()
				}
				res, err := o.transformer.Transform(callCtx, text, url)
				if err != nil {
					return err
				}
				if strings.TrimSpace(res) == "" {
					return transform.ErrEmptyOutput
				}
				out = res
				return nil
			})
		})
	})
	return out, err
}

// classifyFetchError maps a content-extraction error to a failure reason.
func classifyFetchError(err error) stats.Reason {
	var fe *fetch.Error
	if errors.As(err, &fe) {
		switch fe.Kind {
		case fetch.KindTimeout:
			return stats.TimeoutError
		case fetch.KindConnection:
			return stats.ConnectionError
		case fetch.KindHTTP:
			return stats.HTTPError
		default:
			return stats.ContentExtractionError
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return stats.TimeoutError
	case errors.Is(err, context.Canceled):
		return stats.ProcessingError
	}
	return stats.ContentExtractionError
}
