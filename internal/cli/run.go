package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mark3labs/docharvest/internal/config"
	"github.com/mark3labs/docharvest/internal/detect"
	"github.com/mark3labs/docharvest/internal/discovery"
	"github.com/mark3labs/docharvest/internal/fetch"
	"github.com/mark3labs/docharvest/internal/kb"
	"github.com/mark3labs/docharvest/internal/limiter"
	"github.com/mark3labs/docharvest/internal/logging"
	"github.com/mark3labs/docharvest/internal/pipeline"
	"github.com/mark3labs/docharvest/internal/stats"
	"github.com/mark3labs/docharvest/internal/transform"
)

var runRunner = runRun

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process seed URLs and write per-site knowledge bases",
		Long: "Fetch every page discovered for the given seeds, detect Swagger/OpenAPI documentation, " +
			"extract endpoint models, transform the content and write one knowledge base per site.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd)
			if err != nil {
				return newUsageError(err.Error())
			}
			if err := cfg.ValidateRun(); err != nil {
				return newUsageError(err.Error())
			}
			return runRunner(cmd.Context(), cfg)
		},
	}
	config.BindFlags(cmd)
	return cmd
}

func runRun(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Verbose: cfg.Verbose, Name: "docharvest"})
	if err != nil {
		return newUsageError(err.Error())
	}
	defer func() { _ = log.Sync() }()

	reg := prometheus.NewRegistry()
	metrics, err := pipeline.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("run: register metrics: %w", err)
	}
	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, reg, log)
		defer stop()
	}

	client := fetch.NewClient(log,
		fetch.WithReaderBase(cfg.Fetch.ReaderBase),
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithDialTimeout(cfg.Fetch.DialTimeout),
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
		fetch.WithMaxBytes(cfg.Fetch.MaxBytes),
	)
	extractor := pipeline.NewExtractor(client,
		pipeline.WithDetector(detect.NewDetector(detect.WithTrustGuessedCandidates(cfg.Detect.TrustGuessedCandidates))),
		pipeline.WithHostPacing(limiter.NewHosts(cfg.Detect.HostRPS, cfg.Detect.HostBurst)),
		pipeline.WithMaxCandidates(cfg.Detect.MaxCandidates),
		pipeline.WithSpecTimeout(cfg.Detect.SpecTimeout),
		pipeline.WithExtractorLogger(log),
	)

	window, err := limiter.NewWindow(cfg.Limits.RequestsPerWindow, cfg.Limits.Window, nil)
	if err != nil {
		return newUsageError(err.Error())
	}

	var transformer transform.Transformer = transform.Passthrough{}
	if cfg.Transform.Endpoint != "" {
		h, err := transform.NewHTTP(cfg.Transform.Endpoint, cfg.Transform.Timeout,
			transform.WithToken(cfg.Transform.Token),
			transform.WithLogger(log))
		if err != nil {
			return newUsageError(err.Error())
		}
		transformer = h
	}

	seeds, discoverer, err := buildDiscovery(cfg)
	if err != nil {
		return newUsageError(err.Error())
	}
	if len(seeds) == 0 {
		return newUsageError("run: no valid seed URLs")
	}

	o, err := pipeline.New(client, extractor,
		pipeline.WithSettings(pipeline.Settings{
			Workers:          cfg.Limits.Workers,
			StageRetries:     cfg.Retry.StageRetries,
			StageDelay:       cfg.Retry.StageDelay,
			TransformRetries: cfg.Retry.TransformRetries,
			TransformBase:    cfg.Retry.TransformBase,
			TransformTimeout: cfg.Transform.Timeout,
		}),
		pipeline.WithDiscoverer(discoverer),
		pipeline.WithTransformer(transformer),
		pipeline.WithWindow(window),
		pipeline.WithGate(limiter.NewGate(cfg.Limits.TransformConcurrency)),
		pipeline.WithMetrics(metrics),
		pipeline.WithLogger(log),
		pipeline.WithOnEvent(progressLogger(log)),
	)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopSignals := handleSignals(o, cancel, log)
	defer stopSignals()

	start := time.Now()
	sites, runErr := o.Run(ctx, seeds)
	elapsed := time.Since(start)
	if runErr != nil && !errors.Is(runErr, pipeline.ErrStopped) && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run: %w", runErr)
	}

	// Partial results are still written after an interrupt.
	w := kb.NewWriter(kb.Options{OutDir: cfg.OutputDir, Force: cfg.Force, DryRun: cfg.DryRun}, log)
	res, err := w.Write(context.WithoutCancel(ctx), kb.Run{Sites: sites, Elapsed: elapsed})
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	printResult(cfg, sites, res)
	return nil
}

// buildDiscovery returns the seeds to process and the discoverer expanding
// them. URLs from a file are grouped under one seed per host.
func buildDiscovery(cfg *config.Config) ([]string, discovery.Discoverer, error) {
	limits := discovery.Limits{MaxPages: cfg.Discovery.MaxPages, SameDomain: cfg.Discovery.SameDomain}
	if cfg.URLFile == "" {
		if limits.MaxPages > 0 || limits.SameDomain {
			return cfg.Seeds, discovery.NewList(nil, limits), nil
		}
		return cfg.Seeds, discovery.Seed{}, nil
	}
	urls, err := discovery.ReadURLs(cfg.URLFile)
	if err != nil {
		return nil, nil, err
	}
	seeds := cfg.Seeds
	if len(seeds) == 0 {
		seeds = discovery.Seeds(urls)
		limits.SameDomain = true
	}
	return seeds, discovery.NewList(urls, limits), nil
}

func progressLogger(log *zap.Logger) func(pipeline.Event) {
	return func(ev pipeline.Event) {
		switch {
		case ev.Skipped:
			log.Debug("skipped", zap.String("url", ev.Task.URL))
		case ev.Failure != nil:
			log.Info("failed",
				zap.String("url", ev.Task.URL),
				zap.String("reason", string(ev.Failure.Reason)))
		case ev.Record != nil:
			fields := []zap.Field{zap.String("url", ev.Task.URL)}
			if info := ev.Record.SwaggerInfo; info.IsSwagger {
				fields = append(fields,
					zap.String("method", info.ExtractionMethod),
					zap.Int("endpoints", info.EndpointsCount))
			}
			log.Info("processed", fields...)
		}
	}
}

// handleSignals stops scheduling on the first interrupt and cancels in-flight
// work on the second.
func handleSignals(o *pipeline.Orchestrator, cancel context.CancelFunc, log *zap.Logger) func() {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		count := 0
		for {
			select {
			case <-done:
				return
			case sig := <-sigs:
				count++
				if count == 1 {
					log.Warn("stopping after in-flight pages; interrupt again to abort", zap.String("signal", sig.String()))
					o.Stop()
					continue
				}
				log.Warn("aborting in-flight pages", zap.String("signal", sig.String()))
				cancel()
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printResult(cfg *config.Config, sites []pipeline.Site, res *kb.Result) {
	if cfg.DryRun {
		fmt.Fprintf(os.Stdout, "Planned writes to %s:\n", cfg.OutputDir)
		for _, f := range res.Planned {
			fmt.Fprintf(os.Stdout, "  %s (%d bytes)\n", f.RelPath, f.Size)
		}
		return
	}
	snaps := make([]stats.Snapshot, 0, len(sites))
	for _, s := range sites {
		if s.Stats != nil {
			snaps = append(snaps, s.Stats.Snapshot())
		}
	}
	t := stats.Sum(snaps)
	for _, d := range res.Dirs {
		fmt.Fprintf(os.Stdout, "Wrote knowledge base to %s\n", filepath.Join(cfg.OutputDir, d))
	}
	fmt.Fprintf(os.Stdout, "Summary: %s (%d processed, %d failed, %d API pages)\n",
		filepath.Join(cfg.OutputDir, res.Summary), t.Successful, t.Failed, t.SwaggerPages)
}
