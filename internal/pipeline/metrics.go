package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of a pipeline. A nil *Metrics
// records nothing.
type Metrics struct {
	urls       *prometheus.CounterVec // by outcome: success, failure, skipped
	failures   *prometheus.CounterVec // by reason
	retries    *prometheus.CounterVec // by stage
	stages     *prometheus.HistogramVec
	detections *prometheus.CounterVec // by extraction method
	endpoints  prometheus.Counter
	inFlight   prometheus.Gauge
}

// NewMetrics creates the pipeline collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		urls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docharvest",
			Subsystem: "pipeline",
			Name:      "urls_total",
			Help:      "URLs processed, by outcome",
		}, []string{"outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docharvest",
			Subsystem: "pipeline",
			Name:      "failures_total",
			Help:      "Failed URLs, by failure reason",
		}, []string{"reason"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docharvest",
			Subsystem: "pipeline",
			Name:      "retries_total",
			Help:      "Retried stage attempts, by stage",
		}, []string{"stage"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docharvest",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage duration in seconds, retries included",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docharvest",
			Subsystem: "pipeline",
			Name:      "api_pages_total",
			Help:      "Pages detected as API documentation, by extraction method",
		}, []string{"method"}),
		endpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docharvest",
			Subsystem: "pipeline",
			Name:      "endpoints_extracted_total",
			Help:      "Endpoints extracted from API documentation pages",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "docharvest",
			Subsystem: "pipeline",
			Name:      "in_flight",
			Help:      "URLs currently being processed",
		}),
	}
	for _, c := range []prometheus.Collector{m.urls, m.failures, m.retries, m.stages, m.detections, m.endpoints, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) outcome(o string) {
	if m != nil {
		m.urls.WithLabelValues(o).Inc()
	}
}

func (m *Metrics) failure(reason string) {
	if m != nil {
		m.urls.WithLabelValues("failure").Inc()
		m.failures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) retry(stage string) {
	if m != nil {
		m.retries.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) observe(stage string, start time.Time) {
	if m != nil {
		m.stages.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) detected(method string, endpoints int) {
	if m != nil {
		m.detections.WithLabelValues(method).Inc()
		m.endpoints.Add(float64(endpoints))
	}
}

func (m *Metrics) track(delta float64) {
	if m != nil {
		m.inFlight.Add(delta)
	}
}
