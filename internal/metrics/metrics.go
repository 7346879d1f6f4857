// Package metrics exposes poll and device telemetry to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/edirooss/pearl-bridge/internal/domain/state"
	"github.com/edirooss/pearl-bridge/internal/pearl"
	"github.com/edirooss/pearl-bridge/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "pearl"

// Metrics owns a private registry. It implements pearl.Observer and service.Observer.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	requestTime *prometheus.HistogramVec
	ticks       *prometheus.CounterVec
	tickTime    prometheus.Histogram
	structural  prometheus.Counter
	dirty       *prometheus.CounterVec
	entities    *prometheus.GaugeVec
	lastSuccess prometheus.Gauge
}

var (
	_ pearl.Observer   = (*Metrics)(nil)
	_ service.Observer = (*Metrics)(nil)
)

// New registers every collector. snapshot, when non-nil, feeds the per-entity state gauges
// at scrape time.
func New(snapshot func() *state.Snapshot) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_requests_total",
			Help:      "Device API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		requestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "device_request_duration_seconds",
			Help:      "Device API request latency.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Poll ticks by result.",
		}, []string{"result"}),
		tickTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_tick_duration_seconds",
			Help:      "Duration of a poll tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		structural: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_structural_changes_total",
			Help:      "Ticks that required a definitions rebuild.",
		}),
		dirty: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_dirty_feedbacks_total",
			Help:      "Feedback kinds marked for re-evaluation.",
		}, []string{"kind"}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_entities",
			Help:      "Entities in the live snapshot by kind.",
		}, []string{"kind"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful tick.",
		}),
	}
	m.registry.MustRegister(
		m.requests, m.requestTime,
		m.ticks, m.tickTime, m.structural, m.dirty,
		m.entities, m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if snapshot != nil {
		m.registry.MustRegister(&stateCollector{snapshot: snapshot})
	}
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler(log *zap.Logger) http.Handler {
	opts := promhttp.HandlerOpts{}
	if log != nil {
		opts.ErrorLog = zap.NewStdLog(log.Named("metrics"))
	}
	return promhttp.HandlerFor(m.registry, opts)
}

func (m *Metrics) ObserveRequest(method, outcome string, elapsed time.Duration) {
	m.requests.WithLabelValues(method, outcome).Inc()
	m.requestTime.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveTick(result string, elapsed time.Duration) {
	m.ticks.WithLabelValues(result).Inc()
	m.tickTime.Observe(elapsed.Seconds())
	if result == "ok" {
		m.lastSuccess.SetToCurrentTime()
	}
}

func (m *Metrics) ObserveStructuralChange() { m.structural.Inc() }

func (m *Metrics) ObserveDirty(kinds []service.FeedbackKind) {
	for _, k := range kinds {
		m.dirty.WithLabelValues(string(k)).Inc()
	}
}

func (m *Metrics) ObserveSnapshot(counts map[string]int) {
	for kind, n := range counts {
		m.entities.WithLabelValues(kind).Set(float64(n))
	}
}

var (
	publisherUpDesc = prometheus.NewDesc(
		namespace+"_publisher_streaming", "Publisher is started (1) or not (0).",
		[]string{"channel", "publisher", "name"}, nil,
	)
	recorderUpDesc = prometheus.NewDesc(
		namespace+"_recorder_recording", "Recorder is started (1) or not (0).",
		[]string{"recorder", "name"}, nil,
	)
	recorderDurationDesc = prometheus.NewDesc(
		namespace+"_recorder_duration_seconds", "Current recording duration.",
		[]string{"recorder", "name"}, nil,
	)
	activeLayoutDesc = prometheus.NewDesc(
		namespace+"_channel_layout_active", "Layout is active (1) or not (0).",
		[]string{"channel", "layout", "name"}, nil,
	)
)

// stateCollector reports the live snapshot as const metrics at scrape time.
type stateCollector struct {
	snapshot func() *state.Snapshot
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- publisherUpDesc
	ch <- recorderUpDesc
	ch <- recorderDurationDesc
	ch <- activeLayoutDesc
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.snapshot()
	if snap == nil {
		return
	}
	for _, channel := range snap.Channels.Values() {
		for _, l := range channel.Layouts.Values() {
			ch <- prometheus.MustNewConstMetric(activeLayoutDesc, prometheus.GaugeValue,
				flag(l.Active), string(channel.ID), string(l.ID), l.Name)
		}
		for _, p := range channel.Publishers.Values() {
			ch <- prometheus.MustNewConstMetric(publisherUpDesc, prometheus.GaugeValue,
				flag(p.Status.State == state.StateStarted), string(channel.ID), string(p.ID), p.Name)
		}
	}
	for _, r := range snap.Recorders.Values() {
		ch <- prometheus.MustNewConstMetric(recorderUpDesc, prometheus.GaugeValue,
			flag(r.Status.State == state.StateStarted), string(r.ID), r.Name)
		ch <- prometheus.MustNewConstMetric(recorderDurationDesc, prometheus.GaugeValue,
			float64(r.Status.Duration), string(r.ID), r.Name)
	}
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
