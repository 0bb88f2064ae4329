package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every exported metric.
const Namespace = "pantrynav"

// PrometheusRecorder exports metrics on a dedicated registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	cacheRequests  *prometheus.CounterVec
	apiRequests    *prometheus.CounterVec
	apiDuration    *prometheus.HistogramVec
	rateLimited    *prometheus.CounterVec
	collection     *prometheus.GaugeVec
	processingTime *prometheus.HistogramVec
	errors         *prometheus.CounterVec
	websocket      prometheus.Gauge
}

// NewPrometheus registers the collectors on a fresh registry, together with
// the Go runtime and process collectors.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		cacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_requests_total",
			Help:      "Typed cache lookups by type and result",
		}, []string{"type", "result"}),
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "api_requests_total",
			Help:      "Total API requests",
		}, []string{"endpoint", "status"}),
		apiDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}, []string{"service"}),
		collection: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "data_collection_success",
			Help:      "Whether the last collection for a service and location succeeded",
		}, []string{"service", "location"}),
		processingTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "data_processing_time_seconds",
			Help:      "Time taken to process data",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "error_count_total",
			Help:      "Total errors",
		}, []string{"service", "type"}),
		websocket: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "websocket_connections",
			Help:      "Connected realtime clients",
		}),
	}
}

// Registry returns the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *PrometheusRecorder) IncCacheHit(cacheType string) {
	p.cacheRequests.WithLabelValues(cacheType, "hit").Inc()
}

func (p *PrometheusRecorder) IncCacheMiss(cacheType string) {
	p.cacheRequests.WithLabelValues(cacheType, "miss").Inc()
}

func (p *PrometheusRecorder) ObserveAPIRequest(endpoint string, status int, duration time.Duration) {
	p.apiRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	p.apiDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncRateLimited(service string) {
	p.rateLimited.WithLabelValues(service).Inc()
}

func (p *PrometheusRecorder) SetDataCollectionSuccess(service, location string, success bool) {
	v := 0.0
	if success {
		v = 1
	}
	p.collection.WithLabelValues(service, location).Set(v)
}

func (p *PrometheusRecorder) ObserveProcessingTime(service string, duration time.Duration) {
	p.processingTime.WithLabelValues(service).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncError(service, kind string) {
	p.errors.WithLabelValues(service, kind).Inc()
}

func (p *PrometheusRecorder) AddWebsocketConnections(delta int) {
	p.websocket.Add(float64(delta))
}
