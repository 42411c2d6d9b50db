// Package metrics exposes the cache service's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adeilh/qacache/cache"
)

// StatsSource is anything that can report cache counters on scrape.
type StatsSource interface {
	Stats() cache.Stats
}

// Config holds configuration for metrics collection.
type Config struct {
	Namespace        string
	Subsystem        string
	HistogramBuckets []float64
	ConstLabels      prometheus.Labels
	// GoCollectors registers the process and Go runtime collectors.
	GoCollectors bool
}

type ConfigOption func(*Config)

func DefaultConfig() *Config {
	return &Config{
		Namespace:        "qacache",
		HistogramBuckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		GoCollectors:     true,
	}
}

func WithNamespace(ns string) ConfigOption {
	return func(c *Config) { c.Namespace = ns }
}

func WithSubsystem(s string) ConfigOption {
	return func(c *Config) { c.Subsystem = s }
}

func WithConstLabels(l prometheus.Labels) ConfigOption {
	return func(c *Config) { c.ConstLabels = l }
}

func WithoutGoCollectors() ConfigOption {
	return func(c *Config) { c.GoCollectors = false }
}

// Collector owns a private registry so tests and multiple binaries never
// collide on the global default registerer.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	fallbackTotal   *prometheus.CounterVec
	fallbackLatency prometheus.Histogram
}

func New(opts ...ConfigOption) *Collector {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Collector{config: cfg, registry: prometheus.NewRegistry()}

	c.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests handled",
		ConstLabels: cfg.ConstLabels,
	}, []string{"method", "route", "code"})

	c.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "http_request_duration_seconds",
		Help:        "Histogram of HTTP request duration in seconds",
		Buckets:     cfg.HistogramBuckets,
		ConstLabels: cfg.ConstLabels,
	}, []string{"method", "route"})

	c.fallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "fallback_requests_total",
		Help:        "Cache misses resolved against the scoring service, by outcome",
		ConstLabels: cfg.ConstLabels,
	}, []string{"outcome"})

	c.fallbackLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "fallback_duration_seconds",
		Help:        "Latency of scoring service fallback calls",
		Buckets:     cfg.HistogramBuckets,
		ConstLabels: cfg.ConstLabels,
	})

	c.registry.MustRegister(c.requestsTotal, c.requestDuration, c.fallbackTotal, c.fallbackLatency)
	if cfg.GoCollectors {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c
}

// ObserveRequest implements httpx.RequestObserver.
func (c *Collector) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	c.requestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveFallback records one scorer call and its outcome.
func (c *Collector) ObserveFallback(outcome string, elapsed time.Duration) {
	c.fallbackTotal.WithLabelValues(outcome).Inc()
	c.fallbackLatency.Observe(elapsed.Seconds())
}

// RegisterCache exports src's counters and occupancy on every scrape.
func (c *Collector) RegisterCache(src StatsSource) error {
	return c.registry.Register(newCacheCollector(c.config, src))
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
