package metrics

import "github.com/prometheus/client_golang/prometheus"

// cacheCollector reads one Stats snapshot per scrape so every exported
// series comes from the same critical section.
type cacheCollector struct {
	src StatsSource

	hits      *prometheus.Desc
	misses    *prometheus.Desc
	puts      *prometheus.Desc
	deletes   *prometheus.Desc
	evictions *prometheus.Desc
	items     *prometheus.Desc
	capacity  *prometheus.Desc
}

func newCacheCollector(cfg *Config, src StatsSource) *cacheCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(cfg.Namespace, cfg.Subsystem, name),
			help, nil, cfg.ConstLabels,
		)
	}
	return &cacheCollector{
		src:       src,
		hits:      desc("cache_hits_total", "Cache reads that returned a live record"),
		misses:    desc("cache_misses_total", "Cache reads that found nothing or an expired record"),
		puts:      desc("cache_puts_total", "Records written to the cache"),
		deletes:   desc("cache_deletes_total", "Records removed by explicit delete"),
		evictions: desc("cache_evictions_total", "Records dropped to respect capacity"),
		items:     desc("cache_items", "Records currently held, including not yet purged expired ones"),
		capacity:  desc("cache_capacity", "Maximum number of records"),
	}
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.puts
	ch <- c.deletes
	ch <- c.evictions
	ch <- c.items
	ch <- c.capacity
}

// Counters are exported as CounterValue even though ResetStats can zero
// them; Prometheus rate() treats the drop as a counter reset.
func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(st.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(st.Misses))
	ch <- prometheus.MustNewConstMetric(c.puts, prometheus.CounterValue, float64(st.Puts))
	ch <- prometheus.MustNewConstMetric(c.deletes, prometheus.CounterValue, float64(st.Deletes))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(st.Evictions))
	ch <- prometheus.MustNewConstMetric(c.items, prometheus.GaugeValue, float64(st.Items))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(st.Capacity))
}
