package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineStats provides the metrics collector access to live pipeline state.
type PipelineStats interface {
	QueueDepth() int
	ActiveJobCount() int
}

// RelayStats provides access to relay correlation state.
type RelayStats interface {
	Pending() int
}

// CacheStats provides access to the result cache.
type CacheStats interface {
	Len() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	pipeline PipelineStats
	relay    RelayStats
	cache    CacheStats

	queueDepth   *prometheus.Desc
	activeJobs   *prometheus.Desc
	relayPending *prometheus.Desc
	cacheEntries *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Any of the sources may be nil (metrics will report 0).
func NewCollector(pipeline PipelineStats, relay RelayStats, cache CacheStats) *Collector {
	return &Collector{
		pipeline: pipeline,
		relay:    relay,
		cache:    cache,
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "queue_depth"),
			"Current number of jobs waiting in the pipeline queue.",
			nil, nil,
		),
		activeJobs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "active_jobs"),
			"Current number of in-progress transcription jobs.",
			nil, nil,
		),
		relayPending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "relay", "pending_fetches"),
			"Current number of relay fetches awaiting a monitored download.",
			nil, nil,
		),
		cacheEntries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "entries"),
			"Current number of requesters with cached results.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepth
	ch <- c.activeJobs
	ch <- c.relayPending
	ch <- c.cacheEntries
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.pipeline != nil {
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(c.pipeline.QueueDepth()))
		ch <- prometheus.MustNewConstMetric(c.activeJobs, prometheus.GaugeValue, float64(c.pipeline.ActiveJobCount()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.activeJobs, prometheus.GaugeValue, 0)
	}

	if c.relay != nil {
		ch <- prometheus.MustNewConstMetric(c.relayPending, prometheus.GaugeValue, float64(c.relay.Pending()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.relayPending, prometheus.GaugeValue, 0)
	}

	if c.cache != nil {
		ch <- prometheus.MustNewConstMetric(c.cacheEntries, prometheus.GaugeValue, float64(c.cache.Len()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.cacheEntries, prometheus.GaugeValue, 0)
	}
}
