// Package metrics collects and exposes Prometheus metrics for the
// resolution engine. A nil *Collector is safe to call, so wiring
// metrics stays optional in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector tracks crawl cycle activity.
type Collector struct {
	cycles        prometheus.Counter
	chunks        prometheus.Counter
	chunkFailures prometheus.Counter
	tweetsMerged  prometheus.Counter
	sealed        prometheus.Counter
	waveLatency   prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threader_crawl_cycles_total",
			Help: "Number of follow-up cycles started.",
		}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threader_fetch_chunks_total",
			Help: "Number of tweet lookup chunks dispatched.",
		}),
		chunkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threader_fetch_chunk_failures_total",
			Help: "Number of tweet lookup chunks that failed.",
		}),
		tweetsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threader_tweets_merged_total",
			Help: "Number of tweets merged into the store.",
		}),
		sealed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threader_tweets_sealed_total",
			Help: "Number of tweet IDs sealed as unavailable.",
		}),
		waveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "threader_fetch_wave_seconds",
			Help:    "Latency of one concurrent fetch wave in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.cycles,
		c.chunks,
		c.chunkFailures,
		c.tweetsMerged,
		c.sealed,
		c.waveLatency,
	)

	return c
}

// RecordCycle counts one started follow-up cycle.
func (c *Collector) RecordCycle() {
	if c == nil {
		return
	}
	c.cycles.Inc()
}

// RecordChunk counts one dispatched lookup chunk.
func (c *Collector) RecordChunk() {
	if c == nil {
		return
	}
	c.chunks.Inc()
}

// RecordChunkFailure counts one failed lookup chunk.
func (c *Collector) RecordChunkFailure() {
	if c == nil {
		return
	}
	c.chunkFailures.Inc()
}

// RecordMerged counts tweets written by a merge transaction.
func (c *Collector) RecordMerged(count int) {
	if c == nil {
		return
	}
	c.tweetsMerged.Add(float64(count))
}

// RecordSealed counts tweet IDs tombstoned as unavailable.
func (c *Collector) RecordSealed(count int) {
	if c == nil {
		return
	}
	c.sealed.Add(float64(count))
}

// ObserveWave records the duration of one fetch barrier.
func (c *Collector) ObserveWave(d time.Duration) {
	if c == nil {
		return
	}
	c.waveLatency.Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
