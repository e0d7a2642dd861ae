package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records replay buffer activity
type Collector struct {
	stored        prometheus.Counter
	evicted       prometheus.Counter
	sampled       prometheus.Counter
	updated       prometheus.Counter
	requestErrors *prometheus.CounterVec
	sampleLatency prometheus.Histogram
	size          prometheus.Gauge
	totalPriority prometheus.Gauge
	beta          prometheus.Gauge
}

// NewCollector registers the replay metrics on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)

	return &Collector{
		stored: f.NewCounter(prometheus.CounterOpts{
			Name: "replay_transitions_stored_total",
			Help: "Total transitions written to the buffer",
		}),
		evicted: f.NewCounter(prometheus.CounterOpts{
			Name: "replay_transitions_evicted_total",
			Help: "Total transitions overwritten by ring order",
		}),
		sampled: f.NewCounter(prometheus.CounterOpts{
			Name: "replay_transitions_sampled_total",
			Help: "Total transitions returned by sample calls",
		}),
		updated: f.NewCounter(prometheus.CounterOpts{
			Name: "replay_priority_updates_total",
			Help: "Total leaf priorities rewritten from observed errors",
		}),
		requestErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_request_errors_total",
			Help: "Failed replay requests by method",
		}, []string{"method"}),
		sampleLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_sample_duration_seconds",
			Help:    "Time spent drawing a batch",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		size: f.NewGauge(prometheus.GaugeOpts{
			Name: "replay_buffer_size",
			Help: "Live transitions in the buffer",
		}),
		totalPriority: f.NewGauge(prometheus.GaugeOpts{
			Name: "replay_total_priority",
			Help: "Sum of all leaf priorities",
		}),
		beta: f.NewGauge(prometheus.GaugeOpts{
			Name: "replay_importance_beta",
			Help: "Current importance-sampling exponent",
		}),
	}
}

func (c *Collector) TransitionsStored(n, evicted int) {
	c.stored.Add(float64(n))
	c.evicted.Add(float64(evicted))
}

func (c *Collector) BatchSampled(n int, latency time.Duration) {
	c.sampled.Add(float64(n))
	c.sampleLatency.Observe(latency.Seconds())
}

func (c *Collector) PrioritiesUpdated(n int) {
	c.updated.Add(float64(n))
}

func (c *Collector) RequestFailed(method string) {
	c.requestErrors.WithLabelValues(method).Inc()
}

// BufferState publishes the gauges after a mutation
func (c *Collector) BufferState(size int, totalPriority, beta float64) {
	c.size.Set(float64(size))
	c.totalPriority.Set(totalPriority)
	c.beta.Set(beta)
}
