// Package telemetry is a thin abstraction over Prometheus so the rest of
// datawatch can be used with or without metrics. collection.Collection and
// fetcher.Loop accept an optional Sink through their WithMetrics options
// (NewPromSink builds one on a *prometheus.Registry); when none is given, a
// no-op sink is used and the hot path never pays for a metric update. The
// scheduler.Loop takes no metrics option.
//
// © 2025 arena-cache authors. MIT License.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the internal interface abstracting away the concrete backend
// (Prometheus vs noop). Collection and the fetcher Loop only know about the
// generic methods here.
type Sink interface {
	IncChunksWritten()
	IncChunksRead()
	AddBytesStored(n int)
	IncFlushes()
	IncFetchSuccess()
	IncFetchFailure()
	AddDiscoveredLinks(n int)
	ObserveRateLimitWait(seconds float64)
}

type noopSink struct{}

func (noopSink) IncChunksWritten()            {}
func (noopSink) IncChunksRead()               {}
func (noopSink) AddBytesStored(int)           {}
func (noopSink) IncFlushes()                  {}
func (noopSink) IncFetchSuccess()             {}
func (noopSink) IncFetchFailure()             {}
func (noopSink) AddDiscoveredLinks(int)       {}
func (noopSink) ObserveRateLimitWait(float64) {}

// NoopSink is a metrics Sink that discards everything. It is the default
// used throughout the module when no registry is supplied.
var NoopSink Sink = noopSink{}

type promSink struct {
	chunksWritten   prometheus.Counter
	chunksRead      prometheus.Counter
	bytesStored     prometheus.Counter
	flushes         prometheus.Counter
	fetchSuccess    prometheus.Counter
	fetchFailure    prometheus.Counter
	discoveredLinks prometheus.Counter
	rateLimitWait   prometheus.Histogram
}

// NewPromSink registers and returns a Prometheus-backed Sink on reg. Passing
// a nil reg is a programming error; use NoopSink instead when metrics are
// disabled.
func NewPromSink(reg *prometheus.Registry) Sink {
	s := &promSink{
		chunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datawatch", Name: "chunks_written_total",
			Help: "Number of chunk files written to storage.",
		}),
		chunksRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datawatch", Name: "chunks_read_total",
			Help: "Number of chunk files read from storage.",
		}),
		bytesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datawatch", Name: "bytes_stored_total",
			Help: "Total serialized bytes written across all chunks.",
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datawatch", Name: "entry_flushes_total",
			Help: "Number of Entry.Flush calls (chain-collapsing checkpoints).",
		}),
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datawatch", Name: "fetch_success_total",
			Help: "Number of successful target fetches.",
		}),
		fetchFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datawatch", Name: "fetch_failure_total",
			Help: "Number of failed (allow_failure) target fetches.",
		}),
		discoveredLinks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datawatch", Name: "discovered_links_total",
			Help: "Number of links extracted from discovery-root pages, pre-filter.",
		}),
		rateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "datawatch", Name: "scheduler_ratelimit_wait_seconds",
			Help:    "Seconds spent waiting for the global rate limit before a task runs.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		s.chunksWritten, s.chunksRead, s.bytesStored, s.flushes,
		s.fetchSuccess, s.fetchFailure, s.discoveredLinks, s.rateLimitWait,
	)
	return s
}

func (s *promSink) IncChunksWritten()                    { s.chunksWritten.Inc() }
func (s *promSink) IncChunksRead()                       { s.chunksRead.Inc() }
func (s *promSink) AddBytesStored(n int)                 { s.bytesStored.Add(float64(n)) }
func (s *promSink) IncFlushes()                          { s.flushes.Inc() }
func (s *promSink) IncFetchSuccess()                     { s.fetchSuccess.Inc() }
func (s *promSink) IncFetchFailure()                     { s.fetchFailure.Inc() }
func (s *promSink) AddDiscoveredLinks(n int)             { s.discoveredLinks.Add(float64(n)) }
func (s *promSink) ObserveRateLimitWait(seconds float64) { s.rateLimitWait.Observe(seconds) }
