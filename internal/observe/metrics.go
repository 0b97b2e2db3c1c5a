// Package observe provides the OpenTelemetry metric instruments used by the
// reader, and an optional Prometheus endpoint to scrape them.
//
// Instruments are created from a metric.MeterProvider. Without InitProvider
// the global provider is a no-op, so recording is always safe. Tests should
// use NewMetrics with their own provider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/dgnsrekt/readaloud"

// Metrics holds the reader's metric instruments.
type Metrics struct {
	// SynthesisDuration tracks worker round-trip latency per request.
	SynthesisDuration metric.Float64Histogram

	// SynthesisRequests counts worker requests. Attributes: type, status.
	SynthesisRequests metric.Int64Counter

	// WorkerStarts counts worker process launches.
	WorkerStarts metric.Int64Counter

	// CacheLookups counts prefetch cache lookups. Attribute: result (hit, miss).
	CacheLookups metric.Int64Counter

	// SegmentsPlayed counts segments whose audio started playing.
	SegmentsPlayed metric.Int64Counter

	// ActiveSessions is the number of live play sessions (0 or 1).
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets are histogram boundaries in seconds. Synthesis of a long
// paragraph on CPU can take tens of seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SynthesisDuration, err = m.Float64Histogram("readaloud.synthesis.duration",
		metric.WithDescription("Latency of synthesis worker requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisRequests, err = m.Int64Counter("readaloud.synthesis.requests",
		metric.WithDescription("Synthesis worker requests by type and status."),
	); err != nil {
		return nil, err
	}
	if met.WorkerStarts, err = m.Int64Counter("readaloud.worker.starts",
		metric.WithDescription("Synthesis worker process launches."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("readaloud.cache.lookups",
		metric.WithDescription("Prefetch cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsPlayed, err = m.Int64Counter("readaloud.segments.played",
		metric.WithDescription("Segments whose audio started playing."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("readaloud.sessions.active",
		metric.WithDescription("Live play sessions."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instruments built from the global
// meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: creating default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordSynthesis records one worker request.
func (m *Metrics) RecordSynthesis(ctx context.Context, kind string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SynthesisRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", kind),
		attribute.String("status", status),
	))
	if kind == "generate" {
		m.SynthesisDuration.Record(ctx, time.Since(started).Seconds())
	}
}

// RecordCacheLookup records a prefetch cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordSegmentPlayed counts one segment whose audio started.
func (m *Metrics) RecordSegmentPlayed(ctx context.Context) {
	if m == nil {
		return
	}
	m.SegmentsPlayed.Add(ctx, 1)
}

// RecordWorkerStart counts one worker launch.
func (m *Metrics) RecordWorkerStart(ctx context.Context) {
	if m == nil {
		return
	}
	m.WorkerStarts.Add(ctx, 1)
}

// SessionStarted increments the live session gauge. The returned func
// decrements it.
func (m *Metrics) SessionStarted(ctx context.Context) func() {
	if m == nil {
		return func() {}
	}
	m.ActiveSessions.Add(ctx, 1)
	return func() { m.ActiveSessions.Add(context.WithoutCancel(ctx), -1) }
}
