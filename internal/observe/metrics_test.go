package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRecordSynthesis(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()
	m.RecordSynthesis(ctx, "generate", time.Now(), nil)
	m.RecordSynthesis(ctx, "generate", time.Now(), errors.New("boom"))
	m.RecordSynthesis(ctx, "voices", time.Now(), nil)

	got := collect(t, reader)
	sum, ok := got["readaloud.synthesis.requests"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("requests metric missing or wrong type: %#v", got["readaloud.synthesis.requests"])
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("total requests = %d, want 3", total)
	}

	hist, ok := got["readaloud.synthesis.duration"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("duration metric missing or wrong type")
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("histogram count = %d, want 2 (generate only)", count)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatal(err)
	}
	m.RecordCacheLookup(context.Background(), true)
	m.RecordCacheLookup(context.Background(), false)
	m.RecordCacheLookup(context.Background(), false)

	sum := collect(t, reader)["readaloud.cache.lookups"].Data.(metricdata.Sum[int64])
	byResult := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value("result")
		byResult[v.AsString()] = dp.Value
	}
	if byResult["hit"] != 1 || byResult["miss"] != 2 {
		t.Errorf("lookups = %v, want hit=1 miss=2", byResult)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordSynthesis(context.Background(), "generate", time.Now(), nil)
	m.RecordCacheLookup(context.Background(), true)
}
