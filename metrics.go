package notifier

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsCollector abstracts the metrics backend used across the pipeline.
type MetricsCollector interface {
	IncrementCounter(name string, tags map[string]string)
	RecordDuration(name string, duration time.Duration, tags map[string]string)
	RecordGauge(name string, value float64, tags map[string]string)
}

// NopMetricsCollector discards all measurements. It is the default when no
// collector is configured.
type NopMetricsCollector struct{}

// NewNopMetricsCollector creates a no-op collector.
func NewNopMetricsCollector() *NopMetricsCollector {
	return &NopMetricsCollector{}
}

func (m *NopMetricsCollector) IncrementCounter(name string, tags map[string]string) {}

func (m *NopMetricsCollector) RecordDuration(name string, duration time.Duration, tags map[string]string) {
}

func (m *NopMetricsCollector) RecordGauge(name string, value float64, tags map[string]string) {}

// OpenTelemetryMetricsCollector records measurements through an OpenTelemetry
// meter. Instruments are created lazily and cached per name; the cache is
// safe for the pipeline's concurrent goroutines.
type OpenTelemetryMetricsCollector struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64UpDownCounter
}

// NewOpenTelemetryMetricsCollector creates a collector on the global meter
// provider.
func NewOpenTelemetryMetricsCollector() *OpenTelemetryMetricsCollector {
	return NewOpenTelemetryMetricsCollectorWithMeter(otel.Meter("notifier"))
}

// NewOpenTelemetryMetricsCollectorWithMeter creates a collector on a specific
// meter.
func NewOpenTelemetryMetricsCollectorWithMeter(meter metric.Meter) *OpenTelemetryMetricsCollector {
	return &OpenTelemetryMetricsCollector{
		meter:      meter,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		gauges:     make(map[string]metric.Float64UpDownCounter),
	}
}

func (m *OpenTelemetryMetricsCollector) IncrementCounter(name string, tags map[string]string) {
	m.mu.Lock()
	counter, ok := m.counters[name]
	if !ok {
		var err error
		counter, err = m.meter.Int64Counter(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.counters[name] = counter
	}
	m.mu.Unlock()

	counter.Add(context.Background(), 1, metric.WithAttributes(tagsToAttributes(tags)...))
}

func (m *OpenTelemetryMetricsCollector) RecordDuration(name string, duration time.Duration, tags map[string]string) {
	m.mu.Lock()
	histogram, ok := m.histograms[name]
	if !ok {
		var err error
		histogram, err = m.meter.Float64Histogram(name, metric.WithUnit("s"))
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.histograms[name] = histogram
	}
	m.mu.Unlock()

	histogram.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagsToAttributes(tags)...))
}

func (m *OpenTelemetryMetricsCollector) RecordGauge(name string, value float64, tags map[string]string) {
	// An UpDownCounter stands in for a gauge; async gauges are not worth the
	// complexity for these batch-size style readings.
	m.mu.Lock()
	gauge, ok := m.gauges[name]
	if !ok {
		var err error
		gauge, err = m.meter.Float64UpDownCounter(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.gauges[name] = gauge
	}
	m.mu.Unlock()

	gauge.Add(context.Background(), value, metric.WithAttributes(tagsToAttributes(tags)...))
}

func tagsToAttributes(tags map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for key, value := range tags {
		attrs = append(attrs, attribute.String(key, value))
	}
	return attrs
}
