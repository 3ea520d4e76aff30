package transport

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/orderbroker/internal/infra/telemetry"
)

type metrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

func newMetrics() *metrics {
	meter := otel.Meter("transport.http")
	m := &metrics{}
	m.requests, _ = meter.Int64Counter("orderbroker_transport_requests",
		metric.WithDescription("Outbound venue requests by method and result"),
		metric.WithUnit("{request}"))
	m.latency, _ = meter.Float64Histogram("orderbroker_transport_latency",
		metric.WithDescription("Round trip time of outbound venue requests"),
		metric.WithUnit("ms"))
	return m
}

func (m *metrics) record(ctx context.Context, method, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(telemetry.RequestAttributes(telemetry.Environment(), method, result)...)
	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if m.latency != nil && elapsed > 0 {
		m.latency.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	}
}
