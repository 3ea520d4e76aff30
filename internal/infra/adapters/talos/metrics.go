package talos

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/orderbroker/errs"
	"github.com/coachpo/orderbroker/internal/domain/order"
	"github.com/coachpo/orderbroker/internal/infra/telemetry"
)

type adapterMetrics struct {
	ordersSubmitted metric.Int64Counter
	ordersFailed    metric.Int64Counter
	fillQueries     metric.Int64Counter
	unknownStatus   metric.Int64Counter
	requestLatency  metric.Float64Histogram
}

func newAdapterMetrics() *adapterMetrics {
	meter := otel.Meter("adapter.talos")
	m := &adapterMetrics{}

	m.ordersSubmitted, _ = meter.Int64Counter("orderbroker_talos_orders_submitted",
		metric.WithDescription("Orders accepted by Talos"),
		metric.WithUnit("{order}"))
	m.ordersFailed, _ = meter.Int64Counter("orderbroker_talos_orders_failed",
		metric.WithDescription("Orders Talos did not accept, by error type"),
		metric.WithUnit("{order}"))
	m.fillQueries, _ = meter.Int64Counter("orderbroker_talos_fill_queries",
		metric.WithDescription("Per-order status queries by observed status or error type"),
		metric.WithUnit("{query}"))
	m.unknownStatus, _ = meter.Int64Counter("orderbroker_talos_unknown_status",
		metric.WithDescription("Venue statuses outside the known vocabulary"),
		metric.WithUnit("{status}"))
	m.requestLatency, _ = meter.Float64Histogram("orderbroker_talos_request_latency",
		metric.WithDescription("Latency of Talos broker operations"),
		metric.WithUnit("ms"))
	return m
}

func (m *adapterMetrics) recordSubmit(ctx context.Context, o order.Order, err error) {
	if m == nil {
		return
	}
	env := telemetry.Environment()
	if err == nil {
		if m.ordersSubmitted != nil {
			m.ordersSubmitted.Add(ctx, 1, metric.WithAttributes(
				telemetry.OrderAttributes(env, venueName, o.Symbol, string(o.Side), string(o.Type))...))
		}
		return
	}
	if m.ordersFailed != nil {
		attrs := telemetry.OrderAttributes(env, venueName, o.Symbol, string(o.Side), string(o.Type))
		attrs = append(attrs, telemetry.AttrErrorType.String(errorType(err)))
		m.ordersFailed.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *adapterMetrics) recordFill(ctx context.Context, status order.Status, err error) {
	if m == nil {
		return
	}
	env := telemetry.Environment()
	if err != nil {
		if m.fillQueries != nil {
			m.fillQueries.Add(ctx, 1, metric.WithAttributes(
				telemetry.ErrorAttributes(env, venueName, telemetry.OperationFill, errorType(err))...))
		}
		if m.unknownStatus != nil && errs.IsCode(err, errs.CodeUnknownStatus) {
			m.unknownStatus.Add(ctx, 1, metric.WithAttributes(
				telemetry.OperationResultAttributes(env, venueName, telemetry.OperationFill, "unknown")...))
		}
		return
	}
	if m.fillQueries != nil {
		m.fillQueries.Add(ctx, 1, metric.WithAttributes(
			telemetry.StatusAttributes(env, venueName, string(status))...))
	}
}

func (m *adapterMetrics) recordLatency(ctx context.Context, operation string, err error, elapsed time.Duration) {
	if m == nil || m.requestLatency == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.requestLatency.Record(ctx, float64(elapsed.Microseconds())/1000,
		metric.WithAttributes(telemetry.OperationResultAttributes(telemetry.Environment(), venueName, operation, result)...))
}

func errorType(err error) string {
	if code := errs.CodeOf(err); code != "" {
		return string(code)
	}
	return "unknown"
}
