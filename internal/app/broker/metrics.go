package broker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/orderbroker/internal/infra/telemetry"
)

type serviceMetrics struct {
	journalFailures metric.Int64Counter
	passes          metric.Int64Counter
	fillsObserved   metric.Int64Counter
	retries         metric.Int64Counter
}

func newServiceMetrics() *serviceMetrics {
	meter := otel.Meter("app.broker")
	m := &serviceMetrics{}

	m.journalFailures, _ = meter.Int64Counter("orderbroker_journal_failures",
		metric.WithDescription("Store writes that failed after a venue call"),
		metric.WithUnit("{write}"))
	m.passes, _ = meter.Int64Counter("orderbroker_reconcile_passes",
		metric.WithDescription("Reconciliation passes by result"),
		metric.WithUnit("{pass}"))
	m.fillsObserved, _ = meter.Int64Counter("orderbroker_reconcile_fills_observed",
		metric.WithDescription("Fill statuses observed by the reconciler"),
		metric.WithUnit("{order}"))
	m.retries, _ = meter.Int64Counter("orderbroker_reconcile_retries",
		metric.WithDescription("Status queries retried after transport failures"),
		metric.WithUnit("{query}"))
	return m
}

func (m *serviceMetrics) recordJournalFailure(ctx context.Context, kind string) {
	if m == nil || m.journalFailures == nil {
		return
	}
	m.journalFailures.Add(ctx, 1, metric.WithAttributes(
		telemetry.AttrEnvironment.String(telemetry.Environment()),
		telemetry.AttrOperation.String(kind)))
}

func (m *serviceMetrics) recordPass(ctx context.Context, venue, result string, observed int) {
	if m == nil {
		return
	}
	env := telemetry.Environment()
	if m.passes != nil {
		m.passes.Add(ctx, 1, metric.WithAttributes(
			telemetry.OperationResultAttributes(env, venue, telemetry.OperationReconcile, result)...))
	}
	if m.fillsObserved != nil && observed > 0 {
		m.fillsObserved.Add(ctx, int64(observed), metric.WithAttributes(
			telemetry.AttrEnvironment.String(env),
			telemetry.AttrVenue.String(venue)))
	}
}

func (m *serviceMetrics) recordRetry(ctx context.Context, venue string, ids int) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Add(ctx, int64(ids), metric.WithAttributes(
		telemetry.AttrEnvironment.String(telemetry.Environment()),
		telemetry.AttrVenue.String(venue)))
}
