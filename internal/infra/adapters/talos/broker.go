package talos

import (
	"context"
	"time"

	"github.com/coachpo/orderbroker/errs"
	"github.com/coachpo/orderbroker/internal/domain/broker"
	"github.com/coachpo/orderbroker/internal/domain/order"
	"github.com/coachpo/orderbroker/internal/infra/telemetry"
)

// Broker is the Talos implementation of broker.Broker for one account. Beyond the credentials
// and transport it holds no state between calls and is safe for concurrent use.
type Broker struct {
	opts      Options
	submitter *Submitter
	query     *QueryService
	metrics   *adapterMetrics
}

var _ broker.Broker = (*Broker)(nil)

// New constructs a Talos broker. Missing credentials are not rejected here; signing reports them
// as CodeAuth before any request is sent.
func New(opts Options) (*Broker, error) {
	opts = withDefaults(opts)
	if opts.Config.Host == "" {
		return nil, errs.New(venueName, errs.CodeInvalid, errs.WithMessage("venue host required"))
	}
	if opts.Transport == nil {
		return nil, errs.New(venueName, errs.CodeInvalid, errs.WithMessage("transport required"))
	}
	builder := NewRequestBuilder(opts.Config.Scheme, opts.Config.Host, opts.Credentials)
	metrics := newAdapterMetrics()
	return &Broker{
		opts:      opts,
		submitter: newSubmitter(opts, builder, metrics),
		query:     newQueryService(opts, builder, metrics),
		metrics:   metrics,
	}, nil
}

// Venue returns "talos".
func (b *Broker) Venue() string {
	return venueName
}

// Submit sends each order as its own signed POST.
func (b *Broker) Submit(ctx context.Context, orders []order.Order) ([]order.SubmitResult, error) {
	start := time.Now()
	results, err := b.submitter.Submit(ctx, orders)
	b.metrics.recordLatency(ctx, telemetry.OperationSubmit, err, time.Since(start))
	return results, err
}

// GetOrders lists orders by date range and order id.
func (b *Broker) GetOrders(ctx context.Context, filter broker.ListFilter) ([]order.Summary, error) {
	start := time.Now()
	summaries, err := b.query.GetOrders(ctx, filter)
	b.metrics.recordLatency(ctx, telemetry.OperationList, err, time.Since(start))
	return summaries, err
}

// GetFills returns the current status of each order id.
func (b *Broker) GetFills(ctx context.Context, orderIDs []string) (order.FillReport, error) {
	start := time.Now()
	report, err := b.query.GetFills(ctx, orderIDs)
	outcome := err
	if outcome == nil {
		outcome = report.Err()
	}
	b.metrics.recordLatency(ctx, telemetry.OperationFill, outcome, time.Since(start))
	return report, err
}
