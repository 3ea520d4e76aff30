package talos

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/orderbroker/errs"
	"github.com/coachpo/orderbroker/internal/domain/broker"
	"github.com/coachpo/orderbroker/internal/domain/order"
	"github.com/coachpo/orderbroker/internal/infra/transport"
)

type listingResponse struct {
	Data []order.Summary `json:"data"`
}

// QueryService lists orders and fetches per-order status.
type QueryService struct {
	opts        Options
	builder     *RequestBuilder
	transport   transport.Transport
	clock       func() time.Time
	logger      logrus.FieldLogger
	concurrency int
	metrics     *adapterMetrics
}

func newQueryService(opts Options, builder *RequestBuilder, metrics *adapterMetrics) *QueryService {
	return &QueryService{
		opts:        opts,
		builder:     builder,
		transport:   opts.Transport,
		clock:       opts.Clock,
		logger:      opts.Logger,
		concurrency: opts.Config.Concurrency,
		metrics:     metrics,
	}
}

// GetOrders lists orders matching filter. Empty filters are sent as empty values.
func (q *QueryService) GetOrders(ctx context.Context, filter broker.ListFilter) ([]order.Summary, error) {
	req, err := q.builder.Build(http.MethodGet, q.opts.orderPath(), listingQuery(filter), order.FormatTimestamp(q.clock()))
	if err != nil {
		return nil, err
	}
	resp, err := q.transport.Do(ctx, req)
	if err != nil {
		return nil, errs.New(venueName, errs.CodeNetwork, errs.WithMessage("list orders"), errs.WithCause(err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("list orders", resp)
	}
	var payload listingResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, errs.New(venueName, errs.CodeExchange,
			errs.WithMessage("decode order listing"),
			errs.WithRawMessage(string(resp.Body)),
			errs.WithCause(err))
	}
	if payload.Data == nil {
		payload.Data = []order.Summary{}
	}
	return payload.Data, nil
}

// GetFills queries each distinct id with its own signed GET, in parallel up to the configured
// concurrency. Results are aggregated by id; a failed id never aborts the others. The returned
// error covers only problems found before any request is sent.
func (q *QueryService) GetFills(ctx context.Context, orderIDs []string) (order.FillReport, error) {
	ids := make([]string, 0, len(orderIDs))
	seen := make(map[string]struct{}, len(orderIDs))
	for i, id := range orderIDs {
		if strings.TrimSpace(id) == "" {
			return order.FillReport{}, errs.New(venueName, errs.CodeInvalid,
				errs.WithMessage(fmt.Sprintf("order id %d empty", i)))
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	report := order.NewFillReport(len(ids))
	if len(ids) == 0 {
		return report, nil
	}
	if err := q.builder.Ready(); err != nil {
		return order.FillReport{}, err
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(q.concurrency)
	for _, id := range ids {
		p.Go(func() {
			status, err := q.fetchStatus(ctx, id)
			q.metrics.recordFill(ctx, status, err)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors[id] = err
				return
			}
			report.Statuses[id] = status
		})
	}
	p.Wait()

	if len(report.Errors) > 0 {
		q.logger.WithFields(logrus.Fields{
			"requested": len(ids),
			"failed":    report.Failed(),
		}).Warn("order status query incomplete")
	}
	return report, nil
}

func (q *QueryService) fetchStatus(ctx context.Context, orderID string) (order.Status, error) {
	req, err := q.builder.Build(http.MethodGet, q.opts.orderStatusPath(orderID), "", order.FormatTimestamp(q.clock()))
	if err != nil {
		return "", err
	}
	resp, err := q.transport.Do(ctx, req)
	if err != nil {
		return "", errs.New(venueName, errs.CodeNetwork,
			errs.WithMessage("query order status"),
			errs.WithVenueField("order_id", orderID),
			errs.WithCause(err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError("query order status", resp)
	}
	status, err := firstReportStatus(resp.Body)
	if err != nil {
		q.logger.WithFields(logrus.Fields{
			"order_id": orderID,
			"code":     errs.CodeOf(err),
		}).Warn("order status not mapped")
		return "", err
	}
	return status, nil
}

func statusError(operation string, resp transport.Response) error {
	code := errs.CodeExchange
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		code = errs.CodeAuth
	case http.StatusNotFound:
		code = errs.CodeNotFound
	}
	return errs.New(venueName, code,
		errs.WithMessage(operation),
		errs.WithHTTP(resp.StatusCode),
		errs.WithRawMessage(string(resp.Body)))
}
