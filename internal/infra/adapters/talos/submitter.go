package talos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/coachpo/orderbroker/errs"
	"github.com/coachpo/orderbroker/internal/domain/order"
	"github.com/coachpo/orderbroker/internal/infra/transport"
)

// Submitter sends orders as individual signed POST requests. It never retries: a resend must
// reuse the original ClOrdID and is left to the caller.
type Submitter struct {
	builder   *RequestBuilder
	transport transport.Transport
	path      string
	clock     func() time.Time
	logger    logrus.FieldLogger
	metrics   *adapterMetrics
}

func newSubmitter(opts Options, builder *RequestBuilder, metrics *adapterMetrics) *Submitter {
	return &Submitter{
		builder:   builder,
		transport: opts.Transport,
		path:      opts.orderPath(),
		clock:     opts.Clock,
		logger:    opts.Logger,
		metrics:   metrics,
	}
}

// Submit validates, encodes and signs every order before sending any of them, so a problem
// detected before I/O sends nothing. A ClOrdID repeated within the batch is such a problem. All requests of one call share a single timestamp. Orders
// are sent sequentially in the given order and each gets its own result.
func (s *Submitter) Submit(ctx context.Context, orders []order.Order) ([]order.SubmitResult, error) {
	if len(orders) == 0 {
		return nil, nil
	}

	prepared := make([]order.Order, len(orders))
	firstIndex := make(map[string]int, len(orders))
	var problems []error
	for i, o := range orders {
		o = o.WithDefaults()
		if err := order.Validate(o); err != nil {
			problems = append(problems, fmt.Errorf("order %d: %w", i, err))
		}
		if o.ClientOrderID != "" {
			if first, dup := firstIndex[o.ClientOrderID]; dup {
				problems = append(problems, fmt.Errorf("order %d: ClOrdID %s already used by order %d", i, o.ClientOrderID, first))
			} else {
				firstIndex[o.ClientOrderID] = i
			}
		}
		prepared[i] = o
	}
	if len(problems) > 0 {
		return nil, errs.New(venueName, errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("%d of %d orders invalid; batch not sent", len(problems), len(orders))),
			errs.WithCause(errors.Join(problems...)))
	}
	if err := s.builder.Ready(); err != nil {
		return nil, err
	}

	timestamp := order.FormatTimestamp(s.clock())
	requests := make([]transport.Request, len(prepared))
	for i, o := range prepared {
		body, err := json.Marshal(o)
		if err != nil {
			return nil, errs.New(venueName, errs.CodeInvalid,
				errs.WithMessage("encode order"),
				errs.WithVenueField("client_order_id", o.ClientOrderID),
				errs.WithCause(err))
		}
		req, err := s.builder.Build(http.MethodPost, s.path, string(body), timestamp)
		if err != nil {
			return nil, err
		}
		requests[i] = req
	}

	s.logger.WithFields(logrus.Fields{
		"orders":    len(prepared),
		"timestamp": timestamp,
	}).Debug("submitting order batch")

	results := make([]order.SubmitResult, len(prepared))
	accepted := 0
	for i, o := range prepared {
		results[i] = s.send(ctx, o, requests[i])
		s.metrics.recordSubmit(ctx, o, results[i].Err)
		if results[i].OK() {
			accepted++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"orders":   len(prepared),
		"accepted": accepted,
		"failed":   len(prepared) - accepted,
	}).Info("order batch submitted")
	return results, nil
}

func (s *Submitter) send(ctx context.Context, o order.Order, req transport.Request) order.SubmitResult {
	result := order.SubmitResult{ClientOrderID: o.ClientOrderID}
	log := s.logger.WithField("client_order_id", o.ClientOrderID)
	log.Debug("submitting order")

	resp, err := s.transport.Do(ctx, req)
	if err != nil {
		result.Err = errs.New(venueName, errs.CodeNetwork,
			errs.WithMessage("submit order"),
			errs.WithVenueField("client_order_id", o.ClientOrderID),
			errs.WithCause(err))
		log.WithError(err).Warn("order submission transport failure")
		return result
	}

	result.StatusCode = resp.StatusCode
	result.Body = resp.Body
	if resp.StatusCode == http.StatusOK {
		result.Ack, result.OrderID = parseAck(resp.Body)
		log.WithFields(logrus.Fields{"status": result.Ack, "order_id": result.OrderID}).Debug("order accepted")
		return result
	}

	code := errs.CodeSubmission
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		code = errs.CodeAuth
	}
	result.Err = errs.New(venueName, code,
		errs.WithMessage("order rejected"),
		errs.WithHTTP(resp.StatusCode),
		errs.WithRawMessage(string(resp.Body)),
		errs.WithVenueField("client_order_id", o.ClientOrderID))
	log.WithFields(logrus.Fields{
		"http_status": resp.StatusCode,
		"code":        code,
	}).Warn("order submission failed")
	return result
}
