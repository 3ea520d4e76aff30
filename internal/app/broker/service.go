package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coachpo/orderbroker/internal/domain/broker"
	"github.com/coachpo/orderbroker/internal/domain/order"
	"github.com/coachpo/orderbroker/internal/domain/orderstore"
)

// ServiceOptions configure a Service.
type ServiceOptions struct {
	Store  orderstore.Store
	Clock  func() time.Time
	Logger logrus.FieldLogger
}

// Service journals every submission and keeps the latest observed status of each tracked order
// in the store. Venue outcomes are never altered by journal failures; those are logged.
type Service struct {
	broker  broker.Broker
	store   orderstore.Store
	clock   func() time.Time
	logger  logrus.FieldLogger
	metrics *serviceMetrics
}

// NewService wraps b with the journal backed by opts.Store.
func NewService(b broker.Broker, opts ServiceOptions) (*Service, error) {
	if b == nil {
		return nil, fmt.Errorf("broker service: broker required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("broker service: store required")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Service{
		broker:  b,
		store:   opts.Store,
		clock:   opts.Clock,
		logger:  opts.Logger.WithField("venue", b.Venue()),
		metrics: newServiceMetrics(),
	}, nil
}

// Venue returns the underlying broker's venue.
func (s *Service) Venue() string {
	return s.broker.Venue()
}

// Submit sends orders through the broker and journals one submission per result. Accepted
// orders whose acknowledgement carried a venue order id are seeded as fill records so the
// reconciler picks them up.
func (s *Service) Submit(ctx context.Context, orders []order.Order) ([]order.SubmitResult, error) {
	results, err := s.broker.Submit(ctx, orders)
	if err != nil {
		return results, err
	}
	now := s.clock()
	for i, result := range results {
		if i >= len(orders) {
			break
		}
		log := s.logger.WithField("client_order_id", result.ClientOrderID)
		submission := orderstore.NewSubmission(s.broker.Venue(), orders[i].WithDefaults(), result, now.UnixMilli())
		if err := s.store.RecordSubmission(ctx, submission); err != nil {
			s.metrics.recordJournalFailure(ctx, "submission")
			log.WithError(err).Error("journal submission")
		}
		if !result.OK() || result.OrderID == "" || result.Ack == "" {
			continue
		}
		record := order.FillRecord{OrderID: result.OrderID, Status: result.Ack, ObservedAt: now}
		if err := s.store.UpsertFill(ctx, record); err != nil {
			s.metrics.recordJournalFailure(ctx, "fill")
			log.WithError(err).WithField("order_id", result.OrderID).Error("seed fill record")
		}
	}
	return results, nil
}

// GetOrders passes the listing through to the broker.
func (s *Service) GetOrders(ctx context.Context, filter broker.ListFilter) ([]order.Summary, error) {
	return s.broker.GetOrders(ctx, filter)
}

// Refresh queries the live status of orderIDs and stores every successful observation. The
// first observation of an id starts tracking it. Per-id failures stay in the report; their stored
// records keep their status and only have their check time advanced.
func (s *Service) Refresh(ctx context.Context, orderIDs []string) (order.FillReport, error) {
	report, err := s.broker.GetFills(ctx, orderIDs)
	if err != nil {
		return report, err
	}
	observedAt := s.clock()
	var storeErrs []error
	for _, record := range report.Records(observedAt) {
		if err := s.store.UpsertFill(ctx, record); err != nil {
			s.metrics.recordJournalFailure(ctx, "fill")
			storeErrs = append(storeErrs, fmt.Errorf("order %s: %w", record.OrderID, err))
		}
	}
	if failed := report.Failed(); len(failed) > 0 {
		if err := s.store.MarkChecked(ctx, failed, observedAt); err != nil {
			s.metrics.recordJournalFailure(ctx, "fill")
			storeErrs = append(storeErrs, fmt.Errorf("mark checked: %w", err))
		}
	}
	if len(storeErrs) > 0 {
		joined := errors.Join(storeErrs...)
		s.logger.WithError(joined).Error("store fill records")
	}
	return report, nil
}

// Fill returns the stored snapshot for orderID.
func (s *Service) Fill(ctx context.Context, orderID string) (order.FillRecord, error) {
	return s.store.Fill(ctx, orderID)
}

// Fills lists stored snapshots.
func (s *Service) Fills(ctx context.Context, query orderstore.FillQuery) ([]order.FillRecord, error) {
	return s.store.ListFills(ctx, query)
}
