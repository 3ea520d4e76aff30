package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/coachpo/orderbroker/errs"
	"github.com/coachpo/orderbroker/internal/domain/order"
	"github.com/coachpo/orderbroker/internal/domain/orderstore"
	"github.com/coachpo/orderbroker/internal/infra/archive"
)

const (
	defaultReconcileInterval = 5 * time.Second
	defaultRetryMaxElapsed   = 30 * time.Second
	defaultRetryInterval     = 250 * time.Millisecond
	defaultBatchLimit        = 500
)

// ReconcilerOptions configure a Reconciler.
type ReconcilerOptions struct {
	Interval time.Duration
	// MaxElapsed bounds how long one pass keeps retrying ids that failed at the transport.
	MaxElapsed time.Duration
	// RetryInterval is the first backoff delay.
	RetryInterval time.Duration
	BatchLimit    int
	// Archiver, when set, receives the outcome of every pass that queried at least one id.
	Archiver archive.Archiver
	Logger   logrus.FieldLogger
}

// PassResult summarises one reconciliation pass.
type PassResult struct {
	Queried  int
	Observed int
	Terminal int
	Retried  int
	Unknown  []string
	Failed   []string
	Archive  string
}

// Reconciler polls the venue for every tracked order that has not reached a terminal status.
// Terminal records are no longer listed as transient, so their ids drop out of later passes.
type Reconciler struct {
	service       *Service
	interval      time.Duration
	maxElapsed    time.Duration
	retryInterval time.Duration
	batchLimit    int
	archiver      archive.Archiver
	logger        logrus.FieldLogger
}

// NewReconciler constructs a Reconciler over service.
func NewReconciler(service *Service, opts ReconcilerOptions) (*Reconciler, error) {
	if service == nil {
		return nil, fmt.Errorf("reconciler: service required")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultReconcileInterval
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = defaultRetryMaxElapsed
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = defaultBatchLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = service.logger
	}
	return &Reconciler{
		service:       service,
		interval:      opts.Interval,
		maxElapsed:    opts.MaxElapsed,
		retryInterval: opts.RetryInterval,
		batchLimit:    opts.BatchLimit,
		archiver:      opts.Archiver,
		logger:        logger.WithField("component", "reconciler"),
	}, nil
}

// Run reconciles immediately and then once per interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.WithField("interval", r.interval.String()).Info("reconciler started")
	for {
		if _, err := r.Reconcile(ctx); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).Warn("reconcile pass failed")
		}
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Reconcile runs one pass over the transient fill records.
func (r *Reconciler) Reconcile(ctx context.Context) (PassResult, error) {
	venue := r.service.Venue()
	records, err := r.service.Fills(ctx, orderstore.FillQuery{TransientOnly: true, Limit: r.batchLimit})
	if err != nil {
		r.service.metrics.recordPass(ctx, venue, "error", 0)
		return PassResult{}, fmt.Errorf("list transient fills: %w", err)
	}
	if len(records) == 0 {
		r.service.metrics.recordPass(ctx, venue, "idle", 0)
		return PassResult{}, nil
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.OrderID)
	}

	report, err := r.service.Refresh(ctx, ids)
	if err != nil {
		r.service.metrics.recordPass(ctx, venue, "error", 0)
		return PassResult{}, err
	}
	retried := r.retryTransportFailures(ctx, &report)

	result := PassResult{
		Queried:  len(ids),
		Observed: len(report.Statuses),
		Retried:  retried,
		Failed:   report.Failed(),
	}
	for _, status := range report.Statuses {
		if status.Terminal() {
			result.Terminal++
		}
	}
	for _, id := range result.Failed {
		err := report.Errors[id]
		if errs.IsCode(err, errs.CodeUnknownStatus) {
			result.Unknown = append(result.Unknown, id)
			r.logger.WithError(err).WithField("order_id", id).Warn("unknown venue status; record left unchanged")
			continue
		}
		r.logger.WithError(err).WithField("order_id", id).Warn("fill query failed")
	}

	outcome := "success"
	if len(result.Failed) > 0 {
		outcome = "partial"
	}
	r.service.metrics.recordPass(ctx, venue, outcome, result.Observed)

	if r.archiver != nil {
		result.Archive = r.archive(ctx, venue, report)
	}

	r.logger.WithFields(logrus.Fields{
		"queried":  result.Queried,
		"observed": result.Observed,
		"terminal": result.Terminal,
		"failed":   len(result.Failed),
		"retried":  result.Retried,
	}).Debug("reconcile pass complete")
	return result, nil
}

// retryTransportFailures re-queries ids whose status query failed at the transport, with
// exponential backoff, until none remain or the pass budget is spent. Only status GETs are
// retried. It returns the number of re-queried ids.
func (r *Reconciler) retryTransportFailures(ctx context.Context, report *order.FillReport) int {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = r.retryInterval
	backoffCfg.MaxInterval = r.maxElapsed
	backoffCfg.Reset()
	deadline := time.Now().Add(r.maxElapsed)

	retried := 0
	for {
		pending := networkFailures(*report)
		if len(pending) == 0 {
			return retried
		}
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop || time.Now().Add(sleep).After(deadline) {
			r.logger.WithField("order_ids", pending).Warn("fill query retries exhausted")
			return retried
		}
		select {
		case <-ctx.Done():
			return retried
		case <-time.After(sleep):
		}

		retried += len(pending)
		r.service.metrics.recordRetry(ctx, r.service.Venue(), len(pending))
		retry, err := r.service.Refresh(ctx, pending)
		if err != nil {
			r.logger.WithError(err).Warn("fill query retry failed")
			return retried
		}
		for id, status := range retry.Statuses {
			report.Statuses[id] = status
			delete(report.Errors, id)
		}
		for id, err := range retry.Errors {
			report.Errors[id] = err
		}
	}
}

func (r *Reconciler) archive(ctx context.Context, venue string, report order.FillReport) string {
	now := r.service.clock()
	snapshot := archive.Snapshot{
		Venue:   venue,
		TakenAt: now.UTC(),
		Records: report.Records(now),
	}
	if len(report.Errors) > 0 {
		snapshot.Failed = make(map[string]string, len(report.Errors))
		for id, err := range report.Errors {
			snapshot.Failed[id] = err.Error()
		}
	}
	key, err := r.archiver.Archive(ctx, snapshot)
	if err != nil {
		r.logger.WithError(err).Warn("archive reconcile snapshot")
		return ""
	}
	return key
}

func networkFailures(report order.FillReport) []string {
	var ids []string
	for _, id := range report.Failed() {
		if errs.IsCode(report.Errors[id], errs.CodeNetwork) {
			ids = append(ids, id)
		}
	}
	return ids
}
