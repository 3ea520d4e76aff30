package broker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/orderbroker/errs"
	"github.com/coachpo/orderbroker/internal/domain/broker"
	"github.com/coachpo/orderbroker/internal/domain/order"
	"github.com/coachpo/orderbroker/internal/domain/orderstore"
	"github.com/coachpo/orderbroker/internal/infra/persistence/memory"
	"github.com/coachpo/orderbroker/internal/testutil/fakevenue"
)

const (
	testHost   = "tal-87.sandbox.talostrading.com"
	testSecret = "service-test-secret"
)

var testCreds = broker.Credentials{APIKey: "service-test-key", Secret: testSecret}

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestService(t *testing.T, venue *fakevenue.Venue) (*Service, *memory.Store) {
	t.Helper()
	b, err := New(Settings{
		Venue:       "Talos",
		Host:        testHost,
		Concurrency: 4,
		Credentials: testCreds,
		Transport:   venue,
		Clock:       fixedClock,
		Logger:      quietLogger(),
	})
	require.NoError(t, err)
	store := memory.New()
	svc, err := NewService(b, ServiceOptions{Store: store, Clock: fixedClock, Logger: quietLogger()})
	require.NoError(t, err)
	return svc, store
}

func limitOrder(t *testing.T, side order.Side) order.Order {
	t.Helper()
	price := decimal.RequireFromString("20000.5")
	return order.Create(order.CreateParams{
		Markets:      []string{"coinbase"},
		Quantity:     decimal.RequireFromString("0.25"),
		TransactTime: fixedClock(),
		Symbol:       "BTC-USD",
		Currency:     "BTC",
		Type:         order.TypeLimit,
		Price:        &price,
		Side:         side,
	})
}

func TestNewRejectsUnknownVenue(t *testing.T) {
	_, err := New(Settings{Venue: "mtgox", Host: testHost, Transport: fakevenue.New()})
	require.True(t, errs.IsCode(err, errs.CodeInvalid), "got %v", err)

	_, err = New(Settings{Venue: VenueTalos, Transport: fakevenue.New()})
	require.True(t, errs.IsCode(err, errs.CodeInvalid), "missing host: %v", err)
}

func TestNewServiceRequiresBrokerAndStore(t *testing.T) {
	_, err := NewService(nil, ServiceOptions{Store: memory.New()})
	require.Error(t, err)

	b, err := New(Settings{Venue: VenueTalos, Host: testHost, Transport: fakevenue.New()})
	require.NoError(t, err)
	_, err = NewService(b, ServiceOptions{})
	require.Error(t, err)
}

func TestServiceSubmitJournalsEveryResult(t *testing.T) {
	venue := fakevenue.New().
		RequireSignature(testSecret).
		Handle(http.MethodPost, "/v1/orders", fakevenue.Sequence(
			fakevenue.JSON(http.StatusOK, `{"data":[{"OrdStatus":"PendingNew","OrderID":"venue-1"}]}`),
			fakevenue.JSON(http.StatusInternalServerError, "upstream exploded"),
		))
	svc, store := newTestService(t, venue)

	accepted := limitOrder(t, order.SideBuy)
	rejected := limitOrder(t, order.SideSell)
	results, err := svc.Submit(context.Background(), []order.Order{accepted, rejected})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.True(t, results[0].OK())
	require.True(t, errs.IsCode(results[1].Err, errs.CodeSubmission))

	receipts := store.Submissions("")
	require.Len(t, receipts, 2)
	require.Equal(t, accepted.ClientOrderID, receipts[0].ClientOrderID)
	require.True(t, receipts[0].Accepted)
	require.Equal(t, "venue-1", receipts[0].Metadata["order_id"])
	require.Equal(t, fixedClock().UnixMilli(), receipts[0].SubmittedAt)
	require.False(t, receipts[1].Accepted)
	require.Equal(t, http.StatusInternalServerError, receipts[1].HTTPStatus)
	require.Contains(t, receipts[1].Error, "upstream exploded")

	record, err := svc.Fill(context.Background(), "venue-1")
	require.NoError(t, err)
	require.Equal(t, order.StatusPendingNew, record.Status)

	all, err := svc.Fills(context.Background(), orderstore.FillQuery{})
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestServiceSubmitAckWithoutOrderIDIsNotTracked(t *testing.T) {
	venue := fakevenue.New().
		Handle(http.MethodPost, "/v1/orders", fakevenue.JSON(http.StatusOK, `{"data":[{"OrdStatus":"New"}]}`))
	svc, store := newTestService(t, venue)

	results, err := svc.Submit(context.Background(), []order.Order{limitOrder(t, order.SideBuy)})
	require.NoError(t, err)
	require.True(t, results[0].OK())
	require.Len(t, store.Submissions(""), 1)

	fills, err := store.ListFills(context.Background(), orderstore.FillQuery{})
	require.NoError(t, err)
	require.Empty(t, fills)
}

func TestServiceSubmitPreflightFailureJournalsNothing(t *testing.T) {
	venue := fakevenue.New()
	svc, store := newTestService(t, venue)

	bad := limitOrder(t, order.SideBuy)
	bad.Price = nil
	_, err := svc.Submit(context.Background(), []order.Order{limitOrder(t, order.SideBuy), bad})
	require.True(t, errs.IsCode(err, errs.CodeInvalid), "got %v", err)
	require.Zero(t, venue.Count(http.MethodPost))
	require.Empty(t, store.Submissions(""))
}

func TestServiceRefreshStoresObservedStatuses(t *testing.T) {
	venue := fakevenue.New().
		RequireSignature(testSecret).
		Handle(http.MethodGet, "/v1/orders/ord-1", fakevenue.OrderStatus("PartiallyFilled")).
		Handle(http.MethodGet, "/v1/orders/ord-2", fakevenue.OrderStatus("Expired")).
		Handle(http.MethodGet, "/v1/orders/ord-3", fakevenue.Fail(errors.New("connection reset")))
	svc, store := newTestService(t, venue)
	ctx := context.Background()

	require.NoError(t, store.UpsertFill(ctx, order.FillRecord{
		OrderID:    "ord-2",
		Status:     order.StatusNew,
		ObservedAt: fixedClock().Add(-time.Minute),
	}))

	report, err := svc.Refresh(ctx, []string{"ord-1", "ord-2", "ord-3"})
	require.NoError(t, err)
	require.Equal(t, order.StatusPartiallyFilled, report.Statuses["ord-1"])
	require.True(t, errs.IsCode(report.Errors["ord-2"], errs.CodeUnknownStatus))
	require.True(t, errs.IsCode(report.Errors["ord-3"], errs.CodeNetwork))

	record, err := store.Fill(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, order.StatusPartiallyFilled, record.Status)

	record, err = store.Fill(ctx, "ord-2")
	require.NoError(t, err)
	require.Equal(t, order.StatusNew, record.Status, "unknown status must not overwrite the stored record")

	_, err = store.Fill(ctx, "ord-3")
	require.ErrorIs(t, err, orderstore.ErrNotFound)
}

func TestServiceRefreshRejectsBlankIDs(t *testing.T) {
	venue := fakevenue.New()
	svc, _ := newTestService(t, venue)

	_, err := svc.Refresh(context.Background(), []string{"ord-1", " "})
	require.True(t, errs.IsCode(err, errs.CodeInvalid), "got %v", err)
	require.Empty(t, venue.Requests())
}
