package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	appbroker "github.com/coachpo/orderbroker/internal/app/broker"
	"github.com/coachpo/orderbroker/errs"
	"github.com/coachpo/orderbroker/internal/domain/broker"
	"github.com/coachpo/orderbroker/internal/domain/order"
	"github.com/coachpo/orderbroker/internal/domain/orderstore"
	"github.com/coachpo/orderbroker/internal/infra/persistence/memory"
	"github.com/coachpo/orderbroker/internal/testutil/fakevenue"
)

const testSecret = "control-api-secret"

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestApp(t *testing.T, venue *fakevenue.Venue) (*fiber.App, *memory.Store) {
	t.Helper()
	b, err := appbroker.New(appbroker.Settings{
		Venue:       appbroker.VenueTalos,
		Host:        "tal-87.sandbox.talostrading.com",
		Credentials: broker.Credentials{APIKey: "control-api-key", Secret: testSecret},
		Transport:   venue,
		Clock:       fixedClock,
		Logger:      quietLogger(),
	})
	require.NoError(t, err)
	store := memory.New()
	svc, err := appbroker.NewService(b, appbroker.ServiceOptions{Store: store, Clock: fixedClock, Logger: quietLogger()})
	require.NoError(t, err)
	return New(svc, Options{Environment: "dev", Logger: quietLogger(), Clock: fixedClock}), store
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload), "body: %s", raw)
	return resp.StatusCode, payload
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t, fakevenue.New())
	status, payload := do(t, app, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", payload["status"])
	require.Equal(t, "talos", payload["venue"])
	require.Equal(t, "dev", payload["environment"])
}

func TestHealthReportsStoreOutage(t *testing.T) {
	app := New(stubService{}, Options{
		Logger: quietLogger(),
		Ready: func(context.Context) error {
			return errs.New("", errs.CodeUnavailable, errs.WithMessage("database ping"))
		},
	})
	status, payload := do(t, app, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, "unavailable", payload["status"])
	require.Contains(t, payload["error"], "database ping")
}

func TestSubmitOrdersCreatesAndJournals(t *testing.T) {
	venue := fakevenue.New().
		RequireSignature(testSecret).
		Handle(http.MethodPost, "/v1/orders", fakevenue.JSON(http.StatusOK, `{"data":[{"OrdStatus":"PendingNew","OrderID":"venue-9"}]}`))
	app, store := newTestApp(t, venue)

	body := `{"orders":[{"markets":["coinbase"],"quantity":"0.5","symbol":"ETH-USD","currency":"ETH",
		"orderType":"Limit","price":"3100.25","side":"Buy"}]}`
	status, payload := do(t, app, http.MethodPost, "/v1/orders", body)
	require.Equal(t, http.StatusOK, status, "payload: %v", payload)
	require.Equal(t, "ok", payload["status"])

	results := payload["results"].([]any)
	require.Len(t, results, 1)
	result := results[0].(map[string]any)
	require.Equal(t, true, result["accepted"])
	require.Equal(t, "PendingNew", result["ack"])
	require.Equal(t, "venue-9", result["orderId"])
	require.NotEmpty(t, result["clientOrderId"])

	requests := venue.Requests()
	require.Len(t, requests, 1)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(requests[0].Body, &wire))
	require.Equal(t, "3100.25", wire["Price"])
	require.Equal(t, "GoodTillCancel", wire["TimeInForce"])
	require.Equal(t, order.FormatTimestamp(fixedClock()), wire["TransactTime"])

	require.Len(t, store.Submissions(""), 1)
	record, err := store.Fill(context.Background(), "venue-9")
	require.NoError(t, err)
	require.Equal(t, order.StatusPendingNew, record.Status)
}

func TestSubmitOrdersReportsPartialFailure(t *testing.T) {
	venue := fakevenue.New().
		Handle(http.MethodPost, "/v1/orders", fakevenue.Sequence(
			fakevenue.JSON(http.StatusOK, `{}`),
			fakevenue.JSON(http.StatusUnauthorized, `{"error":"bad key"}`),
		))
	app, _ := newTestApp(t, venue)

	market := `{"quantity":"1","symbol":"BTC-USD","currency":"BTC","orderType":"Market","side":"Sell"}`
	status, payload := do(t, app, http.MethodPost, "/v1/orders", `{"orders":[`+market+`,`+market+`]}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "partial", payload["status"])
	results := payload["results"].([]any)
	second := results[1].(map[string]any)
	require.Equal(t, false, second["accepted"])
	require.Equal(t, "auth", second["code"])
	require.EqualValues(t, http.StatusUnauthorized, second["httpStatus"])
}

func TestSubmitOrdersRejectsBadInput(t *testing.T) {
	venue := fakevenue.New()
	app, _ := newTestApp(t, venue)

	status, payload := do(t, app, http.MethodPost, "/v1/orders", `{"orders":[]}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "error", payload["status"])

	status, _ = do(t, app, http.MethodPost, "/v1/orders", `{"orders":`)
	require.Equal(t, http.StatusBadRequest, status)

	limitWithoutPrice := `{"orders":[{"quantity":"1","symbol":"BTC-USD","currency":"BTC","orderType":"Limit","side":"Buy"}]}`
	status, payload = do(t, app, http.MethodPost, "/v1/orders", limitWithoutPrice)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid_request", payload["code"])
	require.Zero(t, venue.Count(http.MethodPost))
}

func TestListOrdersPassesFilter(t *testing.T) {
	venue := fakevenue.New().
		Handle(http.MethodGet, "/v1/orders", fakevenue.JSON(http.StatusOK,
			`{"data":[{"OrderID":"ord-1","ClOrdID":"c-1","Symbol":"BTC-USD","Side":"Buy","OrdType":"Limit","OrderQty":"1","OrdStatus":"New"}]}`))
	app, _ := newTestApp(t, venue)

	status, payload := do(t, app, http.MethodGet, "/v1/orders?start=2024-05-01&end=2024-05-02&order_id=ord-1", "")
	require.Equal(t, http.StatusOK, status)
	orders := payload["orders"].([]any)
	require.Len(t, orders, 1)
	require.Equal(t, "ord-1", orders[0].(map[string]any)["OrderID"])

	requests := venue.Requests()
	require.Len(t, requests, 1)
	require.Contains(t, requests[0].URL, "StartDate=2024-05-01&EndDate=2024-05-02&OrderID=ord-1")
}

func TestGetFillsLiveAndStored(t *testing.T) {
	venue := fakevenue.New().
		Handle(http.MethodGet, "/v1/orders/ord-1", fakevenue.OrderStatus("Filled")).
		Handle(http.MethodGet, "/v1/orders/ord-2", fakevenue.OrderStatus("Expired"))
	app, _ := newTestApp(t, venue)

	status, payload := do(t, app, http.MethodGet, "/v1/fills?ids=ord-1,ord-2", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "partial", payload["status"])
	require.Equal(t, "Filled", payload["statuses"].(map[string]any)["ord-1"])
	failure := payload["errors"].(map[string]any)["ord-2"].(map[string]any)
	require.Equal(t, "unknown_status", failure["code"])

	status, payload = do(t, app, http.MethodGet, "/v1/fills/ord-1", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Filled", payload["fill"].(map[string]any)["status"])

	status, payload = do(t, app, http.MethodGet, "/v1/fills/ord-2", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "error", payload["status"])

	status, payload = do(t, app, http.MethodGet, "/v1/fills?transient=true", "")
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, payload["fills"])

	status, _ = do(t, app, http.MethodGet, "/v1/fills?limit=-1", "")
	require.Equal(t, http.StatusBadRequest, status)
}

func TestGetFillsKeepsStoredIDsAcrossRequests(t *testing.T) {
	const id = "AAAAAAAA-1111-2222-3333-444444444444"
	venue := fakevenue.New().
		Handle(http.MethodGet, "/v1/orders/"+id, fakevenue.OrderStatus("PartiallyFilled")).
		Handle(http.MethodGet, "/v1/orders/ord-2", fakevenue.OrderStatus("New"))
	app, store := newTestApp(t, venue)

	status, _ := do(t, app, http.MethodGet, "/v1/fills?ids="+id, "")
	require.Equal(t, http.StatusOK, status)
	for _, target := range []string{
		"/v1/fills?ids=ord-2",
		"/v1/fills?transient=true&limit=25",
		"/v1/fills/ZZZZZZZZ-9999-8888-7777-666666666666",
		"/health",
	} {
		do(t, app, http.MethodGet, target, "")
	}

	record, err := store.Fill(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, record.OrderID)
	require.Equal(t, order.StatusPartiallyFilled, record.Status)

	fills, err := store.ListFills(context.Background(), orderstore.FillQuery{})
	require.NoError(t, err)
	require.Len(t, fills, 2)
}

func TestGetFillsTrimsIDs(t *testing.T) {
	venue := fakevenue.New().
		RequireSignature(testSecret).
		Handle(http.MethodGet, "/v1/orders/ord-1", fakevenue.OrderStatus("Filled")).
		Handle(http.MethodGet, "/v1/orders/ord-2", fakevenue.OrderStatus("New"))
	app, _ := newTestApp(t, venue)

	status, payload := do(t, app, http.MethodGet, "/v1/fills?ids=ord-1,%20ord-2", "")
	require.Equal(t, http.StatusOK, status, "payload: %v", payload)
	require.Equal(t, "ok", payload["status"])
	statuses := payload["statuses"].(map[string]any)
	require.Equal(t, "Filled", statuses["ord-1"])
	require.Equal(t, "New", statuses["ord-2"])
	require.Equal(t, 1, venue.CountPath("/v1/orders/ord-2"))
}

func TestOrderSchemaDescribesWireBody(t *testing.T) {
	app, _ := newTestApp(t, fakevenue.New())
	status, payload := do(t, app, http.MethodGet, "/v1/schema/order", "")
	require.Equal(t, http.StatusOK, status)

	properties := payload["properties"].(map[string]any)
	for _, field := range []string{"ClOrdID", "Markets", "OrderQty", "Symbol", "Currency", "TransactTime", "OrdType", "TimeInForce", "Price", "Side"} {
		require.Contains(t, properties, field)
	}
	require.Equal(t, "string", properties["OrderQty"].(map[string]any)["type"])
	require.NotContains(t, payload["required"], "Price")
}

type stubService struct {
	err error
}

func (s stubService) Venue() string { return "stub" }

func (s stubService) Submit(context.Context, []order.Order) ([]order.SubmitResult, error) {
	return nil, s.err
}

func (s stubService) GetOrders(context.Context, broker.ListFilter) ([]order.Summary, error) {
	return nil, s.err
}

func (s stubService) Refresh(context.Context, []string) (order.FillReport, error) {
	return order.FillReport{}, s.err
}

func (s stubService) Fill(context.Context, string) (order.FillRecord, error) {
	return order.FillRecord{}, s.err
}

func (s stubService) Fills(context.Context, orderstore.FillQuery) ([]order.FillRecord, error) {
	return nil, s.err
}

func TestErrorStatusMapping(t *testing.T) {
	cases := map[errs.Code]int{
		errs.CodeAuth:          http.StatusBadGateway,
		errs.CodeExchange:      http.StatusBadGateway,
		errs.CodeNetwork:       http.StatusGatewayTimeout,
		errs.CodeUnavailable:   http.StatusServiceUnavailable,
		errs.CodeNotFound:      http.StatusNotFound,
		errs.CodeInvalid:       http.StatusBadRequest,
		errs.CodeUnknownStatus: http.StatusBadGateway,
	}
	for code, want := range cases {
		app := New(stubService{err: errs.New("talos", code, errs.WithMessage("boom"))}, Options{Logger: quietLogger()})
		status, payload := do(t, app, http.MethodGet, "/v1/orders", "")
		require.Equal(t, want, status, "code %s", code)
		require.Equal(t, string(code), payload["code"])
	}

	app := New(stubService{err: errors.New("disk on fire")}, Options{Logger: quietLogger()})
	status, payload := do(t, app, http.MethodGet, "/v1/fills", "")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "disk on fire", payload["error"])
	require.NotContains(t, payload, "code")
}
