// Package httpserver exposes the broker's HTTP control surface: order submission, listing and
// fill status queries.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/coachpo/orderbroker/errs"
	"github.com/coachpo/orderbroker/internal/domain/broker"
	"github.com/coachpo/orderbroker/internal/domain/order"
	"github.com/coachpo/orderbroker/internal/domain/orderstore"
)

const (
	maxJSONBodyBytes = 1 << 20 // 1 MiB
	maxFillIDs       = 500

	healthPath      = "/health"
	ordersPath      = "/v1/orders"
	fillsPath       = "/v1/fills"
	fillDetailPath  = fillsPath + "/:id"
	orderSchemaPath = "/v1/schema/order"
)

// Service is the broker surface the control API drives.
type Service interface {
	Venue() string
	Submit(ctx context.Context, orders []order.Order) ([]order.SubmitResult, error)
	GetOrders(ctx context.Context, filter broker.ListFilter) ([]order.Summary, error)
	Refresh(ctx context.Context, orderIDs []string) (order.FillReport, error)
	Fill(ctx context.Context, orderID string) (order.FillRecord, error)
	Fills(ctx context.Context, query orderstore.FillQuery) ([]order.FillRecord, error)
}

// Options configure the control API.
type Options struct {
	AppName     string
	Environment string
	Logger      logrus.FieldLogger
	// Clock stamps orders submitted without a transact time. Defaults to time.Now.
	Clock func() time.Time
	// Ready, when set, is consulted by the health check; an error reports 503.
	Ready func(ctx context.Context) error
}

type server struct {
	service     Service
	environment string
	logger      logrus.FieldLogger
	clock       func() time.Time
	ready       func(ctx context.Context) error
	orderSchema *jsonschema.Schema
}

// New builds the fiber application serving the control API. The app runs immutable: ids read
// from the query end up as fill record keys and must not alias the request buffer.
func New(service Service, opts Options) *fiber.App {
	if opts.AppName == "" {
		opts.AppName = "orderbroker"
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &server{
		service:     service,
		environment: opts.Environment,
		logger:      opts.Logger.WithField("component", "control_api"),
		clock:       opts.Clock,
		ready:       opts.Ready,
		orderSchema: OrderSchema(),
	}

	app := fiber.New(fiber.Config{
		AppName:               opts.AppName,
		BodyLimit:             maxJSONBodyBytes,
		DisableStartupMessage: true,
		Immutable:             true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(s.logRequests)

	app.Get(healthPath, s.health)
	app.Post(ordersPath, s.submitOrders)
	app.Get(ordersPath, s.listOrders)
	app.Get(fillsPath, s.getFills)
	app.Get(fillDetailPath, s.getFill)
	app.Get(orderSchemaPath, s.getOrderSchema)

	return app
}

// OrderSchema describes the order wire body. Decimal fields are strings on the wire.
func OrderSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(decimal.Decimal{}) {
				return &jsonschema.Schema{Type: "string", Pattern: `^-?[0-9]+(\.[0-9]+)?$`}
			}
			return nil
		},
	}
	return reflector.Reflect(order.Order{})
}

func (s *server) health(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":      "ok",
		"venue":       s.service.Venue(),
		"environment": s.environment,
	}
	if s.ready != nil {
		if err := s.ready(c.UserContext()); err != nil {
			body["status"] = "unavailable"
			body["error"] = err.Error()
			return c.Status(http.StatusServiceUnavailable).JSON(body)
		}
	}
	return c.JSON(body)
}

type submitRequest struct {
	Orders []order.CreateParams `json:"orders"`
}

type submitResult struct {
	ClientOrderID string `json:"clientOrderId"`
	Accepted      bool   `json:"accepted"`
	HTTPStatus    int    `json:"httpStatus,omitempty"`
	Ack           string `json:"ack,omitempty"`
	OrderID       string `json:"orderId,omitempty"`
	Code          string `json:"code,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (s *server) submitOrders(c *fiber.Ctx) error {
	var req submitRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "decode orders: "+err.Error())
	}
	if len(req.Orders) == 0 {
		return fiber.NewError(http.StatusBadRequest, "orders required")
	}
	orders := make([]order.Order, 0, len(req.Orders))
	for _, params := range req.Orders {
		if params.TransactTime.IsZero() {
			params.TransactTime = s.clock()
		}
		orders = append(orders, order.Create(params))
	}

	results, err := s.service.Submit(c.UserContext(), orders)
	if err != nil {
		return err
	}
	out := make([]submitResult, 0, len(results))
	accepted := 0
	for _, result := range results {
		item := submitResult{
			ClientOrderID: result.ClientOrderID,
			Accepted:      result.OK(),
			HTTPStatus:    result.StatusCode,
			Ack:           string(result.Ack),
			OrderID:       result.OrderID,
		}
		if result.Err != nil {
			item.Code = string(errs.CodeOf(result.Err))
			item.Error = result.Err.Error()
		} else {
			accepted++
		}
		out = append(out, item)
	}
	status := "ok"
	if accepted < len(out) {
		status = "partial"
	}
	return c.JSON(fiber.Map{"status": status, "results": out})
}

func (s *server) listOrders(c *fiber.Ctx) error {
	filter := broker.ListFilter{
		StartDate: c.Query("start"),
		EndDate:   c.Query("end"),
		OrderID:   c.Query("order_id"),
	}
	summaries, err := s.service.GetOrders(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "orders": summaries})
}

type fillError struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

// getFills queries the venue live when ids are given and lists stored records otherwise.
func (s *server) getFills(c *fiber.Ctx) error {
	raw := strings.TrimSpace(c.Query("ids"))
	if raw == "" {
		return s.listStoredFills(c)
	}
	ids := strings.Split(raw, ",")
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}
	if len(ids) > maxFillIDs {
		return fiber.NewError(http.StatusBadRequest, "too many ids; limit is "+strconv.Itoa(maxFillIDs))
	}
	report, err := s.service.Refresh(c.UserContext(), ids)
	if err != nil {
		return err
	}
	failures := make(map[string]fillError, len(report.Errors))
	for id, ferr := range report.Errors {
		failures[id] = fillError{Code: string(errs.CodeOf(ferr)), Error: ferr.Error()}
	}
	status := "ok"
	if len(failures) > 0 {
		status = "partial"
	}
	return c.JSON(fiber.Map{"status": status, "statuses": report.Statuses, "errors": failures})
}

func (s *server) listStoredFills(c *fiber.Ctx) error {
	query := orderstore.FillQuery{TransientOnly: c.QueryBool("transient", false)}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return fiber.NewError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		query.Limit = n
	}
	records, err := s.service.Fills(c.UserContext(), query)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "fills": records})
}

func (s *server) getFill(c *fiber.Ctx) error {
	record, err := s.service.Fill(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "fill": record})
}

func (s *server) getOrderSchema(c *fiber.Ctx) error {
	return c.JSON(s.orderSchema)
}

func (s *server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.WithFields(logrus.Fields{
		"method":  c.Method(),
		"path":    c.Path(),
		"status":  c.Response().StatusCode(),
		"latency": time.Since(start).String(),
	}).Debug("control api request")
	return err
}

func (s *server) handleError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Path()).Warn("control api request failed")
	}
	body := fiber.Map{"status": "error", "error": err.Error()}
	if code := errs.CodeOf(err); code != "" {
		body["code"] = string(code)
	}
	return c.Status(status).JSON(body)
}

// statusFor maps an error to the control API status. Venue-side failures are gateway errors.
func statusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	if errors.Is(err, orderstore.ErrNotFound) {
		return http.StatusNotFound
	}
	switch errs.CodeOf(err) {
	case errs.CodeInvalid:
		return http.StatusBadRequest
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeAuth, errs.CodeSubmission, errs.CodeExchange, errs.CodeUnknownStatus:
		return http.StatusBadGateway
	case errs.CodeNetwork:
		return http.StatusGatewayTimeout
	case errs.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
