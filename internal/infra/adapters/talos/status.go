package talos

import (
	"fmt"
	"sort"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/coachpo/orderbroker/errs"
	"github.com/coachpo/orderbroker/internal/domain/order"
)

// venueStatuses is the documented OrdStatus vocabulary. Matching is exact and case-sensitive.
var venueStatuses = map[string]order.Status{
	"New":             order.StatusNew,
	"PendingNew":      order.StatusPendingNew,
	"PartiallyFilled": order.StatusPartiallyFilled,
	"Filled":          order.StatusFilled,
	"Canceled":        order.StatusCanceled,
	"PendingCancel":   order.StatusPendingCancel,
	"Rejected":        order.StatusRejected,
	"PendingReplace":  order.StatusPendingReplace,
	"DoneForDay":      order.StatusDoneForDay,
}

// VenueStatuses returns the documented venue status strings, sorted.
func VenueStatuses() []string {
	out := make([]string, 0, len(venueStatuses))
	for raw := range venueStatuses {
		out = append(out, raw)
	}
	sort.Strings(out)
	return out
}

// ParseStatus maps a venue OrdStatus to the internal enumeration. Unrecognised values fail with
// CodeUnknownStatus instead of being guessed.
func ParseStatus(raw string) (order.Status, error) {
	status, ok := venueStatuses[raw]
	if !ok {
		return "", errs.New(venueName, errs.CodeUnknownStatus,
			errs.WithMessage(fmt.Sprintf("unrecognised order status %q", raw)),
			errs.WithRawMessage(raw))
	}
	return status, nil
}

var parsers fastjson.ParserPool

// firstReportStatus extracts data[0].OrdStatus from an order status body.
func firstReportStatus(body []byte) (order.Status, error) {
	p := parsers.Get()
	defer parsers.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return "", errs.New(venueName, errs.CodeExchange,
			errs.WithMessage("decode order status"), errs.WithRawMessage(string(body)), errs.WithCause(err))
	}
	reports := v.GetArray("data")
	if len(reports) == 0 {
		return "", errs.New(venueName, errs.CodeExchange,
			errs.WithMessage("order status response has no execution report"), errs.WithRawMessage(string(body)))
	}
	raw := reports[0].Get("OrdStatus")
	if raw == nil || raw.Type() != fastjson.TypeString {
		return "", errs.New(venueName, errs.CodeExchange,
			errs.WithMessage("execution report missing OrdStatus"), errs.WithRawMessage(string(body)))
	}
	return ParseStatus(string(raw.GetStringBytes()))
}

// parseAck reads the status and venue order id from a submission acknowledgement when present.
// It never fails: acknowledgement bodies are not part of the success contract.
func parseAck(body []byte) (order.Status, string) {
	if len(body) == 0 {
		return "", ""
	}
	p := parsers.Get()
	defer parsers.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return "", ""
	}
	candidates := []*fastjson.Value{v}
	if reports := v.GetArray("data"); len(reports) > 0 {
		candidates = append(candidates, reports[0])
	}
	var (
		status  order.Status
		orderID string
	)
	for _, candidate := range candidates {
		if status == "" {
			if raw := candidate.Get("OrdStatus"); raw != nil && raw.Type() == fastjson.TypeString {
				status = venueStatuses[string(raw.GetStringBytes())]
			}
		}
		if orderID == "" {
			if raw := candidate.Get("OrderID"); raw != nil && raw.Type() == fastjson.TypeString {
				orderID = strings.TrimSpace(string(raw.GetStringBytes()))
			}
		}
	}
	return status, orderID
}
