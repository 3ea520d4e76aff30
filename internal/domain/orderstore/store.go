// Package orderstore defines persistence contracts for submission receipts and fill snapshots.
package orderstore

import (
	"context"
	"errors"
	"time"

	"github.com/coachpo/orderbroker/internal/domain/order"
)

// ErrNotFound is returned when no fill record exists for an order id.
var ErrNotFound = errors.New("orderstore: fill record not found")

// Submission is the persisted receipt of one order POST.
type Submission struct {
	ClientOrderID string         `json:"clientOrderId"`
	Venue         string         `json:"venue"`
	Symbol        string         `json:"symbol"`
	Side          string         `json:"side"`
	Type          string         `json:"type"`
	Quantity      string         `json:"quantity"`
	Price         *string        `json:"price,omitempty"`
	HTTPStatus    int            `json:"httpStatus"`
	Accepted      bool           `json:"accepted"`
	Error         string         `json:"error,omitempty"`
	SubmittedAt   int64          `json:"submittedAt"` // Unix milliseconds
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NewSubmission builds the receipt for o from its submit result.
func NewSubmission(venue string, o order.Order, result order.SubmitResult, submittedAt int64) Submission {
	sub := Submission{
		ClientOrderID: o.ClientOrderID,
		Venue:         venue,
		Symbol:        o.Symbol,
		Side:          string(o.Side),
		Type:          string(o.Type),
		Quantity:      o.Quantity.String(),
		HTTPStatus:    result.StatusCode,
		Accepted:      result.OK(),
		SubmittedAt:   submittedAt,
	}
	if o.Price != nil {
		price := o.Price.String()
		sub.Price = &price
	}
	if result.Err != nil {
		sub.Error = result.Err.Error()
	}
	if result.Ack != "" || result.OrderID != "" {
		sub.Metadata = make(map[string]any, 2)
		if result.Ack != "" {
			sub.Metadata["ack"] = string(result.Ack)
		}
		if result.OrderID != "" {
			sub.Metadata["order_id"] = result.OrderID
		}
	}
	return sub
}

// FillQuery scopes fill record lookups.
type FillQuery struct {
	// TransientOnly restricts results to records whose status is not terminal.
	TransientOnly bool `json:"transientOnly,omitempty"`
	Limit         int  `json:"limit,omitempty"`
}

// Store persists submissions and the latest observed status of each order. It has no delete
// operation: retention belongs to the caller.
type Store interface {
	RecordSubmission(ctx context.Context, submission Submission) error
	// UpsertFill creates the record on first observation and overwrites it afterwards.
	UpsertFill(ctx context.Context, record order.FillRecord) error
	// MarkChecked advances CheckedAt of the already tracked ids among orderIDs without touching
	// their status. Untracked ids are ignored.
	MarkChecked(ctx context.Context, orderIDs []string, at time.Time) error
	Fill(ctx context.Context, orderID string) (order.FillRecord, error)
	// ListFills returns records least recently checked first.
	ListFills(ctx context.Context, query FillQuery) ([]order.FillRecord, error)
}
