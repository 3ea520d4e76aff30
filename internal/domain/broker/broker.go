// Package broker defines the venue-neutral capability set used by strategy and execution code.
package broker

import (
	"context"

	"github.com/coachpo/orderbroker/internal/domain/order"
)

// ListFilter narrows an order listing. Empty fields mean "no filter" at the venue.
type ListFilter struct {
	StartDate string
	EndDate   string
	OrderID   string
}

// Broker submits orders to one venue account and reconciles their status.
type Broker interface {
	// Venue returns the venue identifier (e.g. "talos").
	Venue() string

	// Submit sends each order as its own request, in the given order. The returned error covers
	// failures detected before any request is sent; per-order outcomes are in the results.
	Submit(ctx context.Context, orders []order.Order) ([]order.SubmitResult, error)

	// GetOrders lists orders matching the filter.
	GetOrders(ctx context.Context, filter ListFilter) ([]order.Summary, error)

	// GetFills queries the current status of each order id. A failure for one id never aborts
	// the others.
	GetFills(ctx context.Context, orderIDs []string) (order.FillReport, error)
}
