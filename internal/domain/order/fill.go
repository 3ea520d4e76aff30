package order

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// FillRecord is the last observed status of one order. It is a point-in-time snapshot that is
// overwritten by every later observation, never appended to.
type FillRecord struct {
	OrderID    string    `json:"orderId"`
	Status     Status    `json:"status"`
	ObservedAt time.Time `json:"observedAt"`
	// CheckedAt is the last time the venue was asked for this order, whether or not the query
	// succeeded. It is never earlier than ObservedAt.
	CheckedAt time.Time `json:"checkedAt"`
}

// Terminal reports whether the record's status is final.
func (r FillRecord) Terminal() bool {
	return r.Status.Terminal()
}

// FillReport aggregates a multi-id status query by id. Every requested id appears in exactly one
// of Statuses or Errors.
type FillReport struct {
	Statuses map[string]Status
	Errors   map[string]error
}

// NewFillReport returns an empty report sized for n ids.
func NewFillReport(n int) FillReport {
	return FillReport{
		Statuses: make(map[string]Status, n),
		Errors:   make(map[string]error),
	}
}

// Failed returns the ids whose query failed, sorted.
func (r FillReport) Failed() []string {
	ids := make([]string, 0, len(r.Errors))
	for id := range r.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Err joins the per-id errors in id order, or returns nil when every id succeeded.
func (r FillReport) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	failed := r.Failed()
	joined := make([]error, 0, len(failed))
	for _, id := range failed {
		joined = append(joined, fmt.Errorf("order %s: %w", id, r.Errors[id]))
	}
	return errors.Join(joined...)
}

// Records converts the successful statuses into fill records observed at the given time.
func (r FillReport) Records(observedAt time.Time) []FillRecord {
	ids := make([]string, 0, len(r.Statuses))
	for id := range r.Statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]FillRecord, 0, len(ids))
	for _, id := range ids {
		at := observedAt.UTC()
		out = append(out, FillRecord{OrderID: id, Status: r.Statuses[id], ObservedAt: at, CheckedAt: at})
	}
	return out
}

// SubmitResult is the outcome of sending one order. Err is nil only when the venue accepted
// the order; callers must inspect every result of a batch.
type SubmitResult struct {
	ClientOrderID string
	StatusCode    int
	Body          []byte
	// Ack is the status the venue assigned on acceptance, when the response carried one.
	Ack Status
	// OrderID is the venue-assigned order id from the acknowledgement, when present. Status
	// queries are keyed by it.
	OrderID string
	Err     error
}

// OK reports whether the venue accepted the order.
func (r SubmitResult) OK() bool {
	return r.Err == nil
}

// Summary is one entry of the venue's order listing. Numeric fields stay in the venue's string
// form since the listing may leave them empty.
type Summary struct {
	OrderID       string   `json:"OrderID"`
	ClientOrderID string   `json:"ClOrdID"`
	Symbol        string   `json:"Symbol"`
	Currency      string   `json:"Currency,omitempty"`
	Side          Side     `json:"Side"`
	Type          Type     `json:"OrdType"`
	Quantity      string   `json:"OrderQty"`
	Price         string   `json:"Price,omitempty"`
	CumQty        string   `json:"CumQty,omitempty"`
	AvgPx         string   `json:"AvgPx,omitempty"`
	Status        Status   `json:"OrdStatus"`
	SubmitTime    string   `json:"SubmitTime,omitempty"`
	Markets       []string `json:"Markets,omitempty"`
}
