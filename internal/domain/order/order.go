// Package order defines the broker's internal order, status and fill representations.
package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the single timestamp format used for TransactTime, request headers and
// canonical signing strings: UTC with microsecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Side is the order direction.
type Side string

// Supported order sides.
const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Type is the venue order type.
type Type string

// Supported order types.
const (
	TypeLimit  Type = "Limit"
	TypeMarket Type = "Market"
)

// Valid reports whether t is a known order type.
func (t Type) Valid() bool {
	return t == TypeLimit || t == TypeMarket
}

// RequiresPrice reports whether orders of this type must carry a price.
func (t Type) RequiresPrice() bool {
	return t == TypeLimit
}

// TimeInForce controls how long an order rests at the venue.
type TimeInForce string

// Supported time-in-force values.
const (
	TimeInForceGoodTillCancel TimeInForce = "GoodTillCancel"
	TimeInForceFillAndKill    TimeInForce = "FillAndKill"
	TimeInForceFillOrKill     TimeInForce = "FillOrKill"
)

// DefaultTimeInForce applies when an order leaves TimeInForce empty.
const DefaultTimeInForce = TimeInForceGoodTillCancel

// Valid reports whether tif is a known value.
func (tif TimeInForce) Valid() bool {
	switch tif {
	case TimeInForceGoodTillCancel, TimeInForceFillAndKill, TimeInForceFillOrKill:
		return true
	default:
		return false
	}
}

// Order is one order to be sent to the venue. JSON tags are the venue wire names.
type Order struct {
	ClientOrderID string           `json:"ClOrdID"`
	Markets       []string         `json:"Markets"`
	Quantity      decimal.Decimal  `json:"OrderQty"`
	Symbol        string           `json:"Symbol"`
	Currency      string           `json:"Currency"`
	TransactTime  string           `json:"TransactTime"`
	Type          Type             `json:"OrdType"`
	TimeInForce   TimeInForce      `json:"TimeInForce"`
	Price         *decimal.Decimal `json:"Price,omitempty"`
	Side          Side             `json:"Side"`
}

// WithDefaults returns a copy of o with unset optional fields filled in.
func (o Order) WithDefaults() Order {
	if o.TimeInForce == "" {
		o.TimeInForce = DefaultTimeInForce
	}
	if o.Markets == nil {
		o.Markets = []string{}
	}
	return o
}

// CreateParams carries everything Create needs except the client order id.
type CreateParams struct {
	Markets      []string         `json:"markets"`
	Quantity     decimal.Decimal  `json:"quantity"`
	TransactTime time.Time        `json:"transactTime"`
	Symbol       string           `json:"symbol"`
	Currency     string           `json:"currency"`
	Type         Type             `json:"orderType"`
	TimeInForce  TimeInForce      `json:"timeInForce,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Side         Side             `json:"side"`
}

// Create builds an Order with a fresh client order id. It performs no I/O and no validation.
func Create(p CreateParams) Order {
	markets := make([]string, len(p.Markets))
	copy(markets, p.Markets)
	var price *decimal.Decimal
	if p.Price != nil {
		value := *p.Price
		price = &value
	}
	o := Order{
		ClientOrderID: NewClientOrderID(),
		Markets:       markets,
		Quantity:      p.Quantity,
		Symbol:        p.Symbol,
		Currency:      p.Currency,
		TransactTime:  FormatTimestamp(p.TransactTime),
		Type:          p.Type,
		TimeInForce:   p.TimeInForce,
		Price:         price,
		Side:          p.Side,
	}
	return o.WithDefaults()
}
