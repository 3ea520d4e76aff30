package order

import (
	"fmt"
	"strings"

	"github.com/coachpo/orderbroker/errs"
)

// Validate checks the fields the venue requires for o's order type. It reports every problem
// in one CodeInvalid error.
func Validate(o Order) error {
	var problems []string
	if strings.TrimSpace(o.ClientOrderID) == "" {
		problems = append(problems, "ClOrdID required")
	}
	if strings.TrimSpace(o.Symbol) == "" {
		problems = append(problems, "Symbol required")
	}
	if strings.TrimSpace(o.Currency) == "" {
		problems = append(problems, "Currency required")
	}
	if strings.TrimSpace(o.TransactTime) == "" {
		problems = append(problems, "TransactTime required")
	}
	if o.Quantity.IsZero() {
		problems = append(problems, "OrderQty must be non-zero")
	}
	if !o.Side.Valid() {
		problems = append(problems, fmt.Sprintf("unsupported Side %q", o.Side))
	}
	if o.TimeInForce != "" && !o.TimeInForce.Valid() {
		problems = append(problems, fmt.Sprintf("unsupported TimeInForce %q", o.TimeInForce))
	}
	if !o.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unsupported OrdType %q", o.Type))
	} else if o.Type.RequiresPrice() {
		if o.Price == nil {
			problems = append(problems, fmt.Sprintf("Price required for %s orders", o.Type))
		} else if !o.Price.IsPositive() {
			problems = append(problems, "Price must be positive")
		}
	}
	for i, market := range o.Markets {
		if strings.TrimSpace(market) == "" {
			problems = append(problems, fmt.Sprintf("Markets[%d] empty", i))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return errs.New("", errs.CodeInvalid,
		errs.WithMessage(strings.Join(problems, "; ")),
		errs.WithVenueField("client_order_id", o.ClientOrderID))
}
