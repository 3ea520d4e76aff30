package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// numericFromString parses a journal quantity or price. The value must be a plain decimal;
// it is stored exactly, without float rounding.
func numericFromString(value string) (pgtype.Numeric, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Numeric{}, fmt.Errorf("numeric value required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return pgtype.Numeric{}, fmt.Errorf("parse numeric %q: %w", trimmed, err)
	}
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}, nil
}

// numericFromOptional maps a nil or blank price to SQL NULL.
func numericFromOptional(ptr *string) (pgtype.Numeric, error) {
	if ptr == nil || strings.TrimSpace(*ptr) == "" {
		return pgtype.Numeric{}, nil
	}
	return numericFromString(*ptr)
}
