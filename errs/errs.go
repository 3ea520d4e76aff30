// Package errs provides the structured error envelope shared by the broker, its venue adapters and
// transports.
package errs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Code identifies the failure family of an error.
type Code string

const (
	// CodeAuth covers signing failures (empty or malformed secret) and venue 401/403 responses.
	CodeAuth Code = "auth"
	// CodeNetwork covers connection, DNS and timeout failures at the transport boundary.
	CodeNetwork Code = "network"
	// CodeSubmission marks a non-success response to an order POST.
	CodeSubmission Code = "submission"
	// CodeUnknownStatus marks a venue status string outside the closed order status enumeration.
	CodeUnknownStatus Code = "unknown_status"
	// CodeInvalid marks malformed input detected before any network call.
	CodeInvalid Code = "invalid_request"
	// CodeExchange covers other venue-side failures such as unexpected status codes or bodies.
	CodeExchange Code = "exchange_error"
	// CodeNotFound indicates a missing resource.
	CodeNotFound Code = "not_found"
	// CodeUnavailable indicates the service is temporarily unavailable.
	CodeUnavailable Code = "unavailable"
)

// E captures structured error information produced across the broker.
type E struct {
	Exchange      string
	Code          Code
	HTTP          int
	RawMsg        string
	Message       string
	VenueMetadata map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the exchange and error code.
func New(exchange string, code Code, opts ...Option) *E {
	e := &E{
		Exchange: strings.TrimSpace(exchange),
		Code:     code,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithRawMessage captures the raw venue response body. It is kept verbatim.
func WithRawMessage(msg string) Option {
	return func(e *E) {
		e.RawMsg = msg
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithVenueField appends a single venue metadata key/value pair.
func WithVenueField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.VenueMetadata == nil {
			e.VenueMetadata = make(map[string]string, 1)
		}
		e.VenueMetadata[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	exchange := e.Exchange
	if exchange == "" {
		exchange = "unknown"
	}
	parts = append(parts, "exchange="+exchange)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.RawMsg != "" {
		parts = append(parts, "raw_msg="+strconv.Quote(e.RawMsg))
	}
	if len(e.VenueMetadata) > 0 {
		keys := make([]string, 0, len(e.VenueMetadata))
		for k := range e.VenueMetadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.VenueMetadata[k]))
		}
		parts = append(parts, "venue="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// IsCode reports whether any envelope in err's chain carries the given code.
func IsCode(err error, code Code) bool {
	var e *E
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.cause
	}
	return false
}

// CodeOf returns the code of the outermost envelope in err's chain, or "" when there is none.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus returns the venue HTTP status recorded on err, or 0.
func HTTPStatus(err error) int {
	var e *E
	if errors.As(err, &e) {
		return e.HTTP
	}
	return 0
}
