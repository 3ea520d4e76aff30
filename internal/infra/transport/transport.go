// Package transport executes signed request descriptors against a venue.
package transport

import (
	"context"
	"net/http"
)

// Request is a fully built request descriptor. Builders produce it without performing I/O.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the status code and full body returned by the venue.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport executes one request. Implementations must be safe for concurrent use. Failures to
// obtain a response (connection, DNS, timeout) are returned as errors carrying errs.CodeNetwork;
// any HTTP status, including 4xx/5xx, is a Response.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// Func adapts a function to the Transport interface.
type Func func(ctx context.Context, req Request) (Response, error)

// Do calls f.
func (f Func) Do(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
