package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/coachpo/orderbroker/errs"
)

// DefaultMaxResponseBytes caps a venue response body when HTTPOptions.MaxResponseBytes is unset.
const DefaultMaxResponseBytes = 8 << 20

// HTTPOptions configures an HTTPTransport.
type HTTPOptions struct {
	// Timeout bounds each request including reading the body. Zero means no timeout: a request
	// waits until the venue answers or ctx is done.
	Timeout time.Duration
	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit float64
	// Burst is the limiter bucket size; values below 1 become 1.
	Burst int
	// MaxIdleConnsPerHost tunes connection reuse; zero keeps the net/http default.
	MaxIdleConnsPerHost int
	// MaxResponseBytes bounds the response body read. Larger bodies fail the request.
	MaxResponseBytes int64
	// Client overrides the underlying client, mainly for tests.
	Client *http.Client
}

// HTTPTransport executes requests with net/http.
type HTTPTransport struct {
	client   *http.Client
	limiter  *rate.Limiter
	maxBytes int64
	metrics  *metrics
}

// NewHTTP constructs an HTTPTransport.
func NewHTTP(opts HTTPOptions) *HTTPTransport {
	client := opts.Client
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.MaxIdleConnsPerHost > 0 {
			transport.MaxIdleConnsPerHost = opts.MaxIdleConnsPerHost
		}
		client = &http.Client{Transport: transport, Timeout: opts.Timeout}
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	maxBytes := opts.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}
	return &HTTPTransport{
		client:   client,
		limiter:  limiter,
		maxBytes: maxBytes,
		metrics:  newMetrics(),
	}
}

// Do executes req and reads the response body, up to the configured cap, verbatim.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			t.metrics.record(ctx, req.Method, "throttled", 0)
			return Response{}, errs.New("", errs.CodeNetwork,
				errs.WithMessage("rate limiter wait"), errs.WithCause(err))
		}
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Response{}, errs.New("", errs.CodeInvalid,
			errs.WithMessage("create request"), errs.WithCause(err))
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		t.metrics.record(ctx, req.Method, "error", time.Since(start))
		return Response{}, errs.New("", errs.CodeNetwork,
			errs.WithMessage(fmt.Sprintf("%s %s", req.Method, httpReq.URL.Path)), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBytes+1))
	if err != nil {
		t.metrics.record(ctx, req.Method, "error", time.Since(start))
		return Response{}, errs.New("", errs.CodeNetwork,
			errs.WithMessage("read response body"), errs.WithHTTP(resp.StatusCode), errs.WithCause(err))
	}
	if int64(len(respBody)) > t.maxBytes {
		t.metrics.record(ctx, req.Method, "oversized", time.Since(start))
		return Response{}, errs.New("", errs.CodeExchange,
			errs.WithMessage(fmt.Sprintf("response body exceeds %d bytes", t.maxBytes)), errs.WithHTTP(resp.StatusCode))
	}
	t.metrics.record(ctx, req.Method, http.StatusText(resp.StatusCode), time.Since(start))
	return Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
