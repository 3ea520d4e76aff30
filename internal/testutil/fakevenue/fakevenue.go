// Package fakevenue provides a scripted in-memory transport that plays the venue side of the
// order REST API in tests.
package fakevenue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/coachpo/orderbroker/internal/infra/transport"
)

// Handler answers one request.
type Handler func(req transport.Request) (transport.Response, error)

// Venue is a concurrency-safe transport.Transport with routes keyed by method and path.
type Venue struct {
	mu       sync.Mutex
	routes   map[string]Handler
	fallback Handler
	requests []transport.Request

	secret string
}

var _ transport.Transport = (*Venue)(nil)

// New returns a venue that answers 404 to unrouted requests.
func New() *Venue {
	return &Venue{
		routes:   make(map[string]Handler),
		fallback: JSON(http.StatusNotFound, `{"error":"not found"}`),
	}
}

// Handle routes method and path (without query) to h, replacing any earlier route.
func (v *Venue) Handle(method, path string, h Handler) *Venue {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.routes[routeKey(method, path)] = h
	return v
}

// Fallback replaces the handler for unrouted requests.
func (v *Venue) Fallback(h Handler) *Venue {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fallback = h
	return v
}

// RequireSignature makes the venue answer 401 to any request whose signature does not verify
// against secret.
func (v *Venue) RequireSignature(secret string) *Venue {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secret = secret
	return v
}

// Do records req and dispatches it.
func (v *Venue) Do(ctx context.Context, req transport.Request) (transport.Response, error) {
	if err := ctx.Err(); err != nil {
		return transport.Response{}, err
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return transport.Response{}, fmt.Errorf("fakevenue: parse url: %w", err)
	}

	v.mu.Lock()
	v.requests = append(v.requests, cloneRequest(req))
	h, ok := v.routes[routeKey(req.Method, u.Path)]
	if !ok {
		h = v.fallback
	}
	secret := v.secret
	v.mu.Unlock()

	if secret != "" && !verify(secret, req, u) {
		return transport.Response{StatusCode: http.StatusUnauthorized, Body: []byte(`{"error":"invalid signature"}`)}, nil
	}
	return h(req)
}

// Requests returns every request received so far, in arrival order.
func (v *Venue) Requests() []transport.Request {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]transport.Request, len(v.requests))
	copy(out, v.requests)
	return out
}

// Count returns how many requests used method.
func (v *Venue) Count(method string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, req := range v.requests {
		if req.Method == method {
			n++
		}
	}
	return n
}

// CountPath returns how many requests targeted path.
func (v *Venue) CountPath(path string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, req := range v.requests {
		if u, err := url.Parse(req.URL); err == nil && u.Path == path {
			n++
		}
	}
	return n
}

// JSON answers with a fixed status and body.
func JSON(status int, body string) Handler {
	return func(transport.Request) (transport.Response, error) {
		return transport.Response{StatusCode: status, Body: []byte(body)}, nil
	}
}

// Fail answers with a transport failure.
func Fail(err error) Handler {
	return func(transport.Request) (transport.Response, error) {
		return transport.Response{}, err
	}
}

// OrderStatus answers a per-order query with one execution report carrying status.
func OrderStatus(status string) Handler {
	body, _ := json.Marshal(map[string]any{
		"data": []map[string]any{{"OrdStatus": status}},
	})
	return JSON(http.StatusOK, string(body))
}

// Sequence answers with each handler in turn and repeats the last one.
func Sequence(handlers ...Handler) Handler {
	var mu sync.Mutex
	next := 0
	return func(req transport.Request) (transport.Response, error) {
		mu.Lock()
		h := handlers[next]
		if next < len(handlers)-1 {
			next++
		}
		mu.Unlock()
		return h(req)
	}
}

func routeKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

func cloneRequest(req transport.Request) transport.Request {
	out := req
	out.Header = req.Header.Clone()
	if req.Body != nil {
		out.Body = append([]byte(nil), req.Body...)
	}
	return out
}

// verify rebuilds the canonical string the way the venue does and checks the signature header.
func verify(secret string, req transport.Request, u *url.URL) bool {
	ts := req.Header.Get("TALOS-TS")
	parts := []string{req.Method, ts, u.Host, u.Path}
	payload := u.RawQuery
	if req.Method == http.MethodPost {
		payload = string(req.Body)
	}
	if payload != "" {
		parts = append(parts, payload)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strings.Join(parts, "\n")))
	expected := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(req.Header.Get("TALOS-SIGN")))
}
