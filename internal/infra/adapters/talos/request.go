package talos

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/coachpo/orderbroker/errs"
	"github.com/coachpo/orderbroker/internal/domain/broker"
	"github.com/coachpo/orderbroker/internal/infra/transport"
)

// Authentication headers.
const (
	HeaderKey       = "TALOS-KEY"
	HeaderSignature = "TALOS-SIGN"
	HeaderTimestamp = "TALOS-TS"
)

// RequestBuilder assembles signed request descriptors. It performs no I/O.
type RequestBuilder struct {
	scheme string
	host   string
	creds  broker.Credentials
}

// NewRequestBuilder returns a builder for the venue host.
func NewRequestBuilder(scheme, host string, creds broker.Credentials) *RequestBuilder {
	if scheme == "" {
		scheme = defaultScheme
	}
	return &RequestBuilder{scheme: scheme, host: host, creds: creds}
}

// Ready reports whether the builder holds usable credentials.
func (b *RequestBuilder) Ready() error {
	if strings.TrimSpace(b.creds.APIKey) == "" {
		return errs.New(venueName, errs.CodeAuth, errs.WithMessage("api key empty"))
	}
	if strings.TrimSpace(b.creds.Secret) == "" {
		return errs.New(venueName, errs.CodeAuth, errs.WithMessage("signing secret empty"))
	}
	return nil
}

// Build signs [method, timestamp, host, path, payload] and returns the request. payload is the
// encoded query string for GET and the serialized body for POST; it joins the signed parts only
// when non-empty.
func (b *RequestBuilder) Build(method, path, payload, timestamp string) (transport.Request, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method != http.MethodGet && method != http.MethodPost {
		return transport.Request{}, errs.New(venueName, errs.CodeInvalid,
			errs.WithMessage("unsupported method "+method))
	}
	if err := b.Ready(); err != nil {
		return transport.Request{}, err
	}

	parts := []string{method, timestamp, b.host, path}
	if payload != "" {
		parts = append(parts, payload)
	}
	signature, err := Sign(b.creds.Secret, parts)
	if err != nil {
		return transport.Request{}, err
	}

	header := http.Header{}
	header.Set(HeaderKey, b.creds.APIKey)
	header.Set(HeaderSignature, signature)
	header.Set(HeaderTimestamp, timestamp)

	target := url.URL{Scheme: b.scheme, Host: b.host, Path: path}
	req := transport.Request{Method: method, Header: header}
	switch method {
	case http.MethodGet:
		target.RawQuery = payload
	case http.MethodPost:
		header.Set("Content-Type", "application/json")
		req.Body = []byte(payload)
	}
	req.URL = target.String()
	return req, nil
}

// listingQuery renders the listing filters in the venue's fixed key order. Absent filters stay
// present with empty values.
func listingQuery(filter broker.ListFilter) string {
	var sb strings.Builder
	sb.WriteString("StartDate=")
	sb.WriteString(url.QueryEscape(filter.StartDate))
	sb.WriteString("&EndDate=")
	sb.WriteString(url.QueryEscape(filter.EndDate))
	sb.WriteString("&OrderID=")
	sb.WriteString(url.QueryEscape(filter.OrderID))
	return sb.String()
}
