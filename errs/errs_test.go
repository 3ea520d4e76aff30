package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesVenueAndCause(t *testing.T) {
	err := New(
		"talos",
		CodeSubmission,
		WithHTTP(500),
		WithMessage("order rejected by venue"),
		WithRawMessage(`{"error":"boom"}`),
		WithVenueField("client_order_id", "abc"),
		WithVenueField("path", "/v1/orders"),
		WithCause(errors.New("talos http 500")),
	)

	out := err.Error()
	for _, want := range []string{
		"exchange=talos",
		"code=submission",
		"http=500",
		`message="order rejected by venue"`,
		`raw_msg="{\"error\":\"boom\"}"`,
		`venue=client_order_id="abc",path="/v1/orders"`,
		`cause="talos http 500"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in error string: %s", want, out)
		}
	}
}

func TestWithVenueFieldIgnoresEmptyKey(t *testing.T) {
	err := New("talos", CodeExchange, WithVenueField("  ", "x"))
	if len(err.VenueMetadata) != 0 {
		t.Fatalf("expected empty metadata, got %v", err.VenueMetadata)
	}
}

func TestNilErrorString(t *testing.T) {
	var e *E
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("expected <nil> string for nil error, got %q", got)
	}
}

func TestIsCodeWalksWrappedEnvelopes(t *testing.T) {
	inner := New("", CodeNetwork, WithMessage("dial tcp: timeout"))
	outer := New("talos", CodeExchange, WithCause(inner))
	wrapped := fmt.Errorf("get fills: %w", outer)

	if !IsCode(wrapped, CodeExchange) {
		t.Fatal("expected outer code to match")
	}
	if !IsCode(wrapped, CodeNetwork) {
		t.Fatal("expected inner code to match through cause chain")
	}
	if IsCode(wrapped, CodeAuth) {
		t.Fatal("auth code should not match")
	}
	if IsCode(errors.New("plain"), CodeAuth) {
		t.Fatal("plain error should not match any code")
	}
}

func TestCodeOfAndHTTPStatus(t *testing.T) {
	err := fmt.Errorf("wrap: %w", New("talos", CodeAuth, WithHTTP(401)))
	if CodeOf(err) != CodeAuth {
		t.Fatalf("expected auth code, got %q", CodeOf(err))
	}
	if HTTPStatus(err) != 401 {
		t.Fatalf("expected http 401, got %d", HTTPStatus(err))
	}
	if CodeOf(errors.New("x")) != "" || HTTPStatus(errors.New("x")) != 0 {
		t.Fatal("expected zero values for plain error")
	}
}
