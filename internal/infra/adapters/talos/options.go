// Package talos implements the broker capability set against the Talos order REST API.
package talos

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coachpo/orderbroker/internal/domain/broker"
	"github.com/coachpo/orderbroker/internal/infra/transport"
)

const (
	venueName          = "talos"
	defaultScheme      = "https"
	defaultOrderPath   = "/v1/orders"
	defaultConcurrency = 8
)

// Config captures user-overridable Talos settings.
type Config struct {
	// Host is the venue endpoint host, e.g. tal-87.sandbox.talostrading.com. It is signed as-is.
	Host string
	// OrderPath is the order collection path; per-order queries append "/{id}".
	OrderPath string
	// Scheme defaults to https. Plain http is only meant for local venue simulators.
	Scheme string
	// Concurrency bounds the parallel per-id status queries issued by GetFills.
	Concurrency int
}

// Options configure the Talos adapter.
type Options struct {
	Config      Config
	Credentials broker.Credentials
	Transport   transport.Transport
	// Clock supplies the current time for request timestamps. Defaults to time.Now.
	Clock  func() time.Time
	Logger logrus.FieldLogger
}

func withDefaults(in Options) Options {
	in.Config.Host = strings.TrimSpace(in.Config.Host)
	if strings.TrimSpace(in.Config.OrderPath) == "" {
		in.Config.OrderPath = defaultOrderPath
	}
	if !strings.HasPrefix(in.Config.OrderPath, "/") {
		in.Config.OrderPath = "/" + in.Config.OrderPath
	}
	in.Config.OrderPath = strings.TrimSuffix(in.Config.OrderPath, "/")
	if strings.TrimSpace(in.Config.Scheme) == "" {
		in.Config.Scheme = defaultScheme
	}
	in.Config.Scheme = strings.ToLower(strings.TrimSpace(in.Config.Scheme))
	if in.Config.Concurrency <= 0 {
		in.Config.Concurrency = defaultConcurrency
	}
	if in.Clock == nil {
		in.Clock = time.Now
	}
	if in.Logger == nil {
		in.Logger = logrus.StandardLogger()
	}
	in.Logger = in.Logger.WithField("venue", venueName)
	return in
}

func (o Options) orderPath() string {
	return o.Config.OrderPath
}

func (o Options) orderStatusPath(orderID string) string {
	return o.Config.OrderPath + "/" + orderID
}
