// Package broker assembles venue brokers and layers the submission journal and fill
// reconciliation on top of them.
package broker

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coachpo/orderbroker/errs"
	"github.com/coachpo/orderbroker/internal/domain/broker"
	"github.com/coachpo/orderbroker/internal/infra/adapters/talos"
	"github.com/coachpo/orderbroker/internal/infra/transport"
)

// VenueTalos selects the Talos adapter.
const VenueTalos = "talos"

// Settings carry everything needed to construct a venue broker. The venue is fixed at
// construction; there is no runtime switching.
type Settings struct {
	Venue       string
	Host        string
	OrderPath   string
	Scheme      string
	Concurrency int
	Credentials broker.Credentials
	Transport   transport.Transport
	Clock       func() time.Time
	Logger      logrus.FieldLogger
}

// New returns the broker for settings.Venue.
func New(settings Settings) (broker.Broker, error) {
	venue := strings.ToLower(strings.TrimSpace(settings.Venue))
	switch venue {
	case VenueTalos:
		b, err := talos.New(talos.Options{
			Config: talos.Config{
				Host:        settings.Host,
				OrderPath:   settings.OrderPath,
				Scheme:      settings.Scheme,
				Concurrency: settings.Concurrency,
			},
			Credentials: settings.Credentials,
			Transport:   settings.Transport,
			Clock:       settings.Clock,
			Logger:      settings.Logger,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, errs.New(venue, errs.CodeInvalid, errs.WithMessage("venue not supported: "+settings.Venue))
	}
}
