package app

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"courier-dispatch/internal/metrics"
)

// Metrics holds every collector the processes register.
type Metrics struct {
	RateLimitExceeded   prometheus.Counter
	DeliveryTransitions *prometheus.CounterVec
	AcceptRaceLost      prometheus.Counter
	LocationUpdates     *prometheus.CounterVec
	LiveFeedClients     prometheus.Gauge
	PrunedLocations     prometheus.Counter
}

// provideMetrics registers collectors on the default registry. A collector
// that is already registered (second container in one process) is reused.
func provideMetrics() (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.RateLimitExceeded, err = register("rate_limit_exceeded_total", metrics.NewRateLimitExceededTotal()); err != nil {
		return nil, err
	}
	if m.DeliveryTransitions, err = register("delivery_transitions_total", metrics.NewDeliveryTransitionsTotal()); err != nil {
		return nil, err
	}
	if m.AcceptRaceLost, err = register("delivery_accept_race_lost_total", metrics.NewAcceptRaceLostTotal()); err != nil {
		return nil, err
	}
	if m.LocationUpdates, err = register("courier_location_updates_total", metrics.NewLocationUpdatesTotal()); err != nil {
		return nil, err
	}
	if m.LiveFeedClients, err = register("livefeed_clients", metrics.NewLiveFeedClients()); err != nil {
		return nil, err
	}
	if m.PrunedLocations, err = register("location_history_pruned_total", metrics.NewPrunedLocationsTotal()); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](name string, c C) (C, error) {
	if err := prometheus.DefaultRegisterer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register %s: %w", name, err)
	}
	return c, nil
}
