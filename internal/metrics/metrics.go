package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewRateLimitExceededTotal returns a Prometheus counter for the number of rejected HTTP requests due to rate limiting
func NewRateLimitExceededTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_exceeded_total",
		Help: "Total number of rejected HTTP requests due to rate limiting",
	})
}

// NewDeliveryTransitionsTotal counts successful delivery mutations by resulting status.
func NewDeliveryTransitionsTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_transitions_total",
		Help: "Total number of delivery state changes by resulting status",
	}, []string{"status"})
}

// NewAcceptRaceLostTotal counts accept attempts that lost to another courier.
func NewAcceptRaceLostTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "delivery_accept_race_lost_total",
		Help: "Total number of accept attempts rejected because the delivery was already taken",
	})
}

// NewLocationUpdatesTotal counts accepted courier position writes by source.
func NewLocationUpdatesTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_location_updates_total",
		Help: "Total number of courier location updates by ingestion source",
	}, []string{"source"})
}

// NewLiveFeedClients tracks connected live feed sockets.
func NewLiveFeedClients() prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livefeed_clients",
		Help: "Number of connected live feed clients",
	})
}

// NewPrunedLocationsTotal counts location history rows removed by retention.
func NewPrunedLocationsTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "location_history_pruned_total",
		Help: "Total number of location history samples removed by retention",
	})
}
