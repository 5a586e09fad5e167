package app

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/dig"

	"courier-dispatch/internal/config"
	"courier-dispatch/internal/jobs"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/repository"
	"courier-dispatch/internal/service/location"
	"courier-dispatch/internal/transport/mqtt"
)

const workerMetricsServerName = "worker_metrics_server"

func registerWorker(container *dig.Container) error {
	if err := provideAll(container,
		newIngestor,
		newPruneJob,
	); err != nil {
		return err
	}
	return container.Provide(newWorkerMetricsServer, dig.Name(workerMetricsServerName))
}

// newIngestor returns nil when no MQTT broker is configured.
func newIngestor(cfg *config.Config, locations *location.Service, logger logx.Logger) (*mqtt.Ingestor, error) {
	if cfg.MQTT.Broker == "" {
		logger.Info("mqtt ingestion disabled")
		return nil, nil
	}
	return mqtt.NewIngestor(mqtt.NewClient(cfg.MQTT, logger), locations, cfg.MQTT.LocationTopic, cfg.MQTT.QoS, logger)
}

func newPruneJob(cfg *config.Config, history *repository.LocationHistoryRepo, logger logx.Logger, m *Metrics) (*jobs.PruneJob, error) {
	job, err := jobs.NewPruneJob(history, cfg.Feed.HistoryRetention, cfg.Feed.PruneSchedule, logger)
	if err != nil {
		return nil, err
	}
	return job.WithMetrics(m.PrunedLocations), nil
}

// newWorkerMetricsServer returns nil when the worker has no metrics address.
func newWorkerMetricsServer(cfg *config.Config) *http.Server {
	if cfg.Worker.MetricsAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
