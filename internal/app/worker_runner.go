package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"courier-dispatch/internal/jobs"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/transport/mqtt"
)

// WorkerRunner runs the background worker
type WorkerRunner struct {
	runFn func(*dig.Container) error
}

// NewWorkerRunner returns a new WorkerRunner
func NewWorkerRunner() *WorkerRunner {
	return &WorkerRunner{runFn: runWorker}
}

// MustRun starts the worker using the provided DI container
func (r *WorkerRunner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	panic(err)
}

type workerIn struct {
	dig.In

	Ctx      context.Context
	Logger   logx.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Ingestor *mqtt.Ingestor
	Prune    *jobs.PruneJob
	Metrics  *http.Server `name:"worker_metrics_server"`
}

func runWorker(container *dig.Container) error {
	return container.Invoke(workerRun)
}

func workerRun(in workerIn) error {
	defer closeWorker(in)

	if in.Ingestor != nil {
		if err := in.Ingestor.Start(); err != nil {
			return err
		}
		defer in.Ingestor.Stop()
	}
	if err := in.Prune.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		in.Prune.Stop(stopCtx)
	}()

	errCh := make(chan error, 1)
	if in.Metrics != nil {
		startServer(in.Metrics, "worker-metrics", in.Logger, errCh)
		defer gracefulShutdown(in.Metrics, in.Logger, shutdownTimeout)
	}

	in.Logger.Info("dispatch-worker started")
	select {
	case <-in.Ctx.Done():
		in.Logger.Info("shutting down dispatch-worker")
		return in.Ctx.Err()
	case err := <-errCh:
		return err
	}
}

func closeWorker(in workerIn) {
	if in.Redis != nil {
		if err := in.Redis.Close(); err != nil {
			in.Logger.Error("redis close error", logx.Err(err))
		}
	}
	if in.Pool != nil {
		in.Pool.Close()
	}
}
