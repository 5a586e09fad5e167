package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"courier-dispatch/internal/livefeed"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/transport/kafka"
)

const shutdownTimeout = 15 * time.Second

// Runner runs the API process.
type Runner struct {
	runFn  func(*dig.Container) error
	printf func(string, ...any)
	fatalf func(string, ...any)
}

// NewRunner returns a new Runner
func NewRunner() *Runner {
	return &Runner{runFn: run, printf: log.Printf, fatalf: log.Fatalf}
}

// MustRun starts the HTTP server using the provided DI container
func (r *Runner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		r.printf("shutdown requested, exiting")
	case errors.Is(err, context.DeadlineExceeded):
		r.printf("startup aborted: startup timeout exceeded")
	default:
		r.fatalf("run error: %v", err)
	}
}

// MustRun runs the API with the default Runner.
func MustRun(container *dig.Container) {
	NewRunner().MustRun(container)
}

type apiIn struct {
	dig.In

	Ctx      context.Context
	Logger   logx.Logger
	Server   *http.Server
	Pprof    *http.Server `name:"pprof_server"`
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Hub      *livefeed.Hub
	Consumer *kafka.Consumer
	Producer *kafka.Producer
}

func run(container *dig.Container) error {
	return container.Invoke(apiRun)
}

func apiRun(in apiIn) error {
	ctx, cancel := context.WithCancel(in.Ctx)
	defer cancel()

	errCh := make(chan error, 2)
	startServer(in.Server, "dispatch-api", in.Logger, errCh)
	if in.Pprof != nil {
		startServer(in.Pprof, "pprof", in.Logger, errCh)
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := in.Consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			in.Logger.Error("kafka consumer stopped", logx.Err(err))
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		in.Logger.Info("shutting down dispatch-api")
	case runErr = <-errCh:
		in.Logger.Error("server failed", logx.Err(runErr))
	}

	gracefulShutdown(in.Server, in.Logger, shutdownTimeout)
	if in.Pprof != nil {
		gracefulShutdown(in.Pprof, in.Logger, shutdownTimeout)
	}
	in.Hub.Close()
	cancel()
	<-consumerDone
	closeResources(in)

	if runErr != nil {
		return runErr
	}
	return in.Ctx.Err()
}

func startServer(server *http.Server, name string, logger logx.Logger, errCh chan<- error) {
	go func() {
		logger.Info("listening", logx.String("server", name), logx.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
}

func gracefulShutdown(srv *http.Server, logger logx.Logger, timeout time.Duration) {
	shCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Error("graceful shutdown error", logx.Err(err))
		_ = srv.Close()
	}
}

func closeResources(in apiIn) {
	if err := in.Consumer.Close(); err != nil {
		in.Logger.Error("kafka consumer close error", logx.Err(err))
	}
	if err := in.Producer.Close(); err != nil {
		in.Logger.Error("kafka producer close error", logx.Err(err))
	}
	if in.Redis != nil {
		if err := in.Redis.Close(); err != nil {
			in.Logger.Error("redis close error", logx.Err(err))
		}
	}
	if in.Pool != nil {
		in.Pool.Close()
	}
}
