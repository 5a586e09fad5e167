package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"courier-dispatch/internal/config"
	"courier-dispatch/internal/locationstore"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/pricing"
	"courier-dispatch/internal/repository"
	"courier-dispatch/internal/service/account"
	"courier-dispatch/internal/service/delivery"
	"courier-dispatch/internal/service/location"
	"courier-dispatch/internal/service/report"
)

const operationTimeout = 3 * time.Second

// ContainerBuilder is a dig container builder.
type ContainerBuilder struct {
	loadConfig   func() (*config.Config, error)
	dbConnect    func(context.Context, logx.Logger, *config.Config) (*pgxpool.Pool, error)
	redisConnect func(context.Context, *config.Config) (*redis.Client, error)
	logFatalf    func(string, ...interface{})
}

// NewContainerBuilder returns a new dig container builder
func NewContainerBuilder() *ContainerBuilder {
	return &ContainerBuilder{
		loadConfig:   config.Load,
		dbConnect:    connectAndMigrate,
		redisConnect: connectRedis,
		logFatalf:    log.Fatalf,
	}
}

// WithConfig replaces config.Load.
func (b *ContainerBuilder) WithConfig(fn func() (*config.Config, error)) *ContainerBuilder {
	if fn != nil {
		b.loadConfig = fn
	}
	return b
}

// WithDBConnect sets the database connection function
func (b *ContainerBuilder) WithDBConnect(
	fn func(context.Context, logx.Logger, *config.Config) (*pgxpool.Pool, error),
) *ContainerBuilder {
	if fn != nil {
		b.dbConnect = fn
	}
	return b
}

// WithRedisConnect sets the Redis connection function
func (b *ContainerBuilder) WithRedisConnect(fn func(context.Context, *config.Config) (*redis.Client, error)) *ContainerBuilder {
	if fn != nil {
		b.redisConnect = fn
	}
	return b
}

// WithLogFatalf sets the log.Fatalf function
func (b *ContainerBuilder) WithLogFatalf(fn func(string, ...interface{})) *ContainerBuilder {
	if fn != nil {
		b.logFatalf = fn
	}
	return b
}

// MustBuild builds the API container.
func (b *ContainerBuilder) MustBuild(ctx context.Context) *dig.Container {
	container, err := b.build(ctx)
	if err != nil {
		b.logFatalf("failed to build container: %v", err)
	}
	return container
}

// MustBuildWorker builds the worker container.
func (b *ContainerBuilder) MustBuildWorker(ctx context.Context) *dig.Container {
	container, err := b.buildWorker(ctx)
	if err != nil {
		b.logFatalf("failed to build worker container: %v", err)
	}
	return container
}

func (b *ContainerBuilder) build(ctx context.Context) (*dig.Container, error) {
	container, err := b.base(ctx)
	if err != nil {
		return nil, err
	}
	if err := registerService(container); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	if err := registerEvents(container); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	if err := registerHTTP(container); err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	return container, nil
}

func (b *ContainerBuilder) buildWorker(ctx context.Context) (*dig.Container, error) {
	container, err := b.base(ctx)
	if err != nil {
		return nil, err
	}
	if err := registerWorker(container); err != nil {
		return nil, fmt.Errorf("worker: %w", err)
	}
	return container, nil
}

func (b *ContainerBuilder) base(ctx context.Context) (*dig.Container, error) {
	container := dig.New()

	if err := registerCore(container, ctx, b.loadConfig); err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}
	if err := registerDb(container, b.dbConnect); err != nil {
		return nil, fmt.Errorf("DB: %w", err)
	}
	if err := registerStores(container, b.redisConnect); err != nil {
		return nil, fmt.Errorf("stores: %w", err)
	}
	return container, nil
}

// MustBuildContainer builds the API container with production connections.
func MustBuildContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().MustBuild(ctx)
}

// MustBuildWorkerContainer builds the worker container with production connections.
func MustBuildWorkerContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().MustBuildWorker(ctx)
}

func provideAll(container *dig.Container, providers ...any) error {
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return fmt.Errorf("provide %T: %w", provider, err)
		}
	}
	return nil
}

func registerCore(container *dig.Container, ctx context.Context, loadConfig func() (*config.Config, error)) error {
	return provideAll(container,
		func() context.Context { return ctx },
		loadConfig,
		NewLogger,
		provideMetrics,
	)
}

func registerDb(
	container *dig.Container,
	dbConnect func(context.Context, logx.Logger, *config.Config) (*pgxpool.Pool, error),
) error {
	return provideAll(container,
		dbConnect,
		repository.NewAccountRepo,
		repository.NewDeliveryRepo,
		repository.NewLocationHistoryRepo,
		repository.NewReportRepo,
	)
}

func registerStores(
	container *dig.Container,
	redisConnect func(context.Context, *config.Config) (*redis.Client, error),
) error {
	return provideAll(container,
		redisConnect,
		locationstore.New,
		func(
			store *locationstore.Store,
			history *repository.LocationHistoryRepo,
			deliveries *repository.DeliveryRepo,
			cfg *config.Config,
			logger logx.Logger,
			m *Metrics,
		) *location.Service {
			return location.NewService(store, history, deliveries, cfg.Feed.HistoryInterval, logger).
				WithMetrics(m.LocationUpdates)
		},
	)
}

func newTariff(cfg *config.Config) (pricing.Tariff, error) {
	loc, err := time.LoadLocation(cfg.Pricing.TimeZone)
	if err != nil {
		return pricing.Tariff{}, err
	}
	return pricing.Load(cfg.Pricing.TariffFile, loc)
}

func registerService(container *dig.Container) error {
	return provideAll(container,
		newTariff,
		newRelay,
		newKafkaProducer,
		newPublisher,
		func(repo *repository.AccountRepo, logger logx.Logger) *account.Service {
			return account.NewService(repo, operationTimeout, logger)
		},
		func(
			repo *repository.DeliveryRepo,
			accounts *repository.AccountRepo,
			positions *locationstore.Store,
			tariff pricing.Tariff,
			publisher delivery.Publisher,
			cfg *config.Config,
			logger logx.Logger,
			m *Metrics,
		) *delivery.Service {
			return delivery.NewService(repo, accounts, positions, tariff, publisher, delivery.Config{
				OperationTimeout: operationTimeout,
				DefaultRadiusKm:  cfg.Feed.DefaultRadiusKm,
			}, logger).WithMetrics(m.DeliveryTransitions, m.AcceptRaceLost)
		},
		func(repo *repository.ReportRepo) *report.Service {
			return report.NewService(repo, operationTimeout)
		},
	)
}

func newMainServer(cfg *config.Config, mux http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
