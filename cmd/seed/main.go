package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"courier-dispatch/internal/app"
	"courier-dispatch/internal/config"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/maintenance"
	"courier-dispatch/internal/pricing"
	"courier-dispatch/internal/repository"
)

func main() {
	opt := maintenance.DefaultFixtureOptions(time.Now())
	pflag.IntVar(&opt.Couriers, "couriers", opt.Couriers, "number of demo couriers")
	pflag.IntVar(&opt.Businesses, "businesses", opt.Businesses, "number of demo businesses")
	pflag.IntVar(&opt.DeliveriesPerBusiness, "deliveries", opt.DeliveriesPerBusiness, "deliveries per business")
	pflag.Int64Var(&opt.Seed, "seed", opt.Seed, "random seed")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	loc, err := time.LoadLocation(cfg.Pricing.TimeZone)
	if err != nil {
		log.Fatalf("time zone: %v", err)
	}
	if opt.Tariff, err = pricing.Load(cfg.Pricing.TariffFile, loc); err != nil {
		log.Fatalf("tariff: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repository.NewPool(ctx, cfg.DB.DSN())
	if err != nil {
		logger.Error("database connection error", logx.Err(err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := repository.Migrate(ctx, pool); err != nil {
		logger.Error("migrate error", logx.Err(err))
		os.Exit(1)
	}

	fx := maintenance.BuildFixtures(opt)
	if _, err := maintenance.Seed(ctx, repository.NewAccountRepo(pool), repository.NewDeliveryRepo(pool), fx, logger); err != nil {
		logger.Error("seed failed", logx.Err(err))
		os.Exit(1)
	}
}
