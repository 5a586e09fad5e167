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
	"courier-dispatch/internal/repository"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	var spec maintenance.AdminSpec
	pflag.StringVar(&spec.Email, "email", envOr("ADMIN_EMAIL", "admin@example.com"), "admin email")
	pflag.StringVar(&spec.Name, "name", envOr("ADMIN_NAME", "Demo Admin"), "admin display name")
	pflag.StringVar(&spec.ID, "id", os.Getenv("ADMIN_ID"), "account id (token subject) for a newly created admin")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, stop := context.WithTimeout(ctx, time.Minute)
	defer stop()

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

	out, err := maintenance.EnsureSingleAdmin(ctx, repository.NewAccountRepo(pool), spec, logger)
	if err != nil {
		logger.Error("init-admin failed", logx.Err(err))
		os.Exit(1)
	}
	logger.Info("init-admin done",
		logx.String("account_id", out.AdminID),
		logx.Any("created", out.Created),
		logx.Any("adopted", out.Adopted),
		logx.Int("demoted", len(out.Demoted)),
	)
}
