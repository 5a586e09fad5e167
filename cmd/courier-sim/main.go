package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"courier-dispatch/internal/app"
	"courier-dispatch/internal/auth"
	"courier-dispatch/internal/client"
	"courier-dispatch/internal/config"
	"courier-dispatch/internal/courierfeed"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/sim"
	"courier-dispatch/internal/transport/mqtt"
)

func parsePoint(s string) (geo.Point, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Point{}, fmt.Errorf("point %q: want lat,lng", s)
	}
	var p geo.Point
	var err error
	if p.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return geo.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	if p.Lng, err = strconv.ParseFloat(strings.TrimSpace(lng), 64); err != nil {
		return geo.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	if !p.Valid() {
		return geo.Point{}, fmt.Errorf("point %q out of range", s)
	}
	return p, nil
}

func main() {
	var (
		apiURL     = pflag.String("api", "http://localhost:8080", "dispatch API base url")
		courierID  = pflag.String("courier-id", uuid.NewString(), "token subject")
		email      = pflag.String("email", "sim-courier@demo.local", "token email")
		name       = pflag.String("name", "Sim Courier", "courier display name")
		from       = pflag.String("from", "32.0853,34.7818", "route start lat,lng")
		to         = pflag.String("to", "32.1663,34.8436", "route end lat,lng")
		steps      = pflag.Int("steps", 60, "points between start and end")
		tick       = pflag.Duration("tick", 5*time.Second, "delay between points")
		radius     = pflag.Float64("radius", 5, "feed radius in km")
		viaMQTT    = pflag.Bool("mqtt", false, "send positions over MQTT instead of REST")
		autoAccept = pflag.Bool("auto-accept", true, "accept and complete the first visible delivery")
	)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	start, err := parsePoint(*from)
	if err != nil {
		log.Fatal(err)
	}
	end, err := parsePoint(*to)
	if err != nil {
		log.Fatal(err)
	}

	token, err := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer).Issue(*courierID, *email, 24*time.Hour)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	api, err := client.New(*apiURL, client.StaticToken(token), nil, logger)
	if err != nil {
		log.Fatalf("client: %v", err)
	}

	emit := func(ctx context.Context, pt geo.Point, at time.Time) error {
		_, err := api.UpdateLocation(ctx, pt, at)
		return err
	}
	if *viaMQTT {
		mcfg := cfg.MQTT
		mcfg.ClientID = "courier-sim-" + *courierID
		mc := mqtt.NewClient(mcfg, logger)
		if err := mc.Connect(); err != nil {
			log.Fatalf("mqtt connect: %v", err)
		}
		defer mc.Disconnect()
		emit = func(_ context.Context, pt geo.Point, at time.Time) error {
			return mqtt.PublishLocation(mc, mcfg.QoS, *courierID, pt, at)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	feedCfg := courierfeed.DefaultConfig()
	feedCfg.RadiusKm = *radius
	board := courierfeed.NewBoard()
	watcher, err := courierfeed.NewWatcher(api, board, feedCfg, logger)
	if err != nil {
		log.Fatalf("watcher: %v", err)
	}
	go func() { _ = watcher.Run(ctx) }()

	s, err := sim.New(api, watcher, board, emit, sim.Options{Name: *name, Tick: *tick, AutoAccept: *autoAccept}, logger)
	if err != nil {
		log.Fatalf("sim: %v", err)
	}
	if err := s.EnsureCourier(ctx); err != nil {
		log.Fatalf("courier session: %v", err)
	}

	if err := s.Run(ctx, sim.Interpolate(start, end, *steps)); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("simulation failed", logx.Err(err))
	}
}
