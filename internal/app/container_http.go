package app

import (
	"net/http"

	"go.uber.org/dig"

	"courier-dispatch/internal/auth"
	"courier-dispatch/internal/config"
	"courier-dispatch/internal/http/handlers"
	"courier-dispatch/internal/http/middleware/ratelimit"
	"courier-dispatch/internal/http/pprofserver"
	"courier-dispatch/internal/http/router"
	"courier-dispatch/internal/livefeed"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/service/account"
	"courier-dispatch/internal/service/delivery"
	"courier-dispatch/internal/service/location"
	"courier-dispatch/internal/service/report"
)

const pprofServerName = "pprof_server"

func registerEvents(container *dig.Container) error {
	return provideAll(container,
		newHub,
		newKafkaConsumer,
	)
}

// newHub also attaches the hub to the in-process relay.
func newHub(
	deliveries *delivery.Service,
	locations *location.Service,
	r *relay,
	cfg *config.Config,
	logger logx.Logger,
	m *Metrics,
) *livefeed.Hub {
	hub := livefeed.NewHub(deliveries, locations, cfg.CORS.AllowedOrigins, logger).WithGauge(m.LiveFeedClients)
	r.attach(hub)
	return hub
}

func registerHTTP(container *dig.Container) error {
	if err := provideAll(container,
		handlers.New,
		handlers.NewDeliveryUsecase,
		handlers.NewDeliveryHandler,
		handlers.NewAccountUsecase,
		handlers.NewAccountHandler,
		handlers.NewLocationUsecase,
		handlers.NewLocationHandler,
		func(logger logx.Logger, svc *report.Service) *handlers.ReportHandler {
			return handlers.NewReportHandler(logger, svc)
		},
		newAuthMiddleware,
		newRateLimitClock,
		newRateLimiter,
		newRateLimitMiddleware,
		newRouter,
		newMainServer,
	); err != nil {
		return err
	}
	return container.Provide(newPprofServer, dig.Name(pprofServerName))
}

func newAuthMiddleware(cfg *config.Config, accounts *account.Service, logger logx.Logger) *auth.Middleware {
	return auth.NewMiddleware(auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer), accounts, logger)
}

type routerIn struct {
	dig.In

	Cfg        *config.Config
	Logger     logx.Logger
	Base       *handlers.Handlers
	Deliveries *handlers.DeliveryHandler
	Accounts   *handlers.AccountHandler
	Locations  *handlers.LocationHandler
	Reports    *handlers.ReportHandler
	Hub        *livefeed.Hub
	Auth       *auth.Middleware
	RateLimit  *ratelimit.Middleware
}

func newRouter(in routerIn) http.Handler {
	return router.New(router.Params{
		Base:           in.Base,
		Deliveries:     in.Deliveries,
		Accounts:       in.Accounts,
		Locations:      in.Locations,
		Reports:        in.Reports,
		Feed:           in.Hub,
		Auth:           in.Auth.Handler(),
		RateLimit:      in.RateLimit.Handler(),
		AllowedOrigins: in.Cfg.CORS.AllowedOrigins,
		Logger:         in.Logger,
	})
}

// newPprofServer returns nil when pprof is disabled.
func newPprofServer(cfg *config.Config, logger logx.Logger) *http.Server {
	return pprofserver.NewServer(cfg.Pprof, logger)
}
