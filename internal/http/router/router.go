package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"courier-dispatch/internal/http/handlers"
	obs "courier-dispatch/internal/http/middleware"
	"courier-dispatch/internal/logx"
)

const requestTimeout = 5 * time.Second

// Params are the pieces the router mounts.
type Params struct {
	Base       *handlers.Handlers
	Deliveries *handlers.DeliveryHandler
	Accounts   *handlers.AccountHandler
	Locations  *handlers.LocationHandler
	Reports    *handlers.ReportHandler
	// Feed serves /ws. Optional.
	Feed http.Handler

	Auth      func(http.Handler) http.Handler
	RateLimit func(http.Handler) http.Handler

	AllowedOrigins []string
	Logger         logx.Logger
}

// New constructs a chi-based http.Handler with base middleware and routes.
func New(p Params) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(obs.Observability(p.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: p.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS", "HEAD"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Location", handlers.NextPageHeader},
		MaxAge:         300,
	}))

	r.Get("/ping", p.Base.Ping)
	r.Method(http.MethodHead, "/healthcheck", http.HandlerFunc(p.Base.HealthcheckHead))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.NotFound(http.HandlerFunc(p.Base.NotFound))
	r.MethodNotAllowed(http.HandlerFunc(p.Base.MethodNotAllowed))

	r.Group(func(r chi.Router) {
		if p.Auth != nil {
			r.Use(p.Auth)
		}
		if p.RateLimit != nil {
			r.Use(p.RateLimit)
		}

		// без Timeout: соединение живет долго
		if p.Feed != nil {
			r.Method(http.MethodGet, "/ws", p.Feed)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/me", p.Accounts.Me)
			r.Post("/me/onboard", p.Accounts.Onboard)
			r.Put("/me/location", p.Locations.Update)

			r.Route("/deliveries", func(r chi.Router) {
				r.Post("/", p.Deliveries.Create)
				r.Get("/", p.Deliveries.List)
				r.Get("/{id}", p.Deliveries.Get)
				r.Patch("/{id}", p.Deliveries.UpdateStatus)
				r.Post("/{id}/accept", p.Deliveries.Accept)
			})

			r.Get("/couriers", p.Accounts.ListCouriers)
			r.Get("/couriers/locations", p.Locations.All)
			r.Get("/couriers/nearby", p.Locations.Nearby)
			r.Get("/couriers/{id}/location", p.Locations.Current)
			r.Get("/couriers/{id}/history", p.Locations.History)
			r.Get("/businesses", p.Accounts.ListBusinesses)

			r.Get("/reports/overview", p.Reports.Overview)
		})
	})

	return r
}
