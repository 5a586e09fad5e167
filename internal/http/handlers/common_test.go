package handlers_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"

	"courier-dispatch/internal/auth"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/logx"
)

var (
	shop    = domain.BusinessAccount{ID: "b1", Email: "shop@example.com", Name: "Shop", Address: "Main 1", Location: geo.Point{Lat: 32.08, Lng: 34.78}}
	dan     = domain.CourierAccount{ID: "c1", Email: "dan@example.com", Name: "Dan", Balance: 42}
	root    = domain.AdminAccount{ID: "a1", Email: "root@example.com"}
	pending = domain.PendingAccount{ID: "p1", Email: "new@example.com"}
)

func testLogger() logx.Logger { return logx.Nop() }

// newRequest builds a request as the auth middleware would leave it.
func newRequest(method, target string, body io.Reader, acc domain.Account, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	ctx := req.Context()
	if acc != nil {
		ctx = auth.WithIdentity(ctx, auth.Identity{Subject: acc.AccountID(), Email: acc.AccountEmail()})
		ctx = auth.WithSession(ctx, domain.Session{Account: acc})
	}
	if len(params) > 0 {
		routeCtx := chi.NewRouteContext()
		for k, v := range params {
			routeCtx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
	}
	return req.WithContext(ctx)
}
