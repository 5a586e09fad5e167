package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
)

// SessionResolver turns a verified identity into a session.
type SessionResolver interface {
	Resolve(ctx context.Context, id Identity) (domain.Session, error)
}

// Middleware authenticates requests and resolves their session.
type Middleware struct {
	verifier *Verifier
	resolver SessionResolver
	logger   logx.Logger
}

// NewMiddleware creates a new Middleware.
func NewMiddleware(v *Verifier, r SessionResolver, logger logx.Logger) *Middleware {
	return &Middleware{verifier: v, resolver: r, logger: logger}
}

// Handler rejects requests without a valid bearer token. Browsers cannot set
// headers on WebSocket upgrades, so access_token in the query is accepted too.
func (m *Middleware) Handler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("Authorization")
			if raw == "" {
				raw = r.URL.Query().Get("access_token")
			}

			id, err := m.verifier.Verify(raw)
			if err != nil {
				m.logger.Debug("token rejected",
					logx.String("path", r.URL.Path),
					logx.Err(err),
				)
				unauthorized(w)
				return
			}

			ctx := WithIdentity(r.Context(), id)
			if m.resolver != nil {
				s, err := m.resolver.Resolve(ctx, id)
				if err != nil {
					m.logger.Error("resolve session failed",
						logx.String("subject", id.Subject),
						logx.Err(err),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{"error": "internal error", "code": "internal"})
					return
				}
				ctx = WithSession(ctx, s)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="dispatch"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "code": "unauthorized"})
}
