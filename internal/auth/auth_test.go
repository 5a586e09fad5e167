package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/auth"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
)

type stubResolver struct {
	fn func(ctx context.Context, id auth.Identity) (domain.Session, error)
}

func (s stubResolver) Resolve(ctx context.Context, id auth.Identity) (domain.Session, error) {
	return s.fn(ctx, id)
}

func TestVerifier_RoundTrip(t *testing.T) {
	t.Parallel()

	v := auth.NewVerifier("secret", "dispatch")
	token, err := v.Issue("c1", "c1@example.com", time.Minute)
	require.NoError(t, err)

	id, err := v.Verify("Bearer " + token)
	require.NoError(t, err)
	require.Equal(t, auth.Identity{Subject: "c1", Email: "c1@example.com"}, id)
}

func TestVerifier_Rejects(t *testing.T) {
	t.Parallel()

	v := auth.NewVerifier("secret", "dispatch")

	other, err := auth.NewVerifier("other", "dispatch").Issue("c1", "", time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := auth.NewVerifier("secret", "elsewhere").Issue("c1", "", time.Minute)
	require.NoError(t, err)
	expired, err := v.Issue("c1", "", -time.Minute)
	require.NoError(t, err)
	noSubject, err := v.Issue("", "", time.Minute)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "c1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"wrong secret": other,
		"wrong issuer": wrongIssuer,
		"expired":      expired,
		"no subject":   noSubject,
		"alg none":     none,
		"bearer only":  "Bearer ",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(raw)
			require.ErrorIs(t, err, apperr.ErrUnauthorized)
		})
	}
}

func TestMiddleware_Unauthorized(t *testing.T) {
	t.Parallel()

	v := auth.NewVerifier("secret", "")
	called := false
	h := auth.NewMiddleware(v, nil, logx.Nop()).Handler()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/deliveries", nil))

	require.False(t, called)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.JSONEq(t, `{"error":"unauthorized","code":"unauthorized"}`, rr.Body.String())
}

func TestMiddleware_ResolvesSession(t *testing.T) {
	t.Parallel()

	v := auth.NewVerifier("secret", "")
	token, err := v.Issue("b1", "b1@example.com", time.Minute)
	require.NoError(t, err)

	resolver := stubResolver{fn: func(_ context.Context, id auth.Identity) (domain.Session, error) {
		require.Equal(t, "b1", id.Subject)
		return domain.Session{Account: domain.BusinessAccount{ID: id.Subject, Email: id.Email}}, nil
	}}

	var got domain.Session
	h := auth.NewMiddleware(v, resolver, logx.Nop()).Handler()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		s, ok := auth.SessionFrom(r.Context())
		require.True(t, ok)
		got = s
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws?access_token="+token, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, domain.RoleBusiness, got.Role())
}

func TestMiddleware_ResolveError(t *testing.T) {
	t.Parallel()

	v := auth.NewVerifier("secret", "")
	token, err := v.Issue("b1", "", time.Minute)
	require.NoError(t, err)

	resolver := stubResolver{fn: func(context.Context, auth.Identity) (domain.Session, error) {
		return domain.Session{}, errors.New("db down")
	}}
	h := auth.NewMiddleware(v, resolver, logx.Nop()).Handler()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next must not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
