package authservice

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type claimsKey struct{}

// Middleware authenticates requests from the access token and converts
// panics into the error envelope.
type Middleware struct {
	Tokens              *TokenIssuer
	AuthTokenCookieName string
	AuthTokenHeaderName string
	Logger              *zap.Logger
	Metrics             *Metrics
	ExposeErrors        bool
}

// EnsureReasonableDefaults fills in cookie and header names.
func (m *Middleware) EnsureReasonableDefaults() {
	if m.AuthTokenCookieName == "" {
		m.AuthTokenCookieName = AccessTokenCookie
	}
	if m.AuthTokenHeaderName == "" {
		m.AuthTokenHeaderName = "Authorization"
	}
	if m.Logger == nil {
		m.Logger = zap.NewNop()
	}
}

// tokenFromRequest prefers the cookie and falls back to a Bearer header for
// non-browser clients.
func (m *Middleware) tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(m.AuthTokenCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	header := r.Header.Get(m.AuthTokenHeaderName)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// Authenticate returns the verified claims of the request's access token.
func (m *Middleware) Authenticate(r *http.Request) (*Claims, error) {
	m.EnsureReasonableDefaults()
	token := m.tokenFromRequest(r)
	if token == "" {
		return nil, NewAuthError(KindUnauthorized, "Unauthorized", "")
	}
	claims, err := m.Tokens.ParseAccess(token)
	if err != nil {
		m.Logger.Debug("rejected access token", zap.Error(err))
		return nil, NewAuthError(KindUnauthorized, "Unauthorized", "")
	}
	return claims, nil
}

// RequireAccount rejects requests without a valid access token with one
// generic 401. Verified claims are attached to the request context.
func (m *Middleware) RequireAccount(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.Authenticate(r)
		if err != nil {
			writeError(w, err, false)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

// Recover converts panics in downstream handlers into an internal error.
func (m *Middleware) Recover(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				m.Logger.Error("panic serving request",
					zap.String("path", r.URL.Path), zap.Any("panic", rec), zap.Stack("stack"))
				writeError(w, fmt.Errorf("panic: %v", rec), m.ExposeErrors)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Instrument records request latency by route template.
func (m *Middleware) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.Metrics.observe(route, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// ContextWithClaims attaches verified claims to ctx.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims set by RequireAccount, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey{}).(*Claims)
	return claims
}
