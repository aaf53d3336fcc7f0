package handler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
	"github.com/wadjakorntonsri/ns-shortener/pkg/metrics"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

// AuthCookieName is the cookie checked when no bearer token is sent.
const AuthCookieName = "auth_token"

// Claims are the JWT claims the management API relies on.
type Claims struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id,omitempty"`
	jwt.RegisteredClaims
}

type ctxKey int

const claimsKey ctxKey = iota

// ClaimsFromContext returns the verified claims of the request, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

type Middleware struct {
	jwtSecret   []byte
	permissions ports.PermissionCheck
}

func NewMiddleware(jwtSecret string, permissions ports.PermissionCheck) *Middleware {
	return &Middleware{
		jwtSecret:   []byte(jwtSecret),
		permissions: permissions,
	}
}

// AuthMiddleware verifies the JWT from the Authorization header or the auth cookie.
func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			respond(w, http.StatusUnauthorized, "Authentication required", nil)
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return m.jwtSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.UserID == "" {
			respond(w, http.StatusUnauthorized, "Invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(AuthCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Require allows the request through when the caller holds permission in the
// organization named by the {org_id} route parameter. Routes without it are
// checked against every organization. A token bound to one organization can
// never act on another.
func (m *Middleware) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				respond(w, http.StatusUnauthorized, "Authentication required", nil)
				return
			}

			org := chi.URLParam(r, "org_id")
			if org == "" {
				org = "*"
			}
			if claims.OrgID != "" && org != "*" && claims.OrgID != org {
				respondError(w, r, domain.ErrForbidden)
				return
			}

			allowed, err := m.permissions.Allows(r.Context(), org, claims.UserID, permission)
			if err != nil {
				respondError(w, r, err)
				return
			}
			if !allowed {
				logging.Debug().Str("user_id", claims.UserID).Str("org_id", org).Str("permission", permission).Msg("permission denied")
				respondError(w, r, domain.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request and records HTTP metrics keyed by
// the matched route pattern.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		evt := logging.Info()
		if status >= 500 {
			evt = logging.Error()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", elapsed).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clientIPKey(r *http.Request) (string, error) {
	ip := ClientIP(r)
	if ip == "" {
		return "", errors.New("no client ip")
	}
	return ip, nil
}
