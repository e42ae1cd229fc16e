package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

// TenantSelectableKey is set on the echo context when the request may pick
// its practice through X-Tenant-ID or ?tenant_id=. Only the dev identity
// sets it.
const TenantSelectableKey = "tenant_selectable"

const (
	RoleAdmin   = "admin"
	RoleDentist = "dentist"
	RoleStaff   = "staff"
)

// publicRoutes bypass authentication and tenant resolution. Keys are
// "METHOD path".
var publicRoutes = map[string]bool{
	http.MethodGet + " /health":    true,
	http.MethodGet + " /health/db": true,
}

// IsPublic reports whether the request targets a public route. It has the
// shape of an echo middleware Skipper.
func IsPublic(c echo.Context) bool {
	r := c.Request()
	return publicRoutes[r.Method+" "+r.URL.Path]
}

type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey selects HS256 validation instead of JWKS.
	SigningKey []byte
}

// JWTMiddleware validates bearer tokens and puts the subject and roles on the
// request context. The practice id from the token is exposed to the tenant
// middleware as "jwt_tenant_id"; a token without one is rejected. Public
// paths pass through untouched.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	var keyFunc jwt.Keyfunc
	if len(cfg.SigningKey) > 0 {
		keyFunc = func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
	} else {
		jwksURL := cfg.JWKSURL
		if jwksURL == "" && cfg.Issuer != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if discovered, err := DiscoverJWKSURL(ctx, cfg.Issuer); err == nil {
				jwksURL = discovered
			}
			cancel()
		}
		keyFunc = NewJWKSCache(jwksURL, defaultJWKSCacheTTL).keyFunc()
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if IsPublic(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.TenantID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no tenant_id claim")
			}

			setIdentity(c, claims.Subject, claims.Roles, claims.TenantID)
			return next(c)
		}
	}
}

// DevAuthMiddleware admits unauthenticated requests as dev-user with the
// admin role in defaultTenant, which X-Tenant-ID or ?tenant_id= may
// override. Requests that do carry a token go through verify when it is
// non-nil.
func DevAuthMiddleware(defaultTenant string, verify echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verified := next
		if verify != nil {
			verified = verify(next)
		}
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				return verified(c)
			}
			setIdentity(c, "dev-user", []string{RoleAdmin}, defaultTenant)
			c.Set(TenantSelectableKey, true)
			return next(c)
		}
	}
}

func setIdentity(c echo.Context, userID string, roles []string, tenantID string) {
	if tenantID != "" {
		c.Set("jwt_tenant_id", tenantID)
	}
	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UserRolesKey, roles)
	c.SetRequest(c.Request().WithContext(ctx))
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

// WithIdentity returns ctx carrying userID and roles. Used by the CLI and
// tests, which run without the HTTP middleware.
func WithIdentity(ctx context.Context, userID string, roles ...string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRolesKey, roles)
}
