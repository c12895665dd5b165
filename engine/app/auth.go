package app

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/rayrayraykk/agentscope-runtime/types"
)

// adminAuth gates the admin endpoints with an HS256 bearer token when a
// secret is configured. Without a secret the endpoints are open, which
// is acceptable for the loopback-only detached process.
func (a *App) adminAuth() Middleware {
	secret := []byte(a.cfg.Server.AdminJWTSecret)
	if len(secret) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	keyFunc := func(token *jwt.Token) (any, error) {
		return secret, nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, types.NewError(types.ErrAuthentication, "missing or malformed Authorization header"), nil)
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			token, err := jwt.Parse(tokenStr, keyFunc, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				a.logger.Debug("admin token rejected", zap.Error(err))
				writeError(w, types.NewError(types.ErrAuthentication, "invalid or expired token"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewAdminToken mints an HS256 token for the admin endpoints. Used by
// the CLI status and shutdown commands.
func NewAdminToken(secret string, claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
