package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"scribe/metrics"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// userIDKey carries the authenticated user ID through the request context.
const userIDKey contextKey = "user_id"

// authFailureWindow bounds how long auth failures count toward lockout.
const authFailureWindow = 10 * time.Minute

// Claims are the JWT claims Scribe issues and accepts.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// generateJWT creates a signed token for the given user.
func generateJWT(userID, secret, issuer string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// validateJWT parses and verifies a token string.
func validateJWT(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token missing user_id")
	}
	return claims, nil
}

// jwtAuthMiddleware requires a valid Bearer token on /api routes.
// Clients that fail repeatedly are locked out for the failure window.
func (a *API) jwtAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := a.getRealIP(r)

		if a.isLockedOut(ip) {
			metrics.AuthFailures.Inc()
			writeError(w, a.logger, http.StatusTooManyRequests, "too many failed authentication attempts", nil)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			a.recordAuthFailure(ip)
			metrics.AuthFailures.Inc()
			w.Header().Set("WWW-Authenticate", `Bearer realm="scribe"`)
			writeError(w, a.logger, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}

		claims, err := validateJWT(strings.TrimPrefix(header, "Bearer "), a.config.Auth.JWTSecret)
		if err != nil {
			a.recordAuthFailure(ip)
			metrics.AuthFailures.Inc()
			a.logger.Warnw("Rejected token", "ip", ip, "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="scribe", error="invalid_token"`)
			writeError(w, a.logger, http.StatusUnauthorized, "invalid or expired token", nil)
			return
		}

		a.clearAuthFailures(ip)
		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestUserID returns the authenticated user ID, or "anonymous" when
// auth is disabled.
func requestUserID(r *http.Request) string {
	if id, ok := r.Context().Value(userIDKey).(string); ok && id != "" {
		return id
	}
	return "anonymous"
}

func (a *API) isLockedOut(ip string) bool {
	max := a.config.Server.RateLimit.MaxAuthFailures
	if max <= 0 {
		return false
	}
	a.authFailuresMu.Lock()
	defer a.authFailuresMu.Unlock()
	entry, ok := a.authFailures[ip]
	if !ok {
		return false
	}
	if time.Since(entry.lastFail) > authFailureWindow {
		delete(a.authFailures, ip)
		return false
	}
	return entry.count >= max
}

func (a *API) recordAuthFailure(ip string) {
	a.authFailuresMu.Lock()
	defer a.authFailuresMu.Unlock()
	entry, ok := a.authFailures[ip]
	if !ok || time.Since(entry.lastFail) > authFailureWindow {
		entry = &authFailureEntry{}
		a.authFailures[ip] = entry
	}
	entry.count++
	entry.lastFail = time.Now()
}

func (a *API) clearAuthFailures(ip string) {
	a.authFailuresMu.Lock()
	defer a.authFailuresMu.Unlock()
	delete(a.authFailures, ip)
}
