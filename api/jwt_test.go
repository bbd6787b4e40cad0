package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scribe/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTKey = "0123456789abcdef0123456789abcdef"

func authConfig() *config.Config {
	cfg := testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.JWTSecret = testJWTKey
	cfg.Auth.JWTExpiry = time.Hour
	cfg.Auth.Issuer = "scribe"
	return cfg
}

func TestJWTRoundTrip(t *testing.T) {
	token, err := generateJWT("user-1", testJWTKey, "scribe", time.Hour)
	require.NoError(t, err)

	claims, err := validateJWT(token, testJWTKey)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "scribe", claims.Issuer)
}

func TestValidateJWT_Expired(t *testing.T) {
	token, err := generateJWT("user-1", testJWTKey, "scribe", -time.Minute)
	require.NoError(t, err)

	_, err = validateJWT(token, testJWTKey)
	assert.Error(t, err)
}

func TestValidateJWT_WrongKey(t *testing.T) {
	token, err := generateJWT("user-1", testJWTKey, "scribe", time.Hour)
	require.NoError(t, err)

	_, err = validateJWT(token, "ffffffffffffffffffffffffffffffff")
	assert.Error(t, err)
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	f := newTestAPI(t, authConfig())

	req := httptest.NewRequest("GET", "/api/repos", nil)
	rec := httptest.NewRecorder()
	f.api.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	f := newTestAPI(t, authConfig())

	req := httptest.NewRequest("GET", "/api/repos", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	f.api.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	f := newTestAPI(t, authConfig())
	token, err := generateJWT("user-1", testJWTKey, "scribe", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/repos", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.api.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_OpenEndpointsSkipAuth(t *testing.T) {
	f := newTestAPI(t, authConfig())

	for _, path := range []string{"/health", "/metrics"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		f.api.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAuthMiddleware_Lockout(t *testing.T) {
	cfg := authConfig()
	cfg.Server.RateLimit.MaxAuthFailures = 3
	f := newTestAPI(t, cfg)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/api/repos", nil)
		req.Header.Set("Authorization", "Bearer bad")
		rec := httptest.NewRecorder()
		f.api.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	// Even a valid token is rejected while locked out.
	token, err := generateJWT("user-1", testJWTKey, "scribe", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest("GET", "/api/repos", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
