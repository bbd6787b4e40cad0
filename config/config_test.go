package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig(t *testing.T) *Config {
	t.Helper()

	cfg := &Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8000
	cfg.MongoDB.Enabled = false
	cfg.Redis.Enabled = false
	cfg.Chunker.ChunkSize = 250
	cfg.Chunker.ChunkMinimum = 50
	cfg.Jobs.WorkerCount = 2
	cfg.Jobs.QueueSize = 10
	return cfg
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	cfg := validTestConfig(t)
	assert.NoError(t, validateConfig(cfg))
}

func TestValidateConfigRejectsBadPort(t *testing.T) {
	for _, port := range []int{0, -1, 70000} {
		cfg := validTestConfig(t)
		cfg.Server.Port = port
		assert.Error(t, validateConfig(cfg), "port %d must be rejected", port)
	}
}

func TestValidateConfigRejectsBadHost(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Server.Host = "not a host!"
	assert.Error(t, validateConfig(cfg))

	cfg.Server.Host = "api.internal.example.com"
	assert.NoError(t, validateConfig(cfg))

	cfg.Server.Host = "::1"
	assert.NoError(t, validateConfig(cfg))
}

func TestValidateConfigRequiresBothTLSFiles(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Server.CertFile = "server.crt"
	cfg.Server.KeyFile = ""
	assert.Error(t, validateConfig(cfg))
}

func TestValidateConfigRejectsMissingTLSKeyFile(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Server.CertFile = writeTempFile(t, "server.crt", "cert")
	cfg.Server.KeyFile = filepath.Join(t.TempDir(), "missing.key")
	assert.Error(t, validateConfig(cfg))
}

func TestValidateConfigAcceptsPresentTLSFiles(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Server.CertFile = writeTempFile(t, "server.crt", "cert")
	cfg.Server.KeyFile = writeTempFile(t, "server.key", "key")
	assert.NoError(t, validateConfig(cfg))
	assert.True(t, cfg.TLSEnabled())
}

func TestValidateConfigRejectsWeakJWTSecret(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Auth.Enabled = true
	cfg.Auth.JWTSecret = "short"
	assert.Error(t, validateConfig(cfg))

	cfg.Auth.JWTSecret = "this-secret-contains-password-word-and-is-long"
	assert.Error(t, validateConfig(cfg))

	cfg.Auth.JWTSecret = "1fb0a3a8c7e64d2a4b3c9d8e7f6a5b4c3d2e1f0a"
	assert.NoError(t, validateConfig(cfg))
}

func TestValidateConfigRejectsBadMongoURI(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.MongoDB.Enabled = true
	cfg.MongoDB.URI = "http://localhost:27017"
	cfg.MongoDB.Database = "scribe"
	assert.Error(t, validateConfig(cfg))

	cfg.MongoDB.URI = "mongodb://localhost:27017"
	assert.NoError(t, validateConfig(cfg))

	cfg.MongoDB.Database = ""
	assert.Error(t, validateConfig(cfg))
}

func TestValidateConfigRejectsBadRedisAddr(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "localhost"
	assert.Error(t, validateConfig(cfg))

	cfg.Redis.Addr = "localhost:6379"
	assert.NoError(t, validateConfig(cfg))
}

func TestValidateConfigChunkerBounds(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.Chunker.ChunkSize = 0
	assert.Error(t, validateConfig(cfg))

	cfg.Chunker.ChunkSize = 100
	cfg.Chunker.ChunkMinimum = 100
	assert.Error(t, validateConfig(cfg))
}

func TestResolveDataPathsDerivesSQLitePath(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.DataPaths.DataDir = "/var/lib/scribe"
	cfg.ResolveDataPaths()
	assert.Equal(t, filepath.Join("/var/lib/scribe", "scribe.db"), cfg.GetSQLitePath())
	assert.Equal(t, "config/prompts.yaml", cfg.DataPaths.PromptsPath)
}

func TestBindAddr(t *testing.T) {
	cfg := validTestConfig(t)
	assert.Equal(t, "127.0.0.1:8000", cfg.BindAddr())

	cfg.Server.Host = "::1"
	assert.Equal(t, "[::1]:8000", cfg.BindAddr())
}
