package bootstrap

import (
	"errors"
	"path/filepath"
	"testing"

	"scribe/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnsureDataDirectories(t *testing.T) {
	cfg := &config.Config{}
	cfg.DataPaths.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.DataPaths.SQLitePath = filepath.Join(cfg.DataPaths.DataDir, "scribe.db")

	err := EnsureDataDirectories(cfg, zap.NewNop().Sugar())

	require.NoError(t, err)
	assert.DirExists(t, cfg.DataPaths.DataDir)
}

func TestClassifySQLiteError(t *testing.T) {
	cases := map[string]struct {
		err      error
		expected string
	}{
		"locked":     {errors.New("database is locked"), "locked by another process"},
		"permission": {errors.New("open db: permission denied"), "Permission denied"},
		"missing":    {errors.New("no such file or directory"), "path does not exist"},
		"generic":    {errors.New("something else"), "Failed to initialize"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			msg := ClassifySQLiteError(tc.err, "/tmp/scribe.db")
			assert.Contains(t, msg, tc.expected)
		})
	}
}

func TestApplyOptions(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8000

	applyOptions(cfg, Options{Host: "0.0.0.0", Port: 443, CertFile: "cert.pem", KeyFile: "key.pem", Reload: true})

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 443, cfg.Server.Port)
	assert.True(t, cfg.TLSEnabled())
	assert.True(t, cfg.Server.Reload)
}

func TestApplyOptions_ZeroValuesKeepConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8000

	applyOptions(cfg, Options{})

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestValidateLaunch_CertWithoutKey(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8000
	cfg.Server.CertFile = "cert.pem"

	err := validateLaunch(cfg)

	assert.Error(t, err)
}

func TestValidateLaunch_MissingTLSFiles(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.CertFile = filepath.Join(t.TempDir(), "missing-cert.pem")
	cfg.Server.KeyFile = filepath.Join(t.TempDir(), "missing-key.pem")

	err := validateLaunch(cfg)

	assert.Error(t, err)
}
