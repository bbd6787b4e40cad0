package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvSecretManager(t *testing.T) {
	t.Setenv("SCRIBE_AUTH_JWT_SECRET", "4c2f9d8e7b6a5c4d3e2f1a0b9c8d7e6f")
	t.Setenv("SCRIBE_LLM_API_KEY", "esecret_abc123")
	t.Setenv("SCRIBE_GITHUB_TOKEN", "ghp_xyz")

	m := &EnvSecretManager{}

	secret, err := m.GetJWTSecret()
	require.NoError(t, err)
	assert.Equal(t, "4c2f9d8e7b6a5c4d3e2f1a0b9c8d7e6f", secret)

	key, err := m.GetLLMAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "esecret_abc123", key)

	token, err := m.GetGitHubToken()
	require.NoError(t, err)
	assert.Equal(t, "ghp_xyz", token)
}

func TestEnvSecretManagerMissing(t *testing.T) {
	t.Setenv("SCRIBE_AUTH_JWT_SECRET", "")

	m := &EnvSecretManager{}
	_, err := m.GetJWTSecret()
	assert.Error(t, err)
}

func TestNewSecretManagerSelectsProvider(t *testing.T) {
	cfg := &Config{}

	m, err := NewSecretManager(cfg)
	require.NoError(t, err)
	assert.IsType(t, &EnvSecretManager{}, m)

	cfg.Secrets.Provider = "vault"
	cfg.Secrets.Vault.Address = "http://127.0.0.1:8200"
	m, err = NewSecretManager(cfg)
	require.NoError(t, err)
	assert.IsType(t, &VaultSecretManager{}, m)

	cfg.Secrets.Provider = "aws"
	cfg.Secrets.AWS.Region = "us-east-1"
	m, err = NewSecretManager(cfg)
	require.NoError(t, err)
	assert.IsType(t, &AWSSecretManager{}, m)

	cfg.Secrets.Provider = "gcp"
	_, err = NewSecretManager(cfg)
	assert.Error(t, err)
}

func TestResolveSecretsFillsFromEnv(t *testing.T) {
	t.Setenv("SCRIBE_AUTH_JWT_SECRET", "0f1e2d3c4b5a69788796a5b4c3d2e1f0")
	t.Setenv("SCRIBE_LLM_API_KEY", "esecret_key")
	t.Setenv("SCRIBE_GITHUB_TOKEN", "ghp_tok")

	cfg := &Config{}
	cfg.Auth.Enabled = true

	require.NoError(t, resolveSecrets(cfg))
	assert.Equal(t, "0f1e2d3c4b5a69788796a5b4c3d2e1f0", cfg.Auth.JWTSecret)
	assert.Equal(t, "esecret_key", cfg.LLM.APIKey)
	assert.Equal(t, "esecret_key", cfg.Embeddings.APIKey, "embeddings key falls back to LLM key")
	assert.Equal(t, "ghp_tok", cfg.GitHub.Token)
}

func TestResolveSecretsMandatoryJWTWhenAuthEnabled(t *testing.T) {
	t.Setenv("SCRIBE_AUTH_JWT_SECRET", "")
	t.Setenv("SCRIBE_LLM_API_KEY", "")
	t.Setenv("SCRIBE_GITHUB_TOKEN", "")

	cfg := &Config{}
	cfg.Auth.Enabled = true
	assert.Error(t, resolveSecrets(cfg))

	cfg.Auth.Enabled = false
	assert.NoError(t, resolveSecrets(cfg))
}
