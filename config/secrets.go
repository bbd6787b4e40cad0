package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/hashicorp/vault/api"
)

// SecretManager retrieves credentials that must not live in the config
// file: the JWT signing secret, the LLM API key and the GitHub token.
type SecretManager interface {
	GetSecret(key string) (string, error)
	GetJWTSecret() (string, error)
	GetLLMAPIKey() (string, error)
	GetGitHubToken() (string, error)
}

// EnvSecretManager uses environment variables (default).
type EnvSecretManager struct{}

func (e *EnvSecretManager) GetSecret(key string) (string, error) {
	envKey := "SCRIBE_" + strings.ToUpper(key)
	value := os.Getenv(envKey)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envKey)
	}
	return value, nil
}

func (e *EnvSecretManager) GetJWTSecret() (string, error) {
	return e.GetSecret("AUTH_JWT_SECRET")
}

func (e *EnvSecretManager) GetLLMAPIKey() (string, error) {
	return e.GetSecret("LLM_API_KEY")
}

func (e *EnvSecretManager) GetGitHubToken() (string, error) {
	return e.GetSecret("GITHUB_TOKEN")
}

// VaultSecretManager retrieves secrets from HashiCorp Vault.
type VaultSecretManager struct {
	config *Config
	client *api.Client
}

func NewVaultSecretManager(config *Config) (*VaultSecretManager, error) {
	client, err := api.NewClient(&api.Config{
		Address: config.Secrets.Vault.Address,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if config.Secrets.Vault.Token != "" {
		client.SetToken(config.Secrets.Vault.Token)
	} else if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}

	return &VaultSecretManager{
		config: config,
		client: client,
	}, nil
}

func (v *VaultSecretManager) GetSecret(key string) (string, error) {
	path := v.config.Secrets.Vault.Path
	if path == "" {
		path = "secret/scribe"
	}

	secret, err := v.client.Logical().Read(path)
	if err != nil {
		return "", fmt.Errorf("failed to read from Vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found at path %s", path)
	}

	value, ok := secret.Data[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in Vault secret", key)
	}

	strValue, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("secret value for key %s is not a string", key)
	}

	return strValue, nil
}

func (v *VaultSecretManager) GetJWTSecret() (string, error) {
	return v.GetSecret("jwt_secret")
}

func (v *VaultSecretManager) GetLLMAPIKey() (string, error) {
	return v.GetSecret("llm_api_key")
}

func (v *VaultSecretManager) GetGitHubToken() (string, error) {
	return v.GetSecret("github_token")
}

// AWSSecretManager retrieves secrets from AWS Secrets Manager.
type AWSSecretManager struct {
	config *Config
	client *secretsmanager.SecretsManager
}

func NewAWSSecretManager(config *Config) (*AWSSecretManager, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.Secrets.AWS.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &AWSSecretManager{
		config: config,
		client: secretsmanager.New(sess),
	}, nil
}

func (a *AWSSecretManager) GetSecret(key string) (string, error) {
	secretID := a.config.Secrets.AWS.SecretName
	if secretID == "" {
		secretID = "scribe/secrets"
	}

	input := &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	}

	result, err := a.client.GetSecretValue(input)
	if err != nil {
		return "", fmt.Errorf("failed to get secret from AWS: %w", err)
	}

	var secrets map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &secrets); err != nil {
		return "", fmt.Errorf("failed to parse AWS secret JSON: %w", err)
	}

	value, ok := secrets[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in AWS secret", key)
	}

	return value, nil
}

func (a *AWSSecretManager) GetJWTSecret() (string, error) {
	return a.GetSecret("jwt_secret")
}

func (a *AWSSecretManager) GetLLMAPIKey() (string, error) {
	return a.GetSecret("llm_api_key")
}

func (a *AWSSecretManager) GetGitHubToken() (string, error) {
	return a.GetSecret("github_token")
}

// NewSecretManager creates the appropriate secret manager based on
// configuration.
func NewSecretManager(config *Config) (SecretManager, error) {
	provider := config.Secrets.Provider
	if provider == "" {
		provider = "env"
	}

	switch provider {
	case "env":
		return &EnvSecretManager{}, nil
	case "vault":
		return NewVaultSecretManager(config)
	case "aws":
		return NewAWSSecretManager(config)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", provider)
	}
}

// resolveSecrets fills credential fields not already supplied by the
// config file or environment. Only the JWT secret is mandatory when
// auth is enabled; the LLM key and GitHub token stay optional so the
// service can start against public repos and local model gateways.
func resolveSecrets(config *Config) error {
	manager, err := NewSecretManager(config)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}

	if config.Auth.JWTSecret == "" {
		secret, err := manager.GetJWTSecret()
		if err != nil {
			if config.Auth.Enabled {
				return fmt.Errorf("failed to load JWT secret: %w", err)
			}
		} else {
			config.Auth.JWTSecret = secret
		}
	}

	if config.LLM.APIKey == "" {
		if key, err := manager.GetLLMAPIKey(); err == nil {
			config.LLM.APIKey = key
		}
	}
	if config.Embeddings.APIKey == "" {
		config.Embeddings.APIKey = config.LLM.APIKey
	}

	if config.GitHub.Token == "" {
		if token, err := manager.GetGitHubToken(); err == nil {
			config.GitHub.Token = token
		}
	}

	return nil
}
