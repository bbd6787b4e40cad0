// Package config loads and validates the Scribe service configuration
// from config.yaml, SCRIBE_* environment variables and defaults.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// StartupMode defines how Scribe handles initialization failures.
type StartupMode string

const (
	// StartupModeStrict fails fast on any initialization error (default).
	StartupModeStrict StartupMode = "strict"
	// StartupModeGraceful starts with degraded functionality, logging warnings.
	StartupModeGraceful StartupMode = "graceful"
)

// DataPaths holds the data directory and file path configuration.
type DataPaths struct {
	// DataDir is the base data directory (SCRIBE_DATA_DIR, default: ./data)
	DataDir string `mapstructure:"data_dir"`
	// SQLitePath is the SQLite database file path (SCRIBE_SQLITE_PATH, default: ${DataDir}/scribe.db)
	SQLitePath string `mapstructure:"sqlite_path"`
	// PromptsPath is the prompt pack file (SCRIBE_PROMPTS_PATH, default: config/prompts.yaml)
	PromptsPath string `mapstructure:"prompts_path"`
}

// Config holds all configuration for the Scribe service.
type Config struct {
	// StartupMode controls how initialization failures are handled.
	StartupMode StartupMode `mapstructure:"startup_mode"`

	DataPaths DataPaths `mapstructure:"data_paths"`

	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
		// TLS is implied when both CertFile and KeyFile are set.
		CertFile string `mapstructure:"cert_file"`
		KeyFile  string `mapstructure:"key_file"`
		// Reload enables config hot-reload for development.
		Reload               bool     `mapstructure:"reload"`
		AllowedOrigins       []string `mapstructure:"allowed_origins"`
		TrustProxy           bool     `mapstructure:"trust_proxy"`
		ReadHeaderTimeout    int      `mapstructure:"read_header_timeout"` // seconds
		JSONBodyLimit        int64    `mapstructure:"json_body_limit"`     // bytes
		TrustedProxyNetworks []string `mapstructure:"trusted_proxy_networks"`
		RateLimit            struct {
			RequestsPerSecond int `mapstructure:"requests_per_second"`
			Burst             int `mapstructure:"burst"`
			MaxAuthFailures   int `mapstructure:"max_auth_failures"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"server"`

	Auth struct {
		Enabled   bool          `mapstructure:"enabled"`
		JWTSecret string        `mapstructure:"jwt_secret"`
		JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
		Issuer    string        `mapstructure:"issuer"`
	} `mapstructure:"auth"`

	MongoDB struct {
		URI         string `mapstructure:"uri"`
		Database    string `mapstructure:"database"`
		Enabled     bool   `mapstructure:"enabled"`
		MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	} `mapstructure:"mongodb"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`

	GitHub struct {
		Token      string `mapstructure:"token"`
		APIBaseURL string `mapstructure:"api_base_url"`
		Timeout    int    `mapstructure:"timeout"` // seconds
	} `mapstructure:"github"`

	LLM struct {
		APIKey      string  `mapstructure:"api_key"`
		BaseURL     string  `mapstructure:"base_url"`
		Model       string  `mapstructure:"model"`
		MaxTokens   int     `mapstructure:"max_tokens"`
		Temperature float64 `mapstructure:"temperature"`
		Timeout     int     `mapstructure:"timeout"` // seconds
		MaxRetries  int     `mapstructure:"max_retries"`
	} `mapstructure:"llm"`

	Embeddings struct {
		APIKey    string `mapstructure:"api_key"`
		BaseURL   string `mapstructure:"base_url"`
		Model     string `mapstructure:"model"`
		BatchSize int    `mapstructure:"batch_size"`
		Timeout   int    `mapstructure:"timeout"` // seconds
	} `mapstructure:"embeddings"`

	Chunker struct {
		ChunkSize    int `mapstructure:"chunk_size"`
		ChunkMinimum int `mapstructure:"chunk_minimum"`
	} `mapstructure:"chunker"`

	Jobs struct {
		WorkerCount     int `mapstructure:"worker_count"`
		QueueSize       int `mapstructure:"queue_size"`
		JobTimeout      int `mapstructure:"job_timeout"` // seconds
		ShutdownTimeout int `mapstructure:"shutdown_timeout"`
	} `mapstructure:"jobs"`

	Index struct {
		HotCacheSize int `mapstructure:"hot_cache_size"`
		DefaultTopK  int `mapstructure:"default_top_k"`
	} `mapstructure:"index"`

	Secrets struct {
		// Provider is "env" (default), "vault" or "aws".
		Provider string `mapstructure:"provider"`
		Vault    struct {
			Address string `mapstructure:"address"`
			Token   string `mapstructure:"token"`
			Path    string `mapstructure:"path"`
		} `mapstructure:"vault"`
		AWS struct {
			Region     string `mapstructure:"region"`
			SecretName string `mapstructure:"secret_name"`
		} `mapstructure:"aws"`
	} `mapstructure:"secrets"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("startup_mode", string(StartupModeStrict))

	viper.SetDefault("data_paths.data_dir", "./data")
	viper.SetDefault("data_paths.sqlite_path", "") // Empty = derive from data_dir
	viper.SetDefault("data_paths.prompts_path", "config/prompts.yaml")

	// Development binding; the container overrides these to 0.0.0.0:443
	// with TLS files under ./creds.
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.cert_file", "")
	viper.SetDefault("server.key_file", "")
	viper.SetDefault("server.reload", false)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.trust_proxy", false)
	viper.SetDefault("server.trusted_proxy_networks", []string{})
	viper.SetDefault("server.read_header_timeout", 10)
	viper.SetDefault("server.json_body_limit", 1048576) // 1MB
	viper.SetDefault("server.rate_limit.requests_per_second", 100)
	viper.SetDefault("server.rate_limit.burst", 100)
	viper.SetDefault("server.rate_limit.max_auth_failures", 50)

	viper.SetDefault("auth.enabled", true)
	viper.SetDefault("auth.jwt_expiry", 24*time.Hour)
	viper.SetDefault("auth.issuer", "scribe")

	viper.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongodb.database", "scribe")
	viper.SetDefault("mongodb.enabled", true)
	viper.SetDefault("mongodb.max_pool_size", 10)

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("github.api_base_url", "https://api.github.com")
	viper.SetDefault("github.timeout", 15)

	viper.SetDefault("llm.base_url", "https://api.endpoints.anyscale.com/v1")
	viper.SetDefault("llm.model", "mistralai/Mixtral-8x7B-Instruct-v0.1")
	viper.SetDefault("llm.max_tokens", 500)
	viper.SetDefault("llm.temperature", 1.0)
	viper.SetDefault("llm.timeout", 60)
	viper.SetDefault("llm.max_retries", 1)

	viper.SetDefault("embeddings.base_url", "https://api.endpoints.anyscale.com/v1")
	viper.SetDefault("embeddings.model", "BAAI/bge-large-en-v1.5")
	viper.SetDefault("embeddings.batch_size", 2048)
	viper.SetDefault("embeddings.timeout", 30)

	viper.SetDefault("chunker.chunk_size", 250)
	viper.SetDefault("chunker.chunk_minimum", 50)

	viper.SetDefault("jobs.worker_count", 4)
	viper.SetDefault("jobs.queue_size", 100)
	viper.SetDefault("jobs.job_timeout", 300)
	viper.SetDefault("jobs.shutdown_timeout", 15)

	viper.SetDefault("index.hot_cache_size", 4096)
	viper.SetDefault("index.default_top_k", 5)

	viper.SetDefault("secrets.provider", "env")
	viper.SetDefault("secrets.vault.address", "")
	viper.SetDefault("secrets.vault.path", "secret/data/scribe")
	viper.SetDefault("secrets.aws.region", "us-east-1")
	viper.SetDefault("secrets.aws.secret_name", "scribe")

	viper.SetDefault("logging.level", "info")
}

// loadFromEnv sets up environment variable loading.
func loadFromEnv() {
	viper.SetEnvPrefix("SCRIBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Short, documented names for the launch configuration and secrets.
	_ = viper.BindEnv("server.host", "SCRIBE_HOST")
	_ = viper.BindEnv("server.port", "SCRIBE_PORT")
	_ = viper.BindEnv("server.cert_file", "SCRIBE_TLS_CERT")
	_ = viper.BindEnv("server.key_file", "SCRIBE_TLS_KEY")
	_ = viper.BindEnv("data_paths.data_dir", "SCRIBE_DATA_DIR")
	_ = viper.BindEnv("data_paths.sqlite_path", "SCRIBE_SQLITE_PATH")
	_ = viper.BindEnv("auth.jwt_secret", "SCRIBE_AUTH_JWT_SECRET")
	_ = viper.BindEnv("github.token", "SCRIBE_GITHUB_TOKEN")
	_ = viper.BindEnv("llm.api_key", "SCRIBE_LLM_API_KEY")
	_ = viper.BindEnv("embeddings.api_key", "SCRIBE_EMBEDDINGS_API_KEY")
}

// LoadConfig reads config.yaml (if present), applies environment
// overrides and validates the result.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars.
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := resolveSecrets(&config); err != nil {
		return nil, err
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	config.ResolveDataPaths()

	return &config, nil
}

// WatchConfig re-reads the config file on change and invokes onChange
// with the freshly decoded configuration. Used when the server runs
// with --reload; the bind address and TLS identity from the original
// launch configuration stay fixed for the process lifetime.
func WatchConfig(onChange func(*Config)) {
	viper.OnConfigChange(func(_ fsnotify.Event) {
		var config Config
		if err := viper.Unmarshal(&config); err != nil {
			return
		}
		if err := validateConfig(&config); err != nil {
			return
		}
		config.ResolveDataPaths()
		onChange(&config)
	})
	viper.WatchConfig()
}

// ResolveDataPaths resolves data paths, deriving from DataDir when not
// explicitly set.
func (c *Config) ResolveDataPaths() {
	dataDir := c.DataPaths.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}

	if c.DataPaths.SQLitePath == "" {
		c.DataPaths.SQLitePath = filepath.Join(dataDir, "scribe.db")
	} else if !filepath.IsAbs(c.DataPaths.SQLitePath) {
		c.DataPaths.SQLitePath = filepath.Clean(c.DataPaths.SQLitePath)
	}

	if c.DataPaths.PromptsPath == "" {
		c.DataPaths.PromptsPath = "config/prompts.yaml"
	}

	c.DataPaths.DataDir = dataDir
}

// GetSQLitePath returns the resolved SQLite database path.
func (c *Config) GetSQLitePath() string {
	if c.DataPaths.SQLitePath == "" {
		return filepath.Join(c.DataPaths.DataDir, "scribe.db")
	}
	return c.DataPaths.SQLitePath
}

// IsGracefulMode returns true if the startup mode is graceful.
func (c *Config) IsGracefulMode() bool {
	return c.StartupMode == StartupModeGraceful
}

// TLSEnabled reports whether the launch configuration asks for TLS:
// both certificate and key files must be supplied.
func (c *Config) TLSEnabled() bool {
	return c.Server.CertFile != "" && c.Server.KeyFile != ""
}

// BindAddr returns the host:port the server binds to.
func (c *Config) BindAddr() string {
	return net.JoinHostPort(c.Server.Host, fmt.Sprintf("%d", c.Server.Port))
}

// validateConfig validates the configuration for security and correctness.
func validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d: must be 1-65535", config.Server.Port)
	}
	if config.Server.Host != "" && net.ParseIP(config.Server.Host) == nil && !isValidHostname(config.Server.Host) {
		return fmt.Errorf("invalid server host %q", config.Server.Host)
	}

	// TLS needs both halves of the credential pair, and both files must
	// exist before the listener opens: a missing key is fatal at start.
	if (config.Server.CertFile == "") != (config.Server.KeyFile == "") {
		return fmt.Errorf("TLS requires both cert_file and key_file (got cert=%q key=%q)", config.Server.CertFile, config.Server.KeyFile)
	}
	if config.TLSEnabled() {
		for _, f := range []string{config.Server.CertFile, config.Server.KeyFile} {
			if _, err := os.Stat(f); err != nil {
				return fmt.Errorf("TLS file %s not readable: %w", f, err)
			}
		}
	}

	if config.Auth.Enabled && config.Auth.JWTSecret != "" {
		if len(config.Auth.JWTSecret) < 32 {
			return fmt.Errorf("JWT secret must be at least 32 characters (256 bits) for security")
		}
		weakSecrets := []string{
			"secret", "password", "changeme", "default", "admin",
			"jwt_secret", "supersecret", "mysecret", "test", "example",
		}
		lowerSecret := strings.ToLower(config.Auth.JWTSecret)
		for _, weak := range weakSecrets {
			if strings.Contains(lowerSecret, weak) {
				return fmt.Errorf("JWT secret appears to contain weak/default value: please use a cryptographically secure random string")
			}
		}
	}

	if config.MongoDB.Enabled {
		if !strings.HasPrefix(config.MongoDB.URI, "mongodb://") && !strings.HasPrefix(config.MongoDB.URI, "mongodb+srv://") {
			return fmt.Errorf("invalid MongoDB URI: must start with mongodb:// or mongodb+srv://")
		}
		parsed, err := url.Parse(config.MongoDB.URI)
		if err != nil {
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("invalid MongoDB URI: missing host")
		}
		if config.MongoDB.Database == "" {
			return fmt.Errorf("MongoDB database cannot be empty")
		}
	}

	if config.Redis.Enabled {
		if _, _, err := net.SplitHostPort(config.Redis.Addr); err != nil {
			return fmt.Errorf("invalid Redis address %q: %w", config.Redis.Addr, err)
		}
	}

	if config.LLM.BaseURL != "" {
		if _, err := url.ParseRequestURI(config.LLM.BaseURL); err != nil {
			return fmt.Errorf("invalid LLM base URL: %w", err)
		}
	}
	if config.Embeddings.BaseURL != "" {
		if _, err := url.ParseRequestURI(config.Embeddings.BaseURL); err != nil {
			return fmt.Errorf("invalid embeddings base URL: %w", err)
		}
	}

	if config.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("chunker.chunk_size must be positive")
	}
	if config.Chunker.ChunkMinimum < 0 || config.Chunker.ChunkMinimum >= config.Chunker.ChunkSize {
		return fmt.Errorf("chunker.chunk_minimum must be in [0, chunk_size)")
	}

	if config.Jobs.WorkerCount < 1 {
		return fmt.Errorf("jobs.worker_count must be at least 1")
	}
	if config.Jobs.QueueSize < 1 {
		return fmt.Errorf("jobs.queue_size must be at least 1")
	}

	switch config.Secrets.Provider {
	case "", "env", "vault", "aws":
	default:
		return fmt.Errorf("unknown secrets provider %q", config.Secrets.Provider)
	}

	return nil
}

func isValidHostname(host string) bool {
	if len(host) == 0 || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		for i, r := range label {
			ok := r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !ok || (r == '-' && (i == 0 || i == len(label)-1)) {
				return false
			}
		}
	}
	return true
}
