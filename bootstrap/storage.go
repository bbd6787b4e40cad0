package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"scribe/config"
	"scribe/core"
	"scribe/storage"

	"go.uber.org/zap"
)

// StorageComponents holds all storage-related components. MongoDB is
// the primary backend; when it is disabled or unreachable in graceful
// mode, SQLite serves doc and repo storage instead.
type StorageComponents struct {
	MongoDB     *storage.MongoDB
	SQLite      *storage.SQLite
	Cache       *core.RedisCache
	DocStorage  storage.DocStorageInterface
	RepoStorage storage.RepoStorageInterface
}

// InitMongo initializes the MongoDB connection with retry logic.
// Returns nil without error when MongoDB is disabled.
func InitMongo(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.MongoDB, error) {
	if !cfg.MongoDB.Enabled {
		sugar.Info("MongoDB disabled by configuration")
		return nil, nil
	}

	const maxRetries = 3
	retryDelays := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

	var mongo *storage.MongoDB
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			sugar.Infow("Retrying MongoDB connection",
				"attempt", attempt,
				"max_retries", maxRetries,
				"delay", retryDelays[attempt-1])
			time.Sleep(retryDelays[attempt-1])
		}

		mongo, lastErr = storage.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database, cfg.MongoDB.MaxPoolSize, sugar)
		if lastErr == nil {
			break
		}

		sugar.Warnw("MongoDB connection attempt failed",
			"attempt", attempt+1,
			"error", lastErr)
	}

	if lastErr != nil {
		errMsg := ClassifyConnectionError(lastErr, "MongoDB", cfg.MongoDB.URI)
		fmt.Fprintf(os.Stderr, "\n========================================\n")
		fmt.Fprintf(os.Stderr, "FATAL: MongoDB Connection Failed\n")
		fmt.Fprintf(os.Stderr, "========================================\n")
		fmt.Fprintf(os.Stderr, "%s\n", errMsg)
		fmt.Fprintf(os.Stderr, "========================================\n\n")
		return nil, fmt.Errorf("failed to connect to MongoDB after %d attempts: %w", maxRetries+1, lastErr)
	}

	sugar.Info("Connected to MongoDB successfully")
	return mongo, nil
}

// InitRedis initializes the Redis cache. Returns nil without error when
// Redis is disabled; callers treat a nil cache as cache-off.
func InitRedis(cfg *config.Config, sugar *zap.SugaredLogger) (*core.RedisCache, error) {
	if !cfg.Redis.Enabled {
		sugar.Info("Redis disabled by configuration, caching and search index off")
		return nil, nil
	}

	cache := core.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, sugar)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		errMsg := ClassifyConnectionError(err, "Redis", cfg.Redis.Addr)
		fmt.Fprintf(os.Stderr, "\n========================================\n")
		fmt.Fprintf(os.Stderr, "FATAL: Redis Connection Failed\n")
		fmt.Fprintf(os.Stderr, "========================================\n")
		fmt.Fprintf(os.Stderr, "%s\n", errMsg)
		fmt.Fprintf(os.Stderr, "========================================\n\n")
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	sugar.Info("Connected to Redis successfully")
	return cache, nil
}

// InitSQLite initializes the SQLite fallback database.
func InitSQLite(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.SQLite, error) {
	sqlite, err := storage.NewSQLite(cfg.GetSQLitePath(), sugar)
	if err != nil {
		errMsg := ClassifySQLiteError(err, cfg.GetSQLitePath())
		fmt.Fprintf(os.Stderr, "\n========================================\n")
		fmt.Fprintf(os.Stderr, "FATAL: SQLite Initialization Failed\n")
		fmt.Fprintf(os.Stderr, "========================================\n")
		fmt.Fprintf(os.Stderr, "%s\n", errMsg)
		fmt.Fprintf(os.Stderr, "========================================\n\n")
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}

	sugar.Info("SQLite initialized successfully")
	return sqlite, nil
}

// InitStorage builds the storage components. MongoDB failures are fatal
// in strict mode; in graceful mode the service falls back to SQLite.
func InitStorage(cfg *config.Config, sugar *zap.SugaredLogger) (*StorageComponents, error) {
	components := &StorageComponents{}

	mongo, err := InitMongo(cfg, sugar)
	if err != nil {
		if !cfg.IsGracefulMode() {
			return nil, err
		}
		sugar.Warnw("MongoDB unavailable, falling back to SQLite", "error", err)
	}
	components.MongoDB = mongo

	if mongo != nil {
		components.DocStorage = storage.NewDocStorage(mongo)
		components.RepoStorage = storage.NewRepoStorage(mongo)
	} else {
		sqlite, err := InitSQLite(cfg, sugar)
		if err != nil {
			return nil, err
		}
		components.SQLite = sqlite

		docStorage, err := storage.NewSQLiteDocStorage(sqlite)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize doc storage: %w", err)
		}
		repoStorage, err := storage.NewSQLiteRepoStorage(sqlite)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize repo storage: %w", err)
		}
		components.DocStorage = docStorage
		components.RepoStorage = repoStorage
		sugar.Info("Using SQLite for doc and repo storage")
	}

	if err := components.DocStorage.EnsureIndexes(); err != nil {
		return nil, fmt.Errorf("failed to ensure doc indexes: %w", err)
	}
	if err := components.RepoStorage.EnsureIndexes(); err != nil {
		return nil, fmt.Errorf("failed to ensure repo indexes: %w", err)
	}
	sugar.Info("Doc and repo storage initialized successfully")

	cache, err := InitRedis(cfg, sugar)
	if err != nil {
		if !cfg.IsGracefulMode() {
			return nil, err
		}
		sugar.Warnw("Redis unavailable, continuing without cache or search", "error", err)
		cache = nil
	}
	components.Cache = cache

	return components, nil
}

// Close releases all storage connections.
func (s *StorageComponents) Close(sugar *zap.SugaredLogger) {
	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			sugar.Errorw("Failed to close Redis connection", "error", err)
		}
	}
	if s.MongoDB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.MongoDB.Close(ctx); err != nil {
			sugar.Errorw("Failed to close MongoDB connection", "error", err)
		}
	}
	if s.SQLite != nil {
		if err := s.SQLite.Close(); err != nil {
			sugar.Errorw("Failed to close SQLite", "error", err)
		}
	}
}
