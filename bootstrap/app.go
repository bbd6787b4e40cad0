// Package bootstrap wires configuration, storage, clients and the API
// server into a runnable Scribe application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"scribe/api"
	"scribe/config"
	"scribe/core"
	"scribe/docgen"
	"scribe/github"
	"scribe/llm"
	"scribe/rag"

	"go.uber.org/zap"
)

// Options are command-line overrides for the launch configuration.
// Zero values leave the loaded configuration untouched.
type Options struct {
	Host     string
	Port     int
	CertFile string
	KeyFile  string
	Reload   bool
}

// App represents the Scribe application with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Storage *StorageComponents

	GitHub     *github.Client
	LLMClient  llm.Client
	Embedder   llm.Embedder
	DocService *docgen.Service
	JobQueue   *docgen.JobQueue
	Indexer    *rag.Indexer
	APIServer  *api.API

	serviceWg  *sync.WaitGroup
	shutdownCh chan struct{}
}

// NewApp creates a new application instance and initializes all
// components.
func NewApp(ctx context.Context, opts Options) (*App, error) {
	app := &App{
		serviceWg:  &sync.WaitGroup{},
		shutdownCh: make(chan struct{}),
	}

	logger, sugar, err := InitLogger("")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("Scribe starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	applyOptions(cfg, opts)
	if err := validateLaunch(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	// Rebuild the logger once the configured level is known.
	if cfg.Logging.Level != "" && cfg.Logging.Level != "info" {
		logger, sugar, err = InitLogger(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		app.Logger = logger
		app.Sugar = sugar
	}

	sugar.Info("Running pre-flight checks...")
	if err := EnsureDataDirectories(cfg, sugar); err != nil {
		return nil, fmt.Errorf("pre-flight check failed: %w", err)
	}

	storageComponents, err := InitStorage(cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Storage = storageComponents

	// External clients
	app.GitHub = github.NewClient(cfg.GitHub.APIBaseURL, cfg.GitHub.Token,
		time.Duration(cfg.GitHub.Timeout)*time.Second, sugar)

	model, err := core.ParseModel(cfg.LLM.Model)
	if err != nil {
		return nil, fmt.Errorf("invalid llm.model: %w", err)
	}
	app.LLMClient = llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, model,
		time.Duration(cfg.LLM.Timeout)*time.Second, sugar)
	app.Embedder = llm.NewOpenAIEmbedder(cfg.Embeddings.BaseURL, cfg.Embeddings.APIKey,
		cfg.Embeddings.Model, cfg.Embeddings.BatchSize,
		time.Duration(cfg.Embeddings.Timeout)*time.Second, sugar)

	// Prompt pack, falling back to compiled-in defaults.
	prompts, err := llm.LoadPrompts(cfg.DataPaths.PromptsPath)
	if err != nil {
		sugar.Warnw("Failed to load prompt pack, using defaults",
			"path", cfg.DataPaths.PromptsPath, "error", err)
		prompts = llm.DefaultPrompts()
	}

	app.DocService = docgen.NewService(app.GitHub, app.LLMClient, prompts, storageComponents.Cache, sugar)

	app.JobQueue = docgen.NewJobQueue(app.DocService,
		storageComponents.DocStorage, storageComponents.RepoStorage,
		cfg.Jobs.WorkerCount, cfg.Jobs.QueueSize,
		time.Duration(cfg.Jobs.JobTimeout)*time.Second, sugar)

	// Search index lives in Redis; without it search is unavailable.
	var searcher api.Searcher
	if storageComponents.Cache != nil {
		index, err := rag.NewVectorIndex(storageComponents.Cache.Client(), cfg.Index.HotCacheSize, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
		chunker := rag.NewChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkMinimum)
		app.Indexer = rag.NewIndexer(chunker, app.Embedder, index, sugar)
		searcher = app.Indexer
	} else {
		sugar.Warn("Search disabled: Redis is not available")
		searcher = searchUnavailable{}
	}

	app.APIServer = api.NewAPI(storageComponents.DocStorage, storageComponents.RepoStorage,
		app.DocService, app.JobQueue, searcher, cfg, sugar)
	app.registerHealthChecks()

	return app, nil
}

// applyOptions overrides the loaded configuration with CLI flags.
func applyOptions(cfg *config.Config, opts Options) {
	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.CertFile != "" {
		cfg.Server.CertFile = opts.CertFile
	}
	if opts.KeyFile != "" {
		cfg.Server.KeyFile = opts.KeyFile
	}
	if opts.Reload {
		cfg.Server.Reload = true
	}
}

// validateLaunch re-checks the launch configuration after CLI
// overrides. Both TLS files must exist before the listener opens.
func validateLaunch(cfg *config.Config) error {
	if (cfg.Server.CertFile == "") != (cfg.Server.KeyFile == "") {
		return fmt.Errorf("TLS requires both --tls-cert and --tls-key")
	}
	if cfg.TLSEnabled() {
		for _, f := range []string{cfg.Server.CertFile, cfg.Server.KeyFile} {
			if _, err := os.Stat(f); err != nil {
				return fmt.Errorf("TLS file %s not readable: %w", f, err)
			}
		}
	}
	return nil
}

// Start starts the job queue and the API server.
func (a *App) Start(ctx context.Context) error {
	a.JobQueue.Start()

	if a.Config.Server.Reload {
		a.watchConfig()
	}

	return a.startAPIServer()
}

// watchConfig reloads the prompt pack when the config file changes.
// The bind address and TLS identity stay fixed for the process
// lifetime.
func (a *App) watchConfig() {
	config.WatchConfig(func(cfg *config.Config) {
		a.Sugar.Info("Configuration change detected, reloading prompts")
		prompts, err := llm.LoadPrompts(cfg.DataPaths.PromptsPath)
		if err != nil {
			a.Sugar.Warnw("Failed to reload prompt pack, keeping previous",
				"path", cfg.DataPaths.PromptsPath, "error", err)
			return
		}
		a.DocService.SetPrompts(prompts)
	})
	a.Sugar.Info("Config hot-reload enabled")
}

// registerHealthChecks connects dependency checks to /health.
func (a *App) registerHealthChecks() {
	if a.Storage.MongoDB != nil {
		a.APIServer.RegisterHealthCheck("mongodb", a.Storage.MongoDB.HealthCheck)
	}
	if a.Storage.SQLite != nil {
		a.APIServer.RegisterHealthCheck("sqlite", func(context.Context) error {
			return a.Storage.SQLite.HealthCheck()
		})
	}
	if a.Storage.Cache != nil {
		a.APIServer.RegisterHealthCheck("redis", a.Storage.Cache.Ping)
	}
}

// startAPIServer starts the HTTP(S) listener in the background.
func (a *App) startAPIServer() error {
	addr := a.Config.BindAddr()
	errCh := make(chan error, 1)

	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()

		var err error
		if a.Config.TLSEnabled() {
			a.Sugar.Infow("API server starting with TLS", "addr", addr,
				"cert", a.Config.Server.CertFile)
			err = a.APIServer.StartTLS(addr, a.Config.Server.CertFile, a.Config.Server.KeyFile)
		} else {
			a.Sugar.Infow("API server starting", "addr", addr)
			err = a.APIServer.Start(addr)
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorf("API server error: %v", err)
			errCh <- err
		}
		close(errCh)
	}()

	// A bad port or unreadable TLS key fails here, not after the
	// process has daemonized.
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("failed to start API server on %s: %w", addr, err)
		}
		return nil
	case <-time.After(500 * time.Millisecond):
		return nil
	}
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	// Phase 1 - Stop accepting requests
	a.Sugar.Info("Phase 1: Stopping API server...")
	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
	}

	// Phase 2 - Drain in-flight generation jobs
	a.Sugar.Info("Phase 2: Draining job queue...")
	if a.JobQueue != nil {
		timeout := time.Duration(a.Config.Jobs.ShutdownTimeout) * time.Second
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.JobQueue.Stop(ctx); err != nil {
			a.Sugar.Warnw("Job queue drain timed out", "error", err)
		}
	}

	// Phase 3 - Wait for service goroutines
	a.Sugar.Info("Phase 3: Waiting for service goroutines...")
	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.Sugar.Info("All service goroutines stopped")
	case <-time.After(10 * time.Second):
		a.Sugar.Warn("Service goroutine shutdown timed out")
	}

	// Phase 4 - Close storage connections
	a.Sugar.Info("Phase 4: Closing storage connections...")
	if a.Storage != nil {
		a.Storage.Close(a.Sugar)
	}

	close(a.shutdownCh)
	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}

// searchUnavailable serves search routes when Redis is disabled.
type searchUnavailable struct{}

var errSearchUnavailable = errors.New("search is unavailable: Redis is disabled")

func (searchUnavailable) Query(context.Context, string, string, int) ([]core.SearchHit, error) {
	return nil, errSearchUnavailable
}

func (searchUnavailable) IndexRepo(context.Context, string, []*core.Doc, bool) (int, error) {
	return 0, errSearchUnavailable
}
