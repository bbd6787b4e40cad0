// Package api Scribe API
//
//	@title			Scribe API
//	@version		1.0
//	@description	API for generating and searching GitHub repository documentation
//
// @license.name	MIT
// @license.url	https://opensource.org/licenses/MIT
//
// @host		localhost:8000
// @BasePath	/
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
// @description				Bearer JWT
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"scribe/config"
	"scribe/core"
	"scribe/docgen"
	"scribe/storage"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// rateLimiterEntry holds a rate limiter with last seen time
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// authFailureEntry holds auth failure count and last failure time
type authFailureEntry struct {
	count    int
	lastFail time.Time
}

// DocGenerator produces documentation synchronously, discovers
// repository trees and answers questions grounded on retrieved docs.
type DocGenerator interface {
	GenerateForFile(ctx context.Context, blobURL string, model core.LLMModel) (string, *core.GitHubFile, error)
	RegisterRepo(ctx context.Context, userID, owner, name string, docIDs func(path string) string) (*core.Repo, error)
	Answer(ctx context.Context, question string, docs []docgen.RelevantDoc, model core.LLMModel) (string, error)
}

// JobEnqueuer accepts background generation jobs.
type JobEnqueuer interface {
	Enqueue(job docgen.Job) error
}

// Searcher answers semantic queries and builds repo indexes.
type Searcher interface {
	Query(ctx context.Context, namespace, query string, topK int) ([]core.SearchHit, error)
	IndexRepo(ctx context.Context, namespace string, docs []*core.Doc, reindex bool) (int, error)
}

// HealthCheck reports the health of one dependency.
type HealthCheck func(ctx context.Context) error

// API holds the API server
type API struct {
	router         *mux.Router
	server         *http.Server
	docStorage     storage.DocStorageInterface
	repoStorage    storage.RepoStorageInterface
	generator      DocGenerator
	jobs           JobEnqueuer
	searcher       Searcher
	config         *config.Config
	logger         *zap.SugaredLogger
	validate       *validator.Validate
	healthChecks   map[string]HealthCheck
	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	authFailures   map[string]*authFailureEntry
	authFailuresMu sync.Mutex
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewAPI creates a new API server
func NewAPI(docStorage storage.DocStorageInterface, repoStorage storage.RepoStorageInterface,
	generator DocGenerator, jobs JobEnqueuer, searcher Searcher,
	cfg *config.Config, logger *zap.SugaredLogger) *API {
	api := &API{
		router:       mux.NewRouter(),
		docStorage:   docStorage,
		repoStorage:  repoStorage,
		generator:    generator,
		jobs:         jobs,
		searcher:     searcher,
		config:       cfg,
		logger:       logger,
		validate:     validator.New(),
		healthChecks: make(map[string]HealthCheck),
		rateLimiters: make(map[string]*rateLimiterEntry),
		authFailures: make(map[string]*authFailureEntry),
		stopCh:       make(chan struct{}),
	}
	api.setupRoutes()
	go api.cleanupRateLimiters()
	return api
}

// RegisterHealthCheck adds a named dependency check to /health.
func (a *API) RegisterHealthCheck(name string, check HealthCheck) {
	a.healthChecks[name] = check
}

// setupRoutes sets up the API routes
func (a *API) setupRoutes() {
	a.router.Use(a.corsMiddleware)
	a.router.Use(a.metricsMiddleware)
	a.router.Use(a.rateLimitMiddleware)

	authed := a.router.PathPrefix("/api").Subrouter()
	if a.config.Auth.Enabled {
		authed.Use(a.jwtAuthMiddleware)
	}

	authed.HandleFunc("/docs", a.createDoc).Methods("POST")
	authed.HandleFunc("/file-docs", a.createFileDoc).Methods("POST")
	authed.HandleFunc("/file-docs/{id}", a.getFileDoc).Methods("GET")
	authed.HandleFunc("/file-docs/{id}", a.regenerateFileDoc).Methods("PUT")
	authed.HandleFunc("/file-docs/{id}", a.deleteFileDoc).Methods("DELETE")
	authed.HandleFunc("/repos", a.createRepo).Methods("POST")
	authed.HandleFunc("/repos", a.listRepos).Methods("GET")
	authed.HandleFunc("/repos/{id}", a.getRepo).Methods("GET")
	authed.HandleFunc("/repos/{id}/index", a.indexRepo).Methods("POST")
	authed.HandleFunc("/search", a.search).Methods("POST")
	authed.HandleFunc("/chat", a.chat).Methods("POST")

	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler())

	// Swagger UI
	a.router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)
}

// Start starts the API server over plain HTTP
func (a *API) Start(addr string) error {
	a.server = a.newServer(addr)
	return a.server.ListenAndServe()
}

// StartTLS starts the API server with TLS
func (a *API) StartTLS(addr, certFile, keyFile string) error {
	a.server = a.newServer(addr)
	return a.server.ListenAndServeTLS(certFile, keyFile)
}

func (a *API) newServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: time.Duration(a.config.Server.ReadHeaderTimeout) * time.Second,
	}
}

// Stop stops the API server. Safe to call more than once.
func (a *API) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}
