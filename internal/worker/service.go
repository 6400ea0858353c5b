// Package worker provides the HTTP worker service for crossdoc.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"crossdoc/internal/aggregator"
	"crossdoc/internal/config"
	"crossdoc/internal/db/gorm"
	"crossdoc/internal/embedding"
	"crossdoc/internal/llm"
	"crossdoc/internal/semantic"
	"crossdoc/internal/summarize"
)

const (
	// DefaultHTTPTimeout bounds request handling, including slow
	// summarization fan-out.
	DefaultHTTPTimeout = 120 * time.Second

	// ReadyPollInterval is how often WaitReady checks initialization status.
	ReadyPollInterval = 50 * time.Millisecond
)

// Service is the worker service orchestrator.
type Service struct {
	version string
	config  *config.Config

	aggregator *aggregator.Service
	runStore   *gorm.Store
	embedSvc   *embedding.Service

	router    *chi.Mux
	server    *http.Server
	startTime time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Initialization state (for deferred init)
	ready     atomic.Bool
	initError error
	initMu    sync.RWMutex
}

// NewService creates a worker service with deferred initialization. The
// health endpoint is available immediately; collaborator clients and the run
// history database initialize in the background.
func NewService(version string) (*Service, error) {
	cfg := config.Get()

	ctx, cancel := context.WithCancel(context.Background())

	svc := &Service{
		version:   version,
		config:    cfg,
		router:    chi.NewRouter(),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}

	svc.setupMiddleware()
	svc.setupRoutes()

	go svc.initializeAsync()

	return svc, nil
}

// initializeAsync performs heavy initialization in the background.
func (s *Service) initializeAsync() {
	log.Info().Msg("Starting async initialization...")

	if err := config.EnsureDataDir(); err != nil {
		s.setInitError(fmt.Errorf("ensure data dir: %w", err))
		return
	}

	runStore, err := gorm.NewStore(gorm.Config{Path: s.config.DBPath})
	if err != nil {
		s.setInitError(fmt.Errorf("init run history database: %w", err))
		return
	}

	summarizer := summarize.NewClient(s.config.SummarizerBaseURL, s.config.SummarizerAPIKey)

	// Embeddings are optional; without them clustering degrades to fallback.
	var embedSvc *embedding.Service
	var embedder semantic.Embedder
	if svcEmbed, err := embedding.NewServiceWithModel(s.config.EmbeddingModel); err != nil {
		log.Warn().Err(err).Msg("Embedding model unavailable, semantic clustering will fall back")
	} else {
		embedSvc = svcEmbed
		embedder = svcEmbed
		log.Info().
			Str("model", svcEmbed.Name()).
			Int("dimensions", svcEmbed.Dimensions()).
			Msg("Embedding model initialized")
	}

	engineCfg := semantic.Config{
		SimilarityThreshold: s.config.SimilarityThreshold,
		WeakSignalThreshold: s.config.WeakSignalThreshold,
		MinClusterSize:      s.config.MinClusterSize,
		LabelDominance:      s.config.LabelDominance,
		MaxEvidence:         semantic.DefaultConfig().MaxEvidence,
		SnippetMaxLen:       s.config.EvidenceSnippetLen,
	}
	engine := semantic.NewEngine(embedder, engineCfg)

	var synthesizer llm.Synthesizer
	if s.config.LLMEnabled && s.config.LLMBaseURL != "" {
		synthesizer = llm.NewClient(s.config.LLMBaseURL, s.config.LLMAPIKey, s.config.LLMModel)
		log.Info().Str("model", s.config.LLMModel).Msg("LLM synthesis enabled")
	}

	s.initMu.Lock()
	s.runStore = runStore
	s.embedSvc = embedSvc
	s.aggregator = aggregator.NewService(summarizer, engine, synthesizer)
	s.initMu.Unlock()

	s.ready.Store(true)
	log.Info().Msg("Async initialization complete - service ready")
}

// setInitError records an initialization error.
func (s *Service) setInitError(err error) {
	s.initMu.Lock()
	s.initError = err
	s.initMu.Unlock()
	log.Error().Err(err).Msg("Async initialization failed")
}

// GetInitError returns any initialization error.
func (s *Service) GetInitError() error {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.initError
}

// WaitReady blocks until initialization finishes or the context is done.
func (s *Service) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(ReadyPollInterval)
	defer ticker.Stop()

	for {
		if s.ready.Load() {
			return nil
		}
		if err := s.GetInitError(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// setupMiddleware configures HTTP middleware.
func (s *Service) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(DefaultHTTPTimeout))
	s.router.Use(MaxBodySize(1 << 20))
	s.router.Use(RequireJSONContentType)
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	// Health works immediately so supervisors can probe during init.
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)

	// Readiness returns 200 only when fully initialized.
	s.router.Get("/api/ready", s.handleReady)

	// Routes that require initialization to be complete.
	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)

		r.Post("/api/insights/aggregate", s.handleAggregate)
		r.Get("/api/runs", s.handleListRuns)
		r.Get("/api/runs/{id}", s.handleGetRun)
	})
}

// requireReady rejects requests until async initialization completes.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			if err := s.GetInitError(); err != nil {
				writeError(w, http.StatusServiceUnavailable, "initialization failed: "+err.Error())
				return
			}
			writeError(w, http.StatusServiceUnavailable, "service initializing, try again shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server. Initialization continues in the background.
func (s *Service) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.WorkerPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().
		Int("port", s.config.WorkerPort).
		Str("version", s.version).
		Msg("Worker HTTP server started (initialization in progress)")

	return nil
}

// Shutdown gracefully shuts down the service.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	s.initMu.RLock()
	runStore := s.runStore
	embedSvc := s.embedSvc
	s.initMu.RUnlock()

	if embedSvc != nil {
		if err := embedSvc.Close(); err != nil {
			log.Error().Err(err).Msg("Embedding service close error")
		}
	}
	if runStore != nil {
		if err := runStore.Close(); err != nil {
			log.Error().Err(err).Msg("Database close error")
		}
	}

	s.wg.Wait()

	log.Info().Msg("Worker service shutdown complete")
	return nil
}
