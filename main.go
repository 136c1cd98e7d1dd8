package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/frontdesk-labs/concierge/internal/answer"
	"github.com/frontdesk-labs/concierge/internal/config"
	"github.com/frontdesk-labs/concierge/internal/embeddings"
	"github.com/frontdesk-labs/concierge/internal/entities"
	"github.com/frontdesk-labs/concierge/internal/health"
	"github.com/frontdesk-labs/concierge/internal/httpapi"
	"github.com/frontdesk-labs/concierge/internal/intent"
	"github.com/frontdesk-labs/concierge/internal/knowledge"
	"github.com/frontdesk-labs/concierge/internal/kv"
	"github.com/frontdesk-labs/concierge/internal/orchestrator"
	"github.com/frontdesk-labs/concierge/internal/schedule"
	"github.com/frontdesk-labs/concierge/internal/session"
	"github.com/frontdesk-labs/concierge/internal/vectordb"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	store, err := kv.NewStore(cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.String("url", cfg.RedisURL), zap.Error(err))
	}
	defer store.Close()

	vdb := vectordb.NewClient(vectordb.Config{
		URL:    cfg.QdrantURL,
		APIKey: cfg.QdrantAPIKey,
	}, logger)

	embedder := embeddings.NewService(embeddings.Config{
		BaseURL:    cfg.EmbeddingBaseURL,
		APIKey:     cfg.EmbeddingAPIKey,
		Model:      cfg.EmbeddingModel,
		Dimensions: config.VectorDim,
	}, store, logger)

	dao := knowledge.NewDAO(embedder, vdb, store, config.CollectionName, config.VectorDim, logger)

	var backend intent.Backend
	backend, err = intent.NewBayesBackend()
	if err != nil {
		// Keyword rules keep the classifier working without the model.
		logger.Warn("intent model unavailable, using keyword rules", zap.Error(err))
		backend = intent.NewKeywordBackend()
	}
	classifier := intent.NewClassifier(backend, logger)

	sessions := session.NewManager(store, logger)
	scheduler := schedule.NewService(store, logger)
	engine := orchestrator.NewEngine(
		classifier,
		dao,
		answer.NewExtractor(embedder, logger),
		entities.NewExtractor(logger),
		scheduler,
		sessions,
		store,
		logger,
	)

	healthMgr := health.NewManager(logger)
	healthMgr.Register(health.NewCheck("redis", true, store.Ping))
	healthMgr.Register(health.NewCheck("qdrant", true, vdb.Healthy))
	healthMgr.Register(health.NewCheck("embeddings", false, func(ctx context.Context) error {
		_, err := embedder.Embed(ctx, "ping")
		return err
	}))

	// Admin surface: probes and metrics, on its own port.
	adminMux := http.NewServeMux()
	healthMgr.RegisterRoutes(adminMux)
	adminMux.Handle("/metrics", promhttp.Handler())
	adminSrv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HealthPort),
		Handler:      adminMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("admin server listening", zap.Int("port", cfg.HealthPort))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", zap.Error(err))
		}
	}()

	// Public API.
	api := httpapi.NewAPI(engine, dao, scheduler, sessions, store, healthMgr, cfg.ChatRPS, logger)
	apiMux := http.NewServeMux()
	api.RegisterRoutes(apiMux)
	apiSrv := &http.Server{
		Addr:        ":" + strconv.Itoa(cfg.Port),
		Handler:     apiMux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		logger.Info("api server listening", zap.Int("port", cfg.Port))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server failed", zap.Error(err))
		}
	}()

	warmUp(embedder, store, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown", zap.Error(err))
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin server shutdown", zap.Error(err))
	}
}

// warmUp primes the embedding path and verifies the KV connection so the
// first user turn does not pay cold-start latency. Failures only log; the
// service still starts and degrades per component.
func warmUp(embedder *embeddings.Service, store *kv.Store, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		logger.Warn("warm-up: redis ping failed", zap.Error(err))
	}
	start := time.Now()
	if _, err := embedder.Embed(ctx, "warm-up"); err != nil {
		logger.Warn("warm-up: embedding call failed", zap.Error(err))
		return
	}
	logger.Info("warm-up complete", zap.Duration("embedding_latency", time.Since(start)))
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
