package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/recall/internal/chat"
	"github.com/ent0n29/recall/internal/config"
	"github.com/ent0n29/recall/internal/convlog"
	"github.com/ent0n29/recall/internal/embeddings"
	"github.com/ent0n29/recall/internal/httpapi"
	"github.com/ent0n29/recall/internal/memory"
	"github.com/ent0n29/recall/internal/observability"
	"github.com/ent0n29/recall/internal/responder"
	"github.com/ent0n29/recall/internal/session"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "recall",
	})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config error", "err", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()

	memoryStore := buildMemoryStore(cfg, logger)
	defer memoryStore.Close()

	transcript, err := convlog.NewLog(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("conversation log init failed", "err", err)
	}
	defer transcript.Close()
	if cfg.DatabaseURL == "" {
		logger.Info("conversation log: in-memory (DATABASE_URL not set)")
	} else {
		logger.Info("conversation log: postgres")
	}

	brain, err := responder.New(responder.Config{
		Mode:         cfg.ResponderMode,
		ModelID:      cfg.ModelID,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OpenAIBase:   cfg.OpenAIBaseURL,
		HTTPURL:      cfg.ResponderHTTPURL,
	})
	if err != nil {
		logger.Fatal("responder init failed", "err", err)
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	orchestrator := chat.NewOrchestrator(memoryStore, transcript, brain, metrics, logger, chat.Options{
		RecallLimit:        cfg.RecallLimit,
		SearchTimeout:      cfg.SearchTimeout,
		GenerationTimeout:  cfg.GenerationTimeout,
		PersistTimeout:     cfg.PersistTimeout,
		MemoryWriteTimeout: cfg.MemoryWriteTimeout,
	})

	api := httpapi.New(cfg, sessions, orchestrator, memoryStore, transcript, metrics, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "err", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}

// buildMemoryStore wires the configured backend and falls back to the no-op
// store instead of crashing: the assistant keeps answering without memory.
func buildMemoryStore(cfg config.Config, logger *log.Logger) memory.Store {
	var embedder embeddings.Embedder
	provider := strings.ToLower(strings.TrimSpace(cfg.MemoryProvider))
	wantsEmbedder := provider == "chromem" || (provider == "" || provider == "auto") && cfg.MemoryServiceURL == ""
	if wantsEmbedder {
		if cfg.OpenAIAPIKey != "" {
			embedder = embeddings.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
			logger.Info("embedder: openai", "model", cfg.EmbeddingModel)
		} else if provider == "chromem" {
			embedder = embeddings.NewMockEmbedder()
			logger.Info("embedder: mock (OPENAI_API_KEY not set)")
		}
	}

	store, err := memory.NewStore(memory.Options{
		Provider:    cfg.MemoryProvider,
		ServiceURL:  cfg.MemoryServiceURL,
		ServiceKey:  cfg.MemoryServiceKey,
		ChromemPath: cfg.ChromemPath,
		Embedder:    embedder,
	})
	if err != nil {
		logger.Warn("memory store init failed, continuing without memory", "err", err)
		return memory.NewNoopStore()
	}
	return store
}
