// Command ragserver runs the Notion-backed retrieval-augmented chat
// service: ingestion, retrieval, session lifecycle, and the HTTP surface
// that fronts them.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fyang0507/notion-rag-core/internal/chunk"
	"github.com/fyang0507/notion-rag-core/internal/config"
	"github.com/fyang0507/notion-rag-core/internal/embed"
	"github.com/fyang0507/notion-rag-core/internal/enrich"
	"github.com/fyang0507/notion-rag-core/internal/httpapi"
	"github.com/fyang0507/notion-rag-core/internal/ingest"
	"github.com/fyang0507/notion-rag-core/internal/llm"
	"github.com/fyang0507/notion-rag-core/internal/notionclient"
	"github.com/fyang0507/notion-rag-core/internal/observability"
	"github.com/fyang0507/notion-rag-core/internal/retrieve"
	"github.com/fyang0507/notion-rag-core/internal/session"
	"github.com/fyang0507/notion-rag-core/internal/store"
	"github.com/fyang0507/notion-rag-core/internal/tokenize"
)

func main() {
	observability.InitLogger(os.Getenv("LOG_PATH"), os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load(envOr("DATABASES_CONFIG", "databases.toml"), envOr("MODELS_CONFIG", "models.toml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownOTel := observability.InitOTel(ctx, observability.OtelConfig{ServiceName: "ragserver"})
	if shutdownOTel != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOTel(shutdownCtx)
		}()
	}

	st := mustStore(ctx, cfg)
	vectorIndex := mustVectorIndex(ctx, cfg)
	tok := mustTokenizer()
	chatProvider := mustChatProvider(cfg)
	embedder := mustEmbedder(cfg)
	pageSource := notionclient.NewClient(cfg.Secrets.NotionAccessToken, 3)

	enricher := enrich.New(chatProvider, tok, 0, log.Logger)
	ingestPipeline := &ingest.Pipeline{
		Source:      pageSource,
		Tokenizer:   tok,
		Chunker:     chunk.New(tok, "article"),
		Enricher:    enricher,
		Embedder:    embedder,
		Store:       st,
		VectorIndex: vectorIndex,
		Log:         log.Logger,
	}
	retrievePipeline := &retrieve.Pipeline{Embedder: embedder, Store: st, VectorIndex: vectorIndex}

	sessionMgr := session.New(st, chatProvider, log.Logger)
	if cfg.Redis.Addr != "" {
		lock, err := session.NewRedisLock(cfg.Redis.Addr)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis for session locking")
		}
		sessionMgr.Lock = lock
	}

	idleMonitor := session.NewIdleMonitor(sessionMgr)
	idleDone := make(chan struct{})
	go func() {
		defer close(idleDone)
		idleMonitor.Run(ctx)
	}()

	router := httpapi.NewRouter(&httpapi.Deps{
		Retrieve: retrievePipeline,
		Ingest:   ingestPipeline,
		Session:  sessionMgr,
		Chat:     chatProvider,
		Store:    st,
		Log:      log.Logger,
	})

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Info().Str("addr", addr).Msg("ragserver listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()
	select {
	case <-idleDone:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("idle monitor did not stop within 5s")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		return
	}
	log.Info().Msg("ragserver stopped")
}

// mustStore builds the relational Store. "qdrant" as store.backend only
// swaps the vector-search path (see mustVectorIndex); document/session
// rows still live in Postgres.
func mustStore(ctx context.Context, cfg config.Config) store.Store {
	if cfg.Store.Backend == "memory" {
		return store.NewMemory()
	}
	pool, err := pgxpool.New(ctx, cfg.Store.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	pg := store.NewPostgres(pool)
	if err := pg.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("postgres schema bootstrap failed")
	}
	return pg
}

// mustVectorIndex returns nil when store.backend is not "qdrant", meaning
// retrieval falls back to the Store's own pgvector/in-memory search.
func mustVectorIndex(ctx context.Context, cfg config.Config) store.VectorIndex {
	if cfg.Store.Backend != "qdrant" {
		return nil
	}
	idx, err := store.NewQdrantIndex(ctx, envOr("QDRANT_DSN", "http://localhost:6334"), "document_chunks", cfg.Models.Embedding.Dimensions)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to qdrant")
	}
	return idx
}

func mustTokenizer() *tokenize.Counter {
	tok, err := tokenize.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load tokenizer")
	}
	return tok
}

func mustChatProvider(cfg config.Config) llm.ChatProvider {
	switch cfg.Models.Chat.Provider {
	case "anthropic":
		return llm.NewAnthropic(cfg.Secrets.LLMAPIKey, cfg.Models.Chat.Model)
	default:
		return llm.NewOpenAI("", cfg.Secrets.LLMAPIKey, cfg.Models.Chat.Model)
	}
}

func mustEmbedder(cfg config.Config) embed.Embedder {
	provider := llm.NewOpenAI("", cfg.Secrets.LLMAPIKey, cfg.Models.Embedding.Model)
	return embed.NewClient(provider, embed.ClientOptions{
		Model:      cfg.Models.Embedding.Model,
		Dimension:  cfg.Models.Embedding.Dimensions,
		MaxRetries: 3,
		RetryDelay: time.Second,
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
