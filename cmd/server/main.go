package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"docqa/internal/adapter/provider/llm/openai"
	"docqa/internal/api"
	"docqa/internal/db/postgres"
	redisdb "docqa/internal/db/redis"
	"docqa/internal/domain/memory"
	"docqa/internal/domain/rag"
	"docqa/internal/platform/config"
	applog "docqa/internal/platform/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		applog.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeSeconds) * time.Second)

	if err := db.Ping(); err != nil {
		applog.Fatalf("❌ Failed to ping database: %v", err)
	}
	applog.Info("✅ Connected to PostgreSQL")

	ragCfg := &cfg.RAG

	vectorStore := postgres.NewVectorStore(db)
	turnStore := postgres.NewTurnStore(db)

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer migrateCancel()
	if err := vectorStore.EnsureSchema(migrateCtx, ragCfg.EmbeddingDims); err != nil {
		applog.Fatalf("❌ Failed to ensure document tables: %v", err)
	}
	applog.Info("✅ Document tables ready (documents, chunks)")
	if err := turnStore.EnsureSchema(migrateCtx); err != nil {
		applog.Fatalf("❌ Failed to ensure session_turns table: %v", err)
	}
	applog.Info("✅ Session turns table ready")

	embedder := rag.NewOpenAIEmbedder(rag.OpenAIEmbedderConfig{
		BaseURL:        cfg.OpenAI.BaseURL,
		APIKey:         cfg.OpenAI.APIKey,
		Model:          ragCfg.EmbeddingModel,
		Dims:           ragCfg.EmbeddingDims,
		TimeoutSeconds: ragCfg.ModelTimeout(),
	})
	gateway := rag.NewGateway(embedder, rag.GatewayConfig{
		BatchSize: ragCfg.EmbeddingBatchSize,
	})
	applog.Infof("✅ Embedding gateway initialized (model: %s, dims: %d, batch: %d)",
		ragCfg.EmbeddingModel, embedder.Dims(), ragCfg.EmbeddingBatchSize)

	llm := openai.New(openai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
	})
	applog.Infof("✅ LLM provider initialized (model: %s)", ragCfg.GenerationModel)

	var searchCache rag.SearchCacheStore
	if ragCfg.HasCache() && cfg.Redis.URL != "" {
		if opt, err := goredis.ParseURL(cfg.Redis.URL); err == nil {
			cacheRedis := goredis.NewClient(opt)
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = cacheRedis.Ping(pingCtx).Err()
			pingCancel()
			if err != nil {
				applog.Warnf("⚠️  Redis ping failed, search cache disabled: %v", err)
			} else {
				searchCache = redisdb.NewSearchCache(cacheRedis, ragCfg.CacheTTL)
				applog.Infof("✅ Search cache initialized (TTL: %ds)", ragCfg.CacheTTL)
			}
		} else {
			applog.Warnf("⚠️  Redis URL invalid, search cache disabled: %v", err)
		}
	}

	chunker, err := rag.NewChunker(ragCfg.ChunkSize, ragCfg.ChunkOverlap)
	if err != nil {
		applog.Fatalf("❌ Invalid chunker config: %v", err)
	}

	mem, err := memory.NewManager(turnStore, ragCfg.MemoryTurns, ragCfg.RetainTurns)
	if err != nil {
		applog.Fatalf("❌ Invalid memory config: %v", err)
	}

	ingestor, err := rag.NewIngestor(chunker, gateway, vectorStore, searchCache, ragCfg)
	if err != nil {
		applog.Fatalf("❌ Failed to build ingest pipeline: %v", err)
	}
	answerer, err := rag.NewAnswerer(gateway, vectorStore, mem, llm, searchCache, ragCfg)
	if err != nil {
		applog.Fatalf("❌ Failed to build answerer: %v", err)
	}

	parsers := rag.NewParserRegistry()
	applog.Infof("✅ Parser registry initialized (types: %s)", parsers.SupportedTypes())

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	serverConfig.JWTSecret = cfg.Auth.JWTSecret
	serverConfig.JWTIssuer = cfg.Auth.JWTIssuer
	serverConfig.MaxFileMB = ragCfg.MaxFileSize
	server := api.NewServer(serverConfig, ingestor, answerer, vectorStore, mem, parsers)

	if serverConfig.JWTSecret == "" {
		applog.Info("ℹ️  No JWT_SECRET set, API runs unauthenticated (single-user mode)")
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Error("❌ Server shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && err.Error() != "http: Server closed" {
		applog.Fatalf("❌ Server error: %v", err)
	}

	applog.Info("👋 Server stopped")
}
