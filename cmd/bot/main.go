// Package main LINE Bot サーバーの入口
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomiyasu0428/agri-ai-agent/internal/agent"
	"github.com/tomiyasu0428/agri-ai-agent/internal/config"
	"github.com/tomiyasu0428/agri-ai-agent/internal/linebot"
	"github.com/tomiyasu0428/agri-ai-agent/internal/nlp"
	"github.com/tomiyasu0428/agri-ai-agent/internal/storage"
	"github.com/tomiyasu0428/agri-ai-agent/internal/storage/cached"
	"github.com/tomiyasu0428/agri-ai-agent/internal/storage/mongostore"
	"github.com/tomiyasu0428/agri-ai-agent/pkg/logging"
)

func main() {
	// 設定を読み込む（.env を自動で読み込み、APP_ENV で環境を切り替える）
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: "bot",
	})
	logger.Info("Starting LINE bot server", "env", cfg.Env, "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MongoDB（農場マスタと作業記録の永続化）
	mongo, err := mongostore.NewStore(cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	logger.Info("Connected to MongoDB", "database", cfg.MongoDatabase)

	// Redis（参照系クエリのキャッシュ）
	var store storage.AgriStore = mongo
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unavailable, running without cache", "addr", cfg.RedisAddr, "error", err)
		redisClient.Close()
	} else {
		store = cached.NewStore(mongo, redisClient, cfg.CacheTTL)
		logger.Info("Connected to Redis", "addr", cfg.RedisAddr)
	}
	defer store.Close()

	// Gemini エージェントプール
	pool, err := agent.NewGeminiPool(ctx, cfg.GoogleAPIKey, cfg.Agent.Model, store, agent.PoolConfig{
		MaxAgents: cfg.Agent.MaxAgents,
		TTL:       cfg.AgentTTL(),
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create agent pool: %v", err)
	}
	defer pool.Shutdown()

	// 会話コンテキストと作業報告パーサー
	contexts := nlp.NewContextManager(cfg.Context.MaxHistory)
	parser := nlp.NewWorkReportParser(nil)

	// LINE クライアントとハンドラー
	lineClient := linebot.NewClient(cfg.LineChannelAccessToken, linebot.DefaultAPIEndpoint)
	metrics := linebot.NewMetrics("agri_bot")
	handler := linebot.NewHandler(contexts, parser, store, pool, lineClient, metrics, logger)

	srv := linebot.NewServer(":"+cfg.Port, handler, cfg.LineChannelSecret, metrics, contexts,
		func() any { return pool.Stats() }, logger)

	// 優雅なシャットダウン
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("LINE bot listening", "port", cfg.Port)
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}
