// Package main provides the chat API server for sitechat.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/sitechat-go/internal/config"
	"github.com/raphaelgruber/sitechat-go/internal/db"
	"github.com/raphaelgruber/sitechat-go/internal/embedding"
	"github.com/raphaelgruber/sitechat-go/internal/llm"
	"github.com/raphaelgruber/sitechat-go/internal/metrics"
	"github.com/raphaelgruber/sitechat-go/internal/server"
	"github.com/raphaelgruber/sitechat-go/internal/service"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	slog.Info("starting sitechat-server", "port", cfg.ServerPort)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := dbClient.InitSchema(ctx, cfg.EmbedDimension); err != nil {
		cancel()
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	if *wipeDB || os.Getenv("SITECHAT_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			cancel()
			slog.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}
	cancel()
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	embedder, err := embedding.NewEmbedder(cfg)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	model, err := llm.NewModel(cfg)
	if err != nil {
		slog.Error("failed to create model", "error", err)
		os.Exit(1)
	}

	retriever := service.NewRetriever(dbClient, embedder, cfg, logger)
	limiter := service.NewRateLimiter(cfg.RateLimitRequests, time.Duration(cfg.RateLimitWindowS)*time.Second)
	chat := service.NewChat(dbClient, retriever, model, limiter, logger)
	collector := metrics.NewCollector()

	srv := server.New(cfg, chat, retriever, collector, logger)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(runCtx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
