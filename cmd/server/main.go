package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/park285/maths-nerds-server/internal/assistant"
	appcfg "github.com/park285/maths-nerds-server/internal/config"
	"github.com/park285/maths-nerds-server/internal/gateway"
	"github.com/park285/maths-nerds-server/internal/httpapi"
	"github.com/park285/maths-nerds-server/internal/matchlog"
	"github.com/park285/maths-nerds-server/internal/msgcat"
	"github.com/park285/maths-nerds-server/internal/obslog"
	"github.com/park285/maths-nerds-server/internal/roomstore"
	"github.com/park285/maths-nerds-server/internal/session"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: .env: %v", err)
	}

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(obslog.Options{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		ToConsole: cfg.Log.ToConsole,
		ToFile:    cfg.Log.ToFile,
		File:      cfg.Log.File,
		Caller:    cfg.Log.Caller,
	}); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	texts, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("msgcat_init_error", zap.Error(err))
	}

	opts := []session.Option{
		session.WithTexts(texts),
		session.WithLogger(logger.Named("session")),
		session.WithBotTimeout(cfg.AssistantTimeout),
	}
	if cfg.AssistantEnabled() {
		bot := assistant.NewClient(cfg.AssistantBaseURL,
			assistant.WithAPIKey(cfg.AssistantAPIKey),
			assistant.WithModel(cfg.AssistantModel),
			assistant.WithTimeout(cfg.AssistantTimeout),
			assistant.WithMaxTokens(cfg.AssistantMaxTokens),
		)
		opts = append(opts, session.WithAssistant(bot))
		logger.Info("assistant_enabled", zap.String("model", cfg.AssistantModel))
	}

	// Redis room directory (optional)
	var (
		store  *roomstore.Store
		mirror *roomstore.Mirror
	)
	if cfg.RedisURL != "" {
		store, err = roomstore.Open(cfg.RedisURL, cfg.RoomSnapshotTTL)
		if err != nil {
			logger.Fatal("redis_init_error", zap.Error(err))
		}
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := store.Reset(rctx); err != nil {
			logger.Warn("room_mirror_reset_error", zap.Error(err))
		}
		cancel()
		mirror = roomstore.NewMirror(store, 0, logger.Named("roomstore"))
		mirror.Start()
		opts = append(opts, session.WithObserver(mirror))
	}

	// Postgres match log (optional)
	var (
		repo     *matchlog.Repository
		recorder *matchlog.Recorder
	)
	if cfg.DatabaseURL != "" {
		repo, err = matchlog.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db_init_error", zap.Error(err))
		}
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := repo.EnsureSchema(sctx); err != nil {
			cancel()
			logger.Fatal("db_schema_error", zap.Error(err))
		}
		cancel()
		recorder = matchlog.NewRecorder(repo, 0, logger.Named("matchlog"))
		recorder.Start()
		opts = append(opts, session.WithObserver(recorder))
	}

	svc := session.NewService(opts...)
	gw := gateway.New(svc,
		gateway.WithOrigins(cfg.AllowedOrigins),
		gateway.WithReadLimit(cfg.WSReadLimit),
		gateway.WithOutboxSize(cfg.OutboxSize),
		gateway.WithPingInterval(cfg.PingInterval),
		gateway.WithLogger(logger.Named("gateway")),
	)
	api := httpapi.NewServer(svc, gw,
		httpapi.WithStatic(cfg.StaticDir, cfg.IndexFile),
		httpapi.WithLogger(logger.Named("http")),
	)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server_listen", zap.String("addr", srv.Addr), zap.String("static", cfg.StaticDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server_error", zap.Error(err))
		}
	}()

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown_start", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http_shutdown_error", zap.Error(err))
	}
	// hijacked websocket connections are not covered by Shutdown
	if err := gw.Close(ctx); err != nil {
		logger.Warn("gateway_close_error", zap.Error(err))
	}
	if err := svc.WaitContext(ctx); err != nil {
		logger.Warn("bot_drain_error", zap.Error(err))
	}
	if mirror != nil {
		if err := mirror.Close(ctx); err != nil {
			logger.Warn("room_mirror_close_error", zap.Error(err))
		}
		_ = store.Close()
	}
	if recorder != nil {
		if err := recorder.Close(ctx); err != nil {
			logger.Warn("match_recorder_close_error", zap.Error(err))
		}
		_ = repo.Close()
	}
	logger.Info("shutdown_done")
}
