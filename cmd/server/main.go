// Package main runs the signaling relay server: one websocket endpoint
// carrying room control and stream fan-out, plus a small REST surface for
// tokens, room lookup and metrics.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-stream/relay/config"
	"github.com/aura-stream/relay/internal/archive"
	"github.com/aura-stream/relay/internal/auth"
	"github.com/aura-stream/relay/internal/metrics"
	"github.com/aura-stream/relay/internal/middleware"
	"github.com/aura-stream/relay/internal/relay"
	"github.com/aura-stream/relay/internal/sessionlog"
	"github.com/aura-stream/relay/pkg/database"
	"github.com/aura-stream/relay/pkg/queue"
	"github.com/aura-stream/relay/pkg/redis"
	"github.com/aura-stream/relay/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	// Room event log is optional; the relay itself has no persistent state.
	var events relay.EventRecorder
	var eventHandler *sessionlog.Handler
	if cfg.Database.Enabled() {
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		repo := sessionlog.NewRepository(pool, logger)
		events = repo
		eventHandler = sessionlog.NewHandler(repo)
	}

	// Archive pipeline is optional; it needs Redis for the upload queue.
	var tap relay.StreamTap
	if cfg.Archive.Enabled && cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		jobQueue := queue.NewQueue(rdb.Client, logger)
		tap = archive.NewArchiver(cfg.Archive.SpoolDir, jobQueue, logger)
		logger.Info("segment archiving enabled", zap.String("spool_dir", cfg.Archive.SpoolDir))
	}

	m := metrics.New()
	registry := relay.NewRegistry(logger)
	engine := relay.NewEngine(registry, m, events, tap, logger)

	// Token auth is optional; with no secret the websocket endpoint is open.
	var validate relay.TokenValidator
	var authHandler *auth.Handler
	if cfg.JWT.Secret != "" {
		jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
		authHandler = auth.NewHandler(jwtService, logger)
		validate = func(token string) (string, string, error) {
			claims, err := jwtService.Validate(token)
			if err != nil {
				return "", "", err
			}
			return claims.DisplayName, claims.Role, nil
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(m.Handler(func() {
		m.SetActiveRooms(registry.RoomCount())
		m.SetConnectedViewers(registry.ViewerCount())
	})))

	if authHandler != nil {
		router.POST("/auth/token", authHandler.IssueToken)
	}

	api := router.Group("/api")
	{
		api.GET("/rooms/:key", relay.GetRoom(registry))
		if eventHandler != nil {
			api.GET("/rooms/:key/events", eventHandler.ListByRoom)
		}
		api.GET("/signal", relay.ServeWs(engine, logger, validate))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("relay listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("relay stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
