package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/PratikDhanave/access-status-service/internal/config"
	"github.com/PratikDhanave/access-status-service/internal/extract"
	"github.com/PratikDhanave/access-status-service/internal/httpserver"
	"github.com/PratikDhanave/access-status-service/internal/ingest"
	"github.com/PratikDhanave/access-status-service/internal/logger"
	"github.com/PratikDhanave/access-status-service/internal/notify"
	"github.com/PratikDhanave/access-status-service/internal/reconcile"
	"github.com/PratikDhanave/access-status-service/internal/store"
)

// main boots the service: config → logger → store → schema → engine → HTTP server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "access-status")
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open storage and make sure the tables exist so a fresh deploy is enough.
	st, err := store.Open(ctx, cfg.DBDriver, cfg.DBURL, cfg.SQLitePath)
	if err != nil {
		log.Fatal("open store", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer st.Close()

	pattern := cfg.TrustedSenderPattern
	if pattern == "" {
		pattern = extract.DefaultSenderPattern
	}
	ex, err := extract.New(pattern, extract.WithLocation(cfg.Location))
	if err != nil {
		log.Fatal("extractor", zap.Error(err))
	}

	pub := publisher(ctx, cfg, log)
	eng := reconcile.NewEngine(st, log, reconcile.WithMaxAttempts(cfg.ReconcileMaxAttempts))

	router := httpserver.NewRouter(cfg, httpserver.Deps{
		Store:     st,
		Engine:    eng,
		Ingest:    ingest.NewService(ex, eng, pub, log),
		Extractor: ex,
		Log:       log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		log.Info("server started", zap.String("addr", cfg.HTTPAddr), zap.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}

// publisher returns a Redis stream publisher when REDIS_ADDR is set and a
// no-op otherwise. An unreachable Redis is logged, not fatal: events are
// best-effort.
func publisher(ctx context.Context, cfg config.Config, log *zap.Logger) notify.Publisher {
	if cfg.RedisAddr == "" {
		return notify.Nop{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pub := notify.NewRedisPublisher(client, cfg.RedisStream, 10000)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pub.Ping(pingCtx); err != nil {
		log.Warn("redis unreachable, status events will fail until it recovers",
			zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	return pub
}
