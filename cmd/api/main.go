package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/teamup/internal/app/migrate"
	httpx "github.com/splax/teamup/internal/http"
	"github.com/splax/teamup/internal/notify"
	"github.com/splax/teamup/internal/repository"
	"github.com/splax/teamup/internal/repository/memory"
	"github.com/splax/teamup/internal/repository/postgres"
	"github.com/splax/teamup/internal/service/auth"
	"github.com/splax/teamup/internal/service/inbox"
	"github.com/splax/teamup/internal/service/membership"
	"github.com/splax/teamup/internal/service/offer"
	"github.com/splax/teamup/internal/telemetry"
	"github.com/splax/teamup/internal/ws"
	"github.com/splax/teamup/pkg/config"
	"github.com/splax/teamup/pkg/logger"
)

// backend is the storage the API runs on.
type backend interface {
	repository.Store
	repository.NotificationRepository
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		logger.New("api", slog.LevelInfo).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New("api", cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "teamup-api", cfg.OTELEndpoint)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	hub := ws.NewHub()
	defer hub.Close()
	inboxSvc := inbox.New(store, hub, log)

	dispatcher := notify.NewDispatcher(log, cfg.NotifyTimeout).
		Add("log", notify.NewLogEmitter(log)).
		Add("inbox", inboxSvc)
	if url := strings.TrimSpace(cfg.NATSURL); url != "" {
		natsEmitter, err := notify.NewNATSEmitter(url, cfg.NATSSubjectPrefix)
		if err != nil {
			log.Warn("nats notifications unavailable", "error", err)
		} else {
			defer natsEmitter.Close()
			dispatcher.Add("nats", natsEmitter)
		}
	}
	if url := strings.TrimSpace(cfg.NotifyWebhookURL); url != "" {
		webhookEmitter, err := notify.NewWebhookEmitter(url, cfg.NotifyWebhookSecret, &http.Client{Timeout: cfg.NotifyTimeout})
		if err != nil {
			log.Warn("webhook notifications unavailable", "error", err)
		} else {
			dispatcher.Add("webhook", webhookEmitter)
		}
	}

	authSvc := auth.New(store, log, cfg)
	membershipSvc := membership.New(store, dispatcher, log)
	offerSvc := offer.New(store, dispatcher, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(httpx.Dependencies{
		Logger:       log,
		Auth:         authSvc,
		Membership:   membershipSvc,
		Offers:       offerSvc,
		Inbox:        inboxSvc,
		Limiter:      limiter,
		DBHealth:     store.Ping,
		WSSendBuffer: cfg.WSSendBuffer,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "store", cfg.StoreDriver)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (backend, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := runner.Ensure(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return postgres.New(pool), pool.Close, nil
}
