package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/glonboarding/hr-lambda-telnyx/internal/api"
	"github.com/glonboarding/hr-lambda-telnyx/internal/cache"
	"github.com/glonboarding/hr-lambda-telnyx/internal/client"
	"github.com/glonboarding/hr-lambda-telnyx/internal/config"
	"github.com/glonboarding/hr-lambda-telnyx/internal/repo"
	"github.com/glonboarding/hr-lambda-telnyx/internal/scheduler"
	"github.com/glonboarding/hr-lambda-telnyx/internal/secrets"
	"github.com/glonboarding/hr-lambda-telnyx/internal/service"
)

func main() {
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("gateway starting",
		"addr", cfg.Server.Address,
		"interval", cfg.Scheduler.Interval.String(),
		"redis", cfg.Redis.Enabled,
		"secrets_manager", cfg.Secrets.SecretID != "",
	)

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	if cfg.Database.AutoMigrate {
		gdb, err := repo.OpenGorm(db)
		if err != nil {
			return fmt.Errorf("open gorm: %w", err)
		}
		if err := repo.Migrate(ctx, gdb); err != nil {
			return err
		}
		slog.Info("schema migrated")
	}

	messages := repo.NewPostgresMessageRepo(db)
	leads := repo.NewPostgresLeadRepo(db)
	prompts := repo.NewPostgresPromptRepo(db)

	keys, err := newKeyProvider(ctx, cfg.Secrets)
	if err != nil {
		return err
	}
	telnyx := client.NewTelnyxClient(cfg.Gateway.BaseURL, keys)

	burstSender := service.NewSender(telnyx, messages, leads, cfg.Gateway.BurstSendTimeout).
		WithContentMax(cfg.Gateway.ContentMax)
	replySender := service.NewSender(telnyx, messages, leads, cfg.Gateway.InboundSendTimeout).
		WithContentMax(cfg.Gateway.ContentMax)

	var lock cache.BurstLock = cache.NewLocalBurstLock()
	inbound := service.NewInboundProcessor(messages, leads, prompts, replySender)

	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()

		rc := cache.NewRedisCache(rdb, cfg.Redis.TTL)
		burstSender.WithSentHook(service.CacheSent(rc))
		replySender.WithSentHook(service.CacheSent(rc))

		lock = cache.NewRedisBurstLock(rdb, cfg.Redis.BurstLockTTL)
		inbound.WithDeduper(rc)
	}

	dispatcher := service.NewDispatcher(messages, burstSender, lock)

	sched, err := scheduler.New(cfg.Scheduler.Interval, dispatcher.DispatchAllQueued)
	if err != nil {
		return err
	}
	if cfg.Scheduler.AutoStart {
		sched.Start()
	}

	gin.SetMode(gin.ReleaseMode)
	h := api.NewHandler(sched, messages, dispatcher, inbound, telnyx)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(h, cfg.Auth.InternalToken)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		sched.Stop()
		return err
	})

	return g.Wait()
}

func newKeyProvider(ctx context.Context, cfg config.SecretsConfig) (secrets.Provider, error) {
	if cfg.SecretID == "" {
		return secrets.NewCachedProvider(secrets.StaticSource(cfg.APIKey), cfg.TTL), nil
	}

	src, err := secrets.NewSecretsManagerSource(ctx, cfg.Region, cfg.SecretID)
	if err != nil {
		return nil, err
	}
	return secrets.NewCachedProvider(src, cfg.TTL), nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs one line per request. Bodies and headers are never logged.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
