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

	"ledger-gate/internal/audit"
	"ledger-gate/internal/auth"
	"ledger-gate/internal/config"
	"ledger-gate/internal/cookies"
	"ledger-gate/internal/csrf"
	"ledger-gate/internal/gate"
	"ledger-gate/internal/httpapi"
	"ledger-gate/internal/ratelimit"
	"ledger-gate/internal/tenant"
	"ledger-gate/pkg/logger"
	"ledger-gate/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	checks := map[string]httpapi.HealthCheck{
		"postgres": func(ctx context.Context) error { return utils.HealthCheck(ctx, db, 2*time.Second) },
	}

	backend, closeBackend, err := newRateLimitBackend(rootCtx, cfg, log, checks)
	if err != nil {
		log.Error("rate limit backend init failed", "err", err)
		os.Exit(1)
	}
	defer closeBackend()

	recorder := audit.NewService(audit.NewPostgresRepo(db))
	settings := tenant.NewPostgresStore(db)
	codec := cookies.NewCodec(cfg.Backend.URL, cfg.IsProduction(), cfg.Cookie.Domain)
	identity := auth.NewIdentityClient(cfg.Backend.URL, cfg.Backend.AnonKey, cfg.Backend.IdentityTimeout)

	verifier, err := newSessionVerifier(cfg, identity)
	if err != nil {
		log.Error("session verifier init failed", "err", err)
		os.Exit(1)
	}
	checker := auth.NewChecker(codec, verifier, cfg.Backend.IdentityTimeout)
	csrfManager := csrf.NewManager(codec, csrf.WithRecorder(recorder))

	r, err := newRouter(components{
		log:      log,
		recorder: recorder,
		gate:     gate.New(checker, settings, cfg.Backend.SettingsTimeout),
		limiter: ratelimit.New(backend,
			ratelimit.WithLogger(log),
			ratelimit.WithRecorder(recorder),
			ratelimit.WithTimeout(cfg.RateLimit.Timeout),
		),
		csrf: csrfManager,
		handlers: httpapi.Handlers{
			Identity:        identity,
			Sessions:        checker,
			Cookies:         codec,
			CSRF:            csrfManager,
			Settings:        settings,
			IdentityTimeout: cfg.Backend.IdentityTimeout,
			SettingsTimeout: cfg.Backend.SettingsTimeout,
			Checks:          checks,
		},
	}, cfg.HTTP.TrustedProxies)
	if err != nil {
		log.Error("router init failed", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "redis", cfg.RedisEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// newRateLimitBackend picks the counter store once for the process lifetime.
// An unreachable Redis at startup is not fatal: the limiter fails open per
// request until it comes back.
func newRateLimitBackend(ctx context.Context, cfg config.Config, log *slog.Logger, checks map[string]httpapi.HealthCheck) (ratelimit.Backend, func(), error) {
	if !cfg.RedisEnabled() {
		mem := ratelimit.NewMemoryBackend()
		go mem.RunSweeper(ctx, cfg.RateLimit.SweepInterval, log)
		log.Warn("REDIS_HOST not set, using in-process rate limiter; limits are per instance")
		return mem, func() {}, nil
	}

	rdb, err := utils.NewRedis(utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		return nil, nil, err
	}
	if err := utils.PingRedis(ctx, rdb, 2*time.Second); err != nil {
		log.Warn("redis unreachable at startup, rate limiting fails open until it recovers", "err", err)
	}
	checks["redis"] = func(ctx context.Context) error { return utils.PingRedis(ctx, rdb, time.Second) }
	return ratelimit.NewRedisBackend(rdb), func() { _ = rdb.Close() }, nil
}

// newSessionVerifier verifies tokens locally when the signing secret is
// configured, and asks the identity service otherwise.
func newSessionVerifier(cfg config.Config, identity *auth.IdentityClient) (auth.SessionVerifier, error) {
	if cfg.Backend.JWTSecret == "" {
		return identity, nil
	}
	return auth.NewTokenVerifier(cfg.Backend.JWTSecret, strings.TrimRight(cfg.Backend.URL, "/")+"/auth/v1")
}
