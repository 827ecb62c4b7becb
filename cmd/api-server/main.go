package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/clinic-queue/internal/account"
	"github.com/hackgods/clinic-queue/internal/api"
	"github.com/hackgods/clinic-queue/internal/auth"
	"github.com/hackgods/clinic-queue/internal/clinic"
	"github.com/hackgods/clinic-queue/internal/config"
	"github.com/hackgods/clinic-queue/internal/db"
	"github.com/hackgods/clinic-queue/internal/logging"
	"github.com/hackgods/clinic-queue/internal/metrics"
	"github.com/hackgods/clinic-queue/internal/notify"
	redisclient "github.com/hackgods/clinic-queue/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "info")
		boot.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "api-server").Logger()
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN,
		db.WithApplicationName("clinic-api-server"),
		db.WithMaxConns(cfg.PostgresMaxConn),
	)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	collector := metrics.NewCollector()
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)

	hub := notify.NewHub()
	broker := notify.NewRedisBroker(rdb, cfg.NotifyChannel, hub, log)
	go func() {
		if err := broker.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("notification broker stopped")
		}
	}()

	store := clinic.NewPgStore(pgPool)
	locker := redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL)
	clinicSvc := clinic.NewService(store, locker, broker, cfg, log, clinic.WithMetrics(collector))
	policy := auth.DefaultPolicy()
	accountSvc := account.NewService(account.NewPgRepository(pgPool), issuer, log, account.WithPolicy(policy))

	router := api.NewRouter(api.RouterConfig{
		Clinic:   clinicSvc,
		Accounts: accountSvc,
		Issuer:   issuer,
		Policy:   policy,
		Hub:      hub,
		Metrics:  collector,
		Postgres: pgPool,
		Redis:    api.RedisPinger(rdb),
		Logger:   log,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := newHTTPServer(cfg.HTTPPort, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		log.Error().Err(err).Msg("http server failed")
		stop()
	}

	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
}

func newHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
