// Command devservice runs a simulated download service that speaks the
// same HTTP contract as the real one but never fetches anything.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tubedash/tubedash/internal/api"
	"github.com/tubedash/tubedash/internal/auth"
	"github.com/tubedash/tubedash/internal/config"
	"github.com/tubedash/tubedash/internal/download"
	apperrors "github.com/tubedash/tubedash/internal/errors"
	"github.com/tubedash/tubedash/internal/health"
	"github.com/tubedash/tubedash/internal/logger"
	"github.com/tubedash/tubedash/internal/metrics"
	"github.com/tubedash/tubedash/internal/middleware"
)

const version = "1.0.0"

func main() {
	mintToken := flag.Bool("mint-token", false, "print a signed token and exit")
	userID := flag.Int64("user-id", 1, "user id for -mint-token")
	username := flag.String("username", "dev", "username for -mint-token")
	admin := flag.Bool("admin", false, "admin flag for -mint-token")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of a minted token")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.LoadDevService()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel), "devservice")
	logger.SetDefault(log)
	ctx := context.Background()

	issuer := auth.NewIssuer(cfg.JWTSecret)
	if *mintToken {
		if os.Getenv("JWT_SECRET") == "" {
			fmt.Fprintln(os.Stderr, "warning: JWT_SECRET is not set; this token only works for this process")
		}
		token, err := issuer.IssueToken(*userID, *username, *admin, *tokenTTL)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	var (
		store       download.Store
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		redisStore, err := download.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Error(ctx, "failed to connect to redis", err)
			os.Exit(1)
		}
		store = redisStore
		redisClient = redisStore.Client()
		log.Info(ctx, "using redis job store")
	} else {
		store = download.NewMemoryStore()
		log.Info(ctx, "using in-memory job store")
	}

	svc := download.NewService(store, &download.ServiceConfig{
		WorkerCount: cfg.WorkerCount,
		MaxBatch:    cfg.MaxBatch,
		StepDelay:   cfg.StepDelay,
		Logger:      log,
	})
	svc.Start()

	checker := health.NewChecker(&health.CheckerConfig{
		Redis: redisClient,
		Components: []health.Component{{
			Name:     "workers",
			Critical: true,
			Check: func(ctx context.Context) error {
				if !svc.IsRunning() {
					return errors.New("worker pool stopped")
				}
				return nil
			},
		}},
		Version: version,
	})

	m := metrics.Default()
	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(svc, issuer, health.NewHandler(checker)))
	mux.Handle("GET /metrics", m.Handler())

	server := &http.Server{
		Addr: cfg.ServerAddr,
		Handler: middleware.Chain(mux,
			apperrors.RequestIDMiddleware,
			logger.RecoveryMiddleware,
			logger.LoggingMiddleware,
			metrics.MetricsMiddleware(m),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info(ctx, "starting server", map[string]interface{}{
			"addr":    cfg.ServerAddr,
			"workers": cfg.WorkerCount,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server failed", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "http shutdown error", err)
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "download service shutdown error", err)
	}
}
