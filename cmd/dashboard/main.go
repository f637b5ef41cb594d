// Command dashboard serves download views that submit batches to the
// download service and track them until they finish.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tubedash/tubedash/internal/config"
	"github.com/tubedash/tubedash/internal/dashboard"
	"github.com/tubedash/tubedash/internal/dlclient"
	"github.com/tubedash/tubedash/internal/health"
	"github.com/tubedash/tubedash/internal/logger"
	"github.com/tubedash/tubedash/internal/metrics"
	"github.com/tubedash/tubedash/internal/validators"
	"github.com/tubedash/tubedash/internal/websocket"
)

const version = "1.0.0"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.LoadDashboard()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel), "dashboard")
	logger.SetDefault(log)

	m := metrics.Default()
	registry := validators.DefaultRegistry()

	manager := dashboard.NewManager(dashboard.Config{
		ServiceURL:     cfg.ServiceURL,
		DefaultToken:   cfg.ServiceToken,
		PollInterval:   cfg.PollInterval,
		NoticeTTL:      cfg.NoticeTTL,
		RequestTimeout: cfg.RequestTimeout,
		ViewTTL:        cfg.ViewTTL,
		MaxFormRows:    cfg.MaxFormRows,
		Validators:     registry,
		Metrics:        m,
		Logger:         log,
	})
	hub := websocket.NewHub(manager, m)
	manager.SetPublisher(hub)

	probe := dlclient.New(cfg.ServiceURL, nil, dlclient.WithTimeout(cfg.RequestTimeout))
	checker := health.NewChecker(&health.CheckerConfig{
		Components: []health.Component{{
			Name:     "download_service",
			Check:    probe.Ping,
			Critical: true,
		}},
		Version: version,
	})

	server := &http.Server{
		Addr: cfg.ServerAddr,
		Handler: dashboard.NewServer(dashboard.ServerConfig{
			Manager:        manager,
			WS:             websocket.NewHandler(hub, cfg.AllowedOrigins),
			Health:         health.NewHandler(checker),
			Metrics:        m,
			Validators:     registry,
			AllowedOrigins: cfg.AllowedOrigins,
			Logger:         log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hub.Run(ctx)
	go manager.RunCleaner(ctx)

	go func() {
		log.Info(ctx, "starting server", map[string]interface{}{
			"addr":        cfg.ServerAddr,
			"service_url": cfg.ServiceURL,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server failed", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "http shutdown error", err)
	}
	manager.Shutdown(shutdownCtx)
	hub.Stop()
}
