// Package main boots the inventory coordinator HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/inventory-coordinator/internal/config"
	httpapi "github.com/fairyhunter13/inventory-coordinator/internal/http"
	"github.com/fairyhunter13/inventory-coordinator/internal/inventory"
	"github.com/fairyhunter13/inventory-coordinator/internal/model"
	"github.com/fairyhunter13/inventory-coordinator/internal/obs"
	"github.com/fairyhunter13/inventory-coordinator/internal/queue"
)

func main() {
	cfg, err := config.LoadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		obs.Logger.Error("config_error", "error", err)
		os.Exit(1)
	}
	obs.InitLogger(cfg.LogLevel)
	obs.Logger.Info("service_starting", "rate_limit", cfg.RateLimit, "breaker_threshold", cfg.BreakerThreshold, "cache_ttl_ms", cfg.CacheTTL.Milliseconds())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inv := inventory.New(cfg)
	for _, p := range cfg.Seed {
		if _, err := inv.Create(p); err != nil && !errors.Is(err, model.ErrExists) {
			obs.Logger.Error("seed_error", "product_id", p.ID, "error", err)
			os.Exit(1)
		}
	}
	inv.Start(ctx)

	mgr := queue.NewManager(cfg, queue.New(128), inv)
	mgr.Start(ctx)

	app := httpapi.NewApp(cfg, inv, mgr)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// No WriteTimeout: product streams stay open until the client leaves.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Logger.Error("http_server_error", "error", err)
			os.Exit(1)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	obs.Logger.Info("shutdown_signal", "signal", s.String())

	app.StartShutdown()
	m := mgr.Metrics()
	obs.Logger.Info("shutdown_drain_begin", "backlog_size", m.Backlog, "worker_count", mgr.WorkerCount())

	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := mgr.DrainUntil(ctxDrain); !drained {
		obs.Logger.Warn("shutdown_drain_timeout")
	} else {
		obs.Logger.Info("shutdown_drain_complete")
	}

	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", "error", err)
	}
	mgr.Stop()
	obs.Logger.Info("service_stopped")
}
