// Command apiman runs the API-management quota service: product catalog,
// API bundling, user subscriptions, and per-API usage accounting backed
// by a shared Redis store.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nhalm/apiman/internal/api"
	"github.com/nhalm/apiman/internal/config"
	"github.com/nhalm/apiman/internal/quota"
	"github.com/nhalm/apiman/internal/store"
)

func main() {
	configPath := pflag.String("config", "", "path to YAML config file (optional)")
	pflag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st, err := store.NewRedis(store.RedisConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		Prefix:    cfg.Redis.Prefix,
		OpTimeout: cfg.Redis.OpTimeout,
		PoolSize:  cfg.Redis.PoolSize,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	svc := quota.NewService(st, quota.WithDefaultQuota(cfg.DefaultQuota))

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.NewRouter(svc),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("apiman listening on %s (redis %s)", cfg.Listen, cfg.Redis.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Print("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
