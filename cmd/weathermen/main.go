package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/weathermen/prometheus-weathermen/internal/auth"
	"github.com/weathermen/prometheus-weathermen/internal/cache"
	"github.com/weathermen/prometheus-weathermen/internal/circuitbreaker"
	"github.com/weathermen/prometheus-weathermen/internal/client"
	"github.com/weathermen/prometheus-weathermen/internal/config"
	httphandler "github.com/weathermen/prometheus-weathermen/internal/http"
	"github.com/weathermen/prometheus-weathermen/internal/observability"
	"github.com/weathermen/prometheus-weathermen/internal/provider"
	"github.com/weathermen/prometheus-weathermen/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", config.DefaultPath, "path to the configuration file")
	verbose := pflag.CountP("verbose", "v", "increase log verbosity (repeatable)")
	quiet := pflag.BoolP("quiet", "q", false, "log errors only")
	showVersion := pflag.Bool("version", false, "print the version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Name, version.Version)
		return
	}

	verbosity := *verbose
	if *quiet {
		verbosity = -1
	}
	logger, err := observability.NewLogger(verbosity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var store cache.Store
	var memcacheCloser *cache.MemcachedStore
	switch cfg.Cache.Backend {
	case "memcached":
		mc := cache.NewMemcachedStore(cfg.Cache.Memcached.Addrs, cfg.Cache.Memcached.Timeout, cfg.Cache.Memcached.MaxIdleConns, logger)
		if err := mc.Ping(); err != nil {
			logger.Fatal("memcached unreachable", zap.Error(err))
		}
		memcacheCloser = mc
		store = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.Cache.Memcached.Addrs))
	default:
		store = cache.NewMemoryStore()
		logger.Info("cache backend: memory")
	}

	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{}, logger)
	fetcher := client.New(nil, breakers, logger)

	tasks, err := config.Tasks(cfg, provider.Deps{
		Client: fetcher,
		Store:  store,
		Logger: logger,
	}, logger)
	if err != nil {
		logger.Fatal("tasks", zap.Error(err))
	}
	logger.Info("scrape tasks materialized", zap.Int("count", len(tasks)))

	authenticator, err := auth.New(cfg.Auth, logger)
	if err != nil {
		logger.Fatal("auth", zap.Error(err))
	}

	handler := httphandler.NewHandler(tasks, authenticator, version.Version, logger)
	router := httphandler.NewRouter(handler, cfg.HTTP, logger)

	addr := net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("version", version.Version),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
