package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/cloudstore/internal/api"
	"github.com/maltedev/cloudstore/internal/config"
	"github.com/maltedev/cloudstore/internal/crawl"
	"github.com/maltedev/cloudstore/internal/database"
	"github.com/maltedev/cloudstore/internal/events"
	"github.com/maltedev/cloudstore/internal/jobs"
	"github.com/maltedev/cloudstore/internal/parser"
	"github.com/maltedev/cloudstore/internal/sites"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// Relay ships committed outbox events to Redis streams.
	relay := database.NewRelay(db, redisClient, logger, database.RelayConfig{})
	go func() {
		if err := relay.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("relay stopped with error", "error", err)
		}
	}()

	publisher := events.NewPublisher(db, logger)
	products := database.NewProductRepository(db)
	proxyRepo := database.NewProxyRepository(db)

	proxyPool := buildProxyPool(ctx, proxyRepo, cfg.Proxy.Proxies, logger)

	metrics := crawl.NewMetrics()
	transport := crawl.NewHTTPTransport()

	executors := make(map[crawl.Site]jobs.Executor)
	pools := make(map[crawl.Site]*crawl.ProxyPool)
	for _, site := range sites.All() {
		profile, err := sites.Lookup(site)
		if err != nil {
			logger.Error("failed to look up site profile", "site", string(site), "error", err)
			os.Exit(1)
		}
		siteParser, err := parser.ForSite(site)
		if err != nil {
			logger.Error("failed to build parser", "site", string(site), "error", err)
			os.Exit(1)
		}

		sc := cfg.Crawl.SiteCrawl(string(site))
		orchestrator := crawl.NewOrchestrator(crawl.Config{
			Site:              site,
			RateCapacity:      sc.RateCapacity,
			RefillPerSecond:   sc.RefillPerSecond,
			RateFailFast:      sc.RateFailFast,
			MaxRetryAttempts:  sc.MaxRetryAttempts,
			BackoffBase:       sc.BackoffBase,
			BackoffMultiplier: sc.BackoffMultiplier,
			BackoffMax:        sc.BackoffMax,
			RateLimitDelay:    sc.RateLimitDelay,
			JitterFraction:    sc.JitterFraction,
			RequestTimeout:    sc.RequestTimeout,
			ProxyRequired:     profile.ProxyRequired,
			AntiBotMarkers:    profile.AntiBotMarkers,
			Landmarks:         profile.Landmarks,
		}, proxyPool, profile, transport, siteParser, nil, metrics, logger)

		executors[site] = orchestrator
		pools[site] = proxyPool
	}

	manager, err := jobs.NewManager(cfg.Jobs.QueueMaxSize, cfg.Jobs.DedupeCacheSize, logger)
	if err != nil {
		logger.Error("failed to build job manager", "error", err)
		os.Exit(1)
	}

	sessions := func(site crawl.Site) *crawl.Session {
		profile, _ := sites.Lookup(site)
		return crawl.NewSession(cfg.Jobs.Locale, cfg.Jobs.Currency, cfg.Jobs.Region,
			profile.CookieTemplate, profile.ProxyRequired)
	}
	sink := jobs.NewDatabaseSink(db, products, publisher)
	workers := jobs.NewPool(manager, executors, sessions, sink, cfg.Jobs.Workers, cfg.Jobs.OperationTimeout, logger)
	go workers.Run(ctx)

	// Health counters survive restarts through periodic write-back.
	go persistProxies(ctx, proxyRepo, proxyPool, cfg.Proxy.RefreshInterval, logger)

	handlers := api.NewHandlers(manager, pools, products, relay, logger)
	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, metrics.Registry),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down...")
		manager.Close()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
		if err := proxyRepo.Persist(shutdownCtx, proxyPool.Snapshot()); err != nil {
			logger.Error("failed to persist proxies on shutdown", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr, "workers", cfg.Jobs.Workers)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// buildProxyPool merges the persisted inventory with the seed list from the
// environment. Seeds already present in the database are skipped.
func buildProxyPool(ctx context.Context, repo *database.ProxyRepository, seeds []string, logger *slog.Logger) *crawl.ProxyPool {
	pool := crawl.NewProxyPool(nil)

	known := make(map[string]struct{})
	records, err := repo.LoadActive(ctx)
	if err != nil {
		logger.Warn("failed to load proxies from database", "error", err)
	}
	for _, rec := range records {
		pool.Add(rec)
		known[rec.Key()] = struct{}{}
	}

	for _, seed := range seeds {
		rec, err := parseProxy(seed)
		if err != nil {
			logger.Warn("skipping malformed proxy", "proxy", seed, "error", err)
			continue
		}
		if _, ok := known[rec.Key()]; ok {
			continue
		}
		pool.Add(rec)
	}

	logger.Info("proxy pool ready", "size", pool.Len())
	return pool
}

// parseProxy accepts host:port or user:pass@host:port.
func parseProxy(s string) (*crawl.ProxyRecord, error) {
	creds, hostPort, hasCreds := strings.Cut(s, "@")
	if !hasCreds {
		hostPort = s
		creds = ""
	}

	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy port %q: %w", portStr, err)
	}

	rec := crawl.NewProxyRecord(host, port, "http")
	if creds != "" {
		user, pass, _ := strings.Cut(creds, ":")
		rec.Username = user
		rec.Password = pass
	}
	return rec, nil
}

func persistProxies(ctx context.Context, repo *database.ProxyRepository, pool *crawl.ProxyPool, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := repo.Persist(ctx, pool.Snapshot()); err != nil {
				logger.Error("failed to persist proxies", "error", err)
			}
		}
	}
}
