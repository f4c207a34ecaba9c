package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	relayhttp "github.com/Strob0t/depositrelay/internal/adapter/http"
	relaynats "github.com/Strob0t/depositrelay/internal/adapter/nats"
	"github.com/Strob0t/depositrelay/internal/adapter/natskv"
	"github.com/Strob0t/depositrelay/internal/adapter/otel"
	"github.com/Strob0t/depositrelay/internal/adapter/provider"
	"github.com/Strob0t/depositrelay/internal/adapter/ristretto"
	"github.com/Strob0t/depositrelay/internal/adapter/tiered"
	"github.com/Strob0t/depositrelay/internal/config"
	"github.com/Strob0t/depositrelay/internal/logger"
	"github.com/Strob0t/depositrelay/internal/middleware"
	"github.com/Strob0t/depositrelay/internal/port/broadcast"
	"github.com/Strob0t/depositrelay/internal/port/cache"
	"github.com/Strob0t/depositrelay/internal/relay"
	"github.com/Strob0t/depositrelay/internal/resilience"
	"github.com/Strob0t/depositrelay/internal/service"
)

// statusBucket is the JetStream KV bucket shared by relay instances for
// provider status responses.
const statusBucket = "depositrelay_status"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats", cfg.NATS.URL != "",
		"provider", cfg.Provider.BaseURL != "",
		"webhook_secret_set", cfg.Webhook.Secret != "",
	)
	if cfg.Webhook.Secret == "" {
		slog.Warn("webhook secret not configured, /webhook will answer 503")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	tel, shutdownTelemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics(tel.MeterProvider)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Relay ---

	registry := relay.NewRegistry(relay.Options{
		KeepAlive:    cfg.Relay.KeepAliveInterval,
		WriteTimeout: cfg.Relay.WriteTimeout,
		FanoutLimit:  cfg.Relay.FanoutLimit,
		Recorder:     metrics,
	})
	defer registry.Close()

	if cfg.Relay.IdleEviction > 0 {
		stopEviction := registry.StartEviction(cfg.Relay.EvictionInterval, cfg.Relay.IdleEviction)
		defer stopEviction()
	}

	// --- Cache ---

	local, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer local.Close()
	var statusCache cache.Cache = local

	// --- NATS (optional cross-instance fan-out) ---

	var (
		publisher broadcast.Publisher = registry
		queue     *relaynats.Queue
	)
	if cfg.NATS.URL != "" {
		queue, err = relaynats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := queue.Drain(); err != nil {
				slog.Warn("nats drain failed", "error", err)
			}
		}()

		fanout := service.NewFanout(registry, queue)
		cancelFanout, err := fanout.Start(ctx)
		if err != nil {
			return fmt.Errorf("fanout subscriber: %w", err)
		}
		defer cancelFanout()
		publisher = fanout

		if cfg.Cache.StatusTTL > 0 {
			kv, err := queue.KeyValue(ctx, statusBucket, cfg.Cache.StatusTTL)
			if err != nil {
				slog.Warn("shared status cache unavailable, using local only", "error", err)
			} else {
				statusCache = tiered.New(local, natskv.New(kv), cfg.Cache.StatusTTL)
			}
		}
	}

	// --- Services ---

	var deposits *service.DepositService
	if cfg.Provider.BaseURL != "" {
		client := provider.NewClient(cfg.Provider)
		client.SetBreaker(resilience.NewBreaker("provider", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		deposits = service.NewDepositService(client, statusCache, cfg.Cache.StatusTTL)
	} else {
		slog.Info("provider base url not set, deposit proxy disabled")
	}

	var invalidator service.Invalidator
	if deposits != nil {
		invalidator = deposits
	}
	events := service.NewEventService(publisher, invalidator, metrics)

	// --- HTTP ---

	handlers := &relayhttp.Handlers{
		Relay:      registry,
		Events:     events,
		Deposits:   deposits,
		CORSOrigin: cfg.Server.CORSOrigin,
	}
	if queue != nil {
		handlers.Queue = queue
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	r := chi.NewRouter()

	// Middleware
	r.Use(relayhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(relayhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))

	relayhttp.MountRoutes(r, handlers, cfg.Webhook, limiter, tel.MetricsHandler)

	addr := ":" + cfg.Server.Port

	// No WriteTimeout: event streams stay open until a terminal status.
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// Streams never finish on their own. Close the registry once the
	// listeners are down so no new stream can attach behind it.
	srv.RegisterOnShutdown(registry.Close)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
