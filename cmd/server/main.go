package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/civiclens/civiclens-go/internal/auth"
	"github.com/civiclens/civiclens-go/internal/classify"
	"github.com/civiclens/civiclens-go/internal/complaints"
	"github.com/civiclens/civiclens-go/internal/config"
	"github.com/civiclens/civiclens-go/internal/db"
	"github.com/civiclens/civiclens-go/internal/handlers"
	"github.com/civiclens/civiclens-go/internal/jobs"
	"github.com/civiclens/civiclens-go/internal/metrics"
	"github.com/civiclens/civiclens-go/internal/predict"
	"github.com/civiclens/civiclens-go/internal/ratelimit"
	"github.com/civiclens/civiclens-go/internal/server"
	"github.com/civiclens/civiclens-go/internal/sse"
	certs "github.com/civiclens/civiclens-go/internal/tls"
	"github.com/civiclens/civiclens-go/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := server.SetupLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()
	reg := metrics.NewRegistry()
	streamMetrics := metrics.NewStreamMetrics(reg)

	// Classifier collaborators
	taxonomy, err := cfg.Taxonomy()
	if err != nil {
		logger.Error("failed to load issue labels", "err", err)
		os.Exit(1)
	}
	set, err := classify.NewSet(ctx, cfg.ClassifyOptions(taxonomy))
	if err != nil {
		logger.Error("failed to initialise classifiers", "err", err)
		os.Exit(1)
	}
	defer set.Close()
	logger.Info("classifiers ready",
		"sentiment", classify.BackendOf(set.Sentiment),
		"issue", classify.BackendOf(set.Issue),
		"ner", classify.BackendOf(set.Entities),
		"labels", len(taxonomy.Labels()),
	)

	predictor := predict.NewFromSet(set, metrics.NewPredictMetrics(reg), logger)

	// Rate limiting: Redis when configured so limits hold across replicas.
	var store ratelimit.Store
	var memStore *ratelimit.MemoryStore
	runner := jobs.NewRunner(clock, logger)
	if cfg.RedisURL != "" {
		rs, err := ratelimit.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to configure redis", "err", err)
			os.Exit(1)
		}
		defer rs.Close()
		if err := rs.Ping(ctx); err != nil {
			logger.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		store = rs
	} else {
		memStore = ratelimit.NewMemoryStore()
		store = memStore
	}
	limiter := ratelimit.New(store, clock, metrics.NewRateLimitMetrics(reg), logger)

	if memStore != nil {
		maxWindow := limiter.MaxWindow()
		sweep, err := jobs.New("ratelimit-sweep", "@every 5m", func(ctx context.Context) error {
			if n := memStore.Sweep(clock.Now(), maxWindow); n > 0 {
				logger.Debug("rate limit keys swept", "count", n)
			}
			return nil
		})
		if err != nil {
			logger.Error("failed to schedule job", "err", err)
			os.Exit(1)
		}
		go server.RunWithRecovery(ctx, logger, sweep.Name, runner.Loop(sweep))
	}

	routes := handlers.Routes{
		Predict:     handlers.NewPredictHandler(predictor, limiter, logger),
		Labels:      handlers.NewLabelsHandler(taxonomy),
		PredictWS:   ws.NewHandler(predictor, streamMetrics, logger),
		Limiter:     limiter,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Metrics:     metrics.Handler(reg),
		CORSOrigin:  cfg.CORSOrigin,
	}

	// Complaint API, only with a database.
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("failed to connect to database", "err", err)
			os.Exit(1)
		}
		defer database.Close()

		tokens := auth.NewTokenManager(database, clock, logger)
		svc := complaints.NewService(database, predictor, logger)
		hub := sse.NewHub(streamMetrics, logger)
		pgListener := sse.NewPGListener(database.Pool, hub, logger)

		backfill, err := jobs.Backfill(cfg.BackfillSchedule, cfg.BackfillBatch, svc)
		if err != nil {
			logger.Error("failed to schedule job", "err", err)
			os.Exit(1)
		}
		purge, err := jobs.PurgeTokens(cfg.TokenPurgeSchedule, tokens)
		if err != nil {
			logger.Error("failed to schedule job", "err", err)
			os.Exit(1)
		}

		go server.RunWithRecovery(ctx, logger, "pg-listener", pgListener.Listen)
		go server.RunWithRecovery(ctx, logger, backfill.Name, runner.Loop(backfill))
		go server.RunWithRecovery(ctx, logger, purge.Name, runner.Loop(purge))

		routes.Health = handlers.NewHealthHandler(database, logger)
		routes.Complaints = handlers.NewComplaintHandler(svc, logger)
		routes.Accounts = handlers.NewAccountHandler(auth.NewAccounts(database, tokens, clock, logger), tokens, logger)
		routes.Stream = handlers.NewStreamHandler(hub, svc, logger)
		routes.RequireAuth = auth.RequireAuth(tokens, logger)
	} else {
		logger.Warn("DATABASE_URL not set, complaint and account APIs disabled")
		routes.Health = handlers.NewHealthHandler(nil, logger)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.NewRouter(routes),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE + WebSocket need unlimited write time
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel() // stop background goroutines

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "err", err)
		}
	}()

	if domains := cfg.Domains(); len(domains) > 0 {
		cm, err := certs.NewCertManager(certs.Config{Domains: domains, Email: cfg.ACMEEmail, Staging: cfg.ACMEStaging}, logger)
		if err != nil {
			logger.Error("failed to configure TLS", "err", err)
			os.Exit(1)
		}
		err = cm.Serve(ctx, srv)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
		logger.Info("server stopped")
		return
	}

	logger.Info("server starting", "port", cfg.Port, "env", cfg.AppEnv)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
