package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/enterprise-universe/universe-gateway/internal/audit"
	"github.com/enterprise-universe/universe-gateway/internal/auth"
	"github.com/enterprise-universe/universe-gateway/internal/config"
	"github.com/enterprise-universe/universe-gateway/internal/credential"
	"github.com/enterprise-universe/universe-gateway/internal/gateway"
	"github.com/enterprise-universe/universe-gateway/internal/policy"
	"github.com/enterprise-universe/universe-gateway/internal/ratelimit"
	"github.com/enterprise-universe/universe-gateway/internal/redact"
	"github.com/enterprise-universe/universe-gateway/internal/registry"
	"github.com/enterprise-universe/universe-gateway/internal/relay"
	"github.com/enterprise-universe/universe-gateway/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	// Credential values resolved later are masked in every log line.
	redactor := redact.New(nil)
	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       &level,
		ReplaceAttr: redactor.ReplaceAttr,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	setLevel(&level, cfg.Telemetry.LogLevel, logger)

	metrics := telemetry.NewMetrics()

	// Resolve credentials and build the first registry and client
	rt, err := buildRuntime(loader, metrics, logger)
	if err != nil {
		logger.Error("failed to build gateway runtime", "error", err)
		os.Exit(1)
	}
	current := relay.NewCurrent(rt)
	redactor.SetSecrets(rt.Secrets)

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (relay will start but auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (key cache and rate limits disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	// Access policy
	evaluator := policy.NewEvaluator(func() config.PolicyConfig { return loader.Config().Policy })
	loadPolicies(evaluator, logger)

	tracker := relay.NewHealthTracker(
		cfg.Relay.CircuitBreaker.FailureThreshold,
		cfg.Relay.CircuitBreaker.RecoveryProbeInterval,
		metrics,
	)

	deps := relay.Deps{
		Current:      current,
		Health:       tracker,
		Policy:       evaluator,
		Redactor:     redactor,
		Denied:       metrics,
		MaxBodyBytes: func() int64 { return loader.Config().Relay.MaxBodyBytes },
	}
	var auditWriter *audit.Writer
	if cfg.Relay.AuditEnabled {
		auditWriter = audit.NewWriter(dbPool, cfg.Relay.AuditTimeout, 2, 1024, logger)
		deps.Audit = auditWriter
	}
	handler := relay.NewHandler(deps)

	loader.OnReload(func() {
		setLevel(&level, loader.Config().Telemetry.LogLevel, logger)
		next, err := buildRuntime(loader, metrics, logger)
		if err != nil {
			logger.Error("runtime reload failed, keeping previous registry", "error", err)
			return
		}
		current.Install(next, redactor)
		loadPolicies(evaluator, logger)
		logger.Info("provider registry reloaded", "providers", next.Registry.Len())
	})
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if err := loader.Watch(watchCtx); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	keyStore := auth.NewCachedKeyStore(dbPool, rdb)
	limiter := ratelimit.NewLimiter(rdb)
	quota := ratelimit.NewQuotaTracker(rdb)
	limits := ratelimit.Limits{
		DefaultRPM:     cfg.Relay.DefaultRPM,
		DailyCallQuota: cfg.Relay.DailyCallQuota,
	}

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	// Unauthenticated routes
	r.Get("/universe/v1/health", handler.Health(version))
	if cfg.Telemetry.MetricsPort <= 0 {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(keyStore, metrics))
		r.Use(ratelimit.Middleware(limiter, quota, limits, metrics))
		r.Post("/v1/call", handler.Call)
		r.Get("/v1/providers", handler.ListProviders)
		r.Get("/v1/providers/{key}", handler.GetProvider)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var metricsSrv *http.Server
	if cfg.Telemetry.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Telemetry.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics server starting", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	healthSrv := health.NewServer()
	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	if cfg.Server.GRPCHealthPort > 0 {
		grpcAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCHealthPort)
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			logger.Error("failed to listen for grpc health", "addr", grpcAddr, "error", err)
			os.Exit(1)
		}
		go func() {
			logger.Info("grpc health server starting", "addr", grpcAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("grpc health server error", "error", err)
			}
		}()
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay starting", "addr", addr, "version", version, "providers", rt.Registry.Len())
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	// Report NOT_SERVING before draining so load balancers stop routing here.
	healthSrv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if metricsSrv != nil {
		metricsSrv.Shutdown(ctx)
	}
	grpcSrv.GracefulStop()
	if auditWriter != nil {
		auditWriter.Close()
	}
	logger.Info("relay stopped")
}

// buildRuntime resolves credentials and builds a registry and client from
// the loader's current state. The redactor is updated by the caller once
// the runtime is installed.
func buildRuntime(loader *config.Loader, metrics *telemetry.Metrics, logger *slog.Logger) (*relay.Runtime, error) {
	cfg := loader.Config()

	reg, err := registry.Default(loader.Providers())
	if err != nil {
		return nil, fmt.Errorf("build provider registry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	creds, err := credential.Resolve(ctx, credential.FromConfig(cfg.Credentials)...)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials: %w", err)
	}
	logger.Info("credentials resolved", "credentials", creds)

	opts := append(gateway.FromConfig(cfg.Client),
		gateway.WithLogger(logger),
		gateway.WithRecorder(metrics),
	)
	return &relay.Runtime{
		Registry: reg,
		Client:   gateway.New(reg, creds, opts...),
		Secrets:  creds.Secrets(),
	}, nil
}

func loadPolicies(e *policy.Evaluator, logger *slog.Logger) {
	if !e.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// A failed load leaves no policies, and the evaluator denies every call.
	if err := e.Load(ctx); err != nil {
		logger.Error("failed to load policies", "error", err)
	}
}

func setLevel(v *slog.LevelVar, level string, logger *slog.Logger) {
	if level == "" {
		return
	}
	if err := v.UnmarshalText([]byte(level)); err != nil {
		logger.Warn("invalid log level, keeping current", "level", level, "error", err)
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
