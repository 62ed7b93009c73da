package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/scout/internal/config"
	"github.com/kailas-cloud/scout/internal/domain/kind"
	logpkg "github.com/kailas-cloud/scout/internal/logger"
	"github.com/kailas-cloud/scout/internal/metrics"
	candidaterepo "github.com/kailas-cloud/scout/internal/repository/candidate"
	chiTransport "github.com/kailas-cloud/scout/internal/transport/chi"
	candidateuc "github.com/kailas-cloud/scout/internal/usecase/candidate"
	discoveryuc "github.com/kailas-cloud/scout/internal/usecase/discovery"
	healthuc "github.com/kailas-cloud/scout/internal/usecase/health"
	"github.com/kailas-cloud/scout/internal/version"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting scout API server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	kinds, err := kind.NewRegistry(cfg.Discovery.KindList()...)
	if err != nil {
		logger.Fatal("Invalid kind configuration", zap.Error(err))
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	for _, name := range kinds.Names() {
		k, _ := kinds.Lookup(name)
		if err := store.EnsureSchema(ctx, schemaFor(k)); err != nil {
			logger.Fatal("Failed to prepare schema", zap.String("kind", name), zap.Error(err))
		}
	}
	logger.Info("Schemas ready", zap.Strings("kinds", kinds.Names()))

	// Register discovery metrics explicitly (no init())
	metrics.RegisterDiscoveryMetrics()

	repo := candidaterepo.New(
		candidaterepo.NewInstrumentedStore(store, cfg.Database.Driver),
		candidaterepo.BreakerConfig{
			Name:             "candidate-" + cfg.Database.Driver,
			MaxRequests:      cfg.Breaker.MaxRequests,
			Interval:         time.Duration(cfg.Breaker.IntervalSec) * time.Second,
			Timeout:          time.Duration(cfg.Breaker.TimeoutSec) * time.Second,
			FailureThreshold: cfg.Breaker.FailureThreshold,
		},
		logger,
	)

	// Create use case services
	discoverySvc := discoveryuc.New(repo, kinds, discoveryuc.Config{
		HardLimit:  cfg.Discovery.HardLimit,
		FetchSlack: cfg.Discovery.FetchSlack,
		Limits:     cfg.Discovery.Limits(),
	})
	candidateSvc := candidateuc.New(repo, kinds)
	healthSvc := healthuc.New(store, repo)

	server := chiTransport.NewServer(discoverySvc, candidateSvc, healthSvc)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.CORS(cfg.CORS.AllowedOrigins))
	r.Use(chiTransport.RateLimit(cfg.RateLimit.RequestsPerMinute))
	r.Use(chiTransport.BearerAuthMiddleware([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer))
	r.Use(chiTransport.RequestTimeout(time.Duration(cfg.HTTP.RequestTimeoutSec) * time.Second))
	r.Use(metrics.Middleware(kinds.Names()...))
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorCodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("kind", chi.URLParam(r, "kind")),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
