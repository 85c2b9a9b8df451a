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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/yishak-cs/stylematch/internal/handlers"
	"github.com/yishak-cs/stylematch/internal/logger"
	"github.com/yishak-cs/stylematch/internal/metrics"
	"github.com/yishak-cs/stylematch/internal/middleware"
	"github.com/yishak-cs/stylematch/pkg/helper"
)

func main() {
	// .env is optional
	envErr := godotenv.Load()

	cfg, err := helper.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Options{
		Mode:     cfg.Log.Mode,
		Level:    cfg.Log.Level,
		Redact:   cfg.Log.Redact,
		HashSalt: cfg.Log.HashSalt,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn("error loading .env file", "error", envErr)
	}

	m := metrics.New()

	startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	backend, err := openBackend(startCtx, cfg, log)
	if err != nil {
		cancel()
		log.Fatal("failed to open store", "backend", cfg.Store.Backend, "error", err)
	}
	defer closeWithTimeout(log, "store", 5*time.Second, backend.Close)

	locker, closeLocker, err := openLocker(startCtx, cfg.Redis, log)
	cancel()
	if err != nil {
		log.Fatal("failed to set up refresh lock", "error", err)
	}
	defer func() {
		if err := closeLocker(); err != nil {
			log.Error("error closing refresh lock", "error", err)
		}
	}()

	engine, err := newEngine(cfg.Recommend)
	if err != nil {
		log.Fatal("failed to build recommendation engine", "error", err)
	}
	svc := newService(cfg, backend, locker, engine, m, log)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(log),
		middleware.Metrics(m),
		middleware.CORS(cfg.Server.CORSOrigins),
	)

	var throttle []gin.HandlerFunc
	if rl := cfg.Server.RateLimit; rl.Requests > 0 {
		throttle = append(throttle, middleware.RateLimit(middleware.NewRateLimiter(rl.Requests, rl.Window)))
	}
	handlers.NewAPIHandler(svc, backend.Health, log).SetupRoutes(router, throttle...)
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.NoRoute(handlers.NotFound)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Server.Port, "backend", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		return
	}

	log.Info("server exited properly")
}
