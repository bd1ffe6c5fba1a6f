// Package main is the entrypoint for the print bridge server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tavola/printbridge/internal/api/handlers"
	"github.com/tavola/printbridge/internal/api/middleware"
	"github.com/tavola/printbridge/internal/config"
	"github.com/tavola/printbridge/internal/core"
	"github.com/tavola/printbridge/internal/db"
	"github.com/tavola/printbridge/internal/webhook"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server failed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	logger.Info().Str("config", configPath).Msg("config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Init(db.Config{Path: cfg.Database.Path}); err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()
	logger.Info().Str("path", cfg.Database.Path).Msg("database ready")

	sender := webhook.NewSender(webhook.Config{
		RetryCount:  cfg.Webhooks.RetryCount,
		RetryDelay:  cfg.Webhooks.RetryDelay,
		Timeout:     cfg.Webhooks.Timeout,
		WorkerCount: cfg.Webhooks.WorkerCount,
		QueueSize:   cfg.Webhooks.QueueSize,
	}, logger.With().Str("component", "webhook").Logger())
	sender.Start()
	defer sender.Stop()

	registry := core.NewRegistry(db.GetDB(), logger.With().Str("component", "registry").Logger())
	dispatcher := core.NewDispatcher(db.GetDB(), registry, sender, cfg.Bridge.ClaimBatch,
		logger.With().Str("component", "dispatch").Logger())

	auth, err := middleware.NewAuthMiddleware(db.GetDB())
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		if err := db.GetDB().PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authAPI := router.Group("/api/auth")
	authAPI.POST("/login", auth.LoginHandler)
	authAPI.POST("/logout", auth.LogoutHandler)
	authAPI.GET("/status", auth.StatusHandler)
	authAPI.POST("/setup", auth.SetupHandler)

	bridgeHandler := handlers.NewBridgeHandler(registry, dispatcher)
	bridgeHandler.RegisterRoutes(router, middleware.DeviceAuth(registry))

	adminAPI := router.Group("/api")
	adminAPI.Use(auth.RequireAuth())
	handlers.NewJobHandler(dispatcher).RegisterRoutes(adminAPI)
	handlers.NewDeviceHandler(registry).RegisterRoutes(adminAPI)
	handlers.NewWebhookHandler().RegisterRoutes(adminAPI)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info().Msg("server stopped gracefully")
	return nil
}

func newLogger(cfg config.LoggingConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var logger zerolog.Logger
	if cfg.Format == "text" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger(), nil
}
