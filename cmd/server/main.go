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

	"github.com/gin-gonic/gin"

	"swiftdrop/internal/app"
	"swiftdrop/internal/config"
	"swiftdrop/internal/handler"
	"swiftdrop/internal/logging"
	"swiftdrop/internal/middleware"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if cfg.Auth.JWTSecret == "" {
		logger.Error("JWT_SECRET must be set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", slog.Any("error", err))
		os.Exit(1)
	}
	defer engine.Close()

	server := wireServer(engine)

	// Start server in goroutine.
	go func() {
		logger.Info("starting server", slog.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("error", err))
	}

	logger.Info("server exited")
}

// wireServer builds the handlers and returns the HTTP server.
func wireServer(engine *app.App) *http.Server {
	cfg := engine.Config
	gin.SetMode(gin.ReleaseMode)

	router := app.NewRouter(app.RouterDeps{
		RideHandler:    handler.NewRideHandler(engine.Rides),
		DriverHandler:  handler.NewDriverHandler(engine.Drivers),
		WalletHandler:  handler.NewWalletHandler(engine.Wallets),
		PaymentHandler: handler.NewPaymentHandler(engine.Settlement, engine.Gateway.SignatureHeader()),
		Verifier:       middleware.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		RedisClient:    engine.RedisClient,
		NewRelicApp:    engine.NewRelic,
		Logger:         engine.Logger,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
