package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tenantgate/internal/common/logging"
	"tenantgate/internal/config"
	"tenantgate/internal/server"
)

// Run is the full service lifecycle: load configuration, wire the app, serve
// until SIGINT/SIGTERM, then drain in-flight requests.
func Run() error {
	// A missing .env file is fine; the environment may be set directly
	_ = godotenv.Load()

	logging.InitGlobalLogger()
	defer logging.MustSync()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	application, err := New(cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	srv := server.New(application.Routes(), cfg.Port)

	logging.Info("Server starting",
		logging.String("port", cfg.Port),
		logging.String("storage", cfg.StorageType),
		logging.Bool("redis", cfg.RedisEnabled),
		logging.Bool("rate_limiting", cfg.RateLimitEnabled),
	)
	serverErr := srv.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logging.Info("Shutting down", logging.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logging.Info("Server exited")
	return nil
}
