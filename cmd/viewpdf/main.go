package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"viewpdf/internal/app"
	u "viewpdf/internal/utils"
)

const tokenRefreshInterval = time.Minute

func main() {
	cfg := u.LoadConfig()
	// Allow common container env var to override chrome_path.
	if cfg.PDF.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			cfg.PDF.ChromePath = v
		}
	}
	u.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)

	var rdb *redis.Client
	if cfg.Cache.RedisHost != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.PDFCacheDB,
		})
		defer rdb.Close()
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	loadTokens(ctx, cfg)

	srv, err := app.SetupApp(cfg, rdb)
	if err != nil {
		u.Error("Failed to set up application", "error", err)
		os.Exit(1)
	}

	idleConnsClosed := make(chan struct{})
	startServer(srv, cfg, idleConnsClosed)
	<-idleConnsClosed
}

// loadTokens fills the API token cache and keeps it fresh until ctx ends.
// Without a token database every API key is rejected.
func loadTokens(ctx context.Context, cfg u.Config) {
	err := u.LoadTokensFromPostgres(ctx, cfg.Auth.Postgres)
	switch {
	case errors.Is(err, u.ErrTokenStoreDisabled):
		u.Warn("No token database configured; API keys are disabled")
		u.LoadTokensFromMap(nil)
		return
	case err != nil:
		u.Error("Failed to load API tokens", "error", err)
	}
	go u.RefreshTokensPeriodically(ctx, cfg.Auth.Postgres, tokenRefreshInterval)
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg u.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			u.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint
	signal.Stop(sigint)

	u.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		u.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	u.Info("Server stopped cleanly")
}
