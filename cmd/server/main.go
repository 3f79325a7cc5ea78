// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/neocascade/internal/auth"
	"github.com/jason-s-yu/neocascade/internal/cache"
	"github.com/jason-s-yu/neocascade/internal/config"
	"github.com/jason-s-yu/neocascade/internal/database"
	"github.com/jason-s-yu/neocascade/internal/game"
	"github.com/jason-s-yu/neocascade/internal/handlers"
	"github.com/jason-s-yu/neocascade/internal/middleware"
	"github.com/jason-s-yu/neocascade/internal/monitoring"
	"github.com/jason-s-yu/neocascade/internal/store"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	cfg := &config.Config{}
	cmd := config.NewCommand("neocascade", "Multiplayer submarine crew rooms over WebSockets.", cfg, serve)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.CheckErr(cmd.ExecuteContext(ctx))
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if cfg.AuthPrivateKey != "" {
		if err := auth.InitFromPath(cfg.AuthPrivateKey, cfg.AuthPublicKey, cfg.TokenExpire); err != nil {
			return err
		}
	} else {
		logger.Warn("no auth key pair configured, tokens will not survive a restart")
		if err := auth.Init(cfg.TokenExpire); err != nil {
			return err
		}
	}

	var rdb *redis.Client
	if cfg.Store == config.StoreRedis {
		var err error
		if rdb, err = cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB); err != nil {
			return err
		}
		defer rdb.Close()
	}

	var s store.Store
	switch cfg.Store {
	case config.StoreRedis:
		s = store.NewRedisStore(rdb, "neocascade")
	default:
		s = store.NewMemoryStore()
	}
	defer s.Close()

	// history needs both a database for accounts and a queue for the historian
	var recorder game.EventRecorder
	if cfg.DatabaseURL != "" {
		if err := database.Connect(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
		defer database.Close()
		if err := database.EnsureSchema(ctx); err != nil {
			return err
		}
		if rdb != nil {
			recorder = cache.NewQueueRecorder(rdb, "")
		}
	}

	metrics := monitoring.New("neocascade")
	svc := game.NewService(s, game.Options{
		Logger:          logger,
		Metrics:         metrics,
		Recorder:        recorder,
		TickInterval:    cfg.TickInterval,
		ChatRetention:   cfg.ChatRetention,
		AlertRetention:  cfg.AlertRetention,
		MaxCodeAttempts: cfg.MaxCodeAttempts,
	})
	defer svc.Simulator.Stop()

	srv := handlers.NewServer(svc, logger, metrics)
	srv.TokenTTL = cfg.TokenExpire
	srv.Intents = middleware.NewRateLimiter(cfg.RateLimit, int(2*cfg.RateLimit), logger)
	srv.Requests = middleware.NewRateLimiter(cfg.RateLimit, int(2*cfg.RateLimit), logger)
	for _, l := range []*middleware.RateLimiter{srv.Intents, srv.Requests} {
		l.StartCleanup(5 * time.Minute)
		defer l.Stop()
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       10 * time.Minute,
	}

	errs := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"addr": httpSrv.Addr, "store": cfg.Store}).Info("listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
