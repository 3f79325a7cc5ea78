// cmd/historian/main.go drains room events from Redis into Postgres.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/neocascade/internal/cache"
	"github.com/jason-s-yu/neocascade/internal/config"
	"github.com/jason-s-yu/neocascade/internal/database"
	"github.com/jason-s-yu/neocascade/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	cfg := &config.Config{}
	hcfg := historian.DefaultConfig

	cmd := config.NewCommand("neocascade-historian", "Persist room events from the Redis queue to Postgres.", cfg,
		func(ctx context.Context, cfg *config.Config) error {
			return run(ctx, cfg, hcfg)
		})
	fs := cmd.Flags()
	fs.StringVar(&hcfg.Queue, "queue", cache.DefaultQueueName, "redis list to drain (env: NEOCASCADE_QUEUE)")
	fs.IntVar(&hcfg.BatchSize, "batch-size", hcfg.BatchSize, "events per insert (env: NEOCASCADE_BATCH_SIZE)")
	fs.DurationVar(&hcfg.FlushDelay, "flush-delay", hcfg.FlushDelay, "longest an event waits before a flush (env: NEOCASCADE_FLUSH_DELAY)")
	fs.DurationVar(&hcfg.Inactivity, "inactivity", hcfg.Inactivity, "idle time before a room is marked abandoned (env: NEOCASCADE_INACTIVITY)")
	config.BindEnv(fs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.CheckErr(cmd.ExecuteContext(ctx))
}

func run(ctx context.Context, cfg *config.Config, hcfg historian.Config) error {
	logger := logrus.New()
	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	if cfg.DatabaseURL == "" {
		return errors.New("--database-url is required")
	}

	if err := database.Connect(ctx, cfg.DatabaseURL); err != nil {
		return err
	}
	defer database.Close()
	if err := database.EnsureSchema(ctx); err != nil {
		return err
	}

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	hcfg.PopTimeout = 3 * time.Second
	return historian.New(rdb, database.HistorySink{}, hcfg, logger).Run(ctx)
}
