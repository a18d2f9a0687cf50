package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/flicker/match-app/internal/config"
	"github.com/flicker/match-app/internal/jobs"
	"github.com/flicker/match-app/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.Component(logging.New(cfg.Env, cfg.LogLevel), "notifier")

	if cfg.Storage != config.StorageRedis {
		logger.Fatal().Str("storage", cfg.Storage).Msg("the standalone notifier needs STORAGE=redis")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	queue := jobs.NewQueue(rdb, jobs.QueueName)
	if n, err := queue.Len(ctx); err == nil {
		logger.Info().Int64("pending", n).Str("queue", jobs.QueueName).Bool("smtp", cfg.SMTPEnabled()).Msg("notifier starting")
	}

	mailer := jobs.NewMailer(jobs.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}, logging.Component(logger, "mailer"))

	wc := jobs.DefaultWorkerConfig()
	wc.Concurrency = cfg.WorkerConcurrency

	if err := jobs.NewWorker(queue, mailer, wc, logger).Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker failed")
	}
}
