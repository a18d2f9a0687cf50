package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/flicker/match-app/internal/api"
	"github.com/flicker/match-app/internal/chat"
	"github.com/flicker/match-app/internal/config"
	"github.com/flicker/match-app/internal/jobs"
	"github.com/flicker/match-app/internal/logging"
	"github.com/flicker/match-app/internal/matching"
	"github.com/flicker/match-app/internal/messaging"
	"github.com/flicker/match-app/internal/notify"
	"github.com/flicker/match-app/internal/presence"
	"github.com/flicker/match-app/internal/profile"
	"github.com/flicker/match-app/internal/ratelimit"
	"github.com/flicker/match-app/internal/ws"
)

// queue is what the notification dispatcher writes to and the in-process
// worker reads from.
type queue interface {
	notify.Enqueuer
	jobs.Source
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	var (
		rdb      *redis.Client
		users    profile.Store
		jobQueue queue
		limiter  *ratelimit.Limiter
	)
	switch cfg.Storage {
	case config.StorageRedis:
		rdb, err = openRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		users = profile.NewRedisStore(rdb)
		jobQueue = jobs.NewQueue(rdb, jobs.QueueName)
		limiter = ratelimit.NewLimiter(rdb, logging.Component(logger, "ratelimit"))
	default:
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
		users = profile.NewMemoryStore()
		jobQueue = jobs.NewMemoryQueue(0)
	}

	var messages chat.Store
	if cfg.DatabaseURL != "" {
		if err := chat.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate database")
		}
		db, err := chat.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		messages = chat.NewPostgresStore(db)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, keeping messages in memory")
		messages = chat.NewMemoryStore()
	}

	// --- Real-time gateway ---
	wsConfig := ws.DefaultServerConfig()
	wsConfig.WorkerPoolSize = cfg.WorkerPoolSize
	wsConfig.MaxConnections = cfg.MaxConnections
	wsConfig.ReadTimeout = cfg.ReadTimeout
	wsConfig.WriteTimeout = cfg.WriteTimeout

	dispatcher := ws.NewMessageDispatcher(logging.Component(logger, "dispatcher"))
	wsServer := ws.NewServer(wsConfig, logging.Component(logger, "ws"), dispatcher.Dispatch)

	var gwOpts []presence.Option
	var natsClient *messaging.NATSClient
	if rdb != nil && cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.Name = "flicker-" + cfg.ServerName
		natsClient, err = messaging.NewNATSClient(natsConfig, logging.Component(logger, "nats"))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsClient.Close()
		gwOpts = append(gwOpts,
			presence.WithDirectory(presence.NewRedisDirectory(rdb, cfg.ServerName)),
			presence.WithRelay(natsClient),
		)
	}

	gateway := presence.NewGateway(presence.NewRegistry(), logging.Component(logger, "presence"), gwOpts...)
	gateway.Attach(wsServer, dispatcher)
	if natsClient != nil {
		if err := gateway.StartRelay(natsClient); err != nil {
			logger.Fatal().Err(err).Msg("failed to subscribe to relay")
		}
	}

	// --- Domain services ---
	notifier := notify.NewDispatcher(gateway, jobQueue, logging.Component(logger, "notify"))
	engine := matching.NewEngine(users, notifier, logging.Component(logger, "matching"))
	chatService := chat.NewService(messages, users, notifier, logging.Component(logger, "chat"))
	api.RegisterSocketHandlers(dispatcher, chatService, gateway, limiter, logging.Component(logger, "socket"))

	if err := wsServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start websocket server")
	}

	workerDone := make(chan struct{})
	if cfg.RunWorker {
		mailer := jobs.NewMailer(smtpConfig(cfg), logging.Component(logger, "mailer"))
		worker := jobs.NewWorker(jobQueue, mailer, workerConfig(cfg), logging.Component(logger, "worker"))
		go func() {
			defer close(workerDone)
			_ = worker.Run(ctx)
		}()
	} else {
		close(workerDone)
	}

	router := api.NewRouter(api.Deps{
		Logger:    logging.Component(logger, "http"),
		Matcher:   engine,
		Messenger: chatService,
		Socket:    wsServer.Handler(),
		Health:    wsServer.HealthHandler(),
		Limiter:   limiter,
		ClientURL: cfg.ClientURL,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("env", cfg.Env).
			Str("storage", cfg.Storage).
			Str("server_name", cfg.ServerName).
			Bool("relay", natsClient != nil).
			Bool("worker", cfg.RunWorker).
			Bool("smtp", cfg.SMTPEnabled()).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	if err := wsServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("websocket shutdown error")
	}
	<-workerDone
	logger.Info().Msg("server stopped")
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func smtpConfig(cfg *config.Config) jobs.SMTPConfig {
	return jobs.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}
}

func workerConfig(cfg *config.Config) jobs.WorkerConfig {
	wc := jobs.DefaultWorkerConfig()
	wc.Concurrency = cfg.WorkerConcurrency
	return wc
}
