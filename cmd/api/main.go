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

	v1 "chatsync/cmd/api/router/v1"
	"chatsync/internal/config"
	cacheAdapter "chatsync/internal/infrastructure/cache/adapter"
	cacheport "chatsync/internal/infrastructure/cache/port"
	feedAdapter "chatsync/internal/infrastructure/changefeed/adapter"
	feedport "chatsync/internal/infrastructure/changefeed/port"
	"chatsync/internal/infrastructure/database"
	queueAdapter "chatsync/internal/infrastructure/queue/adapter"
	queueport "chatsync/internal/infrastructure/queue/port"
	"chatsync/internal/infrastructure/realtime"
	"chatsync/internal/logging"
	chat "chatsync/internal/pkg/chat/application/domain"
	"chatsync/internal/pkg/chat/application/task"
	"chatsync/internal/pkg/chat/application/usecase"
	repoAdapter "chatsync/internal/pkg/chat/persistence/repository/adapter"
	httpHandler "chatsync/internal/pkg/chat/presentation/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("gateway stopped")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if err := cfg.RequireDB(); err != nil {
		return err
	}

	// Connect to the database on startup
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := database.Connect(connectCtx, cfg.DBURL,
		database.WithApplicationName("chatsync-api"), database.WithListeners(1))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(connectCtx, pool); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = database.ConnectRedis(connectCtx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
	}

	repo := repoAdapter.NewPgChatRepository(pool)
	var avatarCache cacheport.Cache = cacheAdapter.NewMemoryCache()
	if rdb != nil {
		avatarCache = cacheAdapter.NewRedisCache(rdb, "chatsync:")
	}
	profiles := repoAdapter.NewCachedProfileRepository(repo, avatarCache, cfg.AvatarCacheTTL, log)

	router := realtime.NewRouter(log)
	defer router.Close()

	sub, err := subscribeChanges(ctx, cfg, pool, rdb, router, log)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	dispatcher, worker, err := buildDispatcher(cfg, repo, log)
	if err != nil {
		return err
	}
	workerDone := make(chan error, 1)
	if worker != nil {
		go func() { workerDone <- worker.Run(ctx) }()
	}

	if log.GetLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	r.GET("/healthz", healthz(pool, avatarCache))
	v1.RegisterRoutes(r, httpHandler.Deps{
		Repo:       repo,
		Profiles:   profiles,
		Dispatcher: dispatcher,
		Queued:     cfg.Queue != config.QueueDirect,
		Router:     router,
		Log:        log,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("feed", cfg.Feed).Str("queue", cfg.Queue).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if worker != nil {
		if err := worker.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("worker shutdown")
		}
		select {
		case <-workerDone:
		case <-shutdownCtx.Done():
		}
	}
	return nil
}

// subscribeChanges feeds every row change into the websocket rooms. With
// FEED=redis the gateway consumes the Redis relay of another node; otherwise
// it listens to Postgres and, when Redis is configured, relays to it.
func subscribeChanges(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, router *realtime.Router, log zerolog.Logger) (feedport.Subscription, error) {
	filter := feedport.Filter{Table: chat.MessagesTable}

	if cfg.Feed == config.FeedRedis {
		if rdb == nil {
			return nil, errors.New("FEED=redis requires REDIS_URL")
		}
		src := feedAdapter.NewRedisFeed(rdb, log)
		return src.Subscribe(ctx, feedport.AllConversationsTopic, filter, func(e chat.ChangeEvent) {
			router.Dispatch(e)
		})
	}

	var relay feedport.Publisher
	if rdb != nil {
		relay = feedAdapter.NewRedisFeed(rdb, log)
	}
	src := feedAdapter.NewPgNotifyFeed(pool, feedAdapter.DefaultNotifyChannel, log)
	return src.Subscribe(ctx, feedport.AllConversationsTopic, filter, func(e chat.ChangeEvent) {
		router.Dispatch(e)
		if relay == nil {
			return
		}
		pubCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
		if err := relay.Publish(pubCtx, feedport.ConversationTopic(e.ConversationID()), e); err != nil {
			log.Warn().Err(err).Str("row_id", e.RowID()).Msg("relay to redis failed")
		}
	})
}

// buildDispatcher picks how sends reach the store. The returned worker is
// nil for direct inserts.
func buildDispatcher(cfg *config.Config, repo *repoAdapter.PgChatRepository, log zerolog.Logger) (usecase.Dispatcher, queueport.Server, error) {
	switch cfg.Queue {
	case config.QueueAsynq:
		client, err := queueAdapter.NewAsynqClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		srv, err := queueAdapter.NewAsynqServer(queueAdapter.AsynqServerConfig{
			RedisURL:    cfg.RedisURL,
			Concurrency: cfg.AsynqConcurrency,
			Queues:      cfg.AsynqQueues,
		}, log)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		task.RegisterSendMessageTask(srv, repo, log)
		return task.NewQueueDispatcher(client), srv, nil
	case config.QueueInline:
		q := queueAdapter.NewInline(cfg.RequestTimeout, log)
		task.RegisterSendMessageTask(q, repo, log)
		return task.NewQueueDispatcher(q), q, nil
	default:
		return usecase.NewDirectDispatcher(repo), nil, nil
	}
}

func healthz(pool *pgxpool.Pool, avatars cacheport.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := gin.H{"status": "OK", "database": "up"}
		code := http.StatusOK
		if err := pool.Ping(ctx); err != nil {
			status["status"], status["database"] = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}
		status["cache"] = "up"
		if err := avatars.Ping(ctx); err != nil {
			status["status"], status["cache"] = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}
