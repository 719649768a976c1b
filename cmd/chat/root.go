package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chatsync/internal/config"
	cacheAdapter "chatsync/internal/infrastructure/cache/adapter"
	cacheport "chatsync/internal/infrastructure/cache/port"
	feedAdapter "chatsync/internal/infrastructure/changefeed/adapter"
	feedport "chatsync/internal/infrastructure/changefeed/port"
	"chatsync/internal/infrastructure/database"
	queueAdapter "chatsync/internal/infrastructure/queue/adapter"
	"chatsync/internal/logging"
	"chatsync/internal/pkg/chat/application/session"
	"chatsync/internal/pkg/chat/application/task"
	"chatsync/internal/pkg/chat/application/usecase"
	repoAdapter "chatsync/internal/pkg/chat/persistence/repository/adapter"
	"chatsync/internal/pkg/chat/presentation/view"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var version = "dev"

type chatFlags struct {
	conversation string
	user         string
	name         string
	feed         string
	optimistic   bool
	deletePolicy string
	width        int
}

var flags chatFlags

// rootCmd mounts one conversation and runs the interactive console on it.
var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Terminal client for a chatsync conversation",
	Long: `chat mirrors one conversation from the chat store, keeps it current
from the change feed and lets you send and delete messages.

Type a line to send it. Commands: /delete <id>, /reload, /help, /quit.`,
	Version:      version,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context(), flags)
	},
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	f := rootCmd.Flags()
	f.StringVarP(&flags.conversation, "conversation", "c", "", "conversation id (default $CHAT_ID)")
	f.StringVarP(&flags.user, "user", "u", "", "id of the signed-in user; empty means signed out")
	f.StringVar(&flags.name, "name", "", "display name of the signed-in user")
	f.StringVar(&flags.feed, "feed", "", "change feed: pg, redis or ws (default $FEED)")
	f.BoolVar(&flags.optimistic, "optimistic", false, "show sent messages before the store echoes them")
	f.StringVar(&flags.deletePolicy, "delete-policy", "channel", "how deletes reach the list: channel, local or reload")
	f.IntVar(&flags.width, "width", 80, "transcript width in columns")
}

func parseDeletePolicy(s string) (view.DeletePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "channel":
		return view.DeleteViaChannel, nil
	case "local":
		return view.DeleteLocal, nil
	case "reload":
		return view.DeleteReload, nil
	}
	return 0, fmt.Errorf("unknown delete policy %q", s)
}

func runChat(ctx context.Context, fl chatFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if fl.conversation != "" {
		cfg.ChatID = fl.conversation
	}
	if fl.feed != "" {
		cfg.Feed = fl.feed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireDB(); err != nil {
		return err
	}
	policy, err := parseDeletePolicy(fl.deletePolicy)
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := database.Connect(connectCtx, cfg.DBURL,
		database.WithApplicationName("chatsync-chat"), database.WithListeners(1))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

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

	var feed feedport.Feed
	switch cfg.Feed {
	case config.FeedRedis:
		feed = feedAdapter.NewRedisFeed(rdb, log)
	case config.FeedWebSocket:
		if fl.user == "" {
			return errors.New("--feed ws needs --user to join the gateway")
		}
		feed = feedAdapter.NewWebSocketFeed(cfg.GatewayWSURL, fl.user, log)
	default:
		feed = feedAdapter.NewPgNotifyFeed(pool, feedAdapter.DefaultNotifyChannel, log)
	}

	var dispatcher usecase.Dispatcher = usecase.NewDirectDispatcher(repo)
	if cfg.Queue == config.QueueAsynq {
		client, err := queueAdapter.NewAsynqClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		// a gateway worker performs the insert
		dispatcher = task.NewQueueDispatcher(client)
	}

	v := view.NewMessageSyncView(view.Deps{
		Repo:       repo,
		Profiles:   profiles,
		Feed:       feed,
		Session:    session.NewStatic(fl.user, fl.name),
		Dispatcher: dispatcher,
	}, view.Options{
		ConversationID: cfg.ChatID,
		RequestTimeout: cfg.RequestTimeout,
		Optimistic:     fl.optimistic,
		DeletePolicy:   policy,
		Logger:         log,
	})

	c := newConsole(v, view.Transcript{SelfID: fl.user, Width: fl.width}, os.Stdout)
	return c.Run(ctx, os.Stdin)
}
