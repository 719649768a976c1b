package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DefaultConversationID is the conversation opened when none is configured.
const DefaultConversationID = "4113f429-c4ad-42aa-b43f-0a2bcafaeaa5"

// Feed kinds.
const (
	FeedPostgres  = "pg"
	FeedRedis     = "redis"
	FeedWebSocket = "ws"
)

// Queue kinds: direct inserts inline with the request, inline hands the
// insert to a process-local worker, asynq to a Redis-backed one.
const (
	QueueDirect = "direct"
	QueueInline = "inline"
	QueueAsynq  = "asynq"
)

type Config struct {
	DBURL     string `envconfig:"DB_URL"`
	RedisURL  string `envconfig:"REDIS_URL"`
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`

	ChatID       string `envconfig:"CHAT_ID" default:"4113f429-c4ad-42aa-b43f-0a2bcafaeaa5"`
	Feed         string `envconfig:"FEED" default:"pg"`
	GatewayWSURL string `envconfig:"GATEWAY_WS_URL" default:"ws://localhost:8080/api/v1/chat/ws"`

	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"3s"`
	AvatarCacheTTL time.Duration `envconfig:"AVATAR_CACHE_TTL" default:"10m"`

	Queue            string `envconfig:"QUEUE" default:"direct"`
	AsynqConcurrency int    `envconfig:"ASYNQ_CONCURRENCY" default:"10"`
	// ASYNQ_QUEUES is a comma list of name=weight pairs.
	AsynqQueues string `envconfig:"ASYNQ_QUEUES" default:"chat=6,default=1"`
}

// Load reads a .env file when present (outside gin release mode) and then
// the process environment.
func Load() (*Config, error) {
	if os.Getenv("GIN_MODE") != "release" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load .env: %w", err)
		}
	}
	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks enumerated settings and the settings they require.
func (c *Config) Validate() error {
	c.Feed = strings.ToLower(strings.TrimSpace(c.Feed))
	c.Queue = strings.ToLower(strings.TrimSpace(c.Queue))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	switch c.Feed {
	case FeedPostgres, FeedWebSocket:
	case FeedRedis:
		if c.RedisURL == "" {
			return errors.New("config: FEED=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown FEED %q", c.Feed)
	}
	switch c.Queue {
	case QueueDirect, QueueInline:
	case QueueAsynq:
		if c.RedisURL == "" {
			return errors.New("config: QUEUE=asynq requires REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown QUEUE %q", c.Queue)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("config: unknown LOG_FORMAT %q", c.LogFormat)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("config: REQUEST_TIMEOUT must be positive")
	}
	return nil
}

// RequireDB fails when DB_URL is not set.
func (c *Config) RequireDB() error {
	if strings.TrimSpace(c.DBURL) == "" {
		return errors.New("config: DB_URL is required")
	}
	return nil
}
