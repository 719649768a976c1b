package adapter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"chatsync/internal/infrastructure/queue/port"
)

// redisConnOpt turns REDIS_URL into asynq connection options.
func redisConnOpt(redisURL string) (asynq.RedisConnOpt, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("asynq: REDIS_URL is not set")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}
	return opt, nil
}

// AsynqClient enqueues tasks into Redis through asynq.
type AsynqClient struct {
	client *asynq.Client
}

func NewAsynqClient(redisURL string) (*AsynqClient, error) {
	opt, err := redisConnOpt(redisURL)
	if err != nil {
		return nil, err
	}
	return &AsynqClient{client: asynq.NewClient(opt)}, nil
}

var _ port.Client = (*AsynqClient)(nil)

func (a *AsynqClient) Enqueue(ctx context.Context, t port.Task, opts ...port.EnqueueOption) (string, error) {
	if t.Type == "" {
		return "", errors.New("asynq: task type is required")
	}
	var op port.EnqueueOption
	if len(opts) > 0 {
		op = opts[0]
	}
	info, err := a.client.EnqueueContext(ctx, asynq.NewTask(t.Type, t.Payload), enqueueOptions(op)...)
	switch {
	case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
		return op.TaskID, port.ErrDuplicateTask
	case err != nil:
		return "", fmt.Errorf("asynq: enqueue %s: %w", t.Type, err)
	}
	return info.ID, nil
}

func (a *AsynqClient) Close() error {
	return a.client.Close()
}

func enqueueOptions(op port.EnqueueOption) []asynq.Option {
	var out []asynq.Option
	if op.Queue != "" {
		out = append(out, asynq.Queue(op.Queue))
	}
	if op.MaxRetry > 0 {
		out = append(out, asynq.MaxRetry(op.MaxRetry))
	}
	if op.Timeout > 0 {
		out = append(out, asynq.Timeout(op.Timeout))
	}
	if op.TaskID != "" {
		out = append(out, asynq.TaskID(op.TaskID))
	}
	if op.Retention > 0 {
		out = append(out, asynq.Retention(op.Retention))
	}
	return out
}

// AsynqServerConfig tunes the worker pool.
type AsynqServerConfig struct {
	RedisURL    string
	Concurrency int    // 10 when unset
	Queues      string // "chat=6,default=1"
}

// AsynqServer runs registered handlers on asynq workers.
type AsynqServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	stop   sync.Once
	log    zerolog.Logger
}

func NewAsynqServer(cfg AsynqServerConfig, log zerolog.Logger) (*AsynqServer, error) {
	opt, err := redisConnOpt(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	queues, err := ParseQueueWeights(cfg.Queues)
	if err != nil {
		return nil, err
	}
	if len(queues) == 0 {
		queues = map[string]int{"chat": 1, "default": 1}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	log = log.With().Str("component", "asynq").Logger()
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
		Logger:      asynqLogger{log},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Error().Err(err).Str("task_type", task.Type()).Int("retry", retried).Int("max_retry", maxRetry).Msg("task failed")
		}),
	})
	return &AsynqServer{server: srv, mux: asynq.NewServeMux(), log: log}, nil
}

var _ port.Server = (*AsynqServer)(nil)

func (s *AsynqServer) Register(taskType string, h port.Handler) {
	s.mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
		return h(ctx, port.Task{Type: t.Type(), Payload: t.Payload()})
	})
}

// Run starts the workers and shuts them down once ctx is done.
func (s *AsynqServer) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("asynq: start: %w", err)
	}
	s.log.Info().Msg("workers started")
	<-ctx.Done()
	return s.Stop(context.Background())
}

// Stop waits for active tasks up to asynq's shutdown timeout.
func (s *AsynqServer) Stop(context.Context) error {
	s.stop.Do(s.server.Shutdown)
	return nil
}

// ParseQueueWeights parses "name=weight" pairs separated by commas. A name
// without weight counts 1.
func ParseQueueWeights(s string) (map[string]int, error) {
	weights := make(map[string]int)
	for _, part := range strings.Split(s, ",") {
		name, weight, hasWeight := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		w := 1
		if hasWeight {
			n, err := strconv.Atoi(strings.TrimSpace(weight))
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("asynq: queue %q: weight must be a positive integer", name)
			}
			w = n
		}
		weights[name] = w
	}
	return weights, nil
}

// asynqLogger routes asynq's internal logging into zerolog.
type asynqLogger struct{ log zerolog.Logger }

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
