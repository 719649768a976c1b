package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"chatsync/internal/infrastructure/changefeed/port"
	chat "chatsync/internal/pkg/chat/application/domain"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisFeed carries change events over Redis pub/sub, one channel per topic.
// It is how gateway nodes share events and how Redis-fed clients listen.
type RedisFeed struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisFeed(client *redis.Client, log zerolog.Logger) *RedisFeed {
	return &RedisFeed{client: client, log: log.With().Str("feed", "redis").Logger()}
}

var (
	_ port.Feed      = (*RedisFeed)(nil)
	_ port.Publisher = (*RedisFeed)(nil)
)

type redisSub struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *redisSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.ps.Close()
		<-s.done
	})
	return err
}

// Subscribe listens on topic. A "*" in topic subscribes by pattern, which
// the gateway uses to follow every conversation.
func (f *RedisFeed) Subscribe(ctx context.Context, topic string, filter port.Filter, h port.Handler) (port.Subscription, error) {
	if h == nil {
		return nil, errNilHandler
	}
	if f == nil || f.client == nil {
		return nil, errors.New("RedisFeed: nil client")
	}

	var ps *redis.PubSub
	if isPattern(topic) {
		ps = f.client.PSubscribe(ctx, topic)
	} else {
		ps = f.client.Subscribe(ctx, topic)
	}
	// Wait for the subscription confirmation so no publish is missed after
	// Subscribe returns.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &redisSub{ps: ps, cancel: cancel, done: make(chan struct{})}
	log := f.log.With().Str("topic", topic).Logger()
	ch := ps.Channel()

	go func() {
		defer close(s.done)
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				event, err := port.Decode([]byte(msg.Payload))
				if err != nil {
					log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed event")
					continue
				}
				if filter.Match(event) {
					h(event)
				}
			}
		}
	}()
	go func() {
		// context cancellation ends the subscription like Unsubscribe does
		<-subCtx.Done()
		_ = s.Unsubscribe()
	}()
	return s, nil
}

func (f *RedisFeed) Publish(ctx context.Context, topic string, event chat.ChangeEvent) error {
	if f == nil || f.client == nil {
		return errors.New("RedisFeed: nil client")
	}
	payload, err := port.Encode(event)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, topic, payload).Err()
}

func isPattern(topic string) bool {
	for i := 0; i < len(topic); i++ {
		switch topic[i] {
		case '*', '?', '[':
			return true
		}
	}
	return false
}
