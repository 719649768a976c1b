package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatsync/internal/infrastructure/changefeed/port"
	chat "chatsync/internal/pkg/chat/application/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DefaultNotifyChannel is the channel the chat_messages trigger notifies on.
const DefaultNotifyChannel = "chat_messages_changes"

// PgNotifyFeed turns Postgres LISTEN/NOTIFY payloads emitted by the
// chat_messages trigger into change events. Each subscription holds one
// pooled connection for its whole lifetime. The topic is only used for
// logging: every conversation shares the channel and the filter narrows it.
type PgNotifyFeed struct {
	pool    *pgxpool.Pool
	channel string
	log     zerolog.Logger
}

func NewPgNotifyFeed(pool *pgxpool.Pool, channel string, log zerolog.Logger) *PgNotifyFeed {
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	return &PgNotifyFeed{pool: pool, channel: channel, log: log.With().Str("feed", "pg").Logger()}
}

var (
	_ port.Feed      = (*PgNotifyFeed)(nil)
	_ port.Publisher = (*PgNotifyFeed)(nil)
)

type pgSub struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *pgSub) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (f *PgNotifyFeed) Subscribe(ctx context.Context, topic string, filter port.Filter, h port.Handler) (port.Subscription, error) {
	if h == nil {
		return nil, errNilHandler
	}
	if f == nil || f.pool == nil {
		return nil, errors.New("PgNotifyFeed: nil pool")
	}
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgnotify: acquire: %w", err)
	}
	listen := "LISTEN " + pgx.Identifier{f.channel}.Sanitize()
	if _, err := conn.Exec(ctx, listen); err != nil {
		conn.Release()
		return nil, fmt.Errorf("pgnotify: listen: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &pgSub{cancel: cancel, done: make(chan struct{})}
	log := f.log.With().Str("topic", topic).Logger()
	log.Debug().Str("channel", f.channel).Msg("subscribed")

	go func() {
		defer close(s.done)
		defer func() {
			// the connection goes back to the pool, so stop listening first
			uctx, ucancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer ucancel()
			if _, err := conn.Exec(uctx, "UNLISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
				conn.Conn().Close(uctx)
			}
			conn.Release()
			log.Debug().Msg("unsubscribed")
		}()

		for {
			n, err := conn.Conn().WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() == nil {
					log.Error().Err(err).Msg("wait for notification")
				}
				return
			}
			event, err := port.Decode([]byte(n.Payload))
			if err != nil {
				log.Warn().Err(err).Msg("dropping malformed notification")
				continue
			}
			if filter.Match(event) {
				h(event)
			}
		}
	}()
	return s, nil
}

// Publish emits an event through pg_notify. Row changes are normally
// announced by the trigger; this is used to re-announce or for tests.
func (f *PgNotifyFeed) Publish(ctx context.Context, topic string, event chat.ChangeEvent) error {
	if f == nil || f.pool == nil {
		return errors.New("PgNotifyFeed: nil pool")
	}
	payload, err := port.Encode(event)
	if err != nil {
		return err
	}
	_, err = f.pool.Exec(ctx, "SELECT pg_notify($1, $2)", f.channel, string(payload))
	return err
}
