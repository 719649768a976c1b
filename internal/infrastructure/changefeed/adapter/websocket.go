package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"chatsync/internal/infrastructure/changefeed/port"
	"chatsync/internal/infrastructure/realtime"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const wsWriteWait = 10 * time.Second

// WebSocketFeed subscribes through the gateway's chat websocket. Each
// subscription opens its own socket and joins one conversation room.
type WebSocketFeed struct {
	URL    string // ws://host:port/api/v1/chat/ws
	UserID string
	Header http.Header
	Dialer *websocket.Dialer
	log    zerolog.Logger
}

func NewWebSocketFeed(rawURL, userID string, log zerolog.Logger) *WebSocketFeed {
	return &WebSocketFeed{
		URL:    rawURL,
		UserID: userID,
		Dialer: websocket.DefaultDialer,
		log:    log.With().Str("feed", "ws").Logger(),
	}
}

var _ port.Feed = (*WebSocketFeed)(nil)

type wsSub struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func (s *wsSub) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
		s.writeMu.Unlock()
		_ = s.conn.Close()
		<-s.done
	})
	return nil
}

func (s *wsSub) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

func (f *WebSocketFeed) Subscribe(ctx context.Context, topic string, filter port.Filter, h port.Handler) (port.Subscription, error) {
	if h == nil {
		return nil, errNilHandler
	}
	conversationID := filter.ConversationID
	if conversationID == "" {
		id, ok := port.ConversationFromTopic(topic)
		if !ok {
			return nil, fmt.Errorf("websocket: topic %q does not name a conversation", topic)
		}
		conversationID = id
	}

	target, err := f.endpoint()
	if err != nil {
		return nil, err
	}
	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, target, f.Header)
	if err != nil {
		return nil, fmt.Errorf("websocket: dial: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &wsSub{conn: conn, cancel: cancel, done: make(chan struct{})}
	if err := s.writeJSON(realtime.ControlFrame{Type: realtime.FrameJoin, ConversationID: conversationID}); err != nil {
		cancel()
		_ = conn.Close()
		return nil, fmt.Errorf("websocket: join: %w", err)
	}
	if err := awaitJoined(conn, conversationID); err != nil {
		cancel()
		_ = conn.Close()
		return nil, err
	}
	log := f.log.With().Str("topic", topic).Logger()

	go func() {
		defer close(s.done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if subCtx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
					!errors.Is(err, websocket.ErrCloseSent) {
					log.Error().Err(err).Msg("read")
				}
				return
			}
			var env realtime.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Warn().Err(err).Msg("dropping malformed frame")
				continue
			}
			switch env.Type {
			case realtime.FrameChange:
				if env.Event == nil || env.ConversationID != conversationID {
					continue
				}
				if filter.Match(*env.Event) {
					h(*env.Event)
				}
			case realtime.FrameError:
				log.Warn().Str("code", env.Code).Str("error", env.Error).Msg("gateway rejected frame")
			default:
				log.Debug().Str("type", env.Type).Msg("control frame")
			}
		}
	}()
	go func() {
		<-subCtx.Done()
		_ = s.Unsubscribe()
	}()
	return s, nil
}

// awaitJoined reads frames until the gateway acknowledges the join, so that
// a returned subscription already receives changes.
func awaitJoined(conn *websocket.Conn, conversationID string) error {
	if err := conn.SetReadDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	for {
		var env realtime.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return fmt.Errorf("websocket: join: %w", err)
		}
		switch {
		case env.Type == realtime.FrameJoined && env.ConversationID == conversationID:
			return conn.SetReadDeadline(time.Time{})
		case env.Type == realtime.FrameError:
			return fmt.Errorf("websocket: join rejected: %s: %s", env.Code, env.Error)
		}
	}
}

func (f *WebSocketFeed) endpoint() (string, error) {
	u, err := url.Parse(f.URL)
	if err != nil {
		return "", fmt.Errorf("websocket: parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if f.UserID != "" {
		q := u.Query()
		q.Set("user_id", f.UserID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
