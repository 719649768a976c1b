package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"chatsync/internal/infrastructure/realtime"
	chat "chatsync/internal/pkg/chat/application/domain"
	"chatsync/internal/pkg/chat/application/usecase"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Error codes carried by error frames.
const (
	codeBadRequest      = "bad_request"
	codeEmptyMessage    = "empty_message"
	codeInternal        = "internal_error"
	codeSessionReplaced = "session_replaced"
	codeUnsupportedType = "unsupported_type"
)

const (
	socketIdleTimeout = 60 * time.Second
	socketMaxFrame    = 64 << 10
	socketSendTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	// the gateway serves API clients, not browsers on other origins
	CheckOrigin: func(*http.Request) bool { return true },
}

// ChatSocketController serves /chat/ws. A socket joins conversation rooms
// and receives every row change of those conversations as change frames; it
// may also send messages, which come back to it as changes like any other.
type ChatSocketController struct {
	router *realtime.Router
	send   *usecase.SendMessageUseCase
	queued bool
	log    zerolog.Logger
}

func NewChatSocketController(router *realtime.Router, d usecase.Dispatcher, queued bool, log zerolog.Logger) *ChatSocketController {
	return &ChatSocketController{
		router: router,
		send:   usecase.NewSendMessageUseCase(d),
		queued: queued,
		log:    log.With().Str("component", "chat-socket").Logger(),
	}
}

func (ctl *ChatSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}
		if _, err := uuid.Parse(userID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id must be a uuid"})
			return
		}
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// the upgrader has answered the request already
			ctl.log.Debug().Err(err).Msg("upgrade")
			return
		}

		s := &socketSession{ctl: ctl, ws: ws, conn: realtime.NewConnection(userID, ws)}
		s.log = ctl.log.With().Str("user_id", userID).Str("session_id", s.conn.ID).Logger()
		ctl.router.Attach(s.conn)
		defer func() {
			ctl.router.Detach(s.conn)
			s.conn.Close(websocket.CloseNormalClosure, "bye")
			s.log.Debug().Msg("socket closed")
		}()
		s.serve(c.Request.Context())
	}
}

// socketSession is the read side of one attached socket.
type socketSession struct {
	ctl  *ChatSocketController
	ws   *websocket.Conn
	conn *realtime.Connection
	log  zerolog.Logger
}

func (s *socketSession) serve(ctx context.Context) {
	s.ws.SetReadLimit(socketMaxFrame)
	s.extendDeadline()
	s.ws.SetPongHandler(func(string) error { s.extendDeadline(); return nil })
	s.reply(realtime.ControlFrame{Type: realtime.FrameConnected})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				s.log.Debug().Err(err).Msg("read")
			}
			return
		}
		s.extendDeadline()
		s.handle(ctx, data)
	}
}

func (s *socketSession) extendDeadline() {
	_ = s.ws.SetReadDeadline(time.Now().Add(socketIdleTimeout))
}

func (s *socketSession) handle(ctx context.Context, data []byte) {
	var env realtime.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.fail(codeBadRequest, "malformed frame")
		return
	}
	switch env.Type {
	case realtime.FrameJoin, realtime.FrameLeave:
		if env.ConversationID == "" {
			s.fail(codeBadRequest, "conversation_id is required")
			return
		}
		if env.Type == realtime.FrameLeave {
			s.ctl.router.Leave(env.ConversationID, s.conn)
			s.reply(realtime.ControlFrame{Type: realtime.FrameLeft, ConversationID: env.ConversationID})
			return
		}
		if !s.ctl.router.Join(env.ConversationID, s.conn) {
			s.fail(codeSessionReplaced, "a newer session of this user is attached")
			return
		}
		s.reply(realtime.ControlFrame{Type: realtime.FrameJoined, ConversationID: env.ConversationID})
	case realtime.FrameMessage:
		var frame realtime.MessageFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.fail(codeBadRequest, "malformed frame")
			return
		}
		s.sendMessage(ctx, frame)
	default:
		s.fail(codeUnsupportedType, "unknown frame type")
	}
}

// sendMessage inserts on behalf of the socket's user. The sent ack only
// confirms the dispatch; the row reaches room members through the feed.
func (s *socketSession) sendMessage(ctx context.Context, frame realtime.MessageFrame) {
	msg, err := s.ctl.send.Validate(usecase.SendMessageInput{
		ConversationID: frame.ConversationID,
		SenderID:       s.conn.UserID,
		Content:        frame.Content,
	})
	if err != nil {
		s.failWith(err)
		return
	}
	if _, err := uuid.Parse(msg.ConversationID); err != nil {
		s.fail(codeBadRequest, "conversation_id must be a uuid")
		return
	}
	if frame.ID != "" {
		if _, err := uuid.Parse(frame.ID); err != nil {
			s.fail(codeBadRequest, "id must be a uuid")
			return
		}
		msg.ID = frame.ID
	}

	ctx, cancel := context.WithTimeout(ctx, socketSendTimeout)
	defer cancel()
	out, err := s.ctl.send.Deliver(ctx, *msg)
	if err != nil {
		s.failWith(err)
		return
	}
	status := "created"
	if s.ctl.queued {
		status = "queued"
	}
	s.reply(realtime.SentFrame{Type: realtime.FrameSent, ConversationID: out.ConversationID, ID: out.ID, Status: status})
}

func (s *socketSession) failWith(err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		s.fail(codeEmptyMessage, err.Error())
	case errors.Is(err, usecase.ErrPersistence):
		s.log.Error().Err(err).Msg("send")
		s.fail(codeInternal, "message could not be stored")
	default:
		s.fail(codeBadRequest, err.Error())
	}
}

func (s *socketSession) reply(frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		s.log.Error().Err(err).Msg("encode frame")
		return
	}
	_ = s.conn.Send(payload)
}

func (s *socketSession) fail(code, message string) {
	s.reply(realtime.ErrorFrame{Type: realtime.FrameError, Code: code, Error: message})
}
