package http

import (
	"chatsync/internal/infrastructure/realtime"
	"chatsync/internal/pkg/chat/application/usecase"
	repository "chatsync/internal/pkg/chat/persistence/repository/port"
	"chatsync/internal/pkg/chat/presentation/controller"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the chat endpoints are built from. Dispatcher
// defaults to a direct insert through Repo.
type Deps struct {
	Repo       repository.ChatRepository
	Profiles   repository.ProfileRepository
	Dispatcher usecase.Dispatcher
	// Queued marks Dispatcher as asynchronous (202 instead of 201).
	Queued bool
	Router *realtime.Router
	Log    zerolog.Logger
}

// RegisterRoutes registers chat-related HTTP endpoints under the given router group
// It constructs per-endpoint controllers and binds them directly to routes.
func RegisterRoutes(g *gin.RouterGroup, d Deps) {
	dispatcher := d.Dispatcher
	if dispatcher == nil {
		dispatcher = usecase.NewDirectDispatcher(d.Repo)
		d.Queued = false
	}

	sendMsgCtl := controller.NewSendMessageController(dispatcher, d.Queued)
	getMsgCtl := controller.NewGetMessageController(d.Repo)
	deleteMsgCtl := controller.NewDeleteMessageController(d.Repo)
	profileCtl := controller.NewGetProfileController(d.Profiles)

	// GET /api/v1/chat/:chatId/messages -> fetch messages by chat id
	g.GET("/chat/:chatId/messages", getMsgCtl.Handle())

	// POST /api/v1/chat/:chatId -> send a message into a chat
	g.POST("/chat/:chatId", sendMsgCtl.Handle())

	// DELETE /api/v1/chat/:chatId/messages/:messageId -> delete one message
	g.DELETE("/chat/:chatId/messages/:messageId", deleteMsgCtl.Handle())

	// GET /api/v1/profiles/:userId -> avatar of a sender
	g.GET("/profiles/:userId", profileCtl.Handle())

	// GET /api/v1/chat/ws -> websocket endpoint for realtime chat
	if d.Router != nil {
		socketCtl := controller.NewChatSocketController(d.Router, dispatcher, d.Queued, d.Log)
		g.GET("/chat/ws", socketCtl.Handle())
	}
}
