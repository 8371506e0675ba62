package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"docchat/internal/app"
	"docchat/internal/platform/logger"
	"docchat/internal/transport/http/response"
)

const heartbeatInterval = 15 * time.Second

// Subscriber opens the pub/sub channel that backs one connection.
type Subscriber interface {
	Subscribe(ctx context.Context, connectionID string) (*redis.PubSub, error)
}

type ConnectionHandler struct {
	log         *logger.Logger
	chatService *app.ChatService
	registry    *app.ConnectionRegistry
	subscriber  Subscriber
}

func NewConnectionHandler(
	log *logger.Logger,
	chatService *app.ChatService,
	registry *app.ConnectionRegistry,
	subscriber Subscriber,
) *ConnectionHandler {
	return &ConnectionHandler{
		log:         log.With("handler", "ConnectionHandler"),
		chatService: chatService,
		registry:    registry,
		subscriber:  subscriber,
	}
}

// Stream holds a server-sent-event connection open and forwards every
// payload published for it. The channel is subscribed before the connection
// is registered so that no event is published to zero receivers while the
// row already says connected.
func (h *ConnectionHandler) Stream(c *gin.Context) {
	userID, orgID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var documentID string
	chatID := c.Query("chat_id")
	if chatID != "" {
		chat, err := h.chatService.GetChat(c.Request.Context(), chatID)
		if err == nil && chat.OrganizationID != orgID {
			err = app.ErrChatNotFound
		}
		if err != nil {
			writeServiceError(c, err, "open stream failed")
			return
		}
		documentID = chat.DocumentID
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	ctx := c.Request.Context()
	connectionID := uuid.NewString()
	sub, err := h.subscriber.Subscribe(ctx, connectionID)
	if err != nil {
		h.log.Error("subscribe connection channel failed", "connection_id", connectionID, "error", err)
		response.Error(c, http.StatusServiceUnavailable, response.CodeInternalServer, "open stream failed")
		return
	}
	defer sub.Close()

	if _, err := h.registry.Connect(ctx, app.ConnectInput{
		ConnectionID:   connectionID,
		UserID:         userID,
		OrganizationID: orgID,
		DocumentID:     documentID,
		ChatID:         chatID,
	}); err != nil {
		writeServiceError(c, err, "open stream failed")
		return
	}
	defer func() {
		// The request context is already cancelled here.
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.registry.Disconnect(dctx, connectionID); err != nil {
			h.log.Warn("disconnect connection failed", "connection_id", connectionID, "error", err)
		}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if _, err := c.Writer.Write([]byte("event: connected\ndata: " + connectionID + "\n\n")); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := c.Writer.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, open := <-messages:
			if !open {
				return
			}
			if _, err := c.Writer.Write([]byte("data: " + sanitizeSSE(msg.Payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
