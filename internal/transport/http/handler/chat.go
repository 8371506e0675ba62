package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
	"docchat/internal/model"
	"docchat/internal/transport/http/middleware"
	"docchat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type CreateChatRequest struct {
	DocumentID string `json:"document_id" binding:"required,max=64"`
}

type AppendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) CreateChat(c *gin.Context) {
	userID, orgID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	chat, err := h.chatService.CreateChat(c.Request.Context(), app.CreateChatInput{
		OrganizationID: orgID,
		DocumentID:     req.DocumentID,
		UserID:         userID,
	})
	if err != nil {
		writeServiceError(c, err, "create chat failed")
		return
	}
	response.OK(c, chat)
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	_, orgID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	chat, err := h.loadChat(c, orgID)
	if err != nil {
		writeServiceError(c, err, "get chat failed")
		return
	}
	response.OK(c, chat)
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	_, orgID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	chats, err := h.chatService.ListChats(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		writeServiceError(c, err, "list chats failed")
		return
	}
	response.OK(c, chats)
}

// AppendMessage stores the user turn and returns before the answer exists.
// The answer arrives over the caller's connection streams.
func (h *ChatHandler) AppendMessage(c *gin.Context) {
	userID, orgID, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AppendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if _, err := h.loadChat(c, orgID); err != nil {
		writeServiceError(c, err, "append message failed")
		return
	}
	chat, err := h.chatService.AppendUserMessage(c.Request.Context(), c.Param("id"), req.Content, userID)
	if err != nil {
		writeServiceError(c, err, "append message failed")
		return
	}
	response.Accepted(c, gin.H{
		"chat_id": chat.ID,
		"status":  chat.Status,
		"index":   len(chat.Messages) - 1,
	})
}

// loadChat hides chats of other organizations behind not found.
func (h *ChatHandler) loadChat(c *gin.Context, orgID string) (*model.Chat, error) {
	chat, err := h.chatService.GetChat(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if chat.OrganizationID != orgID {
		return nil, app.ErrChatNotFound
	}
	return chat, nil
}

func identityFromContext(c *gin.Context) (string, string, bool) {
	userID := c.GetString(middleware.ContextUserIDKey)
	orgID := c.GetString(middleware.ContextOrganizationIDKey)
	if userID == "" || orgID == "" {
		return "", "", false
	}
	return userID, orgID, true
}

func writeServiceError(c *gin.Context, err error, fallback string) {
	var upstream *app.UpstreamError
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrMessageEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrDocumentNotReady), errors.Is(err, app.ErrDocumentNotIndexed):
		response.Error(c, http.StatusBadRequest, response.CodeDocumentNotReady, err.Error())
	case errors.Is(err, app.ErrModelCredential):
		response.Error(c, http.StatusBadRequest, response.CodeMissingCredential, err.Error())
	case errors.Is(err, app.ErrChatNotFound):
		response.Error(c, http.StatusNotFound, response.CodeChatNotFound, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	case errors.Is(err, app.ErrFileNotFound):
		response.Error(c, http.StatusNotFound, response.CodeFileNotFound, err.Error())
	case errors.Is(err, app.ErrChatBusy):
		response.Error(c, http.StatusConflict, response.CodeChatBusy, err.Error())
	case errors.Is(err, app.ErrStaleEvent):
		response.Error(c, http.StatusConflict, response.CodeConflict, "already in progress")
	case errors.As(err, &upstream):
		response.Error(c, http.StatusBadGateway, response.CodeUpstream, upstream.Service+" unavailable")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
