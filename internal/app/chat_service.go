package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"docchat/internal/model"
	"docchat/internal/platform/logger"
	"docchat/internal/repository"
)

const maxStatusMessageLen = 500

// AwaitingPublisher emits the "chat awaiting" notification.
type AwaitingPublisher interface {
	Publish(ctx context.Context, event model.AwaitingEvent) error
}

// ChatService is the only writer of chat status and messages. Every status
// change is a conditional update on the expected prior status, so two writers
// racing on one chat cannot both win.
type ChatService struct {
	log       *logger.Logger
	chats     *repository.ChatRepository
	documents *repository.DocumentRepository
	publisher AwaitingPublisher
}

func NewChatService(
	log *logger.Logger,
	chats *repository.ChatRepository,
	documents *repository.DocumentRepository,
	publisher AwaitingPublisher,
) *ChatService {
	return &ChatService{
		log:       log.With("service", "ChatService"),
		chats:     chats,
		documents: documents,
		publisher: publisher,
	}
}

type CreateChatInput struct {
	OrganizationID string
	DocumentID     string
	UserID         string
}

// CreateChat starts an idle, empty conversation on a ready document.
func (s *ChatService) CreateChat(ctx context.Context, in CreateChatInput) (*model.Chat, error) {
	if in.OrganizationID == "" || in.DocumentID == "" || in.UserID == "" {
		return nil, ErrInvalidInput
	}
	doc, err := s.documents.GetByID(ctx, in.OrganizationID, in.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	if doc.Status != model.DocumentStatusReady {
		return nil, ErrDocumentNotReady
	}

	chat := &model.Chat{
		ID:             ulid.Make().String(),
		OrganizationID: in.OrganizationID,
		DocumentID:     in.DocumentID,
		CreatedBy:      in.UserID,
		Status:         model.ChatStatusIdle,
		ParticipantIDs: []string{},
		Messages:       []model.ChatMessage{},
	}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *ChatService) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

func (s *ChatService) ListChats(ctx context.Context, organizationID, documentID string) ([]model.Chat, error) {
	if organizationID == "" || documentID == "" {
		return nil, ErrInvalidInput
	}
	return s.chats.ListByDocument(ctx, organizationID, documentID)
}

// AppendUserMessage appends a user turn, moves the chat to awaiting and emits
// exactly one notification. A chat that is already awaiting or processing
// rejects the message with ErrChatBusy.
//
// A failed publish is logged and not returned: the message is stored and the
// sweeper re-publishes chats left awaiting.
func (s *ChatService) AppendUserMessage(ctx context.Context, chatID, text, authorID string) (*model.Chat, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrMessageEmpty
	}
	if chatID == "" || authorID == "" {
		return nil, ErrInvalidInput
	}

	chat, err := s.chats.AppendMessages(ctx, chatID,
		[]model.ChatStatus{model.ChatStatusIdle, model.ChatStatusFailed},
		model.ChatStatusAwaiting,
		[]model.ChatMessage{{
			Role:    model.MessageRoleUser,
			Content: text,
			UserID:  authorID,
		}},
	)
	if errors.Is(err, repository.ErrStatusConflict) {
		return nil, ErrChatBusy
	}
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	event := model.AwaitingEvent{
		OrganizationID: chat.OrganizationID,
		DocumentID:     chat.DocumentID,
		ChatID:         chat.ID,
		UserID:         authorID,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Error("publish awaiting event failed, sweeper will retry",
			"chat_id", chat.ID,
			"error", err,
		)
	}
	return chat, nil
}

// BeginProcessing claims the chat for one worker invocation. ErrStaleEvent
// means another invocation already claimed it or it is not awaiting.
func (s *ChatService) BeginProcessing(ctx context.Context, chatID string) error {
	ok, err := s.chats.TransitionStatus(ctx, chatID, model.ChatStatusAwaiting, model.ChatStatusProcessing, "")
	if err != nil {
		return err
	}
	if !ok {
		return ErrStaleEvent
	}
	return nil
}

// CompleteProcessing appends the produced messages and returns the chat to
// idle, only if it is still processing.
func (s *ChatService) CompleteProcessing(ctx context.Context, chatID string, messages []model.ChatMessage) (*model.Chat, error) {
	chat, err := s.chats.AppendMessages(ctx, chatID,
		[]model.ChatStatus{model.ChatStatusProcessing},
		model.ChatStatusIdle,
		messages,
	)
	if errors.Is(err, repository.ErrStatusConflict) {
		return nil, ErrStaleEvent
	}
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

// FailProcessing moves a processing chat to failed and records why.
func (s *ChatService) FailProcessing(ctx context.Context, chatID, reason string) error {
	reason = truncateUTF8(reason, maxStatusMessageLen)
	ok, err := s.chats.TransitionStatus(ctx, chatID, model.ChatStatusProcessing, model.ChatStatusFailed, reason)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStaleEvent
	}
	s.log.Error("chat moved to failed", "alert", true, "chat_id", chatID, "reason", reason)
	return nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Requeue re-publishes the notification of an awaiting chat, or moves a
// failed chat back to awaiting first so its last user message is retried.
func (s *ChatService) Requeue(ctx context.Context, chatID string) error {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	switch chat.Status {
	case model.ChatStatusFailed:
		ok, err := s.chats.TransitionStatus(ctx, chatID, model.ChatStatusFailed, model.ChatStatusAwaiting, "")
		if err != nil {
			return err
		}
		if !ok {
			return ErrChatBusy
		}
	case model.ChatStatusAwaiting:
		// Bump updated_at so the sweeper does not re-publish right away.
		if _, err := s.chats.TransitionStatus(ctx, chatID, model.ChatStatusAwaiting, model.ChatStatusAwaiting, ""); err != nil {
			return err
		}
	default:
		return ErrChatBusy
	}
	return s.publishFor(ctx, chat)
}

// ExpireProcessing fails chats that stayed processing past lease, which only
// happens when a worker died mid-invocation.
func (s *ChatService) ExpireProcessing(ctx context.Context, lease time.Duration) (int, error) {
	stale, err := s.chats.ListStale(ctx, model.ChatStatusProcessing, time.Now().UTC().Add(-lease), 100)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, chat := range stale {
		err := s.FailProcessing(ctx, chat.ID, "processing lease expired")
		if errors.Is(err, ErrStaleEvent) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// RepublishAwaiting re-emits notifications for chats left awaiting longer than
// after, covering publishes lost between append and broker.
func (s *ChatService) RepublishAwaiting(ctx context.Context, after time.Duration) (int, error) {
	stale, err := s.chats.ListStale(ctx, model.ChatStatusAwaiting, time.Now().UTC().Add(-after), 100)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, c := range stale {
		ok, err := s.chats.TransitionStatus(ctx, c.ID, model.ChatStatusAwaiting, model.ChatStatusAwaiting, "")
		if err != nil {
			return published, err
		}
		if !ok {
			continue
		}
		chat, err := s.chats.GetByID(ctx, c.ID)
		if err != nil {
			return published, err
		}
		if chat == nil {
			continue
		}
		if err := s.publishFor(ctx, chat); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

func (s *ChatService) publishFor(ctx context.Context, chat *model.Chat) error {
	userID := chat.CreatedBy
	for i := len(chat.Messages) - 1; i >= 0; i-- {
		if chat.Messages[i].Role == model.MessageRoleUser && chat.Messages[i].UserID != "" {
			userID = chat.Messages[i].UserID
			break
		}
	}
	event := model.AwaitingEvent{
		OrganizationID: chat.OrganizationID,
		DocumentID:     chat.DocumentID,
		ChatID:         chat.ID,
		UserID:         userID,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish awaiting event failed: %w", err)
	}
	return nil
}
