package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"docchat/internal/model"
)

// ErrStatusConflict reports that a conditional status update matched no row
// because the chat was no longer in the expected status.
var ErrStatusConflict = errors.New("chat status conflict")

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(ctx context.Context, chat *model.Chat) error {
	if err := r.db.WithContext(ctx).Create(chat).Error; err != nil {
		return fmt.Errorf("create chat failed: %w", err)
	}
	return nil
}

// GetByID loads the chat and its messages in append order.
func (r *ChatRepository) GetByID(ctx context.Context, chatID string) (*model.Chat, error) {
	return getChat(r.db.WithContext(ctx), chatID)
}

func (r *ChatRepository) ListByDocument(ctx context.Context, organizationID, documentID string) ([]model.Chat, error) {
	var chats []model.Chat
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND document_id = ?", organizationID, documentID).
		Order("updated_at DESC").
		Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("list chats failed: %w", err)
	}
	return chats, nil
}

// TransitionStatus moves the chat from one status to another in a single
// conditional UPDATE. It returns false when the stored status was not from.
func (r *ChatRepository) TransitionStatus(
	ctx context.Context,
	chatID string,
	from, to model.ChatStatus,
	statusMessage string,
) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Chat{}).
		Where("id = ? AND status = ?", chatID, from).
		Updates(map[string]interface{}{
			"status":         to,
			"status_message": statusMessage,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("transition chat status failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// AppendMessages moves the chat from any of the from statuses to the to status
// and appends messages in the same transaction, recomputing participant ids.
// A missing chat returns nil, nil; a status mismatch returns ErrStatusConflict.
func (r *ChatRepository) AppendMessages(
	ctx context.Context,
	chatID string,
	from []model.ChatStatus,
	to model.ChatStatus,
	messages []model.ChatMessage,
) (*model.Chat, error) {
	var updated *model.Chat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Chat{}).
			Where("id = ? AND status IN ?", chatID, from).
			Updates(map[string]interface{}{
				"status":         to,
				"status_message": "",
				"updated_at":     time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("update chat status failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&model.Chat{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
				return fmt.Errorf("check chat exists failed: %w", err)
			}
			if count == 0 {
				return gorm.ErrRecordNotFound
			}
			return ErrStatusConflict
		}

		var next int64
		if err := tx.Model(&model.ChatMessage{}).Where("chat_id = ?", chatID).Count(&next).Error; err != nil {
			return fmt.Errorf("count chat messages failed: %w", err)
		}
		for i := range messages {
			messages[i].ID = 0
			messages[i].ChatID = chatID
			messages[i].Seq = int(next) + i
			if messages[i].CreatedAt.IsZero() {
				messages[i].CreatedAt = time.Now().UTC()
			}
		}
		if len(messages) > 0 {
			if err := tx.Create(&messages).Error; err != nil {
				return fmt.Errorf("insert chat messages failed: %w", err)
			}
		}

		chat, err := getChat(tx, chatID)
		if err != nil {
			return err
		}
		if chat == nil {
			return gorm.ErrRecordNotFound
		}
		participants := datatypes.JSONSlice[string](model.ParticipantIDs(chat.Messages))
		if err := tx.Model(&model.Chat{}).
			Where("id = ?", chatID).
			Update("participant_ids", participants).Error; err != nil {
			return fmt.Errorf("update chat participants failed: %w", err)
		}
		chat.ParticipantIDs = participants
		updated = chat
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListStale returns chats that have sat in status since before the cutoff.
func (r *ChatRepository) ListStale(ctx context.Context, status model.ChatStatus, before time.Time, limit int) ([]model.Chat, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var chats []model.Chat
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("list stale chats failed: %w", err)
	}
	return chats, nil
}

func getChat(db *gorm.DB, chatID string) (*model.Chat, error) {
	var chat model.Chat
	err := db.Preload("Messages", func(q *gorm.DB) *gorm.DB {
		return q.Order("seq ASC")
	}).Where("id = ?", chatID).First(&chat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat failed: %w", err)
	}
	return &chat, nil
}
