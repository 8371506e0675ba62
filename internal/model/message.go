package model

import (
	"time"

	"gorm.io/datatypes"
)

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ChatMessage is one appended turn. Rows are inserted, never updated.
type ChatMessage struct {
	ID        uint                        `gorm:"primaryKey" json:"-"`
	ChatID    string                      `gorm:"size:26;not null;uniqueIndex:idx_chat_messages_seq" json:"-"`
	Seq       int                         `gorm:"not null;uniqueIndex:idx_chat_messages_seq" json:"index"`
	Role      MessageRole                 `gorm:"size:16;not null" json:"role"`
	Content   string                      `gorm:"type:text;not null" json:"content"`
	UserID    string                      `gorm:"size:64;index" json:"user_id,omitempty"`
	Resources datatypes.JSONSlice[string] `json:"resources,omitempty"`
	CreatedAt time.Time                   `json:"timestamp"`
}

// ParticipantIDs returns the distinct non-empty user ids in first-seen order.
func ParticipantIDs(messages []ChatMessage) []string {
	seen := make(map[string]struct{}, len(messages))
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.UserID == "" {
			continue
		}
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		out = append(out, m.UserID)
	}
	return out
}
