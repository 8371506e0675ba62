package model

import (
	"time"

	"gorm.io/datatypes"
)

type ChatStatus string

const (
	ChatStatusIdle       ChatStatus = "idle"
	ChatStatusAwaiting   ChatStatus = "awaiting"
	ChatStatusProcessing ChatStatus = "processing"
	ChatStatusFailed     ChatStatus = "failed"
)

// Chat is one conversation bound to a single document. ParticipantIDs is
// derived from Messages and is only ever rewritten as a whole.
type Chat struct {
	ID             string                      `gorm:"primaryKey;size:26" json:"chat_id"`
	OrganizationID string                      `gorm:"size:64;not null;index:idx_chats_org_doc" json:"organization_id"`
	DocumentID     string                      `gorm:"size:64;not null;index:idx_chats_org_doc" json:"document_id"`
	CreatedBy      string                      `gorm:"size:64;not null" json:"created_by"`
	Status         ChatStatus                  `gorm:"size:16;not null;index" json:"status"`
	StatusMessage  string                      `gorm:"size:512" json:"status_message,omitempty"`
	ParticipantIDs datatypes.JSONSlice[string] `json:"participant_ids"`
	Messages       []ChatMessage               `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"messages"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `gorm:"index" json:"updated_at"`
}

// LastMessage returns nil for a chat without messages.
func (c *Chat) LastMessage() *ChatMessage {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}
