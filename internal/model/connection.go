package model

import "time"

type ConnectionStatus string

const (
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
)

// Connection records one live delivery channel. Rows are soft state: a closed
// channel flips to disconnected and is never deleted.
type Connection struct {
	ID             string           `gorm:"primaryKey;size:36" json:"connection_id"`
	UserID         string           `gorm:"size:64;not null;index:idx_connections_user_status" json:"user_id"`
	OrganizationID string           `gorm:"size:64" json:"organization_id"`
	DocumentID     string           `gorm:"size:64" json:"document_id"`
	ChatID         string           `gorm:"size:26;index" json:"chat_id"`
	Status         ConnectionStatus `gorm:"size:16;not null;index:idx_connections_user_status" json:"status"`
	ConnectedAt    time.Time        `json:"connected_at"`
	DisconnectedAt *time.Time       `json:"disconnected_at,omitempty"`
}
