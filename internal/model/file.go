package model

import "time"

type FileStatus string

const (
	FileStatusUploaded   FileStatus = "uploaded"
	FileStatusProcessing FileStatus = "processing"
	FileStatusReady      FileStatus = "ready"
	FileStatusFailed     FileStatus = "failed"
)

type File struct {
	ID             string     `gorm:"primaryKey;size:26" json:"file_id"`
	DocumentID     string     `gorm:"size:26;not null;index" json:"document_id"`
	OrganizationID string     `gorm:"size:64;not null" json:"organization_id"`
	Filename       string     `gorm:"size:256;not null" json:"filename"`
	ContentType    string     `gorm:"size:128" json:"content_type"`
	StorageKey     string     `gorm:"size:512;not null" json:"-"`
	Status         FileStatus `gorm:"size:16;not null" json:"status"`
	StatusMessage  string     `gorm:"size:512" json:"status_message,omitempty"`
	PageCount      int        `json:"page_count"`
	Size           int64      `json:"size"`
	Summary        string     `gorm:"type:text" json:"summary,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
