package model

import "time"

type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID             string         `gorm:"primaryKey;size:26" json:"document_id"`
	OrganizationID string         `gorm:"size:64;not null;index" json:"organization_id"`
	Name           string         `gorm:"size:256;not null" json:"name"`
	Status         DocumentStatus `gorm:"size:16;not null" json:"status"`
	CreatedBy      string         `gorm:"size:64" json:"created_by"`
	Files          []File         `gorm:"foreignKey:DocumentID" json:"files,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// DeriveStatus folds file statuses into a document status: any failed file
// fails the document, all ready files make it ready.
func DeriveStatus(files []File) DocumentStatus {
	if len(files) == 0 {
		return DocumentStatusProcessing
	}
	ready := 0
	for _, f := range files {
		switch f.Status {
		case FileStatusFailed:
			return DocumentStatusFailed
		case FileStatusReady:
			ready++
		}
	}
	if ready == len(files) {
		return DocumentStatusReady
	}
	return DocumentStatusProcessing
}
