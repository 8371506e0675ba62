package model

import "time"

type Organization struct {
	ID   string `gorm:"primaryKey;size:64" json:"organization_id"`
	Name string `gorm:"size:128;not null" json:"name"`
	// SealedModelKey holds the model API key sealed with the service key.
	SealedModelKey string    `gorm:"type:text" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
