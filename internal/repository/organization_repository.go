package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docchat/internal/model"
)

type OrganizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) GetByID(ctx context.Context, organizationID string) (*model.Organization, error) {
	var org model.Organization
	if err := r.db.WithContext(ctx).Where("id = ?", organizationID).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get organization failed: %w", err)
	}
	return &org, nil
}

// UpsertSealedKey creates the organization if needed and replaces its sealed
// model key.
func (r *OrganizationRepository) UpsertSealedKey(ctx context.Context, organizationID, sealed string) error {
	org := model.Organization{ID: organizationID, Name: organizationID, SealedModelKey: sealed}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sealed_model_key", "updated_at"}),
	}).Create(&org).Error; err != nil {
		return fmt.Errorf("upsert organization key failed: %w", err)
	}
	return nil
}
