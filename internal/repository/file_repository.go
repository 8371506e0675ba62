package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docchat/internal/model"
)

type FileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(ctx context.Context, file *model.File) error {
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("create file failed: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByID(ctx context.Context, documentID, fileID string) (*model.File, error) {
	var file model.File
	if err := r.db.WithContext(ctx).Where("id = ? AND document_id = ?", fileID, documentID).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get file failed: %w", err)
	}
	return &file, nil
}

func (r *FileRepository) ListByDocumentID(ctx context.Context, documentID string) ([]model.File, error) {
	var files []model.File
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("created_at ASC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("list files failed: %w", err)
	}
	return files, nil
}

// MarkProcessing claims the file for ingestion. It returns false when another
// ingestion already holds it or it is already ready.
func (r *FileRepository) MarkProcessing(ctx context.Context, fileID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND status IN ?", fileID, []model.FileStatus{model.FileStatusUploaded, model.FileStatusFailed}).
		Updates(map[string]interface{}{
			"status":         model.FileStatusProcessing,
			"status_message": "",
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark file processing failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *FileRepository) MarkReady(ctx context.Context, fileID string, pageCount int, size int64, summary string) error {
	if err := r.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ?", fileID).
		Updates(map[string]interface{}{
			"status":     model.FileStatusReady,
			"page_count": pageCount,
			"size":       size,
			"summary":    summary,
		}).Error; err != nil {
		return fmt.Errorf("mark file ready failed: %w", err)
	}
	return nil
}

func (r *FileRepository) MarkFailed(ctx context.Context, fileID, statusMessage string) error {
	if len(statusMessage) > 500 {
		statusMessage = statusMessage[:500]
	}
	if err := r.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ?", fileID).
		Updates(map[string]interface{}{
			"status":         model.FileStatusFailed,
			"status_message": statusMessage,
		}).Error; err != nil {
		return fmt.Errorf("mark file failed: %w", err)
	}
	return nil
}
