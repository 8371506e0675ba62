package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"docchat/internal/model"
)

type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

func (r *ConnectionRepository) Create(ctx context.Context, conn *model.Connection) error {
	if err := r.db.WithContext(ctx).Create(conn).Error; err != nil {
		return fmt.Errorf("create connection failed: %w", err)
	}
	return nil
}

func (r *ConnectionRepository) GetByID(ctx context.Context, connectionID string) (*model.Connection, error) {
	var conn model.Connection
	if err := r.db.WithContext(ctx).Where("id = ?", connectionID).First(&conn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get connection failed: %w", err)
	}
	return &conn, nil
}

// MarkDisconnected flips a connected record to disconnected. It returns false
// when the record was already disconnected or does not exist.
func (r *ConnectionRepository) MarkDisconnected(ctx context.Context, connectionID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Connection{}).
		Where("id = ? AND status = ?", connectionID, model.ConnectionStatusConnected).
		Updates(map[string]interface{}{
			"status":          model.ConnectionStatusDisconnected,
			"disconnected_at": at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark connection disconnected failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *ConnectionRepository) ListConnectedByUserID(ctx context.Context, userID string) ([]model.Connection, error) {
	var conns []model.Connection
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.ConnectionStatusConnected).
		Order("connected_at ASC").
		Find(&conns).Error; err != nil {
		return nil, fmt.Errorf("list connections failed: %w", err)
	}
	return conns, nil
}
