package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"docchat/internal/model"
	"docchat/internal/platform/logger"
	"docchat/internal/repository"
)

// Deliverer pushes a payload to one live connection. It returns an error
// wrapping ErrConnectionGone when the channel no longer exists.
type Deliverer interface {
	Send(ctx context.Context, connectionID string, payload []byte) error
}

type ConnectionRegistry struct {
	log       *logger.Logger
	repo      *repository.ConnectionRepository
	deliverer Deliverer
}

func NewConnectionRegistry(log *logger.Logger, repo *repository.ConnectionRepository, deliverer Deliverer) *ConnectionRegistry {
	return &ConnectionRegistry{
		log:       log.With("service", "ConnectionRegistry"),
		repo:      repo,
		deliverer: deliverer,
	}
}

type ConnectInput struct {
	ConnectionID   string
	UserID         string
	OrganizationID string
	DocumentID     string
	ChatID         string
}

// Connect always records a new connected channel; one user may hold many.
func (r *ConnectionRegistry) Connect(ctx context.Context, in ConnectInput) (*model.Connection, error) {
	if in.UserID == "" {
		return nil, ErrInvalidInput
	}
	id := in.ConnectionID
	if id == "" {
		id = uuid.NewString()
	}
	conn := &model.Connection{
		ID:             id,
		UserID:         in.UserID,
		OrganizationID: in.OrganizationID,
		DocumentID:     in.DocumentID,
		ChatID:         in.ChatID,
		Status:         model.ConnectionStatusConnected,
		ConnectedAt:    time.Now().UTC(),
	}
	if err := r.repo.Create(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// Disconnect is a no-op for a connection that is already disconnected.
func (r *ConnectionRegistry) Disconnect(ctx context.Context, connectionID string) error {
	_, err := r.repo.MarkDisconnected(ctx, connectionID, time.Now().UTC())
	return err
}

// ListConnected is a snapshot; connections may drop right after it returns.
func (r *ConnectionRegistry) ListConnected(ctx context.Context, userID string) ([]model.Connection, error) {
	return r.repo.ListConnectedByUserID(ctx, userID)
}

// Send delivers payload. When the channel is gone the connection is marked
// disconnected before ErrConnectionGone is returned.
func (r *ConnectionRegistry) Send(ctx context.Context, connectionID string, payload []byte) error {
	err := r.deliverer.Send(ctx, connectionID, payload)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConnectionGone) {
		if derr := r.Disconnect(ctx, connectionID); derr != nil {
			r.log.Warn("disconnect gone connection failed", "connection_id", connectionID, "error", derr)
		}
		return ErrConnectionGone
	}
	return err
}
