package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"docchat/internal/pkg/secretbox"
	"docchat/internal/platform/logger"
	"docchat/internal/repository"
)

const (
	credentialCacheSize = 256
	credentialCacheTTL  = 5 * time.Minute
)

// CredentialStore resolves the model API key of an organization.
type CredentialStore interface {
	GetModelCredential(ctx context.Context, organizationID string) (string, error)
}

type CredentialService struct {
	log   *logger.Logger
	orgs  *repository.OrganizationRepository
	box   *secretbox.Box
	cache *expirable.LRU[string, string]
}

func NewCredentialService(log *logger.Logger, orgs *repository.OrganizationRepository, box *secretbox.Box) *CredentialService {
	return &CredentialService{
		log:   log.With("service", "CredentialService"),
		orgs:  orgs,
		box:   box,
		cache: expirable.NewLRU[string, string](credentialCacheSize, nil, credentialCacheTTL),
	}
}

// GetModelCredential returns ErrModelCredential when the organization has no
// key or the stored key cannot be opened.
func (s *CredentialService) GetModelCredential(ctx context.Context, organizationID string) (string, error) {
	if key, ok := s.cache.Get(organizationID); ok {
		return key, nil
	}
	org, err := s.orgs.GetByID(ctx, organizationID)
	if err != nil {
		return "", err
	}
	if org == nil || org.SealedModelKey == "" {
		return "", ErrModelCredential
	}
	key, err := s.box.Open(org.SealedModelKey)
	if err != nil {
		s.log.Error("open sealed model key failed", "alert", true, "organization_id", organizationID, "error", err)
		return "", fmt.Errorf("%w: %v", ErrModelCredential, err)
	}
	s.cache.Add(organizationID, key)
	return key, nil
}

func (s *CredentialService) SetModelCredential(ctx context.Context, organizationID, key string) error {
	key = strings.TrimSpace(key)
	if organizationID == "" || key == "" {
		return ErrInvalidInput
	}
	sealed, err := s.box.Seal(key)
	if err != nil {
		return err
	}
	if err := s.orgs.UpsertSealedKey(ctx, organizationID, sealed); err != nil {
		return err
	}
	s.cache.Remove(organizationID)
	s.log.Info("model credential updated", "organization_id", organizationID)
	return nil
}
