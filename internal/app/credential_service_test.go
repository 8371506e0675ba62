package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"docchat/internal/pkg/secretbox"
	"docchat/internal/repository"
)

func TestCredentialServiceSealsAndCaches(t *testing.T) {
	h := newHarness(t)
	box, err := secretbox.New(strings.Repeat("0f", 32))
	require.NoError(t, err)
	orgs := repository.NewOrganizationRepository(h.db)
	svc := NewCredentialService(h.log, orgs, box)
	ctx := context.Background()

	_, err = svc.GetModelCredential(ctx, "org1")
	require.ErrorIs(t, err, ErrModelCredential)

	require.NoError(t, svc.SetModelCredential(ctx, "org1", "sk-one"))
	org, err := orgs.GetByID(ctx, "org1")
	require.NoError(t, err)
	require.NotContains(t, org.SealedModelKey, "sk-one")

	key, err := svc.GetModelCredential(ctx, "org1")
	require.NoError(t, err)
	require.Equal(t, "sk-one", key)

	require.NoError(t, svc.SetModelCredential(ctx, "org1", "sk-two"))
	key, err = svc.GetModelCredential(ctx, "org1")
	require.NoError(t, err)
	require.Equal(t, "sk-two", key, "set evicts the cached key")

	require.ErrorIs(t, svc.SetModelCredential(ctx, "org1", " "), ErrInvalidInput)
}
