package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"docchat/internal/model"
	"docchat/internal/testutil"
)

func TestFileStatusFlow(t *testing.T) {
	db := testutil.OpenTestDB(t)
	docs := NewDocumentRepository(db)
	files := NewFileRepository(db)
	ctx := context.Background()

	require.NoError(t, docs.Create(ctx, &model.Document{ID: "doc1", OrganizationID: "org1", Name: "Policy", Status: model.DocumentStatusProcessing}))
	require.NoError(t, files.Create(ctx, &model.File{ID: "f1", DocumentID: "doc1", OrganizationID: "org1", Filename: "a.pdf", StorageKey: "a.pdf", Status: model.FileStatusUploaded}))

	ok, err := files.MarkProcessing(ctx, "f1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = files.MarkProcessing(ctx, "f1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, files.MarkReady(ctx, "f1", 3, 1024, "short summary"))

	doc, err := docs.GetByID(ctx, "org1", "doc1")
	require.NoError(t, err)
	require.Len(t, doc.Files, 1)
	require.Equal(t, model.FileStatusReady, doc.Files[0].Status)
	require.Equal(t, "short summary", doc.Files[0].Summary)
	require.Equal(t, model.DocumentStatusReady, model.DeriveStatus(doc.Files))

	missing, err := docs.GetByID(ctx, "org2", "doc1")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestOrganizationUpsertSealedKey(t *testing.T) {
	repo := NewOrganizationRepository(testutil.OpenTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.UpsertSealedKey(ctx, "org1", "sealed-a"))
	require.NoError(t, repo.UpsertSealedKey(ctx, "org1", "sealed-b"))

	org, err := repo.GetByID(ctx, "org1")
	require.NoError(t, err)
	require.Equal(t, "sealed-b", org.SealedModelKey)
}
