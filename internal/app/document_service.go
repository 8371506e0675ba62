package app

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"

	"docchat/internal/model"
	"docchat/internal/platform/logger"
	"docchat/internal/repository"
)

// SummaryCache stores the joined summary of a document.
type SummaryCache interface {
	Get(ctx context.Context, documentID string) (string, bool, error)
	Set(ctx context.Context, documentID, summary string) error
	Delete(ctx context.Context, documentID string) error
}

type DocumentService struct {
	log       *logger.Logger
	documents *repository.DocumentRepository
	files     *repository.FileRepository
	cache     SummaryCache
}

func NewDocumentService(
	log *logger.Logger,
	documents *repository.DocumentRepository,
	files *repository.FileRepository,
	cache SummaryCache,
) *DocumentService {
	return &DocumentService{
		log:       log.With("service", "DocumentService"),
		documents: documents,
		files:     files,
		cache:     cache,
	}
}

// DocumentSummary joins the summaries of every summarized file. Cache errors
// fall through to the database.
func (s *DocumentService) DocumentSummary(ctx context.Context, organizationID, documentID string) (string, error) {
	if cached, ok, err := s.cache.Get(ctx, documentID); err != nil {
		s.log.Warn("summary cache get failed", "document_id", documentID, "error", err)
	} else if ok {
		return cached, nil
	}

	doc, err := s.documents.GetByID(ctx, organizationID, documentID)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", ErrDocumentNotFound
	}
	parts := make([]string, 0, len(doc.Files))
	for _, f := range doc.Files {
		if strings.TrimSpace(f.Summary) != "" {
			parts = append(parts, f.Summary)
		}
	}
	summary := strings.Join(parts, "\n\n")
	if err := s.cache.Set(ctx, documentID, summary); err != nil {
		s.log.Warn("summary cache set failed", "document_id", documentID, "error", err)
	}
	return summary, nil
}

type RegisterFileInput struct {
	OrganizationID string
	DocumentID     string
	DocumentName   string
	Filename       string
	ContentType    string
	StorageKey     string
	CreatedBy      string
}

// RegisterFile records an already stored file, creating its document when
// DocumentID is empty.
func (s *DocumentService) RegisterFile(ctx context.Context, in RegisterFileInput) (*model.File, error) {
	if in.OrganizationID == "" || in.Filename == "" || in.StorageKey == "" {
		return nil, ErrInvalidInput
	}
	documentID := in.DocumentID
	if documentID == "" {
		name := in.DocumentName
		if name == "" {
			name = in.Filename
		}
		doc := &model.Document{
			ID:             ulid.Make().String(),
			OrganizationID: in.OrganizationID,
			Name:           name,
			Status:         model.DocumentStatusProcessing,
			CreatedBy:      in.CreatedBy,
		}
		if err := s.documents.Create(ctx, doc); err != nil {
			return nil, err
		}
		documentID = doc.ID
	} else {
		doc, err := s.documents.GetByID(ctx, in.OrganizationID, documentID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, ErrDocumentNotFound
		}
	}

	file := &model.File{
		ID:             ulid.Make().String(),
		DocumentID:     documentID,
		OrganizationID: in.OrganizationID,
		Filename:       in.Filename,
		ContentType:    in.ContentType,
		StorageKey:     in.StorageKey,
		Status:         model.FileStatusUploaded,
	}
	if err := s.files.Create(ctx, file); err != nil {
		return nil, err
	}
	return file, s.refreshStatus(ctx, documentID)
}

// refreshStatus re-derives the document status from its files and drops the
// cached summary.
func (s *DocumentService) refreshStatus(ctx context.Context, documentID string) error {
	files, err := s.files.ListByDocumentID(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.documents.UpdateStatus(ctx, documentID, model.DeriveStatus(files)); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, documentID); err != nil {
		s.log.Warn("summary cache delete failed", "document_id", documentID, "error", err)
	}
	return nil
}
