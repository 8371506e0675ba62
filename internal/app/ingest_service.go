package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"docchat/internal/model"
	"docchat/internal/pkg/pdfextract"
	"docchat/internal/pkg/textsplit"
	"docchat/internal/platform/logger"
	"docchat/internal/platform/qdrant"
	"docchat/internal/repository"
)

const contentTypePDF = "application/pdf"

// VectorWriter is the write side of the vector store.
type VectorWriter interface {
	Upsert(ctx context.Context, namespace string, points []qdrant.Point) error
	DeleteByFilter(ctx context.Context, namespace string, filter map[string]string) error
}

// PageReader turns a stored file into page texts.
type PageReader func(path string) ([]string, error)

type IngestService struct {
	log         *logger.Logger
	files       *repository.FileRepository
	documents   *DocumentService
	credentials CredentialStore
	models      ModelProvider
	vectors     VectorWriter
	summarizer  *Summarizer
	splitter    textsplit.Splitter
	storageRoot string
	readPages   PageReader
}

func NewIngestService(
	log *logger.Logger,
	files *repository.FileRepository,
	documents *DocumentService,
	credentials CredentialStore,
	models ModelProvider,
	vectors VectorWriter,
	summarizer *Summarizer,
	storageRoot string,
) *IngestService {
	return &IngestService{
		log:         log.With("service", "IngestService"),
		files:       files,
		documents:   documents,
		credentials: credentials,
		models:      models,
		vectors:     vectors,
		summarizer:  summarizer,
		splitter:    textsplit.New(textsplit.DefaultChunkSize, textsplit.DefaultOverlap),
		storageRoot: storageRoot,
		readPages:   readPDFPages,
	}
}

// IngestFile indexes one uploaded PDF and stores its summary. The file ends
// ready or failed; the document status is re-derived either way.
func (s *IngestService) IngestFile(ctx context.Context, organizationID, documentID, fileID string) (*model.File, error) {
	file, err := s.files.GetByID(ctx, documentID, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil || file.OrganizationID != organizationID {
		return nil, ErrFileNotFound
	}
	credential, err := s.credentials.GetModelCredential(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	claimed, err := s.files.MarkProcessing(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrStaleEvent
	}
	if err := s.documents.refreshStatus(ctx, documentID); err != nil {
		s.log.Warn("refresh document status failed", "document_id", documentID, "error", err)
	}

	log := s.log.With("file_id", file.ID, "document_id", documentID)
	pageCount, size, summary, ingestErr := s.ingest(ctx, file, credential)
	if ingestErr != nil {
		log.Error("ingest file failed", "error", ingestErr)
		if err := s.files.MarkFailed(ctx, file.ID, ingestErr.Error()); err != nil {
			return nil, err
		}
	} else if err := s.files.MarkReady(ctx, file.ID, pageCount, size, summary); err != nil {
		return nil, err
	}
	if err := s.documents.refreshStatus(ctx, documentID); err != nil {
		return nil, err
	}

	updated, err := s.files.GetByID(ctx, documentID, file.ID)
	if err != nil {
		return nil, err
	}
	if ingestErr != nil {
		return updated, ingestErr
	}
	log.Info("file ingested", "pages", pageCount, "summary_chars", len(summary))
	return updated, nil
}

func (s *IngestService) ingest(ctx context.Context, file *model.File, credential string) (int, int64, string, error) {
	if file.ContentType != contentTypePDF {
		return 0, 0, "", fmt.Errorf("unsupported content type %q", file.ContentType)
	}
	path := filepath.Join(s.storageRoot, filepath.Clean("/"+file.StorageKey))
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, "", fmt.Errorf("stat stored file failed: %w", err)
	}
	pages, err := s.readPages(path)
	if err != nil {
		return 0, 0, "", fmt.Errorf("extract pdf text failed: %w", err)
	}

	var passages []Passage
	for _, p := range s.splitter.Split(pages) {
		passages = append(passages, Passage{
			Text:       p.Text,
			FileID:     file.ID,
			DocumentID: file.DocumentID,
			Filename:   file.Filename,
			Page:       p.Page,
			LineFrom:   p.LineFrom,
			LineTo:     p.LineTo,
		})
	}
	if len(passages) == 0 {
		return 0, 0, "", errors.New("pdf has no extractable text")
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	vectors, err := s.models.Embedder(credential).EmbedBatch(ctx, texts)
	if err != nil {
		return 0, 0, "", upstream("embedding", err)
	}

	var summary string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		filter := map[string]string{payloadFileID: file.ID}
		if err := s.vectors.DeleteByFilter(gctx, file.OrganizationID, filter); err != nil {
			return upstream("vector", err)
		}
		points := make([]qdrant.Point, len(passages))
		for i, p := range passages {
			points[i] = qdrant.Point{
				Key:     fmt.Sprintf("%s:%d", file.ID, i),
				Vector:  vectors[i],
				Payload: passagePayload(p),
			}
		}
		return upstream("vector", s.vectors.Upsert(gctx, file.OrganizationID, points))
	})
	g.Go(func() error {
		out, err := s.summarizer.Summarize(gctx, s.models.Summary(credential), texts, vectors)
		if err != nil {
			s.log.Warn("summarize file failed", "file_id", file.ID, "error", err)
			return nil
		}
		summary = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return 0, 0, "", err
	}
	return len(pages), info.Size(), summary, nil
}

func readPDFPages(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pages, err := pdfextract.ExtractPages(f)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = strings.TrimSpace(p.Text)
	}
	return out, nil
}
