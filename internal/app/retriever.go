package app

import (
	"context"
	"fmt"

	"docchat/internal/platform/qdrant"
)

// VectorSearcher is the subset of the vector store the retriever needs.
type VectorSearcher interface {
	Search(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]string) ([]qdrant.Match, error)
}

// VectorRetriever embeds the query with the organization credential and
// searches the organization namespace, filtered to one document.
type VectorRetriever struct {
	store  VectorSearcher
	models ModelProvider
}

func NewVectorRetriever(store VectorSearcher, models ModelProvider) *VectorRetriever {
	return &VectorRetriever{store: store, models: models}
}

func (r *VectorRetriever) Retrieve(ctx context.Context, in RetrieveInput) ([]Passage, error) {
	vectors, err := r.models.Embedder(in.Credential).EmbedBatch(ctx, []string{in.Query})
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query returned %d vectors", len(vectors))
	}

	matches, err := r.store.Search(ctx, in.OrganizationID, vectors[0], in.K, map[string]string{
		payloadDocumentID: in.DocumentID,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Passage, 0, len(matches))
	for _, m := range matches {
		out = append(out, passageFromPayload(m.Payload))
	}
	return out, nil
}

const (
	payloadText       = "text"
	payloadFileID     = "fileId"
	payloadDocumentID = "documentId"
	payloadFilename   = "filename"
	payloadPage       = "page"
	payloadLineFrom   = "lineFrom"
	payloadLineTo     = "lineTo"
)

func passagePayload(p Passage) map[string]any {
	return map[string]any{
		payloadText:       p.Text,
		payloadFileID:     p.FileID,
		payloadDocumentID: p.DocumentID,
		payloadFilename:   p.Filename,
		payloadPage:       p.Page,
		payloadLineFrom:   p.LineFrom,
		payloadLineTo:     p.LineTo,
	}
}

func passageFromPayload(payload map[string]any) Passage {
	return Passage{
		Text:       payloadString(payload, payloadText),
		FileID:     payloadString(payload, payloadFileID),
		DocumentID: payloadString(payload, payloadDocumentID),
		Filename:   payloadString(payload, payloadFilename),
		Page:       payloadInt(payload, payloadPage),
		LineFrom:   payloadInt(payload, payloadLineFrom),
		LineTo:     payloadInt(payload, payloadLineTo),
	}
}

func payloadString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func payloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}
