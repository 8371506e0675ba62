package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"docchat/internal/ai"
	"docchat/internal/model"
	"docchat/internal/platform/logger"
)

const (
	retrievalTopK     = 4
	mapConcurrency    = 4
	tracerName        = "docchat/app"
	summaryPassageTag = "summary"
)

// Passage is a retrieved chunk of a document file.
type Passage struct {
	Text       string
	FileID     string
	DocumentID string
	Filename   string
	Page       int
	LineFrom   int
	LineTo     int
	// Kind is empty for indexed passages and "summary" for the synthetic
	// passage built from file summaries.
	Kind string
}

type citation struct {
	FileID     string    `json:"fileId"`
	DocumentID string    `json:"documentId"`
	Filename   string    `json:"filename"`
	Page       int       `json:"page"`
	LineRange  lineRange `json:"lineRange"`
}

type lineRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Citation serializes the source location of p into an opaque token.
func (p Passage) Citation() string {
	b, _ := json.Marshal(citation{
		FileID:     p.FileID,
		DocumentID: p.DocumentID,
		Filename:   p.Filename,
		Page:       p.Page,
		LineRange:  lineRange{From: p.LineFrom, To: p.LineTo},
	})
	return string(b)
}

type RetrieveInput struct {
	OrganizationID string
	DocumentID     string
	Query          string
	K              int
	Credential     string
}

// Retriever returns the top K passages of one document for a query.
type Retriever interface {
	Retrieve(ctx context.Context, in RetrieveInput) ([]Passage, error)
}

// SummarySource returns the joined file summaries of a document, empty when
// none exist yet.
type SummarySource interface {
	DocumentSummary(ctx context.Context, organizationID, documentID string) (string, error)
}

// ModelProvider binds models to an organization credential.
type ModelProvider interface {
	Chat(apiKey string) ai.Generator
	Summary(apiKey string) ai.Generator
	Embedder(apiKey string) ai.Embedder
}

type AnswerInput struct {
	OrganizationID string
	DocumentID     string
	Query          string
	History        []model.ChatMessage
	Credential     string
}

type Answer struct {
	Text      string
	Citations []string
}

// Answerer is the query engine contract used by the orchestrator.
type Answerer interface {
	Answer(ctx context.Context, in AnswerInput, onToken func(string) error) (*Answer, error)
}

type QueryEngine struct {
	log       *logger.Logger
	retriever Retriever
	summaries SummarySource
	models    ModelProvider
}

func NewQueryEngine(log *logger.Logger, retriever Retriever, summaries SummarySource, models ModelProvider) *QueryEngine {
	return &QueryEngine{
		log:       log.With("service", "QueryEngine"),
		retriever: retriever,
		summaries: summaries,
		models:    models,
	}
}

// Answer picks the single-question path when history is empty and the
// conversational path otherwise. onToken only ever sees tokens of the final
// generation call.
func (e *QueryEngine) Answer(ctx context.Context, in AnswerInput, onToken func(string) error) (*Answer, error) {
	if strings.TrimSpace(in.Credential) == "" {
		return nil, ErrModelCredential
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, ErrMessageEmpty
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "QueryEngine.Answer")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.id", in.DocumentID),
		attribute.Int("chat.history_len", len(in.History)),
	)

	var (
		out *Answer
		err error
	)
	if len(in.History) == 0 {
		out, err = e.answerDocument(ctx, in, onToken)
	} else {
		out, err = e.answerConversation(ctx, in, onToken)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "answer failed")
		return nil, err
	}
	return out, nil
}

func (e *QueryEngine) answerDocument(ctx context.Context, in AnswerInput, onToken func(string) error) (*Answer, error) {
	passages, err := e.retrieve(ctx, in, in.Query)
	if err != nil {
		return nil, err
	}

	inputs := passages
	summary, err := e.summaries.DocumentSummary(ctx, in.OrganizationID, in.DocumentID)
	if err != nil {
		e.log.Warn("load document summary failed", "document_id", in.DocumentID, "error", err)
	} else if strings.TrimSpace(summary) != "" {
		inputs = append([]Passage{{Text: summary, DocumentID: in.DocumentID, Kind: summaryPassageTag}}, passages...)
	}

	gen := e.models.Chat(in.Credential)
	text, err := mapReduceQA(ctx, gen, in.Query, inputs, onToken)
	if err != nil {
		return nil, err
	}
	return &Answer{Text: strings.TrimSpace(text), Citations: citations(passages)}, nil
}

func (e *QueryEngine) answerConversation(ctx context.Context, in AnswerInput, onToken func(string) error) (*Answer, error) {
	gen := e.models.Chat(in.Credential)

	question, err := gen.Generate(ctx, ai.GenerateRequest{
		Messages: userPrompt(fill(condenseQuestionPrompt, map[string]string{
			"chat_history": FlattenHistory(in.History),
			"question":     in.Query,
		})),
	}, nil)
	if err != nil {
		return nil, upstream("model", err)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		question = in.Query
	}

	passages, err := e.retrieve(ctx, in, question)
	if err != nil {
		return nil, err
	}

	text, err := gen.Generate(ctx, ai.GenerateRequest{
		Messages: userPrompt(fill(conversationalQAPrompt, map[string]string{
			"context":  joinPassages(passages),
			"question": question,
		})),
		Terminal: true,
	}, onToken)
	if err != nil {
		return nil, upstream("model", err)
	}
	return &Answer{Text: strings.TrimSpace(text), Citations: citations(passages)}, nil
}

func (e *QueryEngine) retrieve(ctx context.Context, in AnswerInput, query string) ([]Passage, error) {
	passages, err := e.retriever.Retrieve(ctx, RetrieveInput{
		OrganizationID: in.OrganizationID,
		DocumentID:     in.DocumentID,
		Query:          query,
		K:              retrievalTopK,
		Credential:     in.Credential,
	})
	if err != nil {
		return nil, upstream("vector", err)
	}
	if len(passages) == 0 {
		return nil, ErrDocumentNotIndexed
	}
	return passages, nil
}

// mapReduceQA asks the map prompt of every passage concurrently, then streams
// the combine call, which is the only terminal call.
func mapReduceQA(ctx context.Context, gen ai.Generator, question string, passages []Passage, onToken func(string) error) (string, error) {
	extracts := make([]string, len(passages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mapConcurrency)
	for i := range passages {
		i := i
		g.Go(func() error {
			out, err := gen.Generate(gctx, ai.GenerateRequest{
				Messages: userPrompt(fill(qaMapPrompt, map[string]string{
					"context":  passages[i].Text,
					"question": question,
				})),
			}, nil)
			if err != nil {
				return upstream("model", err)
			}
			extracts[i] = strings.TrimSpace(out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	text, err := gen.Generate(ctx, ai.GenerateRequest{
		Messages: userPrompt(fill(qaCombinePrompt, map[string]string{
			"question":  question,
			"summaries": strings.Join(extracts, "\n\n"),
		})),
		Terminal: true,
	}, onToken)
	if err != nil {
		return "", upstream("model", err)
	}
	return text, nil
}

// FlattenHistory renders history as " - role: content" lines.
func FlattenHistory(history []model.ChatMessage) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, fmt.Sprintf(" - %s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

func citations(passages []Passage) []string {
	out := make([]string, 0, len(passages))
	for _, p := range passages {
		if p.Kind == summaryPassageTag {
			continue
		}
		out = append(out, p.Citation())
	}
	return out
}

func joinPassages(passages []Passage) string {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n\n")
}

func userPrompt(text string) []ai.ChatMessage {
	return []ai.ChatMessage{{Role: "user", Content: text}}
}
