package app

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"docchat/internal/ai"
	"docchat/internal/model"
	"docchat/internal/platform/logger"
	"docchat/internal/platform/qdrant"
	"docchat/internal/repository"
	"docchat/internal/testutil"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []model.AwaitingEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev model.AwaitingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type generatorCall struct {
	req          ai.GenerateRequest
	hadCallback  bool
	promptPrefix string
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   []generatorCall
	respond func(req ai.GenerateRequest) (string, error)
}

func (g *fakeGenerator) Generate(_ context.Context, req ai.GenerateRequest, onToken func(string) error) (string, error) {
	prompt := req.Messages[0].Content
	prefix := prompt
	if len(prefix) > 40 {
		prefix = prefix[:40]
	}
	g.mu.Lock()
	g.calls = append(g.calls, generatorCall{req: req, hadCallback: onToken != nil, promptPrefix: prefix})
	g.mu.Unlock()

	out, err := g.respond(req)
	if err != nil {
		return "", err
	}
	if req.Terminal && onToken != nil {
		for _, tok := range strings.SplitAfter(out, " ") {
			if err := onToken(tok); err != nil {
				return "", err
			}
		}
	}
	return out, nil
}

func (g *fakeGenerator) snapshot() []generatorCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generatorCall(nil), g.calls...)
}

type fakeEmbedder struct{}

// EmbedBatch maps a text to {len(text), 1} so tests can reason about vectors.
func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

type fakeProvider struct {
	gen *fakeGenerator
}

func (p fakeProvider) Chat(string) ai.Generator    { return p.gen }
func (p fakeProvider) Summary(string) ai.Generator { return p.gen }
func (p fakeProvider) Embedder(string) ai.Embedder { return fakeEmbedder{} }

type fakeRetriever struct {
	mu       sync.Mutex
	passages []Passage
	err      error
	queries  []string
}

func (r *fakeRetriever) Retrieve(_ context.Context, in RetrieveInput) ([]Passage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, in.Query)
	if r.err != nil {
		return nil, r.err
	}
	return r.passages, nil
}

type fakeSummaries struct {
	summary string
}

func (s fakeSummaries) DocumentSummary(context.Context, string, string) (string, error) {
	return s.summary, nil
}

type fakeCredentials struct {
	key string
}

func (c fakeCredentials) GetModelCredential(context.Context, string) (string, error) {
	if c.key == "" {
		return "", ErrModelCredential
	}
	return c.key, nil
}

type fakeSummaryCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newFakeSummaryCache() *fakeSummaryCache {
	return &fakeSummaryCache{entries: map[string]string{}}
}

func (c *fakeSummaryCache) Get(_ context.Context, id string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[id]
	return v, ok, nil
}

func (c *fakeSummaryCache) Set(_ context.Context, id, summary string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = summary
	return nil
}

func (c *fakeSummaryCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

// fakeDeliverer records payloads per connection; ids in gone report
// ErrConnectionGone.
type fakeDeliverer struct {
	mu        sync.Mutex
	gone      map[string]bool
	delivered map[string][][]byte
	attempts  map[string]int
}

func newFakeDeliverer(gone ...string) *fakeDeliverer {
	d := &fakeDeliverer{
		gone:      map[string]bool{},
		delivered: map[string][][]byte{},
		attempts:  map[string]int{},
	}
	for _, id := range gone {
		d.gone[id] = true
	}
	return d
}

func (d *fakeDeliverer) Send(_ context.Context, id string, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts[id]++
	if d.gone[id] {
		return ErrConnectionGone
	}
	d.delivered[id] = append(d.delivered[id], payload)
	return nil
}

func (d *fakeDeliverer) count(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.delivered[id])
}

func (d *fakeDeliverer) attemptsFor(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts[id]
}

type fakeVectors struct {
	mu      sync.Mutex
	points  map[string][]qdrant.Point
	deletes int
}

func (v *fakeVectors) Upsert(_ context.Context, ns string, points []qdrant.Point) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.points == nil {
		v.points = map[string][]qdrant.Point{}
	}
	v.points[ns] = append(v.points[ns], points...)
	return nil
}

func (v *fakeVectors) DeleteByFilter(context.Context, string, map[string]string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deletes++
	return nil
}

type harness struct {
	db        *gorm.DB
	log       *logger.Logger
	chatRepo  *repository.ChatRepository
	docRepo   *repository.DocumentRepository
	fileRepo  *repository.FileRepository
	connRepo  *repository.ConnectionRepository
	publisher *fakePublisher
	chats     *ChatService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.OpenTestDB(t)
	h := &harness{
		db:        db,
		log:       logger.NewNop(),
		chatRepo:  repository.NewChatRepository(db),
		docRepo:   repository.NewDocumentRepository(db),
		fileRepo:  repository.NewFileRepository(db),
		connRepo:  repository.NewConnectionRepository(db),
		publisher: &fakePublisher{},
	}
	h.chats = NewChatService(h.log, h.chatRepo, h.docRepo, h.publisher)
	return h
}

func (h *harness) seedDocument(t *testing.T, id string, status model.DocumentStatus) {
	t.Helper()
	require.NoError(t, h.docRepo.Create(context.Background(), &model.Document{
		ID:             id,
		OrganizationID: "org1",
		Name:           id,
		Status:         status,
	}))
}

func (h *harness) newChat(t *testing.T) *model.Chat {
	t.Helper()
	h.seedDocument(t, "doc1", model.DocumentStatusReady)
	chat, err := h.chats.CreateChat(context.Background(), CreateChatInput{
		OrganizationID: "org1",
		DocumentID:     "doc1",
		UserID:         "u1",
	})
	require.NoError(t, err)
	return chat
}

func (h *harness) status(t *testing.T, chatID string) model.ChatStatus {
	t.Helper()
	chat, err := h.chats.GetChat(context.Background(), chatID)
	require.NoError(t, err)
	return chat.Status
}

func newHarnessLogger() *logger.Logger {
	return logger.NewNop()
}
