package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"docchat/internal/app"
	"docchat/internal/model"
	"docchat/internal/pkg/jwtutil"
	"docchat/internal/pkg/secretbox"
	"docchat/internal/platform/logger"
	"docchat/internal/repository"
	"docchat/internal/testutil"
	"docchat/internal/transport/http/handler"
	"docchat/internal/transport/http/middleware"
)

const testSecret = "test-secret"

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.AwaitingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.AwaitingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type apiFixture struct {
	router    *gin.Engine
	publisher *recordingPublisher
	docs      *repository.DocumentRepository
	orgs      *repository.OrganizationRepository
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.OpenTestDB(t)
	log := logger.NewNop()

	box, err := secretbox.New(strings.Repeat("ab", 32))
	require.NoError(t, err)

	f := &apiFixture{
		publisher: &recordingPublisher{},
		docs:      repository.NewDocumentRepository(db),
		orgs:      repository.NewOrganizationRepository(db),
	}
	chats := app.NewChatService(log, repository.NewChatRepository(db), f.docs, f.publisher)
	credentials := app.NewCredentialService(log, f.orgs, box)

	f.router = gin.New()
	v1 := f.router.Group("/api/v1")
	v1.Use(middleware.AuthJWT(testSecret))
	Register(v1,
		handler.NewChatHandler(chats),
		handler.NewConnectionHandler(log, chats, nil, nil),
		handler.NewOrganizationHandler(credentials),
		handler.NewDocumentHandler(nil),
	)
	return f
}

func (f *apiFixture) seedDocument(t *testing.T, org, id string, status model.DocumentStatus) {
	t.Helper()
	require.NoError(t, f.docs.Create(context.Background(), &model.Document{
		ID:             id,
		OrganizationID: org,
		Name:           id,
		Status:         status,
	}))
}

func (f *apiFixture) do(t *testing.T, method, path, user, org string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := jwtutil.GenerateToken(testSecret, user, org, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var parsed map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &parsed)
	return rec, parsed
}

func TestAPIRejectsMissingToken(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.do(t, stdhttp.MethodPost, "/api/v1/chats", "", "", map[string]string{"document_id": "doc1"})
	require.Equal(t, stdhttp.StatusUnauthorized, rec.Code)
}

func TestCreateChatRequiresReadyDocument(t *testing.T) {
	f := newAPIFixture(t)
	f.seedDocument(t, "org1", "doc1", model.DocumentStatusProcessing)

	rec, _ := f.do(t, stdhttp.MethodPost, "/api/v1/chats", "u1", "org1", map[string]string{"document_id": "doc1"})
	require.Equal(t, stdhttp.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, stdhttp.MethodPost, "/api/v1/chats", "u1", "org1", map[string]string{"document_id": "missing"})
	require.Equal(t, stdhttp.StatusNotFound, rec.Code)
}

func TestAppendMessageAcceptsOnceAndQueues(t *testing.T) {
	f := newAPIFixture(t)
	f.seedDocument(t, "org1", "doc1", model.DocumentStatusReady)

	rec, body := f.do(t, stdhttp.MethodPost, "/api/v1/chats", "u1", "org1", map[string]string{"document_id": "doc1"})
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	chatID := body["data"].(map[string]any)["chat_id"].(string)
	require.NotEmpty(t, chatID)

	rec, body = f.do(t, stdhttp.MethodPost, "/api/v1/chats/"+chatID+"/messages", "u1", "org1",
		map[string]string{"content": "what is the refund window?"})
	require.Equal(t, stdhttp.StatusAccepted, rec.Code)
	data := body["data"].(map[string]any)
	require.Equal(t, "awaiting", data["status"])
	require.EqualValues(t, 0, data["index"])

	require.Len(t, f.publisher.events, 1)
	require.Equal(t, model.AwaitingEvent{
		OrganizationID: "org1",
		DocumentID:     "doc1",
		ChatID:         chatID,
		UserID:         "u1",
	}, f.publisher.events[0])

	rec, _ = f.do(t, stdhttp.MethodPost, "/api/v1/chats/"+chatID+"/messages", "u1", "org1",
		map[string]string{"content": "second question"})
	require.Equal(t, stdhttp.StatusConflict, rec.Code)
	require.Len(t, f.publisher.events, 1)
}

func TestChatsOfOtherOrganizationsAreHidden(t *testing.T) {
	f := newAPIFixture(t)
	f.seedDocument(t, "org1", "doc1", model.DocumentStatusReady)

	_, body := f.do(t, stdhttp.MethodPost, "/api/v1/chats", "u1", "org1", map[string]string{"document_id": "doc1"})
	chatID := body["data"].(map[string]any)["chat_id"].(string)

	rec, _ := f.do(t, stdhttp.MethodGet, "/api/v1/chats/"+chatID, "u2", "org2", nil)
	require.Equal(t, stdhttp.StatusNotFound, rec.Code)

	rec, _ = f.do(t, stdhttp.MethodPost, "/api/v1/chats/"+chatID+"/messages", "u2", "org2",
		map[string]string{"content": "hello"})
	require.Equal(t, stdhttp.StatusNotFound, rec.Code)
	require.Empty(t, f.publisher.events)

	rec, body = f.do(t, stdhttp.MethodGet, "/api/v1/documents/doc1/chats", "u1", "org1", nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	require.Len(t, body["data"].([]any), 1)
}

func TestSetCredentialOnlyForOwnOrganization(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.do(t, stdhttp.MethodPut, "/api/v1/organizations/org2/credential", "u1", "org1",
		map[string]string{"api_key": "sk-other"})
	require.Equal(t, stdhttp.StatusForbidden, rec.Code)

	rec, _ = f.do(t, stdhttp.MethodPut, "/api/v1/organizations/org1/credential", "u1", "org1",
		map[string]string{"api_key": "sk-live"})
	require.Equal(t, stdhttp.StatusOK, rec.Code)

	org, err := f.orgs.GetByID(context.Background(), "org1")
	require.NoError(t, err)
	require.NotNil(t, org)
	require.NotEmpty(t, org.SealedModelKey)
	require.NotContains(t, org.SealedModelKey, "sk-live")
}
