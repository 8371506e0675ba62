package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"docchat/internal/model"
)

func TestCreateChatRequiresReadyDocument(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedDocument(t, "pending", model.DocumentStatusProcessing)

	_, err := h.chats.CreateChat(ctx, CreateChatInput{OrganizationID: "org1", DocumentID: "pending", UserID: "u1"})
	require.ErrorIs(t, err, ErrDocumentNotReady)

	_, err = h.chats.CreateChat(ctx, CreateChatInput{OrganizationID: "org1", DocumentID: "missing", UserID: "u1"})
	require.ErrorIs(t, err, ErrDocumentNotFound)

	chat := h.newChat(t)
	require.Equal(t, model.ChatStatusIdle, chat.Status)
	require.Empty(t, chat.Messages)
	require.Equal(t, "u1", chat.CreatedBy)
}

func TestAppendUserMessageEmitsOneNotification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	chat := h.newChat(t)

	updated, err := h.chats.AppendUserMessage(ctx, chat.ID, "What is the refund policy?", "u1")
	require.NoError(t, err)
	require.Equal(t, model.ChatStatusAwaiting, updated.Status)
	require.Len(t, updated.Messages, 1)
	require.Equal(t, model.MessageRoleUser, updated.Messages[0].Role)

	require.Equal(t, 1, h.publisher.count())
	require.Equal(t, model.AwaitingEvent{
		OrganizationID: "org1",
		DocumentID:     "doc1",
		ChatID:         chat.ID,
		UserID:         "u1",
	}, h.publisher.events[0])
}

func TestAppendUserMessageRejectsBusyChat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	chat := h.newChat(t)

	_, err := h.chats.AppendUserMessage(ctx, chat.ID, "first", "u1")
	require.NoError(t, err)
	_, err = h.chats.AppendUserMessage(ctx, chat.ID, "second", "u2")
	require.ErrorIs(t, err, ErrChatBusy)

	require.NoError(t, h.chats.BeginProcessing(ctx, chat.ID))
	_, err = h.chats.AppendUserMessage(ctx, chat.ID, "third", "u2")
	require.ErrorIs(t, err, ErrChatBusy)

	got, err := h.chats.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	require.Equal(t, 1, h.publisher.count())
}

func TestAppendUserMessageValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	chat := h.newChat(t)

	_, err := h.chats.AppendUserMessage(ctx, "missing", "hi", "u1")
	require.ErrorIs(t, err, ErrChatNotFound)
	_, err = h.chats.AppendUserMessage(ctx, chat.ID, "   ", "u1")
	require.ErrorIs(t, err, ErrMessageEmpty)
	require.Zero(t, h.publisher.count())
}

func TestAppendUserMessageSurvivesPublishFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	chat := h.newChat(t)
	h.publisher.err = errors.New("broker down")

	updated, err := h.chats.AppendUserMessage(ctx, chat.ID, "hi", "u1")
	require.NoError(t, err)
	require.Equal(t, model.ChatStatusAwaiting, updated.Status)
}

func TestStatusCycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	chat := h.newChat(t)

	_, err := h.chats.AppendUserMessage(ctx, chat.ID, "q1", "u1")
	require.NoError(t, err)

	require.NoError(t, h.chats.BeginProcessing(ctx, chat.ID))
	require.ErrorIs(t, h.chats.BeginProcessing(ctx, chat.ID), ErrStaleEvent)
	require.Equal(t, model.ChatStatusProcessing, h.status(t, chat.ID))

	done, err := h.chats.CompleteProcessing(ctx, chat.ID, []model.ChatMessage{{
		Role:      model.MessageRoleAssistant,
		Content:   "a1",
		Resources: []string{"r1"},
	}})
	require.NoError(t, err)
	require.Equal(t, model.ChatStatusIdle, done.Status)
	require.Len(t, done.Messages, 2)
	require.Equal(t, 1, done.Messages[1].Seq)

	_, err = h.chats.CompleteProcessing(ctx, chat.ID, nil)
	require.ErrorIs(t, err, ErrStaleEvent)
	require.ErrorIs(t, h.chats.BeginProcessing(ctx, chat.ID), ErrStaleEvent)
}

func TestFailedChatAcceptsNewMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	chat := h.newChat(t)

	_, err := h.chats.AppendUserMessage(ctx, chat.ID, "q1", "u1")
	require.NoError(t, err)
	require.ErrorIs(t, h.chats.FailProcessing(ctx, chat.ID, "boom"), ErrStaleEvent, "only a processing chat can fail")

	require.NoError(t, h.chats.BeginProcessing(ctx, chat.ID))
	require.NoError(t, h.chats.FailProcessing(ctx, chat.ID, "boom"))

	got, err := h.chats.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, model.ChatStatusFailed, got.Status)
	require.Equal(t, "boom", got.StatusMessage)

	updated, err := h.chats.AppendUserMessage(ctx, chat.ID, "q2", "u1")
	require.NoError(t, err)
	require.Equal(t, model.ChatStatusAwaiting, updated.Status)
	require.Empty(t, updated.StatusMessage)
}

func TestFailProcessingKeepsReasonValidUTF8(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	chat := h.newChat(t)

	_, err := h.chats.AppendUserMessage(ctx, chat.ID, "q", "u1")
	require.NoError(t, err)
	require.NoError(t, h.chats.BeginProcessing(ctx, chat.ID))

	reason := strings.Repeat("a", 499) + strings.Repeat("é", 10)
	require.NoError(t, h.chats.FailProcessing(ctx, chat.ID, reason))

	got, err := h.chats.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, model.ChatStatusFailed, got.Status)
	require.True(t, utf8.ValidString(got.StatusMessage))
	require.Equal(t, strings.Repeat("a", 499), got.StatusMessage)
}

func TestTruncateUTF8(t *testing.T) {
	require.Equal(t, "abc", truncateUTF8("abc", 5))
	require.Equal(t, "ab", truncateUTF8("abc", 2))
	require.Equal(t, "a", truncateUTF8("aé", 2))
	require.Equal(t, "aé", truncateUTF8("aéb", 3))
	require.Equal(t, "", truncateUTF8("日本", 2))
}

func TestParticipantIDsMatchMessageAuthors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	chat := h.newChat(t)

	authors := []string{"u1", "u2", "u1", "u3"}
	for _, author := range authors {
		_, err := h.chats.AppendUserMessage(ctx, chat.ID, "question from "+author, author)
		require.NoError(t, err)
		require.NoError(t, h.chats.BeginProcessing(ctx, chat.ID))
		_, err = h.chats.CompleteProcessing(ctx, chat.ID, []model.ChatMessage{{Role: model.MessageRoleAssistant, Content: "ok"}})
		require.NoError(t, err)
	}

	got, err := h.chats.GetChat(ctx, chat.ID)
	require.NoError(t, err)

	want := map[string]struct{}{}
	for _, m := range got.Messages {
		if m.UserID != "" {
			want[m.UserID] = struct{}{}
		}
	}
	gotIDs := append([]string(nil), got.ParticipantIDs...)
	sort.Strings(gotIDs)
	wantIDs := make([]string, 0, len(want))
	for id := range want {
		wantIDs = append(wantIDs, id)
	}
	sort.Strings(wantIDs)
	require.Equal(t, wantIDs, gotIDs)
	require.Len(t, got.Messages, 8)
}

func TestSweeperOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedDocument(t, "doc1", model.DocumentStatusReady)

	newChat := func() *model.Chat {
		chat, err := h.chats.CreateChat(ctx, CreateChatInput{OrganizationID: "org1", DocumentID: "doc1", UserID: "u1"})
		require.NoError(t, err)
		_, err = h.chats.AppendUserMessage(ctx, chat.ID, "q", "u2")
		require.NoError(t, err)
		return chat
	}
	stuck := newChat()
	waiting := newChat()
	fresh := newChat()
	require.NoError(t, h.chats.BeginProcessing(ctx, stuck.ID))

	old := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, h.db.Model(&model.Chat{}).
		Where("id IN ?", []string{stuck.ID, waiting.ID}).
		UpdateColumn("updated_at", old).Error)
	before := h.publisher.count()

	expired, err := h.chats.ExpireProcessing(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, expired)
	require.Equal(t, model.ChatStatusFailed, h.status(t, stuck.ID))

	published, err := h.chats.RepublishAwaiting(ctx, 2*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, published)
	require.Equal(t, before+1, h.publisher.count())
	last := h.publisher.events[len(h.publisher.events)-1]
	require.Equal(t, waiting.ID, last.ChatID)
	require.Equal(t, "u2", last.UserID)
	require.Equal(t, model.ChatStatusAwaiting, h.status(t, fresh.ID))

	published, err = h.chats.RepublishAwaiting(ctx, 2*time.Minute)
	require.NoError(t, err)
	require.Zero(t, published, "republished chat has a fresh updated_at")
}

func TestRequeueFailedChat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	chat := h.newChat(t)
	_, err := h.chats.AppendUserMessage(ctx, chat.ID, "q", "u1")
	require.NoError(t, err)
	require.NoError(t, h.chats.BeginProcessing(ctx, chat.ID))
	require.ErrorIs(t, h.chats.Requeue(ctx, chat.ID), ErrChatBusy)
	require.NoError(t, h.chats.FailProcessing(ctx, chat.ID, "x"))

	require.NoError(t, h.chats.Requeue(ctx, chat.ID))
	require.Equal(t, model.ChatStatusAwaiting, h.status(t, chat.ID))
	require.Equal(t, 2, h.publisher.count())
}
