package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"docchat/internal/model"
	"docchat/internal/platform/logger"
	"docchat/internal/realtime"
)

// Registry is the part of the connection registry the orchestrator uses.
type Registry interface {
	ListConnected(ctx context.Context, userID string) ([]model.Connection, error)
	Send(ctx context.Context, connectionID string, payload []byte) error
}

type OrchestratorOptions struct {
	MaxAttempts       int
	RetryBackoff      time.Duration
	InvocationTimeout time.Duration
}

// Orchestrator runs one awaiting chat through retrieval and generation and
// streams the answer to the user's live connections.
type Orchestrator struct {
	log         *logger.Logger
	credentials CredentialStore
	chats       *ChatService
	registry    Registry
	engine      Answerer
	opts        OrchestratorOptions
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(
	log *logger.Logger,
	credentials CredentialStore,
	chats *ChatService,
	registry Registry,
	engine Answerer,
	opts OrchestratorOptions,
) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InvocationTimeout <= 0 {
		opts.InvocationTimeout = 5 * time.Minute
	}
	return &Orchestrator{
		log:         log.With("service", "Orchestrator"),
		credentials: credentials,
		chats:       chats,
		registry:    registry,
		engine:      engine,
		opts:        opts,
		sleep:       sleepCtx,
	}
}

// Handle processes one notification. A nil return means the event is done
// with, including stale and duplicate events. ErrModelCredential must not be
// retried; any other error happened before the chat was claimed and may be.
func (o *Orchestrator) Handle(ctx context.Context, ev model.AwaitingEvent) error {
	ctx, cancel := context.WithTimeout(ctx, o.opts.InvocationTimeout)
	defer cancel()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "Orchestrator.Handle")
	defer span.End()
	span.SetAttributes(attribute.String("chat.id", ev.ChatID), attribute.String("organization.id", ev.OrganizationID))

	log := o.log.With("chat_id", ev.ChatID, "organization_id", ev.OrganizationID)

	credential, credErr := o.credentials.GetModelCredential(ctx, ev.OrganizationID)
	if credErr != nil && !errors.Is(credErr, ErrModelCredential) {
		return fmt.Errorf("resolve model credential failed: %w", credErr)
	}

	chat, err := o.chats.GetChat(ctx, ev.ChatID)
	if errors.Is(err, ErrChatNotFound) {
		log.Info("chat not found, dropping event")
		return nil
	}
	if err != nil {
		return err
	}
	if chat.Status != model.ChatStatusAwaiting {
		log.Info("chat not awaiting, dropping event", "status", chat.Status)
		return nil
	}
	if err := o.chats.BeginProcessing(ctx, chat.ID); err != nil {
		if errors.Is(err, ErrStaleEvent) {
			log.Info("chat already claimed, dropping event")
			return nil
		}
		return err
	}

	if credErr != nil {
		log.Error("model credential missing", "alert", true, "error", credErr)
		o.fail(ctx, log, chat.ID, nil, credErr)
		span.SetStatus(codes.Error, "missing credential")
		return credErr
	}

	if len(chat.Messages) == 0 {
		o.fail(ctx, log, chat.ID, nil, ErrMessageEmpty)
		return nil
	}

	conns, err := o.registry.ListConnected(ctx, ev.UserID)
	if err != nil {
		log.Warn("list connections failed, answering without streaming", "error", err)
	}
	out := newFanout(o.registry, log, conns)

	history := chat.Messages[:len(chat.Messages)-1]
	query := chat.Messages[len(chat.Messages)-1].Content
	index := len(chat.Messages)

	answer, err := o.answerWithRetry(ctx, log, AnswerInput{
		OrganizationID: ev.OrganizationID,
		DocumentID:     ev.DocumentID,
		Query:          query,
		History:        history,
		Credential:     credential,
	}, func(token string) error {
		out.broadcast(ctx, realtime.MessageUpdated(chat.ID, index, token))
		return nil
	}, func() {
		out.broadcast(ctx, realtime.MessageReset(chat.ID, index))
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "answer failed")
		o.fail(ctx, log, chat.ID, out, err)
		return nil
	}

	if _, err := o.chats.CompleteProcessing(ctx, chat.ID, []model.ChatMessage{{
		Role:      model.MessageRoleAssistant,
		Content:   answer.Text,
		Resources: answer.Citations,
	}}); err != nil {
		log.Error("complete processing failed", "error", err)
		o.fail(ctx, log, chat.ID, out, err)
		return nil
	}
	out.broadcast(ctx, realtime.ChatStatus(chat.ID, string(model.ChatStatusIdle)))
	log.Info("chat processed", "citations", len(answer.Citations), "connections", out.size())
	return nil
}

// answerWithRetry calls onReset after every failed attempt that already
// streamed tokens, so clients discard the partial answer before the next
// attempt streams it again.
func (o *Orchestrator) answerWithRetry(
	ctx context.Context,
	log *logger.Logger,
	in AnswerInput,
	onToken func(string) error,
	onReset func(),
) (*Answer, error) {
	var lastErr error
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		streamed := false
		answer, err := o.engine.Answer(ctx, in, func(token string) error {
			streamed = true
			return onToken(token)
		})
		if err == nil {
			return answer, nil
		}
		lastErr = err
		if streamed {
			onReset()
		}
		if !retryable(err) || attempt == o.opts.MaxAttempts {
			break
		}
		log.Warn("answer failed, retrying", "attempt", attempt, "streamed", streamed, "error", err)
		if err := o.sleep(ctx, o.opts.RetryBackoff*time.Duration(attempt)); err != nil {
			break
		}
	}
	return nil, lastErr
}

// fail moves the chat to failed on a context that survives the invocation
// deadline, then tells the connections.
func (o *Orchestrator) fail(ctx context.Context, log *logger.Logger, chatID string, out *fanout, cause error) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.chats.FailProcessing(failCtx, chatID, cause.Error()); err != nil {
		log.Error("fail processing failed", "alert", true, "error", err)
		return
	}
	if out != nil {
		out.broadcast(failCtx, realtime.ChatStatus(chatID, string(model.ChatStatusFailed)))
	}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrModelCredential),
		errors.Is(err, ErrDocumentNotIndexed),
		errors.Is(err, ErrMessageEmpty),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fanout sends every event to all live connections concurrently. A connection
// reported gone is dropped for the rest of the invocation.
type fanout struct {
	registry Registry
	log      *logger.Logger

	mu    sync.Mutex
	conns []string
}

func newFanout(registry Registry, log *logger.Logger, conns []model.Connection) *fanout {
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID)
	}
	return &fanout{registry: registry, log: log, conns: ids}
}

func (f *fanout) broadcast(ctx context.Context, ev realtime.Event) {
	payload, err := realtime.Encode(ev)
	if err != nil {
		f.log.Error("encode event failed", "error", err)
		return
	}

	f.mu.Lock()
	targets := append([]string(nil), f.conns...)
	f.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	var (
		g    errgroup.Group
		gmu  sync.Mutex
		gone = make(map[string]struct{})
	)
	for _, id := range targets {
		id := id
		g.Go(func() error {
			err := f.registry.Send(ctx, id, payload)
			switch {
			case err == nil:
			case errors.Is(err, ErrConnectionGone):
				gmu.Lock()
				gone[id] = struct{}{}
				gmu.Unlock()
			default:
				f.log.Warn("deliver event failed", "connection_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(gone) == 0 {
		return
	}
	f.mu.Lock()
	kept := f.conns[:0]
	for _, id := range f.conns {
		if _, ok := gone[id]; !ok {
			kept = append(kept, id)
		}
	}
	f.conns = kept
	f.mu.Unlock()
}

func (f *fanout) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}
