package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docchat/internal/app"
	"docchat/internal/model"
	"docchat/internal/platform/logger"
	"docchat/internal/platform/rabbitmq"
)

// EventHandler processes one awaiting notification.
type EventHandler interface {
	Handle(ctx context.Context, ev model.AwaitingEvent) error
}

// RetryPublisher parks a failed delivery on the retry queue.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, body []byte, attempt int) error
}

// AwaitingWorker consumes chats.awaiting with a bounded pool. Invalid
// payloads and configuration errors are dead-lettered; infrastructure errors
// go through the retry queue until MaxRedeliveries.
type AwaitingWorker struct {
	log             *logger.Logger
	conn            *amqp.Connection
	topology        rabbitmq.Topology
	handler         EventHandler
	retry           RetryPublisher
	concurrency     int
	maxRedeliveries int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAwaitingWorker(
	log *logger.Logger,
	conn *amqp.Connection,
	topology rabbitmq.Topology,
	handler EventHandler,
	retry RetryPublisher,
	concurrency int,
	maxRedeliveries int,
) *AwaitingWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &AwaitingWorker{
		log:             log.With("service", "AwaitingWorker"),
		conn:            conn,
		topology:        topology,
		handler:         handler,
		retry:           retry,
		concurrency:     concurrency,
		maxRedeliveries: maxRedeliveries,
	}
}

func (w *AwaitingWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := w.topology.Declare(ch); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(w.concurrency, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.topology.Main,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	var consumers sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					w.process(workerCtx, d)
				}
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		consumers.Wait()
		_ = ch.Close()
	}()

	w.log.Info("awaiting worker started", "queue", w.topology.Main, "concurrency", w.concurrency)
	return nil
}

func (w *AwaitingWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *AwaitingWorker) process(ctx context.Context, d amqp.Delivery) {
	var ev model.AwaitingEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil || !ev.Valid() {
		w.log.Error("invalid awaiting event, dead-lettering", "alert", true, "body", string(d.Body), "error", err)
		_ = d.Nack(false, false)
		return
	}

	log := w.log.With("chat_id", ev.ChatID)
	err := w.handler.Handle(ctx, ev)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, app.ErrModelCredential):
		log.Error("configuration error, dead-lettering", "alert", true, "organization_id", ev.OrganizationID, "error", err)
		_ = d.Nack(false, false)
	default:
		w.retryLater(ctx, log, d, err)
	}
}

func (w *AwaitingWorker) retryLater(ctx context.Context, log *logger.Logger, d amqp.Delivery, cause error) {
	attempt := rabbitmq.Attempt(d.Headers) + 1
	if attempt > w.maxRedeliveries {
		log.Error("retries exhausted, dead-lettering", "alert", true, "attempt", attempt, "error", cause)
		_ = d.Nack(false, false)
		return
	}
	if err := w.retry.PublishRetry(ctx, d.Body, attempt); err != nil {
		log.Warn("publish retry failed, requeueing", "error", err)
		_ = d.Nack(false, true)
		return
	}
	log.Warn("event scheduled for retry", "attempt", attempt, "error", cause)
	_ = d.Ack(false)
}
