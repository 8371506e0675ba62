package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"docchat/internal/model"
)

type AwaitingPublisher struct {
	conn     *amqp.Connection
	topology Topology
	timeout  time.Duration
}

func NewAwaitingPublisher(conn *amqp.Connection, topology Topology, timeout time.Duration) *AwaitingPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AwaitingPublisher{
		conn:     conn,
		topology: topology,
		timeout:  timeout,
	}
}

func (p *AwaitingPublisher) Publish(ctx context.Context, event model.AwaitingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal awaiting event failed: %w", err)
	}
	return p.publish(ctx, p.topology.Main, payload, nil)
}

// PublishRetry parks body on the retry queue with the given attempt number.
func (p *AwaitingPublisher) PublishRetry(ctx context.Context, body []byte, attempt int) error {
	return p.publish(ctx, p.topology.Retry, body, amqp.Table{AttemptHeader: int32(attempt)})
}

func (p *AwaitingPublisher) publish(ctx context.Context, queue string, body []byte, headers amqp.Table) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := p.topology.Declare(ch); err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := ch.PublishWithContext(
		pubCtx,
		"",
		queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Headers:      headers,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	); err != nil {
		return fmt.Errorf("publish message failed: %w", err)
	}
	return nil
}
