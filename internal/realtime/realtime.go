// Package realtime delivers payloads to live client connections over Redis
// pub/sub. Each connection owns one channel; the HTTP process holding the
// client subscribes to it.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	redisv9 "github.com/redis/go-redis/v9"
)

// ErrConnectionGone means nobody is subscribed to the connection channel any
// more, so the client behind it has gone away.
var ErrConnectionGone = errors.New("connection gone")

const (
	EventMessageUpdated = "message.updated"
	EventMessageReset   = "message.reset"
	EventChatStatus     = "chat.status"
)

// Event is the envelope written to the client stream.
type Event struct {
	Type    string `json:"type"`
	ChatID  string `json:"chatId"`
	Index   int    `json:"index,omitempty"`
	Content string `json:"content,omitempty"`
	Status  string `json:"status,omitempty"`
}

func MessageUpdated(chatID string, index int, token string) Event {
	return Event{Type: EventMessageUpdated, ChatID: chatID, Index: index, Content: token}
}

// MessageReset tells clients to drop the tokens received so far for index.
func MessageReset(chatID string, index int) Event {
	return Event{Type: EventMessageReset, ChatID: chatID, Index: index}
}

func ChatStatus(chatID, status string) Event {
	return Event{Type: EventChatStatus, ChatID: chatID, Status: status}
}

type RedisDeliverer struct {
	client *redisv9.Client
	prefix string
}

func NewRedisDeliverer(client *redisv9.Client, prefix string) *RedisDeliverer {
	if prefix == "" {
		prefix = "docchat:conn:"
	}
	return &RedisDeliverer{client: client, prefix: prefix}
}

// Send publishes payload on the connection channel. Zero receivers maps to
// ErrConnectionGone.
func (d *RedisDeliverer) Send(ctx context.Context, connectionID string, payload []byte) error {
	receivers, err := d.client.Publish(ctx, d.channel(connectionID), payload).Result()
	if err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	if receivers == 0 {
		return ErrConnectionGone
	}
	return nil
}

// Subscribe returns a subscription on the connection channel. The caller must
// close it.
func (d *RedisDeliverer) Subscribe(ctx context.Context, connectionID string) (*redisv9.PubSub, error) {
	sub := d.client.Subscribe(ctx, d.channel(connectionID))
	// Wait for the confirmation so a publish right after connect is not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe failed: %w", err)
	}
	return sub, nil
}

func (d *RedisDeliverer) channel(connectionID string) string {
	return d.prefix + connectionID
}

func Encode(ev Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event failed: %w", err)
	}
	return b, nil
}
