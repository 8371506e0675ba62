package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// SummaryCache keeps the joined per-file summaries of a document so the query
// path does not hit the database on every turn. An empty string is cached too,
// meaning the document has no summary yet.
type SummaryCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewSummaryCache(client *redisv9.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SummaryCache{client: client, ttl: ttl}
}

func (c *SummaryCache) Get(ctx context.Context, documentID string) (string, bool, error) {
	raw, err := c.client.Get(ctx, summaryKey(documentID)).Result()
	if errors.Is(err, redisv9.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get summary failed: %w", err)
	}
	return raw, true, nil
}

func (c *SummaryCache) Set(ctx context.Context, documentID, summary string) error {
	if err := c.client.Set(ctx, summaryKey(documentID), summary, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set summary failed: %w", err)
	}
	return nil
}

func (c *SummaryCache) Delete(ctx context.Context, documentID string) error {
	if err := c.client.Del(ctx, summaryKey(documentID)).Err(); err != nil {
		return fmt.Errorf("redis delete summary failed: %w", err)
	}
	return nil
}

func summaryKey(documentID string) string {
	return fmt.Sprintf("docchat:document:summary:%s", documentID)
}
