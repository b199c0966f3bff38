package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"invoicechat/internal/model"
)

// DocumentCache stores document detail snapshots, interactions included.
type DocumentCache struct {
	client         redisv9.UniversalClient
	documentTTL    time.Duration
	dirtyMarkerTTL time.Duration
}

func NewDocumentCache(client redisv9.UniversalClient, documentTTL, dirtyMarkerTTL time.Duration) *DocumentCache {
	if documentTTL <= 0 {
		documentTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &DocumentCache{
		client:         client,
		documentTTL:    documentTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *DocumentCache) GetDocument(ctx context.Context, id string) (*model.Document, bool, error) {
	raw, err := c.client.Get(ctx, documentKey(id)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get document failed: %w", err)
	}

	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached document failed: %w", err)
	}
	return &doc, true, nil
}

// KEYS[1] snapshot, KEYS[2] dirty marker; ARGV[1] payload, ARGV[2] ttl ms.
var fillIfClean = redisv9.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// FillIfClean stores doc unless a chat write has marked it dirty. It reports
// whether the snapshot was written.
func (c *DocumentCache) FillIfClean(ctx context.Context, doc *model.Document) (bool, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("marshal document cache failed: %w", err)
	}
	written, err := fillIfClean.Run(ctx, c.client,
		[]string{documentKey(doc.ID), dirtyKey(doc.ID)},
		payload, c.documentTTL.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis fill document failed: %w", err)
	}
	return written == 1, nil
}

func (c *DocumentCache) DeleteDocument(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, documentKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete document failed: %w", err)
	}
	return nil
}

// MarkDirty blocks refills of id until the marker expires.
func (c *DocumentCache) MarkDirty(ctx context.Context, id string) error {
	if err := c.client.Set(ctx, dirtyKey(id), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *DocumentCache) IsDirty(ctx context.Context, id string) (bool, error) {
	exists, err := c.client.Exists(ctx, dirtyKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func documentKey(id string) string {
	return "document:detail:" + id
}

func dirtyKey(id string) string {
	return "document:detail:dirty:" + id
}
