package repository

import (
	"context"
	"sync"
	"time"

	"payment-ledger/pkg/redis"
)

// RedisDedup tracks processed webhook event ids in Redis with a TTL covering
// the processor's retry period.
type RedisDedup struct {
	client *redis.Client
}

func NewRedisDedup(client *redis.Client) *RedisDedup {
	return &RedisDedup{client: client}
}

func (d *RedisDedup) MarkProcessed(ctx context.Context, eventID string, window time.Duration) (bool, error) {
	return d.client.SetNX(ctx, "webhook:event:"+eventID, 1, window)
}

func (d *RedisDedup) Unmark(ctx context.Context, eventID string) error {
	return d.client.Delete(ctx, "webhook:event:"+eventID)
}

// MemoryDedup is an in-process dedup store for tests, where a Redis
// round-trip buys nothing.
type MemoryDedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{seen: make(map[string]time.Time)}
}

func (d *MemoryDedup) MarkProcessed(_ context.Context, eventID string, window time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if expiry, ok := d.seen[eventID]; ok && now.Before(expiry) {
		return false, nil
	}
	d.seen[eventID] = now.Add(window)
	return true, nil
}

func (d *MemoryDedup) Unmark(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, eventID)
	return nil
}
