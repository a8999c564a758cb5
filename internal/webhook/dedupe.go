package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	platformredis "tunecast/internal/platform/redis"
)

const dedupeTTL = 24 * time.Hour

// Deduper remembers applied delivery IDs so redelivered webhooks become
// no-ops. Checking and marking are separate so a delivery whose application
// fails is not remembered; the platform's retry then gets a clean run.
type Deduper interface {
	// Seen reports whether the delivery was already applied.
	Seen(ctx context.Context, deliveryID string) (bool, error)
	// Mark records the delivery; called only after successful application.
	Mark(ctx context.Context, deliveryID string) error
}

// RedisDeduper shares dedupe state across instances.
type RedisDeduper struct {
	client *platformredis.Client
}

func NewRedisDeduper(client *platformredis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) Seen(ctx context.Context, deliveryID string) (bool, error) {
	n, err := d.client.Exists(ctx, "webhook:seen:"+deliveryID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check webhook dedupe: %w", err)
	}
	return n > 0, nil
}

func (d *RedisDeduper) Mark(ctx context.Context, deliveryID string) error {
	if err := d.client.Set(ctx, "webhook:seen:"+deliveryID, "1", dedupeTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark webhook delivery: %w", err)
	}
	return nil
}

// MemoryDeduper is the single-process fallback when Redis is not configured.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]time.Time)}
}

func (d *MemoryDeduper) Seen(_ context.Context, deliveryID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	at, ok := d.seen[deliveryID]
	if !ok {
		return false, nil
	}
	if time.Since(at) > dedupeTTL {
		delete(d.seen, deliveryID)
		return false, nil
	}
	return true, nil
}

func (d *MemoryDeduper) Mark(_ context.Context, deliveryID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, at := range d.seen {
		if now.Sub(at) > dedupeTTL {
			delete(d.seen, id)
		}
	}
	d.seen[deliveryID] = now
	return nil
}
