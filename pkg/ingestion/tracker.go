package ingestion

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DownloadTracker remembers content checksums ingestion has already
// stored so the same document is never stored twice. Keys carry a
// "sha256:" prefix; build them with ChecksumKey.
type DownloadTracker interface {
	// Mark atomically claims key. The first claim returns true; later
	// claims return false until the key expires or is forgotten.
	Mark(ctx context.Context, key string) (bool, error)
	// Forget releases key so a later run can claim it again.
	Forget(ctx context.Context, key string) error
}

// ChecksumKey is the tracker key for a bare hex SHA-256 checksum.
func ChecksumKey(checksum string) string {
	return "sha256:" + checksum
}

// MemoryTracker keeps seen checksums in process memory. A ttl of zero
// means entries never expire.
type MemoryTracker struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	ttl   time.Duration
	clock func() time.Time
}

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	return &MemoryTracker{
		seen:  make(map[string]time.Time),
		ttl:   ttl,
		clock: time.Now,
	}
}

// WithClock overrides the timestamp source. For tests.
func (t *MemoryTracker) WithClock(clock func() time.Time) *MemoryTracker {
	t.clock = clock
	return t
}

// Mark claims key, honoring expiry.
func (t *MemoryTracker) Mark(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	if at, ok := t.seen[key]; ok {
		if t.ttl <= 0 || now.Sub(at) < t.ttl {
			return false, nil
		}
	}
	t.seen[key] = now
	return true, nil
}

// Forget releases key.
func (t *MemoryTracker) Forget(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, key)
	return nil
}

// RedisTracker shares seen checksums across processes through Redis.
// Claims use SET NX so concurrent ingestors agree on the first writer.
type RedisTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisTracker wraps client. A ttl of zero keeps keys forever.
func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	return &RedisTracker{
		client: client,
		prefix: "oficios:downloads:",
		ttl:    ttl,
	}
}

// Mark claims key.
func (t *RedisTracker) Mark(ctx context.Context, key string) (bool, error) {
	return t.client.SetNX(ctx, t.prefix+key, "1", t.ttl).Result()
}

// Forget releases key.
func (t *RedisTracker) Forget(ctx context.Context, key string) error {
	return t.client.Del(ctx, t.prefix+key).Err()
}
