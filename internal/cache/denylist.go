package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MinRevocationRetention is the shortest time a revocation is kept, even for
// a token whose refresh window has already closed.
const MinRevocationRetention = time.Minute

// Denylist remembers revoked token ids until retainUntil, the last moment the
// token could still be verified or refreshed.
type Denylist interface {
	Revoke(ctx context.Context, jti string, retainUntil time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type RedisDenylist struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisDenylist keys revocations under the denylist prefix. now may be nil.
func NewRedisDenylist(client *redis.Client, now func() time.Time) *RedisDenylist {
	if now == nil {
		now = time.Now
	}
	return &RedisDenylist{client: client, now: now}
}

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, retainUntil time.Time) error {
	ttl := max(retainUntil.Sub(d.now()), MinRevocationRetention)
	return d.client.Set(ctx, denylistPrefix+jti, 1, ttl).Err()
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, denylistPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type MemoryDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryDenylist keeps revocations in process memory. now may be nil.
func NewMemoryDenylist(now func() time.Time) *MemoryDenylist {
	if now == nil {
		now = time.Now
	}
	return &MemoryDenylist{entries: make(map[string]time.Time), now: now}
}

func (d *MemoryDenylist) Revoke(_ context.Context, jti string, retainUntil time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, exp := range d.entries {
		if !exp.After(now) {
			delete(d.entries, k)
		}
	}
	if floor := now.Add(MinRevocationRetention); retainUntil.Before(floor) {
		retainUntil = floor
	}
	if prev, ok := d.entries[jti]; !ok || retainUntil.After(prev) {
		d.entries[jti] = retainUntil
	}
	return nil
}

func (d *MemoryDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	exp, ok := d.entries[jti]
	return ok && exp.After(d.now()), nil
}
