package repository

import (
	"context"
	"sync"
	"time"

	"prichal/internal/models"
)

// MemoryCache is the single-instance SharedCache used without Redis and as the failover target.
type MemoryCache struct {
	mu        sync.Mutex
	settings  *models.Settings
	expiresAt time.Time

	rateLimits sync.Map
	ttl        time.Duration
	now        func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl: ttl,
		now: time.Now,
	}
}

func (r *MemoryCache) GetSettings(ctx context.Context) (*models.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settings == nil || (r.ttl > 0 && !r.now().Before(r.expiresAt)) {
		return nil, nil
	}
	return r.settings, nil
}

func (r *MemoryCache) SetSettings(ctx context.Context, settings *models.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = settings
	r.expiresAt = r.now().Add(r.ttl)
	return nil
}

func (r *MemoryCache) Invalidate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = nil
	return nil
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

func (r *MemoryCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now()
	val, _ := r.rateLimits.LoadOrStore(key, &rateLimitEntry{expiresAt: now.Add(window)})
	entry := val.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if now.After(entry.expiresAt) {
		entry.count = 0
		entry.expiresAt = now.Add(window)
	}
	entry.count++
	return entry.count <= limit, nil
}
