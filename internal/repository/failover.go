package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"prichal/internal/domain"
	"prichal/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverCache serves from primary and switches to fallback while primary is failing.
// Primary is retried once per recoveryInterval.
type FailoverCache struct {
	primary  domain.SharedCache
	fallback domain.SharedCache
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverCache(primary, fallback domain.SharedCache, logger *zerolog.Logger) *FailoverCache {
	return &FailoverCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the call should go to primary, allowing one recovery attempt per interval.
func (r *FailoverCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverCache) primaryFailed(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary cache failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverCache) primaryOK() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary cache recovered")
	}
}

func (r *FailoverCache) GetSettings(ctx context.Context) (*models.Settings, error) {
	if r.usePrimary() {
		settings, err := r.primary.GetSettings(ctx)
		if err == nil {
			r.primaryOK()
			return settings, nil
		}
		r.primaryFailed(err)
	}
	return r.fallback.GetSettings(ctx)
}

func (r *FailoverCache) SetSettings(ctx context.Context, settings *models.Settings) error {
	// Резервная копия всегда актуальна, чтобы переключение не отдавало старую версию
	if err := r.fallback.SetSettings(ctx, settings); err != nil {
		return err
	}
	if r.usePrimary() {
		err := r.primary.SetSettings(ctx, settings)
		if err == nil {
			r.primaryOK()
			return nil
		}
		r.primaryFailed(err)
	}
	return nil
}

func (r *FailoverCache) Invalidate(ctx context.Context) error {
	if err := r.fallback.Invalidate(ctx); err != nil {
		return err
	}
	if r.usePrimary() {
		err := r.primary.Invalidate(ctx)
		if err == nil {
			r.primaryOK()
			return nil
		}
		r.primaryFailed(err)
	}
	return nil
}

func (r *FailoverCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.primaryOK()
			return allowed, nil
		}
		r.primaryFailed(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
