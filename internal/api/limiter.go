package api

import (
	"context"
	"sync"
	"time"

	"prichal/internal/config"
	"prichal/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimiter combines a local token bucket per client with an optional
// fixed-window counter shared by every API instance.
type RateLimiter struct {
	limiters sync.Map
	cfg      *config.APIConfig
	shared   domain.RateCounter
	logger   *zerolog.Logger
}

func NewRateLimiter(cfg *config.APIConfig, shared domain.RateCounter, logger *zerolog.Logger) *RateLimiter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RateLimiter{
		cfg:    cfg,
		shared: shared,
		logger: logger,
	}
}

func (l *RateLimiter) allow(ctx context.Context, key string) bool {
	if l.cfg.RateLimit.RPS > 0 && !l.getLimiter(key).Allow() {
		return false
	}

	rl := l.cfg.RateLimit
	if l.shared == nil || !rl.Shared || rl.SharedLimit <= 0 {
		return true
	}
	window := time.Duration(rl.SharedWindowS) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	allowed, err := l.shared.CheckRateLimit(ctx, "api:"+key, rl.SharedLimit, window)
	if err != nil {
		// Общий счетчик недоступен, остается локальный лимит
		l.logger.Warn().Err(err).Msg("Shared rate limit check failed")
		return true
	}
	return allowed
}

func (l *RateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	burst := l.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(l.cfg.RateLimit.RPS), burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}
