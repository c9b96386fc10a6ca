package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"prichal/internal/config"
	"prichal/internal/domain"
	"prichal/internal/events"
	"prichal/internal/models"

	"github.com/rs/zerolog"
)

// SettingsService is the SettingsProvider backed by versioned snapshots in storage.
// Reads go through an in-process snapshot and the shared cache; writes refresh both.
type SettingsService struct {
	repo     domain.SettingsRepository
	cache    domain.SettingsCache
	eventBus domain.EventPublisher
	ttl      time.Duration
	logger   *zerolog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	snapshot *models.Settings
	loadedAt time.Time
}

func NewSettingsService(repo domain.SettingsRepository, cache domain.SettingsCache, eventBus domain.EventPublisher, ttl time.Duration, logger *zerolog.Logger) *SettingsService {
	if ttl <= 0 {
		ttl = time.Duration(models.DefaultSettingsCacheTTL) * time.Second
	}
	return &SettingsService{
		repo:     repo,
		cache:    cache,
		eventBus: eventBus,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Bootstrap stores seed as the first version when storage has none yet.
func (s *SettingsService) Bootstrap(ctx context.Context, seed models.Settings) (*models.Settings, error) {
	latest, err := s.repo.GetLatestSettings(ctx)
	if err == nil {
		s.store(latest)
		return latest, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	s.logger.Info().Msg("No settings stored yet, seeding from config")
	return s.UpdateSettings(ctx, seed, "config")
}

func (s *SettingsService) GetSettings(ctx context.Context) (*models.Settings, error) {
	s.mu.RLock()
	snapshot, loadedAt := s.snapshot, s.loadedAt
	s.mu.RUnlock()

	if snapshot != nil && s.now().Sub(loadedAt) < s.ttl {
		return snapshot, nil
	}
	return s.reload(ctx)
}

// GetPolicy returns the vessel type policy effective on the calendar day of on,
// together with the settings version it came from.
func (s *SettingsService) GetPolicy(ctx context.Context, vesselType models.VesselType, on time.Time) (*models.Policy, int64, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return nil, 0, err
	}
	policy, ok := settings.PolicyFor(vesselType, on)
	if !ok {
		return nil, 0, fmt.Errorf("no %s policy effective on %s: %w", vesselType, on.Format(models.DateLayout), domain.ErrNotFound)
	}
	return &policy, settings.Version, nil
}

// UpdateSettings validates and stores a new settings version.
func (s *SettingsService) UpdateSettings(ctx context.Context, settings models.Settings, updatedBy string) (*models.Settings, error) {
	config.ApplyPolicyDefaults(&settings)
	if err := config.ValidateSettings(&settings); err != nil {
		return nil, domain.Invalid("settings", "%v", err)
	}
	settings.UpdatedBy = updatedBy

	if err := s.repo.SaveSettings(ctx, &settings); err != nil {
		return nil, err
	}

	// Сбрасываем общий кэш, чтобы другие инстансы не держали старую версию
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to invalidate settings cache")
		}
		if err := s.cache.SetSettings(ctx, &settings); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to store settings in cache")
		}
	}
	s.store(&settings)

	s.logger.Info().Int64("version", settings.Version).Str("updated_by", updatedBy).Msg("Settings updated")
	if s.eventBus != nil {
		payload := events.SettingsEventPayload{Version: settings.Version, UpdatedBy: updatedBy}
		if err := s.eventBus.PublishJSON(events.EventSettingsUpdated, payload); err != nil {
			s.logger.Error().Err(err).Str("event_type", events.EventSettingsUpdated).Msg("publish event error")
		}
	}
	return &settings, nil
}

// Invalidate drops the in-process snapshot so the next read goes to the shared cache or storage.
func (s *SettingsService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
}

func (s *SettingsService) reload(ctx context.Context) (*models.Settings, error) {
	if s.cache != nil {
		cached, err := s.cache.GetSettings(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Settings cache read failed, loading from storage")
		} else if cached != nil {
			s.store(cached)
			return cached, nil
		}
	}

	latest, err := s.repo.GetLatestSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.SetSettings(ctx, latest); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to store settings in cache")
		}
	}
	s.store(latest)
	return latest, nil
}

func (s *SettingsService) store(settings *models.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = settings
	s.loadedAt = s.now()
}
