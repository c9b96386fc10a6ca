package service

import (
	"context"
	"fmt"
	"sync"

	"prichal/internal/domain"
	"prichal/internal/models"

	"github.com/rs/zerolog"
)

// ResourceService keeps an in-memory index of the vessel catalog.
type ResourceService struct {
	repo      domain.ResourceRepository
	logger    *zerolog.Logger
	resources []models.Resource
	byID      map[string]models.Resource
	mu        sync.RWMutex
}

func NewResourceService(repo domain.ResourceRepository, logger *zerolog.Logger) *ResourceService {
	return &ResourceService{
		repo:   repo,
		logger: logger,
		byID:   make(map[string]models.Resource),
	}
}

// Sync upserts the catalog file contents and reloads the index.
// Operational status set at runtime is preserved.
func (s *ResourceService) Sync(ctx context.Context, catalog []models.Resource) error {
	if err := s.repo.UpsertResources(ctx, catalog); err != nil {
		return err
	}
	s.logger.Info().Int("count", len(catalog)).Msg("Resource catalog synced")
	return s.Refresh(ctx)
}

func (s *ResourceService) Refresh(ctx context.Context) error {
	resources, err := s.repo.ListResources(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = resources
	s.byID = make(map[string]models.Resource, len(resources))
	for _, r := range resources {
		s.byID[r.ID] = r
	}
	return nil
}

func (s *ResourceService) ListResources(ctx context.Context, includeInactive bool) ([]models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		if includeInactive || r.Bookable() {
			result = append(result, r)
		}
	}
	return result, nil
}

// GetResource returns a bookable resource. Inactive and maintenance resources are reported as not found.
func (s *ResourceService) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok || !r.Bookable() {
		return nil, fmt.Errorf("resource %s: %w", id, domain.ErrNotFound)
	}
	return &r, nil
}

func (s *ResourceService) SetStatus(ctx context.Context, id string, status models.ResourceStatus) error {
	if !status.Valid() {
		return domain.Invalid("status", "unknown resource status %q", status)
	}
	if err := s.repo.UpdateResourceStatus(ctx, id, status); err != nil {
		return err
	}
	s.logger.Info().Str("resource_id", id).Str("status", string(status)).Msg("Resource status changed")
	return s.Refresh(ctx)
}
