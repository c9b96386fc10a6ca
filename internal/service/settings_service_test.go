package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"prichal/internal/domain"
	"prichal/internal/events"
	"prichal/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSettingsRepo struct {
	mock.Mock
}

func (m *mockSettingsRepo) GetLatestSettings(ctx context.Context) (*models.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Settings), args.Error(1)
}

func (m *mockSettingsRepo) SaveSettings(ctx context.Context, settings *models.Settings) error {
	args := m.Called(ctx, settings)
	settings.Version = 7
	return args.Error(0)
}

type mockSettingsCache struct {
	mock.Mock
}

func (m *mockSettingsCache) GetSettings(ctx context.Context) (*models.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Settings), args.Error(1)
}

func (m *mockSettingsCache) SetSettings(ctx context.Context, settings *models.Settings) error {
	return m.Called(ctx, settings).Error(0)
}

func (m *mockSettingsCache) Invalidate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func newMockedSettings(repo domain.SettingsRepository, cache domain.SettingsCache, bus domain.EventPublisher) (*SettingsService, *time.Time) {
	logger := zerolog.New(io.Discard)
	s := NewSettingsService(repo, cache, bus, time.Minute, &logger)
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestSettingsService_GetSettings_TTL(t *testing.T) {
	ctx := context.Background()
	repo := new(mockSettingsRepo)
	cache := new(mockSettingsCache)
	stored := testSettings()
	stored.Version = 3

	cache.On("GetSettings", ctx).Return(nil, nil)
	cache.On("SetSettings", ctx, &stored).Return(nil)
	repo.On("GetLatestSettings", ctx).Return(&stored, nil).Once()

	s, now := newMockedSettings(repo, cache, nil)

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)

	*now = now.Add(30 * time.Second)
	_, err = s.GetSettings(ctx)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "GetLatestSettings", 1)

	*now = now.Add(time.Minute)
	repo.On("GetLatestSettings", ctx).Return(&stored, nil).Once()
	_, err = s.GetSettings(ctx)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "GetLatestSettings", 2)
	cache.AssertNumberOfCalls(t, "SetSettings", 2)
}

func TestSettingsService_GetSettings_SharedCache(t *testing.T) {
	ctx := context.Background()
	repo := new(mockSettingsRepo)
	cache := new(mockSettingsCache)
	cached := testSettings()
	cached.Version = 5
	cache.On("GetSettings", ctx).Return(&cached, nil)

	s, _ := newMockedSettings(repo, cache, nil)
	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version)
	repo.AssertNotCalled(t, "GetLatestSettings", mock.Anything)
}

func TestSettingsService_GetSettings_CacheFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	repo := new(mockSettingsRepo)
	cache := new(mockSettingsCache)
	stored := testSettings()
	stored.Version = 2

	cache.On("GetSettings", ctx).Return(nil, errors.New("redis down"))
	cache.On("SetSettings", ctx, mock.Anything).Return(errors.New("redis down"))
	repo.On("GetLatestSettings", ctx).Return(&stored, nil)

	s, _ := newMockedSettings(repo, cache, nil)
	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestSettingsService_GetSettings_StorageError(t *testing.T) {
	ctx := context.Background()
	repo := new(mockSettingsRepo)
	repo.On("GetLatestSettings", ctx).Return(nil, domain.ErrTransient)

	s, _ := newMockedSettings(repo, nil, nil)
	_, err := s.GetSettings(ctx)
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestSettingsService_UpdateSettings(t *testing.T) {
	ctx := context.Background()
	repo := new(mockSettingsRepo)
	cache := new(mockSettingsCache)
	bus := new(mockEventBus)

	repo.On("SaveSettings", ctx, mock.AnythingOfType("*models.Settings")).Return(nil)
	cache.On("Invalidate", ctx).Return(nil)
	cache.On("SetSettings", ctx, mock.AnythingOfType("*models.Settings")).Return(nil)
	bus.On("PublishJSON", events.EventSettingsUpdated, events.SettingsEventPayload{Version: 7, UpdatedBy: "ops"}).Return(nil)

	s, _ := newMockedSettings(repo, cache, bus)
	settings := testSettings()
	settings.Coupons[0].Code = " welcome10 "
	updated, err := s.UpdateSettings(ctx, settings, "ops")
	require.NoError(t, err)
	assert.Equal(t, int64(7), updated.Version)
	assert.Equal(t, "ops", updated.UpdatedBy)
	assert.Equal(t, "WELCOME10", updated.Coupons[0].Code)

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Version)

	cache.AssertCalled(t, "Invalidate", ctx)
	bus.AssertExpectations(t)
	repo.AssertNotCalled(t, "GetLatestSettings", mock.Anything)
}

func TestSettingsService_UpdateSettings_Invalid(t *testing.T) {
	ctx := context.Background()
	repo := new(mockSettingsRepo)
	s, _ := newMockedSettings(repo, nil, nil)

	tests := []struct {
		name   string
		modify func(*models.Settings)
	}{
		{"MissingPartyPolicy", func(st *models.Settings) { st.Policies = st.Policies[:1] }},
		{"DuplicateCoupon", func(st *models.Settings) { st.Coupons = append(st.Coupons, models.Coupon{Code: "welcome10", DiscountType: models.DiscountFixed, Amount: 1, Active: true}) }},
		{"BadHours", func(st *models.Settings) { st.Policies[0].Hours = models.OperatingHours{Open: "18:00", Close: "09:00"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testSettings()
			tt.modify(&settings)
			_, err := s.UpdateSettings(ctx, settings, "ops")
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	repo.AssertNotCalled(t, "SaveSettings", mock.Anything, mock.Anything)
}

func TestSettingsService_GetPolicy_EffectiveDated(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	settings := testSettings()
	winter := settings.Policies[0]
	winter.EffectiveFrom = "2026-11-01"
	winter.Hours = models.OperatingHours{Open: "10:00", Close: "17:00"}
	settings.Policies = append(settings.Policies, winter)
	updated, err := e.settings.UpdateSettings(ctx, settings, "ops")
	require.NoError(t, err)

	policy, version, err := e.settings.GetPolicy(ctx, models.VesselSpeed, at("2026-10-31", "12:00"))
	require.NoError(t, err)
	assert.Equal(t, "09:00", policy.Hours.Open)
	assert.Equal(t, updated.Version, version)

	policy, _, err = e.settings.GetPolicy(ctx, models.VesselSpeed, at("2026-11-02", "12:00"))
	require.NoError(t, err)
	assert.Equal(t, "10:00", policy.Hours.Open)

	slots, err := e.slots.GetSlots(ctx, SlotQuery{ResourceID: "speed-1", Date: "2026-11-02", DurationMinutes: 60})
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, "10:00", slots[0].StartTime)
}

func TestSettingsService_Bootstrap(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Повторный запуск не перезаписывает сохраненную версию
	seed := testSettings()
	seed.Coupons = nil
	got, err := e.settings.Bootstrap(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.NotEmpty(t, got.Coupons)
}
