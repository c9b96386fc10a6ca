package domain

import (
	"context"
	"time"

	"prichal/internal/models"
)

// Repository is the persistence boundary of the engine. Calls made with a ctx
// returned inside WithLock/InTx run in that transaction.
type Repository interface {
	// WithLock serializes fn against every other commit for the resource on the day
	// and runs it in a single transaction.
	WithLock(ctx context.Context, resourceID string, date string, fn func(ctx context.Context) error) error
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingWithVersion(ctx context.Context, booking *models.Booking) error
	ListActiveBookings(ctx context.Context, resourceID string, date string) ([]models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	ListExpiredPendingBookings(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
	ListFinishedBookings(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
	SoftDeleteBooking(ctx context.Context, id string, at time.Time) error

	CreateInquiry(ctx context.Context, inquiry *models.Inquiry) error
	GetInquiry(ctx context.Context, id string) (*models.Inquiry, error)
	UpdateInquiryWithVersion(ctx context.Context, inquiry *models.Inquiry) error
	ListStaleInquiries(ctx context.Context, createdBefore time.Time, dateBefore string, limit int) ([]models.Inquiry, error)
	SoftDeleteInquiry(ctx context.Context, id string, at time.Time) error

	NextSequence(ctx context.Context, name string) (int64, error)
	GetIdempotencyKey(ctx context.Context, key string) (operation string, entityID string, err error)
	SaveIdempotencyKey(ctx context.Context, key, operation, entityID string) error
	CreateRefundAudit(ctx context.Context, audit *models.RefundAudit) error
}

type ResourceRepository interface {
	UpsertResources(ctx context.Context, resources []models.Resource) error
	ListResources(ctx context.Context) ([]models.Resource, error)
	UpdateResourceStatus(ctx context.Context, id string, status models.ResourceStatus) error
}

type SettingsRepository interface {
	GetLatestSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, settings *models.Settings) error
}

// SettingsCache is a shared snapshot cache in front of SettingsRepository.
// GetSettings returns nil, nil on a miss.
type SettingsCache interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
	SetSettings(ctx context.Context, settings *models.Settings) error
	Invalidate(ctx context.Context) error
}

// RateCounter counts requests per key in a fixed window.
type RateCounter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SharedCache is the state shared between API instances.
type SharedCache interface {
	SettingsCache
	RateCounter
}

// SettingsProvider exposes versioned, effective-dated engine configuration.
type SettingsProvider interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
	GetPolicy(ctx context.Context, vesselType models.VesselType, on time.Time) (*models.Policy, int64, error)
}

type ResourceCatalog interface {
	GetResource(ctx context.Context, id string) (*models.Resource, error)
}

// Clock keeps "now" injectable for windows, bands and expiry.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type NotificationRepository interface {
	CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error
	GetPendingNotificationTasks(ctx context.Context, now time.Time, limit int) ([]models.NotificationTask, error)
	GetFailedNotificationTasks(ctx context.Context) ([]models.NotificationTask, error)
	UpdateNotificationTaskStatus(ctx context.Context, id int64, status, lastError string, nextRetryAt *time.Time) error
}

// Notifier delivers a domain event to the external notification collaborator.
type Notifier interface {
	Notify(ctx context.Context, eventType string, payload []byte) error
}
