package service

import (
	"context"
	"testing"

	"prichal/internal/domain"
	"prichal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceService(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	bookable, err := e.resources.ListResources(ctx, false)
	require.NoError(t, err)
	assert.Len(t, bookable, 3)

	all, err := e.resources.ListResources(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	r, err := e.resources.GetResource(ctx, "party-1")
	require.NoError(t, err)
	assert.Equal(t, models.VesselParty, r.Type)
	assert.Equal(t, 1, r.Capacity())

	_, err = e.resources.GetResource(ctx, "speed-docked")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	t.Run("SetStatus", func(t *testing.T) {
		require.NoError(t, e.resources.SetStatus(ctx, "speed-fleet", models.ResourceMaintenance))
		_, err := e.resources.GetResource(ctx, "speed-fleet")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = e.bookings.CreateBooking(ctx, CreateBookingRequest{
			CustomerName:  "Ravi",
			CustomerPhone: "+919800000000",
			ResourceID:    "speed-fleet",
			Slot:          SlotSelection{Date: "2026-10-21", StartTime: "10:00"},
			Quantity:      1,
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, e.resources.SetStatus(ctx, "speed-fleet", models.ResourceActive))
		_, err = e.resources.GetResource(ctx, "speed-fleet")
		assert.NoError(t, err)

		assert.ErrorIs(t, e.resources.SetStatus(ctx, "speed-fleet", "SUNK"), domain.ErrValidation)
	})

	t.Run("SyncKeepsRuntimeStatus", func(t *testing.T) {
		require.NoError(t, e.resources.SetStatus(ctx, "speed-1", models.ResourceInactive))
		require.NoError(t, e.resources.Sync(ctx, testCatalog()))

		_, err := e.resources.GetResource(ctx, "speed-1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
