package service

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"prichal/internal/database"
	"prichal/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+1800)

// testNow is Monday 2026-10-19 08:00 IST.
var testNow = time.Date(2026, 10, 19, 8, 0, 0, 0, ist)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Location() *time.Location { return ist }

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

func testCatalog() []models.Resource {
	return []models.Resource{
		{
			ID:          "speed-1",
			Name:        "Sea Ray",
			Type:        models.VesselSpeed,
			Units:       1,
			CapacityMin: 1,
			CapacityMax: 6,
			HourlyRate:  2500,
			AddOns: []models.AddOn{
				{ID: "photo", Name: "Photo pack", PriceType: models.AddOnFlat, Price: 500},
				{ID: "snacks", Name: "Snacks", PriceType: models.AddOnPerPerson, Price: 100},
			},
			Status: models.ResourceActive,
		},
		{
			ID:          "speed-fleet",
			Name:        "Jet skis",
			Type:        models.VesselSpeed,
			Units:       3,
			CapacityMin: 1,
			CapacityMax: 2,
			HourlyRate:  1000,
			Status:      models.ResourceActive,
			SortOrder:   1,
		},
		{
			ID:          "party-1",
			Name:        "Party Cruiser",
			Type:        models.VesselParty,
			CapacityMin: 10,
			CapacityMax: 50,
			BasePrice:   50000,
			AddOns: []models.AddOn{
				{ID: "dj", Name: "DJ", PriceType: models.AddOnFlat, Price: 5000},
				{ID: "buffet", Name: "Buffet", PriceType: models.AddOnPerPerson, Price: 300},
			},
			Status:    models.ResourceActive,
			SortOrder: 2,
		},
		{
			ID:        "speed-docked",
			Name:      "Old Yamaha",
			Type:      models.VesselSpeed,
			Units:     1,
			Status:    models.ResourceMaintenance,
			SortOrder: 3,
		},
	}
}

func testSettings() models.Settings {
	return models.Settings{
		Policies: []models.Policy{
			{
				VesselType:           models.VesselSpeed,
				Hours:                models.OperatingHours{Open: "09:00", Close: "18:00"},
				SlotStepMinutes:      30,
				MinDurationMinutes:   60,
				MaxDurationMinutes:   240,
				AdvanceBookingDays:   30,
				Tax:                  models.TaxConfig{Percent: 18, Mode: models.TaxExclusive},
				Cancellation:         models.CancellationPolicy{Unit: models.BandHours, FreeBefore: 24, PartialBefore: 12, PartialPercent: 50},
				Adjustments:          []models.PriceAdjustment{{Label: "Weekend", Weekdays: []string{"sat", "sun"}, Percent: 20}},
				PaymentExpiryMinutes: 15,
				MaxDateModifications: 2,
			},
			{
				VesselType: models.VesselParty,
				Hours:      models.OperatingHours{Open: "10:00", Close: "23:30"},
				PartySlots: []models.PartySlot{
					{Label: "Lunch", Start: "12:00", DurationMinutes: 180},
					{Label: "Sunset", Start: "17:00", DurationMinutes: 180},
					{Label: "Night", Start: "20:30", DurationMinutes: 180},
				},
				AdvanceBookingDays: 90,
				Tax:                models.TaxConfig{Percent: 18, Mode: models.TaxExclusive},
				Cancellation:       models.CancellationPolicy{Unit: models.BandDays, FreeBefore: 7, PartialBefore: 3, PartialPercent: 50},
				InquiryTTLHours:    72,
			},
		},
		Coupons: []models.Coupon{
			{Code: "WELCOME10", DiscountType: models.DiscountPercent, Percent: 10, MaxDiscount: 1000, Active: true},
			{Code: "FLAT500", DiscountType: models.DiscountFixed, Amount: 500, Active: true},
			{Code: "OLD", DiscountType: models.DiscountFixed, Amount: 500, ValidTo: "2025-01-01", Active: true},
			{Code: "VIP", DiscountType: models.DiscountPercent, Percent: 50, Segments: []string{"vip"}, Active: true},
			{Code: "PARTYONLY", DiscountType: models.DiscountFixed, Amount: 1000, VesselTypes: []models.VesselType{models.VesselParty}, Active: true},
			{Code: "PAUSED", DiscountType: models.DiscountFixed, Amount: 100},
			{Code: "OCTOBER", DiscountType: models.DiscountFixed, Amount: 300, ValidFrom: "2026-10-20", ValidTo: "2026-10-31", Active: true},
		},
		ClosedDates: []models.ClosedDate{{Date: "2026-10-25", Reason: "Regatta"}},
	}
}

type testEngine struct {
	db        *database.DB
	clock     *fakeClock
	bus       *mockEventBus
	settings  *SettingsService
	resources *ResourceService
	slots     *AvailabilityService
	pricing   *PricingService
	refunds   *CancellationResolver
	bookings  *BookingService
	inquiries *InquiryService
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "ledger.db"), 5000, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := new(mockEventBus)
	bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil)
	clock := &fakeClock{now: testNow}

	e := &testEngine{db: db, clock: clock, bus: bus}
	e.settings = NewSettingsService(db, nil, bus, time.Minute, &logger)
	_, err = e.settings.Bootstrap(ctx, testSettings())
	require.NoError(t, err)

	e.resources = NewResourceService(db, &logger)
	require.NoError(t, e.resources.Sync(ctx, testCatalog()))

	e.slots = NewAvailabilityService(e.resources, e.settings, db, clock, &logger)
	e.pricing = NewPricingService(e.slots, clock, "INR", &logger)
	e.refunds = NewCancellationResolver(e.settings)
	e.bookings = NewBookingService(db, e.slots, e.pricing, e.refunds, bus, clock, "BK", &logger)
	e.inquiries = NewInquiryService(db, e.slots, e.bookings, bus, clock, "INQ", &logger)
	return e
}

func speedRequest(date, start string) CreateBookingRequest {
	return CreateBookingRequest{
		CustomerName:  "Ravi",
		CustomerPhone: "+919800000000",
		ResourceID:    "speed-1",
		Slot:          SlotSelection{Date: date, StartTime: start, DurationMinutes: 120},
		Quantity:      1,
		Guests:        4,
		PaymentMode:   models.PaymentOnline,
	}
}

func at(date, hhmm string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+hhmm, ist)
	if err != nil {
		panic(err)
	}
	return t
}
