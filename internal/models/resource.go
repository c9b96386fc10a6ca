package models

import "time"

// VesselType определяет правила слотов, вместимости и возвратов.
type VesselType string

const (
	VesselSpeed VesselType = "SPEED"
	VesselParty VesselType = "PARTY"
)

func (t VesselType) Valid() bool {
	return t == VesselSpeed || t == VesselParty
}

type ResourceStatus string

const (
	ResourceActive      ResourceStatus = "ACTIVE"
	ResourceInactive    ResourceStatus = "INACTIVE"
	ResourceMaintenance ResourceStatus = "MAINTENANCE"
)

func (s ResourceStatus) Valid() bool {
	switch s {
	case ResourceActive, ResourceInactive, ResourceMaintenance:
		return true
	}
	return false
}

// Resource is a bookable vessel (a speed boat fleet entry or a party-boat class).
// Zero-valued schedule fields fall back to the vessel type policy.
type Resource struct {
	ID          string          `yaml:"id" toml:"id" json:"id"`
	Name        string          `yaml:"name" toml:"name" json:"name"`
	Description string          `yaml:"description" toml:"description" json:"description,omitempty"`
	Type        VesselType      `yaml:"type" toml:"type" json:"type"`
	Units       int             `yaml:"units" toml:"units" json:"units"` // количество однотипных лодок, для PARTY всегда 1
	CapacityMin int             `yaml:"capacity_min" toml:"capacity_min" json:"capacity_min"`
	CapacityMax int             `yaml:"capacity_max" toml:"capacity_max" json:"capacity_max"`
	HourlyRate  int64           `yaml:"hourly_rate" toml:"hourly_rate" json:"hourly_rate"`
	BasePrice   int64           `yaml:"base_price" toml:"base_price" json:"base_price"`
	Tax         *TaxConfig      `yaml:"tax" toml:"tax" json:"tax,omitempty"`
	Hours       *OperatingHours `yaml:"operating_hours" toml:"operating_hours" json:"operating_hours,omitempty"`
	MinDuration int             `yaml:"min_duration_minutes" toml:"min_duration_minutes" json:"min_duration_minutes,omitempty"`
	MaxDuration int             `yaml:"max_duration_minutes" toml:"max_duration_minutes" json:"max_duration_minutes,omitempty"`
	AdvanceDays int             `yaml:"advance_booking_days" toml:"advance_booking_days" json:"advance_booking_days,omitempty"`
	AddOns      []AddOn         `yaml:"add_ons" toml:"add_ons" json:"add_ons,omitempty"`
	Status      ResourceStatus  `yaml:"status" toml:"status" json:"status"`
	SortOrder   int64           `yaml:"sort_order" toml:"sort_order" json:"sort_order"`
	CreatedAt   time.Time       `yaml:"-" toml:"-" json:"created_at"`
	UpdatedAt   time.Time       `yaml:"-" toml:"-" json:"updated_at"`
}

// Bookable reports whether the resource may appear in availability and accept bookings.
func (r *Resource) Bookable() bool {
	return r.Status == ResourceActive
}

// Capacity returns how many bookable units the resource offers per time range.
func (r *Resource) Capacity() int {
	if r.Type == VesselParty {
		return 1
	}
	if r.Units <= 0 {
		return 1
	}
	return r.Units
}

// FindAddOn returns the catalog add-on with the given id.
func (r *Resource) FindAddOn(id string) (AddOn, bool) {
	for _, a := range r.AddOns {
		if a.ID == id {
			return a, true
		}
	}
	return AddOn{}, false
}

type AddOnPriceType string

const (
	AddOnPerPerson AddOnPriceType = "PER_PERSON"
	AddOnFlat      AddOnPriceType = "FLAT"
)

type AddOn struct {
	ID        string         `yaml:"id" toml:"id" json:"id"`
	Name      string         `yaml:"name" toml:"name" json:"name"`
	PriceType AddOnPriceType `yaml:"price_type" toml:"price_type" json:"price_type"`
	Price     int64          `yaml:"price" toml:"price" json:"price"`
}

// SelectedAddOn is an add-on chosen for a booking together with its priced line.
type SelectedAddOn struct {
	AddOnID   string         `json:"add_on_id"`
	Quantity  int            `json:"quantity"`
	Name      string         `json:"name,omitempty"`
	PriceType AddOnPriceType `json:"price_type,omitempty"`
	UnitPrice int64          `json:"unit_price,omitempty"`
	Total     int64          `json:"total,omitempty"`
}
