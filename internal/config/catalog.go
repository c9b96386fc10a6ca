package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"prichal/internal/models"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"
)

type catalogFile struct {
	Resources []models.Resource `yaml:"resources" toml:"resources"`
}

// LoadCatalog reads the vessel catalog. ".toml" files are decoded as TOML, anything else as YAML.
func LoadCatalog(path string) ([]models.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var catalog catalogFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &catalog); err != nil {
			return nil, fmt.Errorf("parse toml catalog: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			return nil, fmt.Errorf("parse yaml catalog: %w", err)
		}
	}

	for i := range catalog.Resources {
		r := &catalog.Resources[i]
		if r.Status == "" {
			r.Status = models.ResourceActive
		}
		if r.Type == models.VesselParty {
			r.Units = 1
		} else if r.Units == 0 {
			r.Units = 1
		}
	}

	if err := ValidateResources(catalog.Resources); err != nil {
		return nil, err
	}
	return catalog.Resources, nil
}

func ValidateResources(resources []models.Resource) error {
	ids := make(map[string]bool)
	for _, r := range resources {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("resource '%s' has empty ID", r.Name)
		}
		if ids[r.ID] {
			return fmt.Errorf("duplicate resource ID found: %s", r.ID)
		}
		ids[r.ID] = true

		if !r.Type.Valid() {
			return fmt.Errorf("resource %s: invalid type %q", r.ID, r.Type)
		}
		if !r.Status.Valid() {
			return fmt.Errorf("resource %s: invalid status %q", r.ID, r.Status)
		}
		if r.CapacityMax <= 0 || r.CapacityMin < 0 || r.CapacityMin > r.CapacityMax {
			return fmt.Errorf("resource %s: invalid capacity range [%d, %d]", r.ID, r.CapacityMin, r.CapacityMax)
		}
		if r.Units < 1 {
			return fmt.Errorf("resource %s: units must be positive", r.ID)
		}
		if r.MinDuration < 0 || r.MaxDuration < 0 ||
			r.MinDuration%models.DurationStepMinutes != 0 || r.MaxDuration%models.DurationStepMinutes != 0 {
			return fmt.Errorf("resource %s: duration overrides must be multiples of %d minutes", r.ID, models.DurationStepMinutes)
		}
		if r.MinDuration > 0 && r.MaxDuration > 0 && r.MinDuration > r.MaxDuration {
			return fmt.Errorf("resource %s: min_duration_minutes exceeds max_duration_minutes", r.ID)
		}
		if r.HourlyRate < 0 || r.BasePrice < 0 {
			return fmt.Errorf("resource %s: rates must not be negative", r.ID)
		}
		if r.Type == models.VesselSpeed && r.HourlyRate == 0 {
			return fmt.Errorf("resource %s: speed boats need an hourly rate", r.ID)
		}
		if r.Type == models.VesselParty && r.BasePrice == 0 {
			return fmt.Errorf("resource %s: party boats need a base price", r.ID)
		}

		addOns := make(map[string]bool)
		for _, a := range r.AddOns {
			if a.ID == "" || addOns[a.ID] {
				return fmt.Errorf("resource %s: add-on ids must be unique and non-empty", r.ID)
			}
			addOns[a.ID] = true
			if a.PriceType != models.AddOnPerPerson && a.PriceType != models.AddOnFlat {
				return fmt.Errorf("resource %s: add-on %s has unknown price type %q", r.ID, a.ID, a.PriceType)
			}
			if a.Price < 0 {
				return fmt.Errorf("resource %s: add-on %s has negative price", r.ID, a.ID)
			}
		}
	}
	return nil
}
