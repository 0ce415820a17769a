package compat

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"aqua-backend/internal/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// ErrProfileNotFound is returned when no profile matches an id or name
var ErrProfileNotFound = errors.New("fish profile not found")

// FishProfile is the preferred water of one species
type FishProfile struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	WaterType   WaterType `yaml:"water_type" json:"water_type"`
	PH          float64   `yaml:"ph" json:"ph"`
	Temperature float64   `yaml:"temperature" json:"temperature"`
	Turbidity   float64   `yaml:"turbidity" json:"turbidity"`
	TDS         float64   `yaml:"tds" json:"tds"`
}

// Value returns the preferred value for a metric
func (p FishProfile) Value(m models.Metric) float64 {
	switch m {
	case models.MetricPH:
		return p.PH
	case models.MetricTemperature:
		return p.Temperature
	case models.MetricTurbidity:
		return p.Turbidity
	case models.MetricTDS:
		return p.TDS
	}
	return 0
}

func (p FishProfile) name() string {
	if p.Name == "" {
		return "This fish"
	}
	return p.Name
}

// Validate checks a profile supplied by a caller or a catalog file
func (p FishProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("fish name is required")
	}
	if _, err := ParseWaterType(string(p.WaterType)); err != nil {
		return err
	}
	if p.PH < 0 || p.PH > 14 {
		return fmt.Errorf("ph %.1f is out of range", p.PH)
	}
	if p.TDS < 0 || p.Turbidity < 0 {
		return errors.New("tds and turbidity must not be negative")
	}
	return nil
}

type catalogFile struct {
	Fish []FishProfile `yaml:"fish"`
}

// Catalog is a read-only list of fish profiles
type Catalog struct {
	profiles []FishProfile
}

// LoadCatalog reads the catalog at path, or the built-in one when path is empty
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read fish catalog: %w", err)
		}
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog and validates every entry
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode fish catalog: %w", err)
	}

	seen := make(map[string]bool, len(file.Fish))
	for i, p := range file.Fish {
		if p.ID == "" {
			return nil, fmt.Errorf("fish catalog entry %d has no id", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate fish id %q", p.ID)
		}
		seen[p.ID] = true
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("fish %q: %w", p.ID, err)
		}
	}

	return &Catalog{profiles: file.Fish}, nil
}

// List returns every profile in file order
func (c *Catalog) List() []FishProfile {
	return append([]FishProfile(nil), c.profiles...)
}

// Find matches an id exactly or a name case-insensitively
func (c *Catalog) Find(key string) (FishProfile, error) {
	key = strings.TrimSpace(key)
	for _, p := range c.profiles {
		if p.ID == key || strings.EqualFold(p.Name, key) {
			return p, nil
		}
	}
	return FishProfile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, key)
}
