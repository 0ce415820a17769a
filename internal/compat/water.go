package compat

import (
	"fmt"
	"sync"
)

// WaterType is the kind of water a tank holds or a species needs
type WaterType string

const (
	WaterLake  WaterType = "lake"
	WaterOcean WaterType = "ocean"
)

// ParseWaterType accepts lake or ocean
func ParseWaterType(s string) (WaterType, error) {
	switch WaterType(s) {
	case WaterLake, WaterOcean:
		return WaterType(s), nil
	}
	return "", fmt.Errorf("water type must be lake or ocean, got %q", s)
}

// Label is the human name used in comparison messages
func (w WaterType) Label() string {
	if w == WaterLake {
		return "Freshwater"
	}
	return "Saltwater"
}

// WaterSetting holds the tank's configured water type
type WaterSetting struct {
	mu    sync.RWMutex
	water WaterType
}

// NewWaterSetting starts with the given type
func NewWaterSetting(initial WaterType) *WaterSetting {
	return &WaterSetting{water: initial}
}

func (s *WaterSetting) Get() WaterType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.water
}

func (s *WaterSetting) Set(w WaterType) error {
	if _, err := ParseWaterType(string(w)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.water = w
	return nil
}
