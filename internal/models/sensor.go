package models

import (
	"fmt"
	"time"
)

// Metric identifies one monitored water parameter
type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricPH          Metric = "ph"
	MetricTDS         Metric = "tds"
	MetricTurbidity   Metric = "turbidity"
)

// AllMetrics lists the monitored metrics in display order
var AllMetrics = []Metric{MetricTemperature, MetricPH, MetricTDS, MetricTurbidity}

// ParseMetric converts a metric name into a Metric
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricTemperature, MetricPH, MetricTDS, MetricTurbidity:
		return Metric(s), nil
	case "temp":
		return MetricTemperature, nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// Unit returns the display unit of the metric
func (m Metric) Unit() string {
	switch m {
	case MetricTemperature:
		return "°C"
	case MetricPH:
		return "pH"
	case MetricTDS:
		return "ppm"
	case MetricTurbidity:
		return "%"
	}
	return ""
}

// Snapshot holds the latest known value of each metric.
// Fields that were never observed stay at 0.
type Snapshot struct {
	Temperature float64   `json:"temperature"`
	PH          float64   `json:"ph"`
	TDS         float64   `json:"tds"`
	Turbidity   float64   `json:"turbidity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Value returns the snapshot field for the metric
func (s Snapshot) Value(m Metric) float64 {
	switch m {
	case MetricTemperature:
		return s.Temperature
	case MetricPH:
		return s.PH
	case MetricTDS:
		return s.TDS
	case MetricTurbidity:
		return s.Turbidity
	}
	return 0
}

// With returns a copy of the snapshot with one field replaced
func (s Snapshot) With(m Metric, v float64) Snapshot {
	switch m {
	case MetricTemperature:
		s.Temperature = v
	case MetricPH:
		s.PH = v
	case MetricTDS:
		s.TDS = v
	case MetricTurbidity:
		s.Turbidity = v
	}
	return s
}

// HistoryPoint is one charted sample, timestamp in epoch milliseconds
type HistoryPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// Reading is a single accepted sensor value
type Reading struct {
	Metric    Metric    `json:"metric"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Topic     string    `json:"topic"`
}

// Point converts the reading into a history point
func (r Reading) Point() HistoryPoint {
	return HistoryPoint{Timestamp: r.Timestamp.UnixMilli(), Value: r.Value}
}
