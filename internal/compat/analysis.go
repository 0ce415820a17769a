// Package compat checks how well a fish species suits the current tank water.
package compat

import (
	"fmt"
	"math"

	"aqua-backend/internal/models"
)

// Severity grades one compared parameter
type Severity string

const (
	SeverityGood    Severity = "good"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

func (s Severity) rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityDanger:
		return 2
	}
	return 0
}

// Result is the verdict for one parameter
type Result struct {
	Parameter string   `json:"parameter"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
}

// Report is the full comparison for one profile
type Report struct {
	Fish    FishProfile `json:"fish"`
	Overall Severity    `json:"overall"`
	Results []Result    `json:"results"`
}

// Conditions describe the tank a profile is compared against. Metrics in
// Missing have never been reported and are not compared.
type Conditions struct {
	Snapshot models.Snapshot
	Water    WaterType
	Missing  map[models.Metric]bool
}

// threshold grades the absolute difference between wanted and current
type threshold struct {
	metric   models.Metric
	label    string
	noun     string
	subject  string
	warn     float64
	danger   float64
	decimals int
	unit     string
	good     string
}

var thresholds = []threshold{
	{metric: models.MetricPH, label: "pH", noun: "pH", subject: "pH", warn: 0.5, danger: 1.0, decimals: 1, good: "pH level is suitable"},
	{metric: models.MetricTemperature, label: "Temperature", noun: "temperature of", subject: "temperature", warn: 3, danger: 5, decimals: 1, unit: "°C", good: "Temperature is suitable"},
	{metric: models.MetricTurbidity, label: "Turbidity", noun: "turbidity of", subject: "turbidity", warn: 5, danger: 10, decimals: 1, unit: "%", good: "Turbidity is suitable"},
	{metric: models.MetricTDS, label: "TDS", noun: "TDS of", subject: "TDS", warn: 50, danger: 100, decimals: 0, unit: " ppm", good: "TDS level is suitable"},
}

// Analyze compares profile against the tank. Results come in a fixed order:
// water type, pH, temperature, turbidity, TDS.
func Analyze(profile FishProfile, cond Conditions) Report {
	results := make([]Result, 0, 1+len(thresholds))
	results = append(results, compareWater(profile, cond.Water))

	for _, th := range thresholds {
		if cond.Missing[th.metric] {
			results = append(results, Result{
				Parameter: th.label,
				Severity:  SeverityWarning,
				Message:   fmt.Sprintf("Current %s data unavailable for comparison.", th.subject),
			})
			continue
		}
		results = append(results, th.compare(profile.name(), profile.Value(th.metric), cond.Snapshot.Value(th.metric)))
	}

	return Report{
		Fish:    profile,
		Overall: Worst(results),
		Results: results,
	}
}

// Worst returns the most severe verdict, good for an empty slice
func Worst(results []Result) Severity {
	worst := SeverityGood
	for _, r := range results {
		if r.Severity.rank() > worst.rank() {
			worst = r.Severity
		}
	}
	return worst
}

func compareWater(profile FishProfile, water WaterType) Result {
	if profile.WaterType == water {
		return Result{Parameter: "Water Type", Severity: SeverityGood, Message: "Water type is suitable"}
	}
	return Result{
		Parameter: "Water Type",
		Severity:  SeverityDanger,
		Message:   fmt.Sprintf("%s requires %s, current pond is %s", profile.name(), profile.WaterType.Label(), water.Label()),
	}
}

func (th threshold) compare(fish string, wanted, current float64) Result {
	diff := math.Abs(wanted - current)
	res := Result{Parameter: th.label, Severity: SeverityGood, Message: th.good}

	var verb, suffix string
	switch {
	case diff > th.danger:
		res.Severity, verb, suffix = SeverityDanger, "requires", "critical mismatch"
	case diff > th.warn:
		res.Severity, verb, suffix = SeverityWarning, "prefers", "consider adjusting"
	default:
		return res
	}

	res.Message = fmt.Sprintf("%s %s %s %s%s, current pond is %s%s (%s)",
		fish, verb, th.noun,
		th.format(wanted), th.unit,
		th.format(current), th.unit,
		suffix)
	return res
}

func (th threshold) format(v float64) string {
	return fmt.Sprintf("%.*f", th.decimals, v)
}
