package aggregator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrPatternMismatch = errors.New("payload does not match combined sensor format")
	ErrNoValue         = errors.New("json payload has no value field")
	ErrNotNumeric      = errors.New("payload is not numeric")
	ErrNotFinite       = errors.New("value is not a finite number")
)

const number = `([-+]?(?:\d+(?:\.\d*)?|\.\d+))`

// combinedPattern matches "Temp: 25.0 C, TDS: 100.00 ppm, Turbidity: 5.00 %[, pH: 7.1]".
// Unit suffixes sit outside the capture groups, so captured text is always a bare number.
var combinedPattern = regexp.MustCompile(
	`(?i)Temp:\s*` + number + `\s*°?\s*C\s*,\s*` +
		`TDS:\s*` + number + `\s*ppm\s*,\s*` +
		`Turbidity:\s*` + number + `\s*%` +
		`(?:\s*,\s*pH:\s*` + number + `)?`,
)

// CombinedReading is the result of parsing one combined sensor line
type CombinedReading struct {
	Temperature float64
	TDS         float64
	Turbidity   float64
	PH          float64
	HasPH       bool
}

// ParseCombined extracts readings from the combined ESP32 text format.
func ParseCombined(payload []byte) (CombinedReading, error) {
	m := combinedPattern.FindSubmatch(payload)
	if m == nil {
		return CombinedReading{}, ErrPatternMismatch
	}

	var (
		out CombinedReading
		err error
	)
	if out.Temperature, err = parseFinite(string(m[1])); err != nil {
		return CombinedReading{}, fmt.Errorf("temperature: %w", err)
	}
	if out.TDS, err = parseFinite(string(m[2])); err != nil {
		return CombinedReading{}, fmt.Errorf("tds: %w", err)
	}
	if out.Turbidity, err = parseFinite(string(m[3])); err != nil {
		return CombinedReading{}, fmt.Errorf("turbidity: %w", err)
	}
	if len(m[4]) > 0 {
		if out.PH, err = parseFinite(string(m[4])); err != nil {
			return CombinedReading{}, fmt.Errorf("ph: %w", err)
		}
		out.HasPH = true
	}
	return out, nil
}

// ParseScalar reads a single-metric payload: either {"value": <number>} or a bare number.
// A JSON object without a value field is rejected rather than re-read as a number.
func ParseScalar(payload []byte) (float64, error) {
	trimmed := bytes.TrimSpace(payload)

	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err == nil {
			raw, ok := obj["value"]
			if !ok || string(raw) == "null" {
				return 0, ErrNoValue
			}
			return coerceJSONValue(raw)
		}
	}

	return parseFinite(string(trimmed))
}

// coerceJSONValue accepts a JSON number or a string holding a number
func coerceJSONValue(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return checkFinite(f)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseFinite(strings.TrimSpace(s))
	}

	return 0, ErrNotNumeric
}

func parseFinite(s string) (float64, error) {
	if s == "" {
		return 0, ErrNotNumeric
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, ErrNotFinite
		}
		return 0, ErrNotNumeric
	}
	return checkFinite(f)
}

func checkFinite(f float64) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrNotFinite
	}
	return f, nil
}
