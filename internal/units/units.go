// Package units converts and formats the athlete metrics shown in map pins.
package units

import (
	"fmt"
	"math"
)

// Unit constants
const (
	KPH = "kph"
	MPH = "mph"
	MPS = "mps"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{KPH, MPH, MPS}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ConvertSpeed converts a speed from kilometres per hour, as reported in
// athlete states, to the target units.
func ConvertSpeed(speedKPH float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedKPH / 1.609344
	case MPS:
		return speedKPH / 3.6
	default:
		return speedKPH
	}
}

// FormatPower renders watts rounded to the nearest whole watt.
func FormatPower(watts float64) string {
	if math.IsNaN(watts) || watts < 0 {
		return "-"
	}
	return fmt.Sprintf("%.0fw", watts)
}

// FormatSpeed renders a speed for the given sport. Running is shown as pace.
func FormatSpeed(speedKPH float64, sport, targetUnits string) string {
	if math.IsNaN(speedKPH) || speedKPH < 0 {
		return "-"
	}
	if sport == "running" {
		return FormatPace(speedKPH, targetUnits)
	}
	if !IsValid(targetUnits) {
		targetUnits = KPH
	}
	return fmt.Sprintf("%.1f%s", ConvertSpeed(speedKPH, targetUnits), targetUnits)
}

// FormatPace renders minutes per kilometre (or per mile for MPH).
func FormatPace(speedKPH float64, targetUnits string) string {
	if speedKPH <= 0 {
		return "-"
	}
	dist, suffix := 1.0, "/km"
	if targetUnits == MPH {
		dist, suffix = 1.609344, "/mi"
	}
	secs := math.Round(dist / speedKPH * 3600)
	return fmt.Sprintf("%d:%02d%s", int(secs)/60, int(secs)%60, suffix)
}
