package units

import (
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid kph", KPH, true},
		{"valid mph", MPH, true},
		{"valid mps", MPS, true},
		{"invalid unit", "invalid", false},
		{"empty unit", "", false},
		{"uppercase KPH", "KPH", false}, // Case-sensitive
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.unit); got != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, got, tt.expected)
			}
		})
	}
}

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		name     string
		speedKPH float64
		unit     string
		expected float64
	}{
		{"36 kph to kph", 36, KPH, 36},
		{"36 kph to mps", 36, MPS, 10},
		{"1.609344 kph to mph", 1.609344, MPH, 1},
		{"unknown falls back to kph", 20, "unknown", 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertSpeed(tt.speedKPH, tt.unit)
			if math.Abs(got-tt.expected) > 1e-10 {
				t.Errorf("ConvertSpeed(%f, %s) = %f, want %f", tt.speedKPH, tt.unit, got, tt.expected)
			}
		})
	}
}

func TestFormatPower(t *testing.T) {
	if got := FormatPower(249.6); got != "250w" {
		t.Errorf("FormatPower = %q", got)
	}
	if got := FormatPower(math.NaN()); got != "-" {
		t.Errorf("FormatPower(NaN) = %q", got)
	}
}

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		name  string
		speed float64
		sport string
		unit  string
		want  string
	}{
		{"cycling kph", 36.04, "cycling", KPH, "36.0kph"},
		{"invalid unit", 36, "cycling", "furlongs", "36.0kph"},
		{"running pace", 12, "running", KPH, "5:00/km"},
		{"running pace miles", 12, "running", MPH, "8:03/mi"},
		{"stopped runner", 0, "running", KPH, "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSpeed(tt.speed, tt.sport, tt.unit); got != tt.want {
				t.Errorf("FormatSpeed = %q, want %q", got, tt.want)
			}
		})
	}
}
