package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical map defaults file.
const DefaultConfigPath = "config/map.defaults.json"

// MapConfig is the startup configuration for a map viewport. Nil fields
// fall back to defaults.
type MapConfig struct {
	// View
	Zoom              *float64 `json:"zoom,omitempty"`
	ZoomMin           *float64 `json:"zoom_min,omitempty"`
	ZoomMax           *float64 `json:"zoom_max,omitempty"`
	AutoHeading       *bool    `json:"auto_heading,omitempty"`
	AutoCenter        *bool    `json:"auto_center,omitempty"`
	Style             *string  `json:"style,omitempty"` // "default" or "neon"
	Opacity           *float64 `json:"opacity,omitempty"`
	TiltShift         *float64 `json:"tilt_shift,omitempty"`
	MaxTiltShiftAngle *float64 `json:"max_tilt_shift_angle,omitempty"`
	Sparkle           *bool    `json:"sparkle,omitempty"`
	VerticalOffset    *float64 `json:"vertical_offset,omitempty"`
	ZoomPriorityTilt  *bool    `json:"zoom_priority_tilt,omitempty"`
	PreferRoute       *bool    `json:"prefer_route,omitempty"`

	// Rendering budget
	Quality     *float64 `json:"quality,omitempty"`
	FPSLimit    *int     `json:"fps_limit,omitempty"`
	RefreshRate *int     `json:"refresh_rate,omitempty"` // display ticks per second

	// Timing
	MapTransition *string `json:"map_transition,omitempty"` // duration string like "500ms"
	WheelGrace    *string `json:"wheel_grace,omitempty"`
	GCInterval    *string `json:"gc_interval,omitempty"`
	StaleAfter    *string `json:"stale_after,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyMapConfig returns a MapConfig with all fields set to nil.
func EmptyMapConfig() *MapConfig {
	return &MapConfig{}
}

// DefaultMapConfig returns a MapConfig with every field populated with the
// built-in default.
func DefaultMapConfig() *MapConfig {
	return &MapConfig{
		Zoom:              ptrFloat64(1),
		ZoomMin:           ptrFloat64(0.25),
		ZoomMax:           ptrFloat64(10),
		AutoHeading:       ptrBool(true),
		AutoCenter:        ptrBool(true),
		Style:             ptrString("default"),
		Opacity:           ptrFloat64(1),
		TiltShift:         ptrFloat64(0),
		MaxTiltShiftAngle: ptrFloat64(65),
		Sparkle:           ptrBool(false),
		VerticalOffset:    ptrFloat64(0),
		ZoomPriorityTilt:  ptrBool(true),
		PreferRoute:       ptrBool(false),
		Quality:           ptrFloat64(1),
		FPSLimit:          ptrInt(30),
		RefreshRate:       ptrInt(60),
		MapTransition:     ptrString("500ms"),
		WheelGrace:        ptrString("100ms"),
		GCInterval:        ptrString("10s"),
		StaleAfter:        ptrString("15s"),
	}
}

// LoadMapConfig loads a MapConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults through the Get* accessors.
func LoadMapConfig(path string) (*MapConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyMapConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded; intended for test setup.
func MustLoadDefaultConfig() *MapConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/scene/plotraster/
	}
	for _, path := range candidates {
		if cfg, err := LoadMapConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *MapConfig) Validate() error {
	zmin, zmax := c.GetZoomMin(), c.GetZoomMax()
	if zmin <= 0 {
		return fmt.Errorf("zoom_min must be positive, got %f", zmin)
	}
	if zmax < zmin {
		return fmt.Errorf("zoom_max (%f) must be >= zoom_min (%f)", zmax, zmin)
	}

	if c.Quality != nil && (*c.Quality < 0 || *c.Quality > 1) {
		return fmt.Errorf("quality must be between 0 and 1, got %f", *c.Quality)
	}
	if c.TiltShift != nil && (*c.TiltShift < 0 || *c.TiltShift > 1) {
		return fmt.Errorf("tilt_shift must be between 0 and 1, got %f", *c.TiltShift)
	}
	if c.FPSLimit != nil && *c.FPSLimit <= 0 {
		return fmt.Errorf("fps_limit must be positive, got %d", *c.FPSLimit)
	}
	if c.RefreshRate != nil && *c.RefreshRate <= 0 {
		return fmt.Errorf("refresh_rate must be positive, got %d", *c.RefreshRate)
	}
	if c.Style != nil {
		switch *c.Style {
		case "default", "neon":
		default:
			return fmt.Errorf("unknown style %q", *c.Style)
		}
	}

	for name, v := range map[string]*string{
		"map_transition": c.MapTransition,
		"wheel_grace":    c.WheelGrace,
		"gc_interval":    c.GCInterval,
		"stale_after":    c.StaleAfter,
	} {
		if v == nil || *v == "" {
			continue
		}
		if _, err := time.ParseDuration(*v); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
	}

	return nil
}

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func getFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func getBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// GetZoom returns the initial zoom or the default.
func (c *MapConfig) GetZoom() float64 { return getFloat(c.Zoom, 1) }

// GetZoomMin returns the minimum zoom or the default.
func (c *MapConfig) GetZoomMin() float64 { return getFloat(c.ZoomMin, 0.25) }

// GetZoomMax returns the maximum zoom or the default.
func (c *MapConfig) GetZoomMax() float64 { return getFloat(c.ZoomMax, 10) }

// GetAutoHeading returns the auto_heading value or the default.
func (c *MapConfig) GetAutoHeading() bool { return getBool(c.AutoHeading, true) }

// GetAutoCenter returns the auto_center value or the default.
func (c *MapConfig) GetAutoCenter() bool { return getBool(c.AutoCenter, true) }

// GetStyle returns the background style or "default".
func (c *MapConfig) GetStyle() string {
	if c.Style == nil || *c.Style == "" {
		return "default"
	}
	return *c.Style
}

// GetOpacity returns the opacity or the default.
func (c *MapConfig) GetOpacity() float64 { return getFloat(c.Opacity, 1) }

// GetTiltShift returns the normalised tilt or the default.
func (c *MapConfig) GetTiltShift() float64 { return getFloat(c.TiltShift, 0) }

// GetMaxTiltShiftAngle returns the max tilt angle in degrees or the default.
func (c *MapConfig) GetMaxTiltShiftAngle() float64 { return getFloat(c.MaxTiltShiftAngle, 65) }

// GetSparkle returns the sparkle value or the default.
func (c *MapConfig) GetSparkle() bool { return getBool(c.Sparkle, false) }

// GetVerticalOffset returns the vertical offset or the default.
func (c *MapConfig) GetVerticalOffset() float64 { return getFloat(c.VerticalOffset, 0) }

// GetZoomPriorityTilt returns the zoom_priority_tilt value or the default.
func (c *MapConfig) GetZoomPriorityTilt() bool { return getBool(c.ZoomPriorityTilt, true) }

// GetPreferRoute returns the prefer_route value or the default.
func (c *MapConfig) GetPreferRoute() bool { return getBool(c.PreferRoute, false) }

// GetQuality returns the quality or the default.
func (c *MapConfig) GetQuality() float64 { return getFloat(c.Quality, 1) }

// GetFPSLimit returns the frame rate cap or the default.
func (c *MapConfig) GetFPSLimit() int {
	if c.FPSLimit == nil {
		return 30
	}
	return *c.FPSLimit
}

// GetRefreshRate returns the display tick rate or the default.
func (c *MapConfig) GetRefreshRate() int {
	if c.RefreshRate == nil {
		return 60
	}
	return *c.RefreshRate
}

// GetMapTransition returns the global transform animation duration.
func (c *MapConfig) GetMapTransition() time.Duration {
	return getDuration(c.MapTransition, 500*time.Millisecond)
}

// GetWheelGrace returns how long the map transition stays frozen after the
// last wheel event.
func (c *MapConfig) GetWheelGrace() time.Duration {
	return getDuration(c.WheelGrace, 100*time.Millisecond)
}

// GetGCInterval returns the stale entity scan cadence.
func (c *MapConfig) GetGCInterval() time.Duration {
	return getDuration(c.GCInterval, 10*time.Second)
}

// GetStaleAfter returns the inactivity threshold for collectible entities.
func (c *MapConfig) GetStaleAfter() time.Duration {
	return getDuration(c.StaleAfter, 15*time.Second)
}
