package worlddb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/saucemap/internal/monitoring"
	"github.com/banshee-data/saucemap/internal/world"
)

// maxSeedSize caps catalog files read from disk.
const maxSeedSize = 16 * 1024 * 1024

// SeedRoad is a road as written in the catalog file. Portal roads omit the
// course id.
type SeedRoad struct {
	ID       int          `yaml:"id" validate:"required"`
	CourseID int          `yaml:"courseId"`
	Sports   []string     `yaml:"sports" validate:"dive,required"`
	Disabled bool         `yaml:"disabled"`
	Looped   bool         `yaml:"looped"`
	Path     [][2]float64 `yaml:"path" validate:"min=2"`
}

// SeedRoute is a route as written in the catalog file.
type SeedRoute struct {
	ID       int          `yaml:"id" validate:"required"`
	CourseID int          `yaml:"courseId" validate:"required"`
	Name     string       `yaml:"name"`
	Laps     int          `yaml:"laps" validate:"gte=0"`
	Looped   bool         `yaml:"looped"`
	Path     [][2]float64 `yaml:"path" validate:"min=2"`
}

// Seed is the YAML world catalog loaded into the store at startup.
type Seed struct {
	Worlds      []world.Meta `yaml:"worlds" validate:"dive"`
	Roads       []SeedRoad   `yaml:"roads" validate:"dive"`
	PortalRoads []SeedRoad   `yaml:"portalRoads" validate:"dive"`
	Routes      []SeedRoute  `yaml:"routes" validate:"dive"`
}

// ParseSeed decodes and validates a catalog document.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := validator.New().Struct(s); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	courses := make(map[int]bool, len(s.Worlds))
	for _, w := range s.Worlds {
		courses[w.CourseID] = true
	}
	for _, r := range s.Roads {
		if !courses[r.CourseID] {
			return nil, fmt.Errorf("invalid catalog: road %d references unknown course %d", r.ID, r.CourseID)
		}
	}
	for _, r := range s.Routes {
		if !courses[r.CourseID] {
			return nil, fmt.Errorf("invalid catalog: route %d references unknown course %d", r.ID, r.CourseID)
		}
	}
	return &s, nil
}

// LoadSeed reads a catalog file.
func LoadSeed(path string) (*Seed, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("catalog file must have .yaml extension, got %s", filepath.Ext(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat catalog file: %w", err)
	}
	if info.Size() > maxSeedSize {
		return nil, fmt.Errorf("catalog file too large: %d bytes (max %d)", info.Size(), maxSeedSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseSeed(data)
}

// Apply upserts every world, road and route of s in one transaction.
func (db *DB) Apply(ctx context.Context, s *Seed) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range s.Worlds {
		_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO worlds (`+worldColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.CourseID, m.WorldID, m.Name, m.MapVersion,
			m.MinX, m.MinY, m.MaxX, m.MaxY, m.AnchorX, m.AnchorY, m.TileScale, m.MapScale,
			m.LatOffset, m.LonOffset, m.LatDegDist, m.LonDegDist,
			m.FlippedHack, m.RotateRouteSelect)
		if err != nil {
			return fmt.Errorf("failed to store course %d: %w", m.CourseID, err)
		}
	}

	insertRoad := func(key string, order int, r SeedRoad) error {
		path, err := json.Marshal(r.Path)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO roads
			(course_key, road_id, sports, is_available, looped, path_json, sort_order)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			key, r.ID, strings.Join(r.Sports, ","), !r.Disabled, r.Looped, string(path), order)
		if err != nil {
			return fmt.Errorf("failed to store road %s/%d: %w", key, r.ID, err)
		}
		return nil
	}
	for i, r := range s.Roads {
		if err := insertRoad(courseKey(r.CourseID), i, r); err != nil {
			return err
		}
	}
	for i, r := range s.PortalRoads {
		if err := insertRoad(world.PortalCourse, i, r); err != nil {
			return err
		}
	}

	for _, r := range s.Routes {
		path, err := json.Marshal(r.Path)
		if err != nil {
			return err
		}
		laps := r.Laps
		if laps == 0 {
			laps = 1
		}
		_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO routes
			(route_id, course_id, name, laps, looped, path_json) VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, r.CourseID, r.Name, laps, r.Looped, string(path))
		if err != nil {
			return fmt.Errorf("failed to store route %d: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	monitoring.Diagf("catalog applied: %d worlds, %d roads, %d portal roads, %d routes",
		len(s.Worlds), len(s.Roads), len(s.PortalRoads), len(s.Routes))
	return nil
}
