// Package world defines the data the map engine consumes from its
// collaborators: world metadata, road and route geometry, background
// imagery, athlete details and event metadata, plus the athlete state
// records fed into the viewport.
package world

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/golang/geo/s2"

	"github.com/banshee-data/saucemap/internal/curves"
)

// ErrNotFound is returned (wrapped) by sources when an id is unknown.
var ErrNotFound = errors.New("not found")

// PortalCourse is the pseudo course id portal roads are fetched under.
const PortalCourse = "portal"

// Meta describes one world: its coordinate bounds, anchor and scale factors.
type Meta struct {
	CourseID   int    `json:"courseId" yaml:"courseId" validate:"required"`
	WorldID    int    `json:"worldId" yaml:"worldId" validate:"required"`
	Name       string `json:"name" yaml:"name"`
	MapVersion int    `json:"mapVersion,omitempty" yaml:"mapVersion"`

	MinX float64 `json:"minX" yaml:"minX"`
	MinY float64 `json:"minY" yaml:"minY"`
	MaxX float64 `json:"maxX" yaml:"maxX" validate:"gtfield=MinX"`
	MaxY float64 `json:"maxY" yaml:"maxY" validate:"gtfield=MinY"`

	AnchorX float64 `json:"anchorX" yaml:"anchorX"`
	AnchorY float64 `json:"anchorY" yaml:"anchorY"`

	TileScale float64 `json:"tileScale" yaml:"tileScale" validate:"gt=0"`
	MapScale  float64 `json:"mapScale" yaml:"mapScale" validate:"gt=0"`

	LatOffset  float64 `json:"latOffset" yaml:"latOffset"`
	LonOffset  float64 `json:"lonOffset" yaml:"lonOffset"`
	LatDegDist float64 `json:"latDegDist" yaml:"latDegDist"`
	LonDegDist float64 `json:"lonDegDist" yaml:"lonDegDist"`

	FlippedHack       bool `json:"flippedHack,omitempty" yaml:"flippedHack"`
	RotateRouteSelect bool `json:"rotateRouteSelect,omitempty" yaml:"rotateRouteSelect"`
}

// LatLngToPosition converts a geodetic position into world units.
func (m *Meta) LatLngToPosition(ll s2.LatLng) (x, y float64) {
	lat, lon := ll.Lat.Degrees(), ll.Lng.Degrees()
	if m.FlippedHack {
		return (lat - m.LatOffset) * m.LatDegDist * 100,
			(lon - m.LonOffset) * m.LonDegDist * 100
	}
	return (lon - m.LonOffset) * m.LonDegDist * 100,
		-(lat - m.LatOffset) * m.LatDegDist * 100
}

// BackgroundAsset returns the raster asset name for a style suffix.
func (m *Meta) BackgroundAsset(style string) string {
	version := ""
	if m.MapVersion != 0 {
		version = fmt.Sprintf("-v%d", m.MapVersion)
	}
	return fmt.Sprintf("world%d%s%s.webp", m.WorldID, version, StyleSuffix(style))
}

// StyleSuffix maps a background style to its asset suffix.
func StyleSuffix(style string) string {
	switch style {
	case "neon":
		return "-neon"
	default:
		return ""
	}
}

// Road is a fixed drivable segment of a world.
type Road struct {
	ID          int
	CourseID    int
	Path        [][2]float64
	CurvePath   *curves.Path
	Sports      []string
	IsAvailable bool
	Looped      bool
}

// HasSport reports whether the road is usable for sport.
func (r *Road) HasSport(sport string) bool {
	for _, s := range r.Sports {
		if s == sport {
			return true
		}
	}
	return false
}

// Route is a rider selectable path, possibly lapped, highlighted on top of
// the road network.
type Route struct {
	ID        int
	CourseID  int
	Name      string
	Laps      int
	CurvePath *curves.Path
}

// Catalog looks up world metadata.
type Catalog interface {
	WorldByCourse(ctx context.Context, courseID int) (*Meta, error)
}

// GeometrySource fetches pre-built road and route geometry.
type GeometrySource interface {
	Roads(ctx context.Context, courseID int) ([]*Road, error)
	PortalRoad(ctx context.Context, roadID int) (*Road, error)
	Route(ctx context.Context, routeID int) (*Route, error)
}

// ImageSource fetches a background raster for a world.
type ImageSource interface {
	Background(ctx context.Context, meta *Meta, style string) (image.Image, error)
}

// Athlete is the cached profile of an athlete.
type Athlete struct {
	Name      string `json:"name"`
	FLast     string `json:"fLast"`
	Avatar    string `json:"avatar,omitempty"`
	Marked    bool   `json:"marked,omitempty"`
	Following bool   `json:"following,omitempty"`
	Type      string `json:"type,omitempty"` // "PACER_BOT" for bots
}

// AthleteData is the per-athlete record kept by the athlete cache.
type AthleteData struct {
	AthleteID    int      `json:"athleteId"`
	Athlete      *Athlete `json:"athlete,omitempty"`
	EventLeader  bool     `json:"eventLeader,omitempty"`
	EventSweeper bool     `json:"eventSweeper,omitempty"`
}

// AthleteDataSource returns the latest cached athlete data.
type AthleteDataSource interface {
	// Cached returns whatever is cached for id without blocking.
	Cached(id int) *AthleteData
	// Lookup returns data for ids, fetching misses. Unknown ids are omitted.
	Lookup(ctx context.Context, ids []int) ([]*AthleteData, error)
}

// EventSubgroup identifies the route raced by an event subgroup.
type EventSubgroup struct {
	ID      int `json:"id"`
	RouteID int `json:"routeId"`
	Laps    int `json:"laps"`
}

// EventSource looks up event subgroups.
type EventSource interface {
	EventSubgroup(ctx context.Context, id int) (*EventSubgroup, error)
}

// AthleteState is one athlete position update.
type AthleteState struct {
	AthleteID       int     `json:"athleteId"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Heading         float64 `json:"heading"`
	Power           float64 `json:"power"`
	Speed           float64 `json:"speed"`
	Sport           string  `json:"sport,omitempty"`
	CourseID        int     `json:"courseId"`
	RoadID          int     `json:"roadId"`
	RouteID         int     `json:"routeId,omitempty"`
	Portal          bool    `json:"portal,omitempty"`
	EventSubgroupID int     `json:"eventSubgroupId,omitempty"`
}
