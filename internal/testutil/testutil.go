// Package testutil provides shared test utilities and fixtures.
//
// The fixtures are in-memory implementations of the world sources with two
// small worlds, so viewport, store and API tests run without a database or
// network.
package testutil

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/banshee-data/saucemap/internal/curves"
	"github.com/banshee-data/saucemap/internal/world"
)

// Course ids of the fixture worlds.
const (
	CourseWatopia  = 6
	CourseRichmond = 2
	PortalRoadID   = 900
	RouteWatopiaID = 10
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// WatopiaMeta is a world drawn in rotated coordinates.
func WatopiaMeta() *world.Meta {
	return &world.Meta{
		CourseID: CourseWatopia, WorldID: 1, Name: "Watopia", MapVersion: 2,
		MinX: -20000, MinY: -10000, MaxX: 20000, MaxY: 10000,
		AnchorX: 500, AnchorY: 250,
		TileScale: 1, MapScale: 0.05,
		LatOffset: -11.64, LonOffset: 166.95, LatDegDist: 110614, LonDegDist: 109287,
		RotateRouteSelect: true,
	}
}

// RichmondMeta is an unrotated world.
func RichmondMeta() *world.Meta {
	return &world.Meta{
		CourseID: CourseRichmond, WorldID: 2, Name: "Richmond",
		MinX: -5000, MinY: -5000, MaxX: 5000, MaxY: 5000,
		TileScale: 1, MapScale: 0.1,
		LatOffset: 37.54, LonOffset: -77.43, LatDegDist: 110986, LonDegDist: 88073,
	}
}

func road(id, courseID int, sports []string, available bool, pts ...[2]float64) *world.Road {
	return &world.Road{ID: id, CourseID: courseID, Path: pts, Sports: sports, IsAvailable: available}
}

// Roads returns the fixture roads of a course.
func Roads(courseID int) []*world.Road {
	switch courseID {
	case CourseWatopia:
		return []*world.Road{
			road(1, CourseWatopia, []string{"cycling", "running"}, true, [2]float64{0, 0}, [2]float64{1000, 0}, [2]float64{2000, 500}, [2]float64{3000, 500}),
			road(2, CourseWatopia, []string{"cycling"}, true, [2]float64{0, 0}, [2]float64{0, 1000}, [2]float64{500, 2000}),
			road(3, CourseWatopia, []string{"running"}, true, [2]float64{-500, 0}, [2]float64{-1000, -500}),
			road(4, CourseWatopia, []string{"cycling"}, false, [2]float64{100, 100}, [2]float64{200, 200}),
			road(5, CourseWatopia, []string{"rowing"}, true, [2]float64{5, 5}, [2]float64{6, 6}),
		}
	case CourseRichmond:
		return []*world.Road{
			road(101, CourseRichmond, []string{"cycling"}, true, [2]float64{-1000, -1000}, [2]float64{1000, -1000}, [2]float64{1000, 1000}),
			road(102, CourseRichmond, []string{"cycling"}, true, [2]float64{-1000, 1000}, [2]float64{0, 0}, [2]float64{500, -500}),
		}
	}
	return nil
}

// PortalRoad returns the fixture portal road.
func PortalRoad() *world.Road {
	return road(PortalRoadID, CourseWatopia, []string{"cycling"}, true,
		[2]float64{10000, 10000}, [2]float64{10200, 10000}, [2]float64{10400, 10300})
}

// WatopiaRoute returns a two lap route over road 1.
func WatopiaRoute() *world.Route {
	path, err := curves.CatmullRomPath(curves.Points(Roads(CourseWatopia)[0].Path), false)
	if err != nil {
		panic(err)
	}
	return &world.Route{ID: RouteWatopiaID, CourseID: CourseWatopia, Name: "Volcano Flat", Laps: 2, CurvePath: path}
}

// Catalog is an in-memory world.Catalog.
type Catalog struct {
	mu    sync.Mutex
	metas map[int]*world.Meta
}

// NewCatalog returns a catalog with the fixture worlds.
func NewCatalog() *Catalog {
	return &Catalog{metas: map[int]*world.Meta{
		CourseWatopia:  WatopiaMeta(),
		CourseRichmond: RichmondMeta(),
	}}
}

// Add registers meta under its course id.
func (c *Catalog) Add(meta *world.Meta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metas[meta.CourseID] = meta
}

// WorldByCourse implements world.Catalog.
func (c *Catalog) WorldByCourse(_ context.Context, courseID int) (*world.Meta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.metas[courseID]
	if !ok {
		return nil, fmt.Errorf("course %d: %w", courseID, world.ErrNotFound)
	}
	return m, nil
}

type gate struct {
	entered chan struct{}
	release chan struct{}
}

// Geometry is an in-memory world.GeometrySource. Road fetches for a course
// can be held open with Hold.
type Geometry struct {
	mu     sync.Mutex
	gates  map[int]*gate
	calls  []int
	routes map[int]*world.Route
}

// NewGeometry returns the fixture geometry.
func NewGeometry() *Geometry {
	return &Geometry{
		gates:  make(map[int]*gate),
		routes: map[int]*world.Route{RouteWatopiaID: WatopiaRoute()},
	}
}

// Hold makes the next Roads call for courseID block until release is
// called. entered is closed once that call is waiting.
func (g *Geometry) Hold(courseID int) (entered <-chan struct{}, release func()) {
	gt := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	g.mu.Lock()
	g.gates[courseID] = gt
	g.mu.Unlock()
	var once sync.Once
	return gt.entered, func() { once.Do(func() { close(gt.release) }) }
}

// Calls returns the course ids Roads was called with, in order.
func (g *Geometry) Calls() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.calls...)
}

// Roads implements world.GeometrySource.
func (g *Geometry) Roads(ctx context.Context, courseID int) ([]*world.Road, error) {
	g.mu.Lock()
	g.calls = append(g.calls, courseID)
	gt := g.gates[courseID]
	delete(g.gates, courseID)
	g.mu.Unlock()
	if gt != nil {
		close(gt.entered)
		select {
		case <-gt.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	roads := Roads(courseID)
	if roads == nil {
		return nil, fmt.Errorf("roads for course %d: %w", courseID, world.ErrNotFound)
	}
	return roads, nil
}

// PortalRoad implements world.GeometrySource.
func (g *Geometry) PortalRoad(_ context.Context, roadID int) (*world.Road, error) {
	if roadID != PortalRoadID {
		return nil, fmt.Errorf("portal road %d: %w", roadID, world.ErrNotFound)
	}
	return PortalRoad(), nil
}

// Route implements world.GeometrySource.
func (g *Geometry) Route(_ context.Context, routeID int) (*world.Route, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.routes[routeID]
	if !ok {
		return nil, fmt.Errorf("route %d: %w", routeID, world.ErrNotFound)
	}
	return r, nil
}

// Images is an in-memory world.ImageSource returning flat rasters.
type Images struct {
	mu   sync.Mutex
	Size image.Point
	Err  error
	got  []string
}

// NewImages returns a source of 400x200 backgrounds.
func NewImages() *Images { return &Images{Size: image.Pt(400, 200)} }

// Background implements world.ImageSource.
func (s *Images) Background(_ context.Context, meta *world.Meta, style string) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, meta.BackgroundAsset(style))
	if s.Err != nil {
		return nil, s.Err
	}
	return flatImage{r: image.Rectangle{Max: s.Size}, c: color.RGBA{R: 40, G: 90, B: 40, A: 255}}, nil
}

// flatImage is a single colour raster that needs no pixel storage.
type flatImage struct {
	r image.Rectangle
	c color.RGBA
}

func (f flatImage) ColorModel() color.Model { return color.RGBAModel }
func (f flatImage) Bounds() image.Rectangle { return f.r }
func (f flatImage) At(int, int) color.Color { return f.c }

// Requested returns the asset names fetched so far.
func (s *Images) Requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

// Athletes is an in-memory world.AthleteDataSource.
type Athletes struct {
	mu      sync.Mutex
	data    map[int]*world.AthleteData
	lookups int
}

// NewAthletes returns a source holding data.
func NewAthletes(data ...*world.AthleteData) *Athletes {
	a := &Athletes{data: make(map[int]*world.AthleteData)}
	for _, d := range data {
		a.data[d.AthleteID] = d
	}
	return a
}

// Cached implements world.AthleteDataSource.
func (a *Athletes) Cached(id int) *world.AthleteData {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data[id]
}

// Lookup implements world.AthleteDataSource.
func (a *Athletes) Lookup(_ context.Context, ids []int) ([]*world.AthleteData, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lookups++
	out := make([]*world.AthleteData, 0, len(ids))
	for _, id := range ids {
		if d, ok := a.data[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Lookups returns how many Lookup calls were made.
func (a *Athletes) Lookups() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lookups
}

// Events is an in-memory world.EventSource.
type Events map[int]*world.EventSubgroup

// EventSubgroup implements world.EventSource.
func (e Events) EventSubgroup(_ context.Context, id int) (*world.EventSubgroup, error) {
	sg, ok := e[id]
	if !ok {
		return nil, fmt.Errorf("event subgroup %d: %w", id, world.ErrNotFound)
	}
	return sg, nil
}
