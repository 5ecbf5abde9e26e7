package mapview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strconv"

	"github.com/banshee-data/saucemap/internal/curves"
	"github.com/banshee-data/saucemap/internal/monitoring"
	"github.com/banshee-data/saucemap/internal/scene"
	"github.com/banshee-data/saucemap/internal/world"
)

// flattenSteps is the polyline resolution per curve segment.
const flattenSteps = 8

// CourseOption modifies SetCourse.
type CourseOption func(*courseOptions)

type courseOptions struct {
	portalRoad *int
}

// WithPortalRoad shows a single portal road instead of the whole course.
func WithPortalRoad(roadID int) CourseOption {
	return func(o *courseOptions) { o.portalRoad = &roadID }
}

// SetCourse switches the world. Calls are serialized; a call for the course
// already shown returns immediately. Geometry is fetched before any state
// changes, so a failed fetch leaves the current course in place.
func (v *Viewport) SetCourse(ctx context.Context, courseID int, opts ...CourseOption) error {
	var o courseOptions
	for _, opt := range opts {
		opt(&o)
	}
	portal := o.portalRoad != nil

	v.courseSerial.Lock()
	defer v.courseSerial.Unlock()

	var same bool
	v.update(func() {
		if portal {
			same = courseID == v.courseID && v.portal && v.hasRoad && *o.portalRoad == v.roadID
		} else {
			same = courseID == v.courseID && !v.portal
		}
	})
	if same {
		return nil
	}
	if v.catalog == nil || v.geometry == nil {
		return fmt.Errorf("course %d: no world sources: %w", courseID, ErrUnknownCourse)
	}

	meta, err := v.catalog.WorldByCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, world.ErrNotFound) {
			return fmt.Errorf("course %d: %w", courseID, ErrUnknownCourse)
		}
		return fmt.Errorf("course %d: %w", courseID, err)
	}
	var roads []*world.Road
	if portal {
		road, err := v.geometry.PortalRoad(ctx, *o.portalRoad)
		if err != nil {
			return fmt.Errorf("portal road %d: %w", *o.portalRoad, err)
		}
		roads = []*world.Road{road}
	} else if roads, err = v.geometry.Roads(ctx, courseID); err != nil {
		return fmt.Errorf("course %d roads: %w", courseID, err)
	}

	v.update(func() {
		v.incPause()
		v.applyCourse(courseID, meta, roads, portal)
	})
	defer v.update(v.decPause)

	v.refreshBackground(ctx)

	v.update(func() {
		if v.courseID != courseID || v.meta != meta {
			return
		}
		v.renderRoads(roads)
		if portal {
			v.setActiveRoad(*o.portalRoad)
		}
	})
	monitoring.Opsf("course %d (%s) active, portal=%t, %d roads", courseID, meta.Name, portal, len(roads))
	return nil
}

func (v *Viewport) applyCourse(courseID int, meta *world.Meta, roads []*world.Road, portal bool) {
	rotate := !portal && meta.RotateRouteSelect
	rotationChanged := rotate != v.rotateCoordinates
	v.courseID = courseID
	v.portal = portal
	v.meta = meta
	v.rotateCoordinates = rotate

	v.anchorXY = [2]float64{-(meta.MinX + meta.AnchorX), -(meta.MinY + meta.AnchorY)}
	viewBox := [4]float64{
		meta.MinX + meta.AnchorX,
		meta.MinY + meta.AnchorY,
		meta.MaxX - meta.MinX,
		meta.MaxY - meta.MinY,
	}
	if portal && len(roads) > 0 && len(roads[0].Path) > 0 {
		viewBox[0] += roads[0].Path[0][0]
		viewBox[1] += roads[0].Path[0][1]
	}
	v.resetElements(viewBox)
	if rotationChanged {
		rot := v.rotation()
		for _, ent := range v.ents {
			ent.attach(rot)
		}
		v.centerXY = v.rotateWorldPos(v.center[0], v.center[1])
		v.dragXY = v.rotateWorldPos(v.dragOffset[0], v.dragOffset[1])
	}
}

// resetElements clears course specific scene content.
func (v *Viewport) resetElements(viewBox [4]float64) {
	roads := v.scene.Roads
	for _, layer := range []*scene.Node{roads.Gutters, roads.SurfacesLow, roads.SurfacesMid, roads.SurfacesHigh} {
		layer.ReplaceChildren()
	}
	for _, ent := range v.ents {
		if ent.gc {
			v.removeEntity(ent)
		}
	}
	v.scene.Defs.ReplaceChildren()
	v.scene.Pins.ReplaceChildren()
	v.scene.ViewBox = viewBox
	v.scene.PathLayers.ToggleClass("rotated-coordinates", v.rotateCoordinates)
	v.setHeading(0)

	v.trackMu.Lock()
	v.pending.clear()
	for _, ent := range v.ents {
		if ent.pinNode != nil {
			ent.pinNode = nil
			v.pending.add(ent)
		}
	}
	v.trackMu.Unlock()
}

func roadPathID(roadID int) string { return "road-path-" + strconv.Itoa(roadID) }

// roadCurve returns the road's prebuilt curve or a Catmull-Rom fit of its
// points.
func roadCurve(road *world.Road) (*curves.Path, error) {
	if road.CurvePath != nil {
		return road.CurvePath, nil
	}
	return curves.CatmullRomPath(curves.Points(road.Path), road.Looped)
}

// renderRoads draws the cycling and running roads, fewest sports first so
// shared sections take the multi-sport styling.
func (v *Viewport) renderRoads(roads []*world.Road) {
	sorted := append([]*world.Road(nil), roads...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].Sports) < len(sorted[j].Sports) })
	layers := v.scene.Roads
	drawn := 0
	for _, road := range sorted {
		if road == nil || !road.IsAvailable || !(road.HasSport("cycling") || road.HasSport("running")) {
			continue
		}
		path, err := roadCurve(road)
		if err != nil {
			monitoring.Diagf("road %d: %v", road.ID, err)
			continue
		}
		id := roadPathID(road.ID)
		v.scene.Defs.Append(scene.NewPath(id, path.ToSVGPath(true), path.Flatten(flattenSteps, true)))
		classes := []string{"road"}
		for _, s := range road.Sports {
			classes = append(classes, "sport-"+s)
		}
		for _, g := range []*scene.Node{layers.Gutters, layers.SurfacesLow} {
			use := scene.NewUse("#"+id, classes...)
			use.SetAttr("data-id", strconv.Itoa(road.ID))
			g.Append(use)
		}
		drawn++
	}
	monitoring.Diagf("rendered %d of %d roads", drawn, len(roads))
	if v.hasRoad {
		v.setActiveRoad(v.roadID)
	}
}

// SetActiveRoad highlights a road, clearing any route highlight.
func (v *Viewport) SetActiveRoad(roadID int) { v.update(func() { v.setActiveRoad(roadID) }) }

func (v *Viewport) setActiveRoad(roadID int) {
	v.roadID, v.hasRoad = roadID, true
	v.routeID, v.routeLaps, v.route = 0, 0, nil
	if v.routeHighlight != nil {
		v.removeHighlight(v.routeHighlight)
		v.routeHighlight = nil
	}
	surface := v.scene.Roads.SurfacesMid
	r := surface.Query("road", "active")
	if r == nil {
		r = scene.NewUse("", "road", "active")
		surface.Append(r)
	}
	r.Href = "#" + roadPathID(roadID)
}

// SetActiveRoute highlights a route, clearing the active road. Calls are
// serialized. An unknown route is logged and returns a nil route.
func (v *Viewport) SetActiveRoute(ctx context.Context, routeID, laps int) (*world.Route, error) {
	if laps <= 0 {
		laps = 1
	}
	v.routeSerial.Lock()
	defer v.routeSerial.Unlock()

	v.update(func() {
		v.roadID, v.hasRoad = 0, false
		v.routeID, v.routeLaps = routeID, laps
		if r := v.scene.Roads.SurfacesMid.Query("road", "active"); r != nil {
			r.Remove()
		}
	})
	if v.geometry == nil {
		return nil, fmt.Errorf("route %d: no geometry source", routeID)
	}
	route, err := v.geometry.Route(ctx, routeID)
	if err != nil && !errors.Is(err, world.ErrNotFound) {
		return nil, fmt.Errorf("route %d: %w", routeID, err)
	}

	var result *world.Route
	v.update(func() {
		if v.routeID != routeID {
			monitoring.Diagf("route %d superseded before it loaded", routeID)
			return
		}
		if v.routeHighlight != nil {
			v.removeHighlight(v.routeHighlight)
			v.routeHighlight = nil
		}
		if route == nil || route.CurvePath == nil {
			monitoring.Opsf("route not found: %d", routeID)
			v.route = nil
			return
		}
		v.routeHighlight = v.addHighlightPath(route.CurvePath, "route-"+strconv.Itoa(routeID),
			HighlightOptions{Layer: "mid"})
		v.route = route
		result = route
	})
	return result, nil
}

// Route returns the active route, or nil.
func (v *Viewport) Route() *world.Route {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.route
}

// SetStyle switches the background style. Calls are serialized.
func (v *Viewport) SetStyle(ctx context.Context, style string) {
	if style == "" {
		style = "default"
	}
	v.styleSerial.Lock()
	defer v.styleSerial.Unlock()

	var changed bool
	v.update(func() {
		changed = style != v.style
		v.style = style
	})
	if changed {
		v.refreshBackground(ctx)
	}
}

// refreshBackground loads the background for the current world and style.
// Failures are logged and leave the previous background in place.
func (v *Viewport) refreshBackground(ctx context.Context) {
	v.bgSerial.Lock()
	defer v.bgSerial.Unlock()

	var (
		meta  *world.Meta
		style string
	)
	v.update(func() { meta, style = v.meta, v.style })
	if meta == nil {
		return
	}
	var (
		bg  image.Image
		err error
	)
	if v.images == nil {
		err = errors.New("no image source")
	} else {
		bg, err = v.images.Background(ctx, meta, style)
	}

	v.update(func() {
		if v.meta != meta {
			monitoring.Diagf("background %s superseded", meta.BackgroundAsset(style))
			return
		}
		if err == nil && bg == nil {
			err = errors.New("empty image")
		}
		if err != nil {
			monitoring.Opsf("background %s: %v", meta.BackgroundAsset(style), err)
			if v.bgWorldID != meta.WorldID {
				// The old raster belongs to another world.
				v.scene.Background.Image = nil
				v.bgNatural = [2]int{}
				v.bgWorldID = 0
			}
			v.applyCanvasScale()
			return
		}
		b := bg.Bounds()
		v.bgNatural = [2]int{b.Dx(), b.Dy()}
		v.bgWorldID = meta.WorldID
		v.scene.Background.Image = bg
		v.applyCanvasScale()
	})
}
