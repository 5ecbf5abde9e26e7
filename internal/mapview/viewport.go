// Package mapview is the live map viewport: entity registry, gesture input,
// quality budgeting, the global view transform and the frame limited render
// loop over a retained scene.
//
// A Viewport is safe for concurrent use. State changes take the viewport
// lock; long operations (course, style and route changes, background
// refreshes, athlete batches) are serialized per operation and release the
// lock while they fetch, re-checking the course and road they started with
// afterward.
package mapview

import (
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/saucemap/internal/config"
	"github.com/banshee-data/saucemap/internal/scene"
	"github.com/banshee-data/saucemap/internal/timeutil"
	"github.com/banshee-data/saucemap/internal/transition"
	"github.com/banshee-data/saucemap/internal/units"
	"github.com/banshee-data/saucemap/internal/world"
)

var (
	// ErrDuplicateEntity is returned when an entity id is already registered.
	ErrDuplicateEntity = errors.New("entity id already in use")
	// ErrUnknownCourse is returned when the catalog has no such course.
	ErrUnknownCourse = errors.New("unknown course")
	// ErrNotFound is returned for unknown entity ids.
	ErrNotFound = world.ErrNotFound
)

// perspective is the camera distance of the tilt projection in pixels.
const perspective = 800

// Options carries the collaborators of a Viewport. Nil sources disable the
// features that need them.
type Options struct {
	Clock    timeutil.Clock
	Catalog  world.Catalog
	Geometry world.GeometrySource
	Images   world.ImageSource
	Athletes world.AthleteDataSource
	Events   world.EventSource

	// Width and Height are the container size in pixels.
	Width, Height float64

	// SpeedUnits selects the unit shown in athlete pins.
	SpeedUnits string
}

// Viewport is the map controller.
type Viewport struct {
	clock    timeutil.Clock
	catalog  world.Catalog
	geometry world.GeometrySource
	images   world.ImageSource
	athletes world.AthleteDataSource
	events   world.EventSource
	units    string
	obs      observers

	courseSerial  sync.Mutex
	routeSerial   sync.Mutex
	styleSerial   sync.Mutex
	bgSerial      sync.Mutex
	athleteSerial sync.Mutex
	background    sync.WaitGroup

	mu     sync.Mutex
	outbox []Event

	scene         *scene.Scene
	mapTransition *transition.Transition
	pause         transition.RefCount

	zoom, zoomMin, zoomMax float64
	maxTiltAngle           float64
	tiltShift              float64
	zoomPriorityTilt       bool
	tiltAngle, tiltHeight  float64
	quality                float64
	canvasScale            float64
	layerScale             float64
	mapScale               float64
	verticalOffset         float64
	style                  string
	sparkle                bool
	preferRoute            bool

	autoHeading      bool
	autoCenter       bool
	autoHeadingSaved float64
	autoCenterSaved  *[2]float64
	trackingPaused   bool

	msPerFrame time.Duration
	refresh    time.Duration
	lastFrame  time.Time
	gcInterval time.Duration
	staleAfter time.Duration
	nextGC     time.Time
	wheelGrace time.Duration
	stats      frameStats

	meta              *world.Meta
	courseID          int
	portal            bool
	roadID            int
	hasRoad           bool
	routeID           int
	routeLaps         int
	route             *world.Route
	routeHighlight    *Highlight
	rotateCoordinates bool
	bgNatural         [2]int
	bgWorldID         int

	heading          float64
	headingOffset    float64
	headingRotations int
	adjHeading       float64
	renderedRotate   float64
	center           [2]float64
	centerXY         [2]float64
	anchorXY         [2]float64
	dragOffset       [2]float64
	dragXY           [2]float64

	watchingID int
	athleteID  int

	ents  map[string]*Entity
	unsub map[string]func()

	wheel   wheelState
	pointer pointerState

	// trackMu guards the per-frame work sets. Entity event handlers take
	// only this lock. Lock order: mu, then an entity, then trackMu.
	trackMu sync.Mutex
	pending entitySet
	pinned  entitySet
}

// New builds a viewport from cfg (defaults fill unset fields).
func New(cfg *config.MapConfig, opts Options) (*Viewport, error) {
	if cfg == nil {
		cfg = config.EmptyMapConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if !units.IsValid(opts.SpeedUnits) {
		opts.SpeedUnits = units.KPH
	}
	v := &Viewport{
		clock:         clock,
		catalog:       opts.Catalog,
		geometry:      opts.Geometry,
		images:        opts.Images,
		athletes:      opts.Athletes,
		events:        opts.Events,
		units:         opts.SpeedUnits,
		scene:         scene.New(opts.Width, opts.Height),
		mapTransition: transition.New(clock, cfg.GetMapTransition()),
		pause:         transition.RefCount{Name: "viewport pause"},
		zoomMin:       cfg.GetZoomMin(),
		zoomMax:       cfg.GetZoomMax(),
		maxTiltAngle:  cfg.GetMaxTiltShiftAngle(),
		quality:       cfg.GetQuality(),
		style:         cfg.GetStyle(),
		preferRoute:   cfg.GetPreferRoute(),
		refresh:       time.Second / time.Duration(cfg.GetRefreshRate()),
		gcInterval:    cfg.GetGCInterval(),
		staleAfter:    cfg.GetStaleAfter(),
		wheelGrace:    cfg.GetWheelGrace(),
		ents:          make(map[string]*Entity),
		unsub:         make(map[string]func()),
		stats:         newFrameStats(frameStatsSize),
	}
	v.nextGC = clock.Now().Add(v.gcInterval)
	v.update(func() {
		v.incPause()
		defer v.decPause()
		v.setZoom(cfg.GetZoom(), true)
		v.setAutoHeading(cfg.GetAutoHeading())
		v.setAutoCenter(cfg.GetAutoCenter())
		v.setOpacity(cfg.GetOpacity())
		v.setTiltShift(cfg.GetTiltShift())
		v.setZoomPriorityTilt(cfg.GetZoomPriorityTilt())
		v.setSparkle(cfg.GetSparkle())
		v.setVerticalOffset(cfg.GetVerticalOffset())
		v.setFPSLimit(cfg.GetFPSLimit())
	})
	return v, nil
}

// update runs fn under the viewport lock and publishes the events it
// queued once the lock is released.
func (v *Viewport) update(fn func()) {
	var evs []Event
	func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		fn()
		evs, v.outbox = v.outbox, nil
	}()
	v.obs.emit(evs...)
}

func (v *Viewport) queue(ev Event) { v.outbox = append(v.outbox, ev) }

// Subscribe registers fn for ZoomEvent and DragEvent notifications.
func (v *Viewport) Subscribe(fn Handler) func() { return v.obs.subscribe(fn) }

// IncPause suspends transform and render work. Calls nest.
func (v *Viewport) IncPause() { v.update(v.incPause) }

// DecPause releases one pause. The last release brings the view up to
// date. Releasing without a matching IncPause panics.
func (v *Viewport) DecPause() { v.update(v.decPause) }

// WithPause runs fn with the viewport paused.
func (v *Viewport) WithPause(fn func()) { transition.Hold(v.IncPause, v.DecPause, fn) }

// Paused reports whether a pause is held.
func (v *Viewport) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pause.Held()
}

func (v *Viewport) incPause() {
	if v.pause.Acquire() {
		v.mapTransition.IncDisabled()
	}
}

func (v *Viewport) decPause() {
	if v.pause.Release() {
		defer v.mapTransition.DecDisabled()
		v.fullUpdateAsNeeded()
	}
}

// fullUpdateAsNeeded refreshes scales, the transform and the frame unless
// paused, and reports whether it did.
func (v *Viewport) fullUpdateAsNeeded() bool {
	if v.pause.Held() {
		return false
	}
	if !v.adjustLayerScale(false) {
		v.updateGlobalTransform()
		v.renderFrame()
	}
	return true
}

// SetFPSLimit caps the render rate. Zero or less removes the cap.
func (v *Viewport) SetFPSLimit(fps int) { v.update(func() { v.setFPSLimit(fps) }) }

func (v *Viewport) setFPSLimit(fps int) {
	if fps <= 0 {
		v.msPerFrame = 0
		return
	}
	v.msPerFrame = time.Duration(1000/fps) * time.Millisecond
}

// SetOpacity sets the map opacity; NaN selects 1.
func (v *Viewport) SetOpacity(o float64) { v.update(func() { v.setOpacity(o) }) }

func (v *Viewport) setOpacity(o float64) {
	if math.IsNaN(o) {
		o = 1
	}
	v.scene.Opacity = o
}

// SetSparkle toggles the sparkle effect class.
func (v *Viewport) SetSparkle(on bool) { v.update(func() { v.setSparkle(on) }) }

func (v *Viewport) setSparkle(on bool) {
	v.sparkle = on
	v.scene.Root.ToggleClass("sparkle", on)
}

// SetTiltShift sets the normalized camera tilt, clamped to [0, 1].
func (v *Viewport) SetTiltShift(t float64) { v.update(func() { v.setTiltShift(t) }) }

func (v *Viewport) setTiltShift(t float64) {
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	v.tiltShift = math.Min(1, t)
	v.fullUpdateAsNeeded()
}

// SetZoomPriorityTilt scales the tilt down at low zoom.
func (v *Viewport) SetZoomPriorityTilt(on bool) { v.update(func() { v.setZoomPriorityTilt(on) }) }

func (v *Viewport) setZoomPriorityTilt(on bool) {
	v.zoomPriorityTilt = on
	v.fullUpdateAsNeeded()
}

// SetVerticalOffset shifts the view by a fraction of the container height.
func (v *Viewport) SetVerticalOffset(o float64) { v.update(func() { v.setVerticalOffset(o) }) }

func (v *Viewport) setVerticalOffset(o float64) {
	v.verticalOffset = o
	v.fullUpdateAsNeeded()
}

// SetZoom sets the zoom, clamped to the configured range, and publishes a
// ZoomEvent.
func (v *Viewport) SetZoom(z float64) { v.update(func() { v.setZoom(z, false) }) }

func (v *Viewport) setZoom(z float64, quiet bool) {
	v.zoom = clamp(z, v.zoomMin, v.zoomMax)
	v.applyZoom(quiet)
}

func (v *Viewport) adjustZoom(delta float64) {
	v.zoom = clamp(v.zoom+delta, v.zoomMin, v.zoomMax)
}

func (v *Viewport) applyZoom(quiet bool) {
	if v.fullUpdateAsNeeded() && !quiet {
		v.queue(ZoomEvent{Zoom: v.zoom})
	}
}

func clamp(x, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, x)) }

// Zoom returns the current zoom.
func (v *Viewport) Zoom() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.zoom
}

// SetQuality sets the rendering budget (0..1). A changed canvas scale
// rescales the current background.
func (v *Viewport) SetQuality(q float64) {
	v.update(func() {
		v.quality = clamp(q, 0, 1)
		if cs := v.qualityToCanvasScale(v.quality); cs != v.canvasScale && v.meta != nil {
			v.applyCanvasScale()
		}
		v.fullUpdateAsNeeded()
	})
}

// SetAutoHeading makes the view follow the watched athlete's heading.
func (v *Viewport) SetAutoHeading(on bool) { v.update(func() { v.setAutoHeading(on) }) }

func (v *Viewport) setAutoHeading(on bool) {
	v.autoHeading = on
	if !v.trackingPaused {
		h := 0.0
		if on {
			h = v.autoHeadingSaved
		}
		v.setHeading(h)
		v.fullUpdateAsNeeded()
	}
}

// SetAutoCenter makes the view follow the watched athlete's position.
func (v *Viewport) SetAutoCenter(on bool) { v.update(func() { v.setAutoCenter(on) }) }

func (v *Viewport) setAutoCenter(on bool) {
	v.autoCenter = on
	if on && v.autoCenterSaved != nil {
		v.setCenter(v.autoCenterSaved[0], v.autoCenterSaved[1])
		v.fullUpdateAsNeeded()
	}
}

// SetWatching selects the athlete the view follows. Zero clears it.
func (v *Viewport) SetWatching(athleteID int) {
	v.update(func() {
		if ent := v.ents[AthleteEntityID(v.watchingID)]; v.watchingID != 0 && ent != nil {
			ent.SetTag("watching", false)
		}
		v.watchingID = athleteID
		if ent := v.ents[AthleteEntityID(athleteID)]; athleteID != 0 && ent != nil {
			ent.SetTag("watching", true)
		}
		v.setDragOffset(0, 0)
	})
}

// SetAthlete selects the local athlete. Zero clears it.
func (v *Viewport) SetAthlete(athleteID int) {
	v.update(func() {
		if ent := v.ents[AthleteEntityID(v.athleteID)]; v.athleteID != 0 && ent != nil {
			ent.SetTag("self", false)
		}
		v.athleteID = athleteID
		if ent := v.ents[AthleteEntityID(athleteID)]; athleteID != 0 && ent != nil {
			ent.SetTag("self", true)
		}
	})
}

// SetBounds centres and zooms the view to fit the world rectangle between
// topLeft and bottomRight, padded by pad (0.12 when negative).
func (v *Viewport) SetBounds(topLeft, bottomRight [2]float64, pad float64) {
	if pad < 0 {
		pad = 0.12
	}
	v.update(func() {
		if v.mapScale == 0 || v.scene.Width <= 0 || v.scene.Height <= 0 {
			return
		}
		width := bottomRight[0] - topLeft[0]
		height := topLeft[1] - bottomRight[1]
		cx, cy := topLeft[0]+width/2, bottomRight[1]+height/2
		// Worlds end up rotated by -90 degrees, so the box is swapped.
		width, height = math.Abs(height), math.Abs(width)
		if width == 0 || height == 0 {
			return
		}
		var zoom float64
		if v.scene.Width/v.scene.Height > width/height {
			zoom = v.scene.Height / (height * (1 + pad) * v.mapScale)
		} else {
			zoom = v.scene.Width / (width * (1 + pad) * v.mapScale)
		}
		v.setCenter(cx, cy)
		v.setZoom(zoom, true)
	})
}

// SetSize updates the container size.
func (v *Viewport) SetSize(width, height float64) {
	v.update(func() {
		v.scene.Width, v.scene.Height = width, height
		v.fullUpdateAsNeeded()
	})
}

// Snapshot renders the current scene with backend.
func (v *Viewport) Snapshot(w io.Writer, backend scene.Backend) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return backend.Render(w, v.scene)
}

// Drain waits for background athlete detail refreshes to finish.
func (v *Viewport) Drain() { v.background.Wait() }

// State is a read-only summary of the view.
type State struct {
	CourseID      int        `json:"courseId"`
	Portal        bool       `json:"portal"`
	RoadID        *int       `json:"roadId,omitempty"`
	RouteID       int        `json:"routeId,omitempty"`
	RouteLaps     int        `json:"routeLaps,omitempty"`
	WatchingID    int        `json:"watchingId,omitempty"`
	AthleteID     int        `json:"athleteId,omitempty"`
	Zoom          float64    `json:"zoom"`
	Center        [2]float64 `json:"center"`
	Heading       float64    `json:"heading"`
	HeadingOffset float64    `json:"headingOffset"`
	TiltShift     float64    `json:"tiltShift"`
	TiltAngle     float64    `json:"tiltAngle"`
	DragOffset    [2]float64 `json:"dragOffset"`
	Quality       float64    `json:"quality"`
	CanvasScale   float64    `json:"canvasScale"`
	LayerScale    float64    `json:"layerScale"`
	Style         string     `json:"style"`
	Rotated       bool       `json:"rotated"`
	Paused        bool       `json:"paused"`
	Entities      int        `json:"entities"`
}

// State returns the current view summary.
func (v *Viewport) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := State{
		CourseID:      v.courseID,
		Portal:        v.portal,
		RouteID:       v.routeID,
		RouteLaps:     v.routeLaps,
		WatchingID:    v.watchingID,
		AthleteID:     v.athleteID,
		Zoom:          v.zoom,
		Center:        v.center,
		Heading:       v.heading,
		HeadingOffset: v.headingOffset,
		TiltShift:     v.tiltShift,
		TiltAngle:     v.tiltAngle,
		DragOffset:    v.dragOffset,
		Quality:       v.quality,
		CanvasScale:   v.canvasScale,
		LayerScale:    v.layerScale,
		Style:         v.style,
		Rotated:       v.rotateCoordinates,
		Paused:        v.pause.Held(),
		Entities:      len(v.ents),
	}
	if v.hasRoad {
		id := v.roadID
		s.RoadID = &id
	}
	return s
}

// MapTransform returns the target global transform vector: origin x/y,
// translate x/y, scale, tilt height, tilt angle, vertical offset, rotation.
func (v *Viewport) MapTransform() []float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mapTransition.Values()
}

// SampleMapTransform returns the displayed global transform vector.
func (v *Viewport) SampleMapTransform() []float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mapTransition.Sample()
}
