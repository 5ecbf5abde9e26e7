package mapview

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/saucemap/internal/scene"
	"github.com/banshee-data/saucemap/internal/timeutil"
	"github.com/banshee-data/saucemap/internal/transition"
)

// ErrInvalidPosition is returned for positions with NaN or infinite
// components.
var ErrInvalidPosition = errors.New("invalid position")

// Kind is the entity category.
type Kind string

const (
	KindGeneric Kind = "generic"
	KindPoint   Kind = "point"
	KindAthlete Kind = "athlete"
)

// PinForce selects the TogglePin behaviour.
type PinForce int

const (
	// PinToggle removes an existing pin or creates a missing one.
	PinToggle PinForce = iota
	// PinOn creates a pin if there is none.
	PinOn
	// PinOff removes the pin if there is one.
	PinOff
)

// Rotation maps a stored world position to display coordinates.
type Rotation func(x, y float64) (float64, float64)

// RotateCoordinates is the rotation used by worlds drawn in rotated
// coordinates.
func RotateCoordinates(x, y float64) (float64, float64) { return y, -x }

func unrotateCoordinates(x, y float64) (float64, float64) { return -y, x }

// AthleteEntityID is the entity id used for an athlete.
func AthleteEntityID(athleteID int) string { return strconv.Itoa(athleteID) }

// Entity is a positioned, drawable object animated by a Transition. Its
// position is stored un-rotated; the rotation handed over by the viewport at
// attach time is applied when the position is fed to the transition.
type Entity struct {
	id   string
	kind Kind
	obs  observers

	mu         sync.Mutex
	transition *transition.Transition
	position   *[2]float64
	rotate     Rotation
	pinned     bool
	pinContent string
	hidden     bool
	tags       map[string]struct{}
	data       map[string]string

	// Viewport bookkeeping, guarded by the owning viewport's lock.
	isNew    bool
	gc       bool
	lastSeen time.Time
	delayEst *ewma
	node     *scene.Node
	pinNode  *scene.Node
}

// NewEntity returns a detached entity animated on clock (RealClock if nil).
func NewEntity(clock timeutil.Clock, id string, kind Kind) *Entity {
	if kind == "" {
		kind = KindGeneric
	}
	return &Entity{
		id:         id,
		kind:       kind,
		transition: transition.New(clock, transition.DefaultDuration),
		isNew:      true,
	}
}

// ID returns the caller supplied id.
func (e *Entity) ID() string { return e.id }

// Kind returns the entity category.
func (e *Entity) Kind() Kind { return e.kind }

// Subscribe registers fn for PositionEvent, PinnedEvent and ChangeEvent
// notifications and returns a function that removes it.
func (e *Entity) Subscribe(fn Handler) func() { return e.obs.subscribe(fn) }

// SetPosition moves the entity.
func (e *Entity) SetPosition(x, y float64) error {
	if !finite(x) || !finite(y) {
		return fmt.Errorf("entity %s: (%v, %v): %w", e.id, x, y, ErrInvalidPosition)
	}
	e.mu.Lock()
	e.setPositionLocked(x, y)
	e.mu.Unlock()
	e.obs.emit(PositionEvent{ID: e.id, X: x, Y: y})
	return nil
}

func (e *Entity) setPositionLocked(x, y float64) {
	e.position = &[2]float64{x, y}
	if e.rotate != nil {
		x, y = e.rotate(x, y)
	}
	e.transition.SetValues([]float64{x, y})
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Position returns the un-rotated world position.
func (e *Entity) Position() (x, y float64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.position == nil {
		return 0, 0, false
	}
	return e.position[0], e.position[1], true
}

// attach binds the entity to a rotation mode and re-applies the stored
// position without animating.
func (e *Entity) attach(rot Rotation) {
	e.mu.Lock()
	e.rotate = rot
	pos := e.position
	if pos != nil {
		e.transition.WithDisabled(func() { e.setPositionLocked(pos[0], pos[1]) })
	}
	e.mu.Unlock()
	if pos != nil {
		e.obs.emit(PositionEvent{ID: e.id, X: pos[0], Y: pos[1]})
	}
}

// SetDuration sets the position animation length.
func (e *Entity) SetDuration(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transition.SetDuration(d)
}

// Duration returns the position animation length.
func (e *Entity) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transition.Duration()
}

// Playing reports whether the entity is animating.
func (e *Entity) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transition.Playing()
}

// Sample returns the displayed position in display coordinates.
func (e *Entity) Sample() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transition.Sample()
}

// TogglePin creates or removes the pin and reports whether the entity is
// pinned afterwards. Removing a pin clears its content.
func (e *Entity) TogglePin(force PinForce) bool {
	e.mu.Lock()
	if e.pinned {
		if force != PinOn {
			e.pinned = false
			e.pinContent = ""
		}
	} else if force != PinOff {
		e.pinned = true
	}
	pinned := e.pinned
	e.mu.Unlock()
	e.obs.emit(PinnedEvent{ID: e.id, Visible: pinned})
	return pinned
}

// Pinned reports whether the entity has a pin.
func (e *Entity) Pinned() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pinned
}

// SetPinContent sets the pin text. Empty content keeps the pin hidden.
func (e *Entity) SetPinContent(content string) {
	e.mu.Lock()
	if e.pinContent == content {
		e.mu.Unlock()
		return
	}
	e.pinContent = content
	e.mu.Unlock()
	e.obs.emit(ChangeEvent{ID: e.id})
}

// PinContent returns the pin text.
func (e *Entity) PinContent() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pinContent
}

// PinVisible reports whether a pin exists and is shown.
func (e *Entity) PinVisible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pinVisibleLocked()
}

func (e *Entity) pinVisibleLocked() bool {
	return e.pinned && e.pinContent != "" && !e.hidden
}

// ToggleHidden hides or shows the entity and its pin.
func (e *Entity) ToggleHidden(hidden bool) {
	e.mu.Lock()
	changed := e.hidden != hidden
	e.hidden = hidden
	e.mu.Unlock()
	if changed {
		e.obs.emit(ChangeEvent{ID: e.id})
	}
}

// Hidden reports whether the entity is hidden.
func (e *Entity) Hidden() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hidden
}

// SetTag adds or removes a display tag.
func (e *Entity) SetTag(tag string, on bool) {
	e.mu.Lock()
	_, had := e.tags[tag]
	if on && !had {
		if e.tags == nil {
			e.tags = make(map[string]struct{})
		}
		e.tags[tag] = struct{}{}
	} else if !on && had {
		delete(e.tags, tag)
	}
	e.mu.Unlock()
	if on != had {
		e.obs.emit(ChangeEvent{ID: e.id})
	}
}

// HasTag reports whether tag is set.
func (e *Entity) HasTag(tag string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.tags[tag]
	return ok
}

// Tags returns the sorted tag list.
func (e *Entity) Tags() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tagsLocked()
}

func (e *Entity) tagsLocked() []string {
	out := make([]string, 0, len(e.tags))
	for t := range e.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SetData sets a keyed display attribute such as the power level. An empty
// value removes it.
func (e *Entity) SetData(key, value string) {
	e.mu.Lock()
	old := e.data[key]
	if value == "" {
		delete(e.data, key)
	} else {
		if e.data == nil {
			e.data = make(map[string]string)
		}
		e.data[key] = value
	}
	e.mu.Unlock()
	if old != value {
		e.obs.emit(ChangeEvent{ID: e.id})
	}
}

// Data returns a display attribute.
func (e *Entity) Data(key string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data[key]
}

// entityView is everything a frame needs from an entity, read under one
// lock.
type entityView struct {
	pos        []float64
	playing    bool
	tags       []string
	data       map[string]string
	hidden     bool
	pinned     bool
	pinVisible bool
	pinContent string
}

func (e *Entity) view() entityView {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := entityView{
		pos:        e.transition.Sample(),
		playing:    e.transition.Playing(),
		tags:       e.tagsLocked(),
		hidden:     e.hidden,
		pinned:     e.pinned,
		pinVisible: e.pinVisibleLocked(),
		pinContent: e.pinContent,
	}
	if len(e.data) > 0 {
		v.data = make(map[string]string, len(e.data))
		for k, val := range e.data {
			v.data[k] = val
		}
	}
	return v
}
