package mapview

import (
	"math"
	"time"
)

// PointerEvent is one pointer sample in container pixels.
type PointerEvent struct {
	ID     int     `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button int     `json:"button"`
	Ctrl   bool    `json:"ctrl,omitempty"`
}

type wheelState struct {
	frame    bool
	active   bool
	deadline time.Time
}

type pointerState struct {
	listening    bool
	active       bool
	ev1, ev2     *PointerEvent
	lastX, lastY float64
	lastDistance float64
	dragFrame    *PointerEvent
	zoomFrame    bool
}

func distance(a, b PointerEvent) float64 { return math.Hypot(b.X-a.X, b.Y-a.Y) }

// Wheel zooms by a scroll delta. The map transition stays frozen until the
// wheel has been still for the grace window.
func (v *Viewport) Wheel(deltaY float64) {
	if deltaY == 0 {
		return
	}
	v.update(func() {
		v.trackingPaused = true
		v.adjustZoom(-deltaY / 2000 * v.zoom)
		v.wheel.frame = true
	})
}

// PointerDown starts a drag, or a pinch when a second pointer lands. Only
// the primary button counts and a third pointer is ignored.
func (v *Viewport) PointerDown(ev PointerEvent) {
	v.update(func() {
		st := &v.pointer
		if ev.Button != 0 || (st.ev1 != nil && st.ev2 != nil) {
			return
		}
		if st.ev1 != nil {
			st.ev2 = &ev
			v.scene.Root.RemoveClass("moving")
			st.lastDistance = distance(ev, *st.ev1)
			return
		}
		st.ev1 = &ev
		st.active = false
		st.lastX, st.lastY = ev.X, ev.Y
		st.listening = true
	})
}

// PointerMove continues the current gesture.
func (v *Viewport) PointerMove(ev PointerEvent) {
	v.update(func() {
		st := &v.pointer
		if !st.listening {
			return
		}
		if !st.active {
			st.active = true
			v.trackingPaused = true
			v.scene.Root.AddClass("moving")
			v.mapTransition.IncDisabled()
		}
		if st.ev2 == nil {
			st.dragFrame = &ev
			return
		}
		v.pinch(ev)
	})
}

func (v *Viewport) pinch(ev PointerEvent) {
	st := &v.pointer
	var other PointerEvent
	switch ev.ID {
	case st.ev1.ID:
		other = *st.ev2
		st.ev1 = &ev
	case st.ev2.ID:
		other = *st.ev1
		st.ev2 = &ev
	default:
		return
	}
	d := distance(ev, other)
	delta := d - st.lastDistance
	st.lastDistance = d
	v.adjustZoom(delta / 600)
	st.zoomFrame = true
}

// PointerUp ends the gesture.
func (v *Viewport) PointerUp(PointerEvent) { v.update(v.pointerDone) }

// PointerCancel ends the gesture.
func (v *Viewport) PointerCancel(PointerEvent) { v.update(v.pointerDone) }

func (v *Viewport) pointerDone() {
	st := &v.pointer
	if !st.listening {
		return
	}
	if st.active {
		v.scene.Root.RemoveClass("moving")
		v.mapTransition.DecDisabled()
		st.active = false
	}
	st.listening = false
	st.ev1, st.ev2 = nil, nil
	v.trackingPaused = false
}

// runFrameCallbacks applies the gesture work deferred to the next frame.
func (v *Viewport) runFrameCallbacks(now time.Time) {
	if v.wheel.frame {
		v.wheel.frame = false
		if !v.wheel.active {
			v.mapTransition.IncDisabled()
			v.wheel.active = true
		}
		v.applyZoom(false)
		v.wheel.deadline = now.Add(v.wheelGrace)
	}
	if ev := v.pointer.dragFrame; ev != nil {
		v.pointer.dragFrame = nil
		v.drag(*ev)
	}
	if v.pointer.zoomFrame {
		v.pointer.zoomFrame = false
		v.applyZoom(false)
	}
}

func (v *Viewport) checkWheelGrace(now time.Time) {
	if !v.wheel.active || now.Before(v.wheel.deadline) {
		return
	}
	v.trackingPaused = false
	v.wheel.active = false
	v.mapTransition.DecDisabled()
}

// drag applies one pointer delta: a pan, or heading and tilt with ctrl.
func (v *Viewport) drag(ev PointerEvent) {
	st := &v.pointer
	dx, dy := ev.X-st.lastX, ev.Y-st.lastY
	st.lastX, st.lastY = ev.X, ev.Y
	if ev.Ctrl {
		heading := v.headingOffset - dx*0.1
		v.setHeadingOffset(heading)
		tilt := v.tiltShift - dy*0.001
		v.setTiltShift(tilt)
		tilt = v.tiltShift
		v.queue(DragEvent{HeadingOffset: &heading, TiltShift: &tilt})
		return
	}
	if v.mapScale == 0 || v.zoom == 0 {
		return
	}
	t := v.unrotateWorldPos(dx, dy)
	l := math.Hypot(t[0], t[1])
	a := math.Atan2(t[1], t[0]) - v.renderedRotate/180*math.Pi
	f := 1 / (v.zoom * v.mapScale / v.canvasScale)
	pos := [2]float64{
		v.dragOffset[0] + math.Cos(a)*l*f,
		v.dragOffset[1] + math.Sin(a)*l*f,
	}
	v.setDragOffset(pos[0], pos[1])
	v.queue(DragEvent{Drag: &pos})
}
