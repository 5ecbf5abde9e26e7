package mapview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/saucemap/internal/testutil"
)

func TestWheel(t *testing.T) {
	t.Parallel()
	f := withCourse(t, testutil.CourseRichmond)
	var zooms []float64
	f.v.Subscribe(func(ev Event) {
		if z, ok := ev.(ZoomEvent); ok {
			zooms = append(zooms, z.Zoom)
		}
	})

	f.v.Wheel(0)
	f.v.Wheel(-200)
	assert.InDelta(t, 1.1, f.v.Zoom(), 1e-12)
	assert.Empty(t, zooms, "zoom is published on the next frame")

	f.frame()
	require.Len(t, zooms, 1)
	assert.InDelta(t, 1.1, zooms[0], 1e-12)
	assert.True(t, f.v.mapTransition.Disabled(), "frozen during the grace window")
	assert.True(t, f.v.trackingPaused)

	f.clock.Advance(60 * time.Millisecond)
	f.v.Tick(f.clock.Now())
	assert.True(t, f.v.mapTransition.Disabled())

	f.clock.Advance(60 * time.Millisecond)
	f.v.Tick(f.clock.Now())
	assert.False(t, f.v.mapTransition.Disabled())
	assert.False(t, f.v.trackingPaused)
}

func TestDrag(t *testing.T) {
	t.Parallel()

	t.Run("pans in world units", func(t *testing.T) {
		t.Parallel()
		f := withCourse(t, testutil.CourseRichmond)
		var drags []DragEvent
		f.v.Subscribe(func(ev Event) {
			if d, ok := ev.(DragEvent); ok {
				drags = append(drags, d)
			}
		})

		f.v.PointerDown(PointerEvent{ID: 1, X: 100, Y: 100})
		f.v.PointerMove(PointerEvent{ID: 1, X: 110, Y: 100})
		assert.True(t, f.v.scene.Root.HasClass("moving"))
		assert.True(t, f.v.mapTransition.Disabled())
		f.frame()

		// The map is drawn rotated by -90 degrees, scale 1/(1*0.1).
		off := f.v.State().DragOffset
		assert.InDelta(t, 0, off[0], 1e-9)
		assert.InDelta(t, 100, off[1], 1e-9)
		require.Len(t, drags, 1)
		require.NotNil(t, drags[0].Drag)
		assert.Equal(t, off, *drags[0].Drag)

		f.v.PointerUp(PointerEvent{ID: 1})
		assert.False(t, f.v.scene.Root.HasClass("moving"))
		assert.False(t, f.v.mapTransition.Disabled())
		assert.False(t, f.v.trackingPaused)
	})

	t.Run("ctrl adjusts heading and tilt", func(t *testing.T) {
		t.Parallel()
		f := withCourse(t, testutil.CourseRichmond)
		f.v.PointerDown(PointerEvent{ID: 1, X: 100, Y: 100})
		f.v.PointerMove(PointerEvent{ID: 1, X: 110, Y: 0, Ctrl: true})
		f.frame()

		s := f.v.State()
		assert.InDelta(t, -1, s.HeadingOffset, 1e-12)
		assert.InDelta(t, 0.1, s.TiltShift, 1e-12)
		assert.Equal(t, [2]float64{0, 0}, s.DragOffset)
		f.v.PointerCancel(PointerEvent{ID: 1})
		assert.False(t, f.v.mapTransition.Disabled())
	})

	t.Run("secondary button is ignored", func(t *testing.T) {
		t.Parallel()
		f := withCourse(t, testutil.CourseRichmond)
		f.v.PointerDown(PointerEvent{ID: 1, X: 100, Y: 100, Button: 2})
		f.v.PointerMove(PointerEvent{ID: 1, X: 200, Y: 100, Button: 2})
		f.frame()
		assert.Equal(t, [2]float64{0, 0}, f.v.State().DragOffset)
		assert.False(t, f.v.mapTransition.Disabled())
	})
}

func TestPinch(t *testing.T) {
	t.Parallel()
	f := withCourse(t, testutil.CourseRichmond)

	f.v.PointerDown(PointerEvent{ID: 1, X: 0, Y: 0})
	f.v.PointerDown(PointerEvent{ID: 2, X: 100, Y: 0})
	f.v.PointerMove(PointerEvent{ID: 2, X: 160, Y: 0})
	f.frame()
	assert.InDelta(t, 1.1, f.v.Zoom(), 1e-12)

	// A third pointer neither starts nor moves anything.
	f.v.PointerDown(PointerEvent{ID: 3, X: 500, Y: 500})
	f.v.PointerMove(PointerEvent{ID: 3, X: 900, Y: 900})
	f.frame()
	assert.InDelta(t, 1.1, f.v.Zoom(), 1e-12)

	f.v.PointerMove(PointerEvent{ID: 1, X: 60, Y: 0})
	f.frame()
	assert.InDelta(t, 1.0, f.v.Zoom(), 1e-12)
	assert.Equal(t, [2]float64{0, 0}, f.v.State().DragOffset, "pinching does not pan")

	f.v.PointerUp(PointerEvent{ID: 1})
	assert.False(t, f.v.mapTransition.Disabled())
}
