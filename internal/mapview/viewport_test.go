package mapview

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/saucemap/internal/config"
	"github.com/banshee-data/saucemap/internal/testutil"
	"github.com/banshee-data/saucemap/internal/timeutil"
	"github.com/banshee-data/saucemap/internal/transition"
	"github.com/banshee-data/saucemap/internal/world"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	v        *Viewport
	clock    *timeutil.MockClock
	geo      *testutil.Geometry
	images   *testutil.Images
	athletes *testutil.Athletes
}

func newFixture(t *testing.T, cfg *config.MapConfig, opts ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		clock:  timeutil.NewMockClock(epoch),
		geo:    testutil.NewGeometry(),
		images: testutil.NewImages(),
		athletes: testutil.NewAthletes(
			&world.AthleteData{AthleteID: 1, Athlete: &world.Athlete{Name: "Alex Rider", FLast: "A.Rider", Marked: true}},
			&world.AthleteData{AthleteID: 2, Athlete: &world.Athlete{Name: "Pace Partner", Type: "PACER_BOT"}, EventLeader: true},
		),
	}
	o := Options{
		Clock:    f.clock,
		Catalog:  testutil.NewCatalog(),
		Geometry: f.geo,
		Images:   f.images,
		Athletes: f.athletes,
		Events: testutil.Events{
			55: {ID: 55, RouteID: testutil.RouteWatopiaID, Laps: 3},
			56: {ID: 56, RouteID: 11, Laps: 4},
		},
		Width:  800,
		Height: 600,
	}
	for _, fn := range opts {
		fn(&o)
	}
	v, err := New(cfg, o)
	require.NoError(t, err)
	f.v = v
	return f
}

// withCourse builds a fixture showing courseID.
func withCourse(t *testing.T, courseID int) *fixture {
	t.Helper()
	f := newFixture(t, nil)
	require.NoError(t, f.v.SetCourse(context.Background(), courseID))
	return f
}

// frame advances past the frame cap and ticks once.
func (f *fixture) frame() {
	f.clock.Advance(50 * time.Millisecond)
	f.v.Tick(f.clock.Now())
}

func recoverErr(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	fn()
	return nil
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	s := f.v.State()

	assert.Equal(t, 1.0, s.Zoom)
	assert.Equal(t, 1.0, s.Quality)
	assert.Equal(t, "default", s.Style)
	assert.False(t, s.Paused)
	assert.Zero(t, s.CourseID)
	assert.Nil(t, s.RoadID)
	assert.Nil(t, f.v.MapTransform(), "no transform before a course")
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()
	q := 2.0
	_, err := New(&config.MapConfig{Quality: &q}, Options{})
	assert.Error(t, err)
}

func TestSetZoom_Clamped(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	var zooms []float64
	f.v.Subscribe(func(ev Event) {
		if z, ok := ev.(ZoomEvent); ok {
			zooms = append(zooms, z.Zoom)
		}
	})

	f.v.SetZoom(100)
	assert.Equal(t, 10.0, f.v.Zoom())
	f.v.SetZoom(0)
	assert.Equal(t, 0.25, f.v.Zoom())
	f.v.SetZoom(math.Inf(1))
	assert.Equal(t, 10.0, f.v.Zoom())
	assert.Equal(t, []float64{10, 0.25, 10}, zooms)
}

func TestPause(t *testing.T) {
	t.Parallel()

	t.Run("underflow panics", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		err := recoverErr(f.v.DecPause)
		require.Error(t, err)
		assert.True(t, errors.Is(err, transition.ErrRefCountUnderflow))
		// The viewport lock was released by the panic.
		assert.False(t, f.v.Paused())
	})

	t.Run("suppresses frames", func(t *testing.T) {
		t.Parallel()
		f := withCourse(t, testutil.CourseRichmond)
		f.v.IncPause()
		f.v.IncPause()
		assert.True(t, f.v.Paused())
		before := len(f.v.FrameStats())
		f.frame()
		f.frame()
		assert.Len(t, f.v.FrameStats(), before)

		f.v.DecPause()
		assert.True(t, f.v.Paused())
		f.v.DecPause()
		assert.False(t, f.v.Paused())
		assert.Len(t, f.v.FrameStats(), before+1, "last release renders")
	})

	t.Run("scoped", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		f.v.WithPause(func() { assert.True(t, f.v.Paused()) })
		assert.False(t, f.v.Paused())
	})

	t.Run("freezes the map transition", func(t *testing.T) {
		t.Parallel()
		f := withCourse(t, testutil.CourseRichmond)
		before := f.v.SampleMapTransform()
		f.v.IncPause()
		f.v.SetCenter(1000, 1000)
		f.clock.Advance(2 * time.Second)
		assert.Equal(t, before, f.v.SampleMapTransform())
		f.v.DecPause()
		assert.NotEqual(t, before, f.v.SampleMapTransform())
	})
}

func TestSetters(t *testing.T) {
	t.Parallel()
	f := withCourse(t, testutil.CourseRichmond)

	f.v.SetTiltShift(5)
	assert.Equal(t, 1.0, f.v.State().TiltShift)
	f.v.SetTiltShift(-1)
	assert.Equal(t, 0.0, f.v.State().TiltShift)

	f.v.SetOpacity(math.NaN())
	assert.Equal(t, 1.0, f.v.scene.Opacity)
	f.v.SetOpacity(0.5)
	assert.Equal(t, 0.5, f.v.scene.Opacity)

	f.v.SetSparkle(true)
	assert.True(t, f.v.scene.Root.HasClass("sparkle"))
	f.v.SetSparkle(false)
	assert.False(t, f.v.scene.Root.HasClass("sparkle"))

	f.v.SetVerticalOffset(0.25)
	assert.InDelta(t, 0.25*600, f.v.MapTransform()[7], 1e-9)
}

func TestSetFPSLimit(t *testing.T) {
	t.Parallel()
	f := withCourse(t, testutil.CourseRichmond)
	f.v.SetFPSLimit(25) // 40ms per frame

	now := f.clock.Now().Add(time.Second)
	n := len(f.v.FrameStats())
	f.v.Tick(now)
	f.v.Tick(now.Add(10 * time.Millisecond))
	f.v.Tick(now.Add(39 * time.Millisecond))
	assert.Len(t, f.v.FrameStats(), n+1)
	f.v.Tick(now.Add(40 * time.Millisecond))
	assert.Len(t, f.v.FrameStats(), n+2)

	f.v.SetFPSLimit(0)
	f.v.Tick(now.Add(41 * time.Millisecond))
	assert.Len(t, f.v.FrameStats(), n+3)
}

func TestSetBounds(t *testing.T) {
	t.Parallel()
	f := withCourse(t, testutil.CourseRichmond)

	f.v.SetBounds([2]float64{-1000, 1000}, [2]float64{1000, -1000}, 0)
	s := f.v.State()
	assert.InDelta(t, 3, s.Zoom, 1e-9)
	assert.Equal(t, [2]float64{0, 0}, s.Center)

	f.v.SetBounds([2]float64{0, 1000}, [2]float64{1000, -1000}, -1)
	s = f.v.State()
	// 2000 tall by 1000 wide, swapped: fits on width.
	assert.InDelta(t, 800/(2000*1.12*0.1), s.Zoom, 1e-9)
	assert.Equal(t, [2]float64{500, 0}, s.Center)
}
