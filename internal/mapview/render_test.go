package mapview

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/saucemap/internal/scene"
	"github.com/banshee-data/saucemap/internal/testutil"
)

func TestRegistry(t *testing.T) {
	t.Parallel()
	f := withCourse(t, testutil.CourseRichmond)

	e := f.v.NewEntity("a", KindGeneric)
	require.NoError(t, f.v.AddEntity(e))
	assert.ErrorIs(t, f.v.AddEntity(f.v.NewEntity("a", KindGeneric)), ErrDuplicateEntity)
	assert.Same(t, e, f.v.Entity("a"))

	p, err := f.v.AddPoint(100, 200, "poi")
	require.NoError(t, err)
	assert.Equal(t, KindPoint, p.Kind())
	assert.Zero(t, p.Duration())
	assert.True(t, p.HasTag("poi"))

	_, err = f.v.ClickEntity("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	infos := f.v.Entities()
	require.Len(t, infos, 2)

	assert.True(t, f.v.RemoveEntity("a"))
	assert.False(t, f.v.RemoveEntity("a"))
	assert.Nil(t, f.v.Entity("a"))
	require.NoError(t, f.v.AddEntity(e), "a removed entity can be added again")
}

func TestRender_EntityMotion(t *testing.T) {
	t.Parallel()
	f := withCourse(t, testutil.CourseRichmond)
	e := f.v.NewEntity("e1", KindGeneric)
	require.NoError(t, e.SetPosition(0, 0))
	require.NoError(t, f.v.AddEntity(e))

	f.frame()
	node := f.v.scene.Ents.ByID("e1")
	require.NotNil(t, node, "attached on the first frame")
	assert.Equal(t, []string{"entity", "generic"}, node.Classes())

	require.NoError(t, e.SetPosition(10, 0))
	f.clock.Advance(500 * time.Millisecond)
	f.v.Tick(f.clock.Now())
	// Half way, scaled by mapScale (0.1) and layer scale (1).
	assert.InDelta(t, 0.5, node.Translate.X, 1e-9)
	assert.True(t, f.v.pending.has(e), "still playing")

	f.clock.Advance(600 * time.Millisecond)
	f.v.Tick(f.clock.Now())
	assert.InDelta(t, 1.0, node.Translate.X, 1e-9)
	assert.False(t, f.v.pending.has(e))

	e.SetTag("watching", true)
	e.SetData("power-level", "z4")
	e.ToggleHidden(true)
	f.frame()
	assert.Equal(t, []string{"entity", "generic", "watching"}, node.Classes())
	assert.Equal(t, "z4", node.Attr("data-power-level"))
	assert.True(t, node.Hidden)
}

func TestRender_Pins(t *testing.T) {
	t.Parallel()
	f := withCourse(t, testutil.CourseRichmond)
	p, err := f.v.AddPoint(0, 0, "")
	require.NoError(t, err)
	f.frame()

	pinned, err := f.v.ClickEntity(p.ID())
	require.NoError(t, err)
	assert.True(t, pinned)
	f.frame()
	pin := f.v.scene.Pins.ByID(p.ID())
	require.NotNil(t, pin)
	assert.True(t, pin.Hidden, "no content yet")

	p.SetPinContent("Hello")
	f.frame()
	assert.False(t, pin.Hidden)
	assert.Equal(t, "Hello", pin.Content)
	// The pin sits over the projected marker.
	want, _ := f.v.scene.Project(f.v.scene.MarkerToLayer(p.node))
	assert.Equal(t, want, pin.Translate)

	pinned, err = f.v.ClickEntity(p.ID())
	require.NoError(t, err)
	assert.False(t, pinned)
	f.frame()
	assert.Nil(t, f.v.scene.Pins.ByID(p.ID()))
	assert.Empty(t, p.PinContent())
}

func TestRender_PinsSurviveCourseChange(t *testing.T) {
	t.Parallel()
	f := withCourse(t, testutil.CourseRichmond)
	p, err := f.v.AddPoint(0, 0, "")
	require.NoError(t, err)
	p.TogglePin(PinOn)
	p.SetPinContent("x")
	f.frame()
	require.NotNil(t, f.v.scene.Pins.ByID(p.ID()))

	require.NoError(t, f.v.SetCourse(context.Background(), testutil.CourseWatopia))
	f.frame()
	assert.NotNil(t, f.v.scene.Pins.ByID(p.ID()))
}

func TestCollectStale(t *testing.T) {
	t.Parallel()
	f := withCourse(t, testutil.CourseRichmond)
	stale := f.v.NewEntity("stale", KindAthlete)
	stale.gc = true
	fresh := f.v.NewEntity("fresh", KindAthlete)
	fresh.gc = true
	keep := f.v.NewEntity("keep", KindGeneric)
	for _, e := range []*Entity{stale, fresh, keep} {
		require.NoError(t, f.v.AddEntity(e))
	}
	f.frame()
	require.NotNil(t, f.v.scene.Ents.ByID("stale"))
	f.v.update(func() {
		stale.lastSeen = f.clock.Now()
		fresh.lastSeen = f.clock.Now().Add(10 * time.Second)
	})

	f.clock.Advance(16 * time.Second)
	f.v.CollectStale()
	assert.Nil(t, f.v.Entity("stale"))
	assert.NotNil(t, f.v.Entity("fresh"))
	assert.NotNil(t, f.v.Entity("keep"), "only collectable entities expire")
	assert.Nil(t, f.v.scene.Ents.ByID("stale"))
}

func TestTick_CollectsOnInterval(t *testing.T) {
	t.Parallel()
	f := withCourse(t, testutil.CourseRichmond)
	e := f.v.NewEntity("stale", KindAthlete)
	e.gc = true
	require.NoError(t, f.v.AddEntity(e))
	f.v.update(func() { e.lastSeen = f.clock.Now() })

	f.clock.Advance(9 * time.Second)
	f.v.Tick(f.clock.Now())
	assert.NotNil(t, f.v.Entity("stale"))

	// Due at 10s, but not yet stale.
	f.clock.Advance(2 * time.Second)
	f.v.Tick(f.clock.Now())
	assert.NotNil(t, f.v.Entity("stale"))

	f.clock.Advance(10 * time.Second)
	f.v.Tick(f.clock.Now())
	assert.Nil(t, f.v.Entity("stale"))
}

func TestRun(t *testing.T) {
	t.Parallel()
	f := withCourse(t, testutil.CourseRichmond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.v.Run(ctx) }()

	before := len(f.v.FrameStats())
	assert.Eventually(t, func() bool {
		f.clock.Advance(50 * time.Millisecond)
		return len(f.v.FrameStats()) > before
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	f := withCourse(t, testutil.CourseRichmond)
	var buf bytes.Buffer
	require.NoError(t, f.v.Snapshot(&buf, scene.TextBackend{}))
	assert.Contains(t, buf.String(), "road")
}
