package curves

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestCatmullRomPath_PassesThroughPoints(t *testing.T) {
	pts := []r2.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	p, err := CatmullRomPath(pts, false)
	require.NoError(t, err)
	require.Len(t, p.Nodes, 4)

	for i, n := range p.Nodes {
		assert.Equal(t, pts[i], n.End)
	}
	assert.Nil(t, p.Nodes[0].CP1)

	poly := p.Flatten(8, true)
	assert.Equal(t, pts[0], poly[0])
	assert.InDelta(t, pts[3].X, poly[len(poly)-1].X, 1e-12)
	assert.InDelta(t, pts[3].Y, poly[len(poly)-1].Y, 1e-12)
}

func TestCatmullRomPath_Loop(t *testing.T) {
	pts := []r2.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 5, Y: 8}}
	p, err := CatmullRomPath(pts, true)
	require.NoError(t, err)
	// start marker + one segment per point
	require.Len(t, p.Nodes, 4)
	assert.Equal(t, pts[0], p.Nodes[3].End)
}

func TestCatmullRomPath_TooFewPoints(t *testing.T) {
	_, err := CatmullRomPath([]r2.Vec{{X: 1, Y: 1}}, false)
	assert.ErrorIs(t, err, ErrTooFewPoints)
}

func TestCatmullRomPath_StraightLineControls(t *testing.T) {
	pts := []r2.Vec{{X: 0, Y: 0}, {X: 3, Y: 0}, {X: 6, Y: 0}}
	p, err := CatmullRomPath(pts, false)
	require.NoError(t, err)
	for _, n := range p.Nodes[1:] {
		assert.Zero(t, n.CP1.Y)
		assert.Zero(t, n.CP2.Y)
	}
}

func TestCubicBezierPath(t *testing.T) {
	pts := []r2.Vec{{X: 0, Y: 0}, {X: 0, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 0}}
	p, err := CubicBezierPath(pts, false)
	require.NoError(t, err)
	assert.Equal(t, "M0,0 C0,5 5,5 5,0", p.ToSVGPath(true))

	looped, err := CubicBezierPath(pts, true)
	require.NoError(t, err)
	assert.Len(t, looped.Nodes, 3)

	_, err = CubicBezierPath(pts[:3], false)
	assert.ErrorIs(t, err, ErrTooFewPoints)
}

func TestPath_ToSVGPathEdges(t *testing.T) {
	pts := []r2.Vec{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 3, Y: 0}, {X: 4, Y: 0}}
	p, err := CatmullRomPath(pts, false)
	require.NoError(t, err)

	full := p.ToSVGPath(true)
	trimmed := p.ToSVGPath(false)
	assert.Contains(t, full, "M0,0")
	assert.Contains(t, trimmed, "M1,0")
	assert.Less(t, len(trimmed), len(full))
}

func TestPath_Bounds(t *testing.T) {
	pts := Points([][2]float64{{-2, 1}, {4, 3}, {1, -5}})
	p, err := CatmullRomPath(pts, false)
	require.NoError(t, err)
	min, max := p.Bounds()
	assert.LessOrEqual(t, min.X, -2.0)
	assert.LessOrEqual(t, min.Y, -5.0)
	assert.GreaterOrEqual(t, max.X, 4.0)
	assert.GreaterOrEqual(t, max.Y, 3.0)
}
