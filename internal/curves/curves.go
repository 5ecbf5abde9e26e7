// Package curves builds smooth drawable paths from road and route points.
package curves

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrTooFewPoints is returned when a curve cannot be built from the input.
var ErrTooFewPoints = errors.New("curves: too few points")

// Node is one cubic segment ending at End. The first node of a path has no
// control points and only marks the start.
type Node struct {
	End r2.Vec
	CP1 *r2.Vec
	CP2 *r2.Vec
}

// Path is a sequence of cubic Bezier segments.
type Path struct {
	Nodes []Node
}

// CatmullRomPath returns a uniform Catmull-Rom spline through points,
// expressed as cubic Bezier segments. Open paths reuse the end points as
// phantom neighbours; looped paths wrap.
func CatmullRomPath(points []r2.Vec, loop bool) (*Path, error) {
	n := len(points)
	if n < 2 {
		return nil, fmt.Errorf("catmull-rom with %d points: %w", n, ErrTooFewPoints)
	}
	at := func(i int) r2.Vec {
		if loop {
			return points[((i%n)+n)%n]
		}
		if i < 0 {
			return points[0]
		}
		if i >= n {
			return points[n-1]
		}
		return points[i]
	}
	segments := n - 1
	if loop {
		segments = n
	}
	p := &Path{Nodes: make([]Node, 0, segments+1)}
	p.Nodes = append(p.Nodes, Node{End: points[0]})
	for i := 0; i < segments; i++ {
		p0, p1, p2, p3 := at(i-1), at(i), at(i+1), at(i+2)
		cp1 := r2.Add(p1, r2.Scale(1.0/6, r2.Sub(p2, p0)))
		cp2 := r2.Sub(p2, r2.Scale(1.0/6, r2.Sub(p3, p1)))
		p.Nodes = append(p.Nodes, Node{End: p2, CP1: &cp1, CP2: &cp2})
	}
	return p, nil
}

// CubicBezierPath builds a path from explicit control points laid out as
// start, (cp1, cp2, end)... When loop is set a final straight segment closes
// the path back to the start.
func CubicBezierPath(points []r2.Vec, loop bool) (*Path, error) {
	if len(points) < 4 || (len(points)-1)%3 != 0 {
		return nil, fmt.Errorf("bezier with %d points (want 3n+1): %w", len(points), ErrTooFewPoints)
	}
	p := &Path{Nodes: []Node{{End: points[0]}}}
	for i := 1; i+2 < len(points); i += 3 {
		cp1, cp2 := points[i], points[i+1]
		p.Nodes = append(p.Nodes, Node{End: points[i+2], CP1: &cp1, CP2: &cp2})
	}
	if loop {
		last := p.Nodes[len(p.Nodes)-1].End
		first := points[0]
		cp1 := r2.Add(last, r2.Scale(1.0/3, r2.Sub(first, last)))
		cp2 := r2.Add(last, r2.Scale(2.0/3, r2.Sub(first, last)))
		p.Nodes = append(p.Nodes, Node{End: first, CP1: &cp1, CP2: &cp2})
	}
	return p, nil
}

// segment returns the control polygon for node i (i >= 1).
func (p *Path) segment(i int) (a, b, c, d r2.Vec) {
	a = p.Nodes[i-1].End
	d = p.Nodes[i].End
	b, c = a, d
	if p.Nodes[i].CP1 != nil {
		b = *p.Nodes[i].CP1
	}
	if p.Nodes[i].CP2 != nil {
		c = *p.Nodes[i].CP2
	}
	return a, b, c, d
}

// firstLast returns the range of segments drawn. Without edges the lead-in
// and lead-out segments are dropped when there are enough segments left.
func (p *Path) firstLast(includeEdges bool) (int, int) {
	first, last := 1, len(p.Nodes)-1
	if !includeEdges && last-first >= 2 {
		first++
		last--
	}
	return first, last
}

// ToSVGPath renders the path as SVG path data.
func (p *Path) ToSVGPath(includeEdges bool) string {
	if len(p.Nodes) == 0 {
		return ""
	}
	first, last := p.firstLast(includeEdges)
	var sb strings.Builder
	start := p.Nodes[first-1].End
	sb.WriteString("M")
	writePoint(&sb, start)
	for i := first; i <= last; i++ {
		_, b, c, d := p.segment(i)
		sb.WriteString(" C")
		writePoint(&sb, b)
		sb.WriteString(" ")
		writePoint(&sb, c)
		sb.WriteString(" ")
		writePoint(&sb, d)
	}
	return sb.String()
}

func writePoint(sb *strings.Builder, v r2.Vec) {
	sb.WriteString(strconv.FormatFloat(round3(v.X), 'f', -1, 64))
	sb.WriteString(",")
	sb.WriteString(strconv.FormatFloat(round3(v.Y), 'f', -1, 64))
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

// Flatten samples the path into a polyline with steps points per segment.
func (p *Path) Flatten(steps int, includeEdges bool) []r2.Vec {
	if len(p.Nodes) == 0 {
		return nil
	}
	if steps < 1 {
		steps = 1
	}
	first, last := p.firstLast(includeEdges)
	out := []r2.Vec{p.Nodes[first-1].End}
	for i := first; i <= last; i++ {
		a, b, c, d := p.segment(i)
		for s := 1; s <= steps; s++ {
			out = append(out, cubic(a, b, c, d, float64(s)/float64(steps)))
		}
	}
	return out
}

// Bounds returns the axis aligned bounds of the path's anchor and control
// points, which always contain the curve.
func (p *Path) Bounds() (min, max r2.Vec) {
	min = r2.Vec{X: math.Inf(1), Y: math.Inf(1)}
	max = r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	grow := func(v r2.Vec) {
		min.X, min.Y = math.Min(min.X, v.X), math.Min(min.Y, v.Y)
		max.X, max.Y = math.Max(max.X, v.X), math.Max(max.Y, v.Y)
	}
	for _, n := range p.Nodes {
		grow(n.End)
		if n.CP1 != nil {
			grow(*n.CP1)
		}
		if n.CP2 != nil {
			grow(*n.CP2)
		}
	}
	return min, max
}

func cubic(a, b, c, d r2.Vec, t float64) r2.Vec {
	mt := 1 - t
	w0 := mt * mt * mt
	w1 := 3 * mt * mt * t
	w2 := 3 * mt * t * t
	w3 := t * t * t
	return r2.Vec{
		X: w0*a.X + w1*b.X + w2*c.X + w3*d.X,
		Y: w0*a.Y + w1*b.Y + w2*c.Y + w3*d.Y,
	}
}

// Points converts [x, y] pairs into vectors.
func Points(pairs [][2]float64) []r2.Vec {
	out := make([]r2.Vec, len(pairs))
	for i, p := range pairs {
		out[i] = r2.Vec{X: p[0], Y: p[1]}
	}
	return out
}
