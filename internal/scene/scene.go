package scene

import (
	"fmt"
	"io"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

// View is the container transform applied to the map layer: rotate about
// Origin, shift by VerticalOffset, tilt with perspective, scale, translate.
type View struct {
	Origin         r2.Vec
	Translate      r2.Vec
	Scale          float64
	TiltHeight     float64
	TiltAngle      float64 // degrees
	VerticalOffset float64
	Rotate         float64 // degrees
}

// RoadLayers hold the course road network.
type RoadLayers struct {
	Gutters      *Node
	SurfacesLow  *Node
	SurfacesMid  *Node
	SurfacesHigh *Node
}

// UserLayers hold caller drawn shapes and highlights.
type UserLayers struct {
	SurfacesLow  *Node
	SurfacesMid  *Node
	SurfacesHigh *Node
}

// Layer returns the surface for "low", "mid" or "high" (the default).
func (u UserLayers) Layer(name string) *Node {
	switch name {
	case "low":
		return u.SurfacesLow
	case "mid":
		return u.SurfacesMid
	default:
		return u.SurfacesHigh
	}
}

// Scene is the full map tree plus the numbers needed to project it.
type Scene struct {
	Root       *Node
	Map        *Node
	Background *Node
	Paths      *Node
	Defs       *Node
	PathLayers *Node
	Roads      RoadLayers
	User       UserLayers
	Ents       *Node
	Pins       *Node

	// Width and Height are the container size in screen pixels.
	Width, Height float64

	View View

	// ViewBox is the world rectangle of the path layer (x, y, w, h).
	ViewBox [4]float64

	// EntsOffset is the entity layer origin in layer pixels and WorldScale
	// converts display world units to layer pixels.
	EntsOffset r2.Vec
	WorldScale float64

	Opacity float64
}

// New builds the empty map tree.
func New(width, height float64) *Scene {
	s := &Scene{
		Root:       NewGroup("sauce-map-container"),
		Map:        NewGroup("sauce-map"),
		Background: NewImage("map-background"),
		Paths:      NewGroup("paths"),
		Defs:       NewGroup("defs"),
		PathLayers: NewGroup("path-layers"),
		Roads: RoadLayers{
			Gutters:      NewGroup("gutters"),
			SurfacesLow:  NewGroup("surfaces", "low"),
			SurfacesMid:  NewGroup("surfaces", "mid"),
			SurfacesHigh: NewGroup("surfaces", "high"),
		},
		User: UserLayers{
			SurfacesLow:  NewGroup("surfaces", "low", "user"),
			SurfacesMid:  NewGroup("surfaces", "mid", "user"),
			SurfacesHigh: NewGroup("surfaces", "high", "user"),
		},
		Ents:    NewGroup("entities"),
		Pins:    NewGroup("pins"),
		Width:   width,
		Height:  height,
		View:    View{Scale: 1},
		Opacity: 1,
	}
	s.Paths.Append(s.Defs, s.PathLayers)
	s.PathLayers.Append(s.Roads.Gutters, s.Roads.SurfacesLow, s.Roads.SurfacesMid, s.Roads.SurfacesHigh)
	s.PathLayers.Append(s.User.SurfacesLow, s.User.SurfacesMid, s.User.SurfacesHigh)
	s.Map.Append(s.Background, s.Paths, s.Ents)
	s.Root.Append(s.Map, s.Pins)
	return s
}

// RotatedPaths reports whether path geometry is drawn in rotated
// coordinates.
func (s *Scene) RotatedPaths() bool { return s.PathLayers.HasClass("rotated-coordinates") }

// PathToLayer converts a path point (world units) into layer pixels.
func (s *Scene) PathToLayer(p r2.Vec) r2.Vec {
	if s.RotatedPaths() {
		p = r2.Vec{X: p.Y, Y: -p.X}
	}
	return r2.Add(s.EntsOffset, r2.Scale(s.WorldScale, p))
}

// MarkerToLayer returns the layer position of an entity marker.
func (s *Scene) MarkerToLayer(n *Node) r2.Vec { return r2.Add(s.EntsOffset, n.Translate) }

// Project maps layer pixels to container pixels. The layer origin sits at
// the container centre. The second result is false for points behind the
// tilted camera.
func (s *Scene) Project(p r2.Vec) (r2.Vec, bool) {
	v := s.View
	q := r2.Sub(p, v.Origin)
	if v.Rotate != 0 {
		sin, cos := math.Sincos(v.Rotate * math.Pi / 180)
		q = r2.Vec{X: q.X*cos - q.Y*sin, Y: q.X*sin + q.Y*cos}
	}
	q.Y += v.VerticalOffset
	ok := true
	if v.TiltHeight != 0 {
		sin, cos := math.Sincos(v.TiltAngle * math.Pi / 180)
		z := q.Y * sin
		q.Y *= cos
		w := 1 - z/v.TiltHeight
		if w <= 1e-3 {
			w, ok = 1e-3, false
		}
		q = r2.Scale(1/w, q)
	}
	q = r2.Scale(v.Scale, q)
	q = r2.Add(q, r2.Add(v.Translate, v.Origin))
	return r2.Add(q, r2.Vec{X: s.Width / 2, Y: s.Height / 2}), ok
}

// Backend renders a scene.
type Backend interface {
	Render(w io.Writer, s *Scene) error
}

// TextBackend writes an indented outline of the tree.
type TextBackend struct{}

// Render implements Backend.
func (TextBackend) Render(w io.Writer, s *Scene) error {
	for _, line := range Outline(s.Root) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Outline describes a subtree one node per line, children indented.
func Outline(n *Node) []string {
	var out []string
	var walk func(*Node, int)
	walk = func(n *Node, depth int) {
		var sb strings.Builder
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(n.Kind.String())
		for _, c := range n.Classes() {
			sb.WriteString(".")
			sb.WriteString(c)
		}
		if n.ID != "" {
			sb.WriteString("#")
			sb.WriteString(n.ID)
		}
		if n.Href != "" {
			sb.WriteString(" -> ")
			sb.WriteString(n.Href)
		}
		if n.Hidden {
			sb.WriteString(" (hidden)")
		}
		out = append(out, sb.String())
		for _, c := range n.children {
			walk(c, depth+1)
		}
	}
	walk(n, 0)
	return out
}
