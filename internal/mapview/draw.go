package mapview

import (
	"strconv"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/saucemap/internal/curves"
	"github.com/banshee-data/saucemap/internal/scene"
)

// emWorldUnits is one shape size unit in world units (a metre).
const emWorldUnits = 100

// LineOptions style DrawLine. Zero values select the defaults.
type LineOptions struct {
	Color string  // "#000a"
	Size  float64 // 2
	Layer string  // "high"
	Title string
}

// CircleOptions style DrawCircle. Zero values select the defaults.
type CircleOptions struct {
	Color       string  // "#000a"
	Size        float64 // 10
	BorderColor string  // "gold"
	BorderSize  float64 // 0.5
	Layer       string  // "high"
	Title       string
}

// HighlightOptions style AddHighlightPath.
type HighlightOptions struct {
	// Debug also draws every node and control point.
	Debug bool
	// ExcludeEdges drops the lead-in and lead-out segments.
	ExcludeEdges bool
	ExtraClass   string
	Width        float64
	Color        string
	Layer        string // "mid"
	// Loop and Bezier select the curve built by AddHighlightLine.
	Loop   bool
	Bezier bool
}

// Highlight is a drawn path and its helper shapes.
type Highlight struct {
	ID    string
	Path  *curves.Path
	nodes []*scene.Node
}

// Nodes returns the scene nodes of the highlight.
func (h *Highlight) Nodes() []*scene.Node { return append([]*scene.Node(nil), h.nodes...) }

func vec(p [2]float64) r2.Vec { return r2.Vec{X: p[0], Y: p[1]} }

// DrawLine adds a line between two world positions to a user layer.
func (v *Viewport) DrawLine(p0, p1 [2]float64, o LineOptions) *scene.Node {
	var n *scene.Node
	v.update(func() { n = v.drawLine(vec(p0), vec(p1), o) })
	return n
}

func (v *Viewport) drawLine(p0, p1 r2.Vec, o LineOptions) *scene.Node {
	if o.Color == "" {
		o.Color = "#000a"
	}
	if o.Size == 0 {
		o.Size = 2
	}
	n := scene.NewLine(p0, p1, "user-line")
	n.SetAttr("stroke", o.Color)
	n.SetAttr("stroke-width", strconv.FormatFloat(o.Size, 'f', -1, 64)+"em")
	n.SetAttr("title", o.Title)
	v.scene.User.Layer(o.Layer).Append(n)
	return n
}

// DrawCircle adds a circle at a world position to a user layer.
func (v *Viewport) DrawCircle(c [2]float64, o CircleOptions) *scene.Node {
	var n *scene.Node
	v.update(func() { n = v.drawCircle(vec(c), o) })
	return n
}

func (v *Viewport) drawCircle(c r2.Vec, o CircleOptions) *scene.Node {
	if o.Color == "" {
		o.Color = "#000a"
	}
	if o.Size == 0 {
		o.Size = 10
	}
	if o.BorderColor == "" {
		o.BorderColor = "gold"
	}
	if o.BorderSize == 0 {
		o.BorderSize = 0.5
	}
	n := scene.NewCircle(c, o.Size*emWorldUnits, "user-circle")
	n.SetAttr("fill", o.Color)
	n.SetAttr("stroke", o.BorderColor)
	n.SetAttr("stroke-width", strconv.FormatFloat(o.BorderSize, 'f', -1, 64)+"em")
	n.SetAttr("title", o.Title)
	v.scene.User.Layer(o.Layer).Append(n)
	return n
}

// AddHighlightPath draws path on a user layer.
func (v *Viewport) AddHighlightPath(path *curves.Path, id string, o HighlightOptions) *Highlight {
	var h *Highlight
	v.update(func() { h = v.addHighlightPath(path, id, o) })
	return h
}

// AddHighlightLine fits a curve through points and draws it.
func (v *Viewport) AddHighlightLine(points [][2]float64, id string, o HighlightOptions) (*Highlight, error) {
	pts := curves.Points(points)
	var (
		path *curves.Path
		err  error
	)
	if o.Bezier {
		path, err = curves.CubicBezierPath(pts, o.Loop)
	} else {
		path, err = curves.CatmullRomPath(pts, o.Loop)
	}
	if err != nil {
		return nil, err
	}
	return v.AddHighlightPath(path, id, o), nil
}

func (v *Viewport) addHighlightPath(path *curves.Path, id string, o HighlightOptions) *Highlight {
	if o.Layer == "" {
		o.Layer = "mid"
	}
	h := &Highlight{ID: id, Path: path}
	if o.Debug {
		h.nodes = append(h.nodes, v.debugNodes(path, o.Layer)...)
	}
	classes := []string{"highlight"}
	if o.ExtraClass != "" {
		classes = append(classes, o.ExtraClass)
	}
	includeEdges := !o.ExcludeEdges
	n := scene.NewPath("", path.ToSVGPath(includeEdges), path.Flatten(flattenSteps, includeEdges), classes...)
	n.SetAttr("data-id", id)
	if o.Width > 0 {
		n.SetAttr("width", strconv.FormatFloat(o.Width, 'f', -1, 64))
	}
	n.SetAttr("stroke", o.Color)
	v.scene.User.Layer(o.Layer).Append(n)
	h.nodes = append(h.nodes, n)
	return h
}

func (v *Viewport) debugNodes(path *curves.Path, layer string) []*scene.Node {
	var out []*scene.Node
	nodes := path.Nodes
	for i, nd := range nodes {
		out = append(out, v.drawCircle(nd.End, CircleOptions{
			Layer: layer, Color: "#40ba", BorderColor: "black", Size: 4, Title: strconv.Itoa(i),
		}))
		if nd.CP1 == nil {
			continue
		}
		if i > 0 {
			title := "cp1-" + strconv.Itoa(i)
			out = append(out,
				v.drawLine(*nd.CP1, nodes[i-1].End, LineOptions{Layer: layer, Title: title}),
				v.drawCircle(*nd.CP1, CircleOptions{Layer: layer, Color: "#000b", Size: 3, Title: title}))
		}
		if nd.CP2 != nil {
			title := "cp2-" + strconv.Itoa(i)
			out = append(out,
				v.drawLine(*nd.CP2, nd.End, LineOptions{Layer: layer, Title: title}),
				v.drawCircle(*nd.CP2, CircleOptions{Layer: layer, Color: "#fffb", Size: 3, Title: title}))
		}
	}
	if len(nodes) > 0 {
		out = append(out,
			v.drawCircle(nodes[0].End, CircleOptions{Layer: layer, Color: "#0f09", Size: 8, Title: "start"}),
			v.drawCircle(nodes[len(nodes)-1].End, CircleOptions{Layer: layer, Color: "#f009", Size: 8, Title: "end"}))
	}
	return out
}

// RemoveHighlight removes every node of h.
func (v *Viewport) RemoveHighlight(h *Highlight) { v.update(func() { v.removeHighlight(h) }) }

func (v *Viewport) removeHighlight(h *Highlight) {
	for _, n := range h.nodes {
		n.Remove()
	}
}

// RemoveShape detaches a node returned by DrawLine or DrawCircle.
func (v *Viewport) RemoveShape(n *scene.Node) { v.update(n.Remove) }
