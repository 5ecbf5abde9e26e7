// Package plotraster renders a scene to PNG with gonum/plot.
//
// Roads, highlights, user shapes, entity markers and pins are projected
// exactly through the scene view. The background raster is drawn axis
// aligned over the bounds of its projected corners.
package plotraster

import (
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/saucemap/internal/scene"
)

// dpi is the raster resolution; pxToPoints converts screen pixels to vg
// points at that resolution so one scene pixel is one image pixel.
const (
	dpi        = 96
	pxToPoints = 72.0 / dpi
)

// Palette colours the scene by class.
type Palette struct {
	Gutter    color.Color
	Road      color.Color
	Active    color.Color
	Highlight color.Color
	Athlete   color.Color
	Self      color.Color
	Watching  color.Color
	Marked    color.Color
	Bot       color.Color
	Point     color.Color
}

// DefaultPalette is used by New.
var DefaultPalette = Palette{
	Gutter:    color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xc0},
	Road:      color.RGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff},
	Active:    color.RGBA{R: 0xff, G: 0x8c, B: 0x00, A: 0xff},
	Highlight: color.RGBA{R: 0xff, G: 0xd7, B: 0x00, A: 0xe0},
	Athlete:   color.RGBA{R: 0x1e, G: 0x90, B: 0xff, A: 0xff},
	Self:      color.RGBA{R: 0xe0, G: 0x20, B: 0x20, A: 0xff},
	Watching:  color.RGBA{R: 0xff, G: 0xd7, B: 0x00, A: 0xff},
	Marked:    color.RGBA{R: 0xa0, G: 0x20, B: 0xf0, A: 0xff},
	Bot:       color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff},
	Point:     color.RGBA{R: 0x00, G: 0x00, B: 0x00, A: 0xaa},
}

// Backend rasterises scenes.
type Backend struct {
	Palette Palette
	// MarkerRadius is the entity glyph radius in screen pixels.
	MarkerRadius float64
}

// New returns a PNG backend.
func New() *Backend {
	return &Backend{Palette: DefaultPalette, MarkerRadius: 4}
}

// Render implements scene.Backend.
func (b *Backend) Render(w io.Writer, s *scene.Scene) error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("plotraster: empty viewport %vx%v", s.Width, s.Height)
	}
	p := plot.New()
	p.HideAxes()
	p.X.Padding, p.Y.Padding = 0, 0
	p.X.Min, p.X.Max = 0, s.Width
	// Screen y grows downward.
	p.Y.Min, p.Y.Max = -s.Height, 0

	r := &renderer{b: b, s: s, p: p}
	if err := r.background(); err != nil {
		return err
	}
	if err := r.paths(s.PathLayers); err != nil {
		return err
	}
	if err := r.markers(); err != nil {
		return err
	}
	if err := r.pins(); err != nil {
		return err
	}

	c := vgimg.NewWith(
		vgimg.UseWH(vg.Points(s.Width*pxToPoints), vg.Points(s.Height*pxToPoints)),
		vgimg.UseDPI(dpi),
	)
	p.Draw(draw.New(c))
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return fmt.Errorf("plotraster: write: %w", err)
	}
	return nil
}

type renderer struct {
	b *Backend
	s *scene.Scene
	p *plot.Plot
}

func plotXY(v r2.Vec) plotter.XY { return plotter.XY{X: v.X, Y: -v.Y} }

func (r *renderer) background() error {
	bg := r.s.Background
	if bg.Image == nil || bg.Hidden || bg.HasClass("hidden") {
		return nil
	}
	corners := []r2.Vec{{}, {X: bg.Size.X}, {Y: bg.Size.Y}, bg.Size}
	var lo, hi r2.Vec
	for i, c := range corners {
		pt, _ := r.s.Project(c)
		if i == 0 {
			lo, hi = pt, pt
			continue
		}
		lo = r2.Vec{X: min(lo.X, pt.X), Y: min(lo.Y, pt.Y)}
		hi = r2.Vec{X: max(hi.X, pt.X), Y: max(hi.Y, pt.Y)}
	}
	if hi.X-lo.X <= 0 || hi.Y-lo.Y <= 0 {
		return nil
	}
	r.p.Add(plotter.NewImage(bg.Image, lo.X, -hi.Y, hi.X, -lo.Y))
	return nil
}

func (r *renderer) paths(root *scene.Node) error {
	var err error
	root.Walk(func(n *scene.Node) bool {
		if n.Hidden {
			return false
		}
		switch n.Kind {
		case scene.KindUse:
			ref := r.s.Defs.ByID(strings.TrimPrefix(n.Href, "#"))
			if ref != nil {
				err = r.polyline(ref.Points, r.strokeFor(n), r.widthFor(n))
			}
		case scene.KindPath:
			err = r.polyline(n.Points, r.strokeFor(n), r.widthFor(n))
		case scene.KindLine:
			err = r.polyline([]r2.Vec{n.From, n.To}, r.strokeFor(n), r.widthFor(n))
		case scene.KindCircle:
			err = r.circle(n)
		}
		return err == nil
	})
	return err
}

func (r *renderer) strokeFor(n *scene.Node) color.Color {
	if c, ok := parseColor(n.Attr("stroke")); ok {
		return c
	}
	pal := r.b.Palette
	switch {
	case n.HasClass("active"):
		return pal.Active
	case n.HasClass("highlight"):
		return pal.Highlight
	case n.Parent() == r.s.Roads.Gutters:
		return pal.Gutter
	default:
		return pal.Road
	}
}

func (r *renderer) widthFor(n *scene.Node) vg.Length {
	if v, err := strconv.ParseFloat(n.Attr("width"), 64); err == nil && v > 0 {
		return vg.Points(v * pxToPoints)
	}
	switch {
	case n.Parent() == r.s.Roads.Gutters:
		return vg.Points(4)
	case n.HasClass("active"), n.HasClass("highlight"):
		return vg.Points(2.5)
	default:
		return vg.Points(1.5)
	}
}

// polyline projects world path points and draws them, splitting where the
// path passes behind the tilted camera.
func (r *renderer) polyline(points []r2.Vec, c color.Color, width vg.Length) error {
	var run plotter.XYs
	flush := func() error {
		if len(run) >= 2 {
			line, err := plotter.NewLine(run)
			if err != nil {
				return fmt.Errorf("plotraster: line: %w", err)
			}
			line.Width = width
			line.Color = c
			r.p.Add(line)
		}
		run = nil
		return nil
	}
	for _, pt := range points {
		screen, ok := r.s.Project(r.s.PathToLayer(pt))
		if !ok {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		run = append(run, plotXY(screen))
	}
	return flush()
}

func (r *renderer) circle(n *scene.Node) error {
	center, ok := r.s.Project(r.s.PathToLayer(n.Center))
	if !ok {
		return nil
	}
	sc, err := plotter.NewScatter(plotter.XYs{plotXY(center)})
	if err != nil {
		return fmt.Errorf("plotraster: circle: %w", err)
	}
	radius := n.Radius * r.s.WorldScale * r.s.View.Scale
	if radius < 1 {
		radius = 1
	}
	sc.GlyphStyle.Shape = draw.CircleGlyph{}
	sc.GlyphStyle.Radius = vg.Points(radius * pxToPoints)
	sc.GlyphStyle.Color = r.b.Palette.Point
	if c, ok := parseColor(n.Attr("fill")); ok {
		sc.GlyphStyle.Color = c
	}
	r.p.Add(sc)
	return nil
}

func (r *renderer) markerColor(n *scene.Node) color.Color {
	pal := r.b.Palette
	switch {
	case n.HasClass("self"):
		return pal.Self
	case n.HasClass("watching"):
		return pal.Watching
	case n.HasClass("marked"), n.HasClass("following"):
		return pal.Marked
	case n.HasClass("bot"):
		return pal.Bot
	case n.HasClass("point"):
		return pal.Point
	default:
		return pal.Athlete
	}
}

func (r *renderer) markers() error {
	// Group by colour so each colour is one scatter.
	groups := make(map[color.Color]plotter.XYs)
	var order []color.Color
	for _, n := range r.s.Ents.Children() {
		if n.Kind != scene.KindMarker || n.Hidden {
			continue
		}
		screen, ok := r.s.Project(r.s.MarkerToLayer(n))
		if !ok {
			continue
		}
		c := r.markerColor(n)
		if _, seen := groups[c]; !seen {
			order = append(order, c)
		}
		groups[c] = append(groups[c], plotXY(screen))
	}
	for _, c := range order {
		sc, err := plotter.NewScatter(groups[c])
		if err != nil {
			return fmt.Errorf("plotraster: markers: %w", err)
		}
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(r.b.MarkerRadius * pxToPoints)
		sc.GlyphStyle.Color = c
		r.p.Add(sc)
	}
	return nil
}

func (r *renderer) pins() error {
	var labels plotter.XYLabels
	for _, n := range r.s.Pins.Children() {
		if n.Kind != scene.KindPin || n.Hidden || n.Content == "" {
			continue
		}
		labels.XYs = append(labels.XYs, plotXY(n.Translate))
		labels.Labels = append(labels.Labels, n.Content)
	}
	if len(labels.XYs) == 0 {
		return nil
	}
	l, err := plotter.NewLabels(labels)
	if err != nil {
		return fmt.Errorf("plotraster: pins: %w", err)
	}
	r.p.Add(l)
	return nil
}

// parseColor reads #rgb, #rgba, #rrggbb and #rrggbbaa.
func parseColor(s string) (color.Color, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 || len(s) == 4 {
		var sb strings.Builder
		for _, ch := range s {
			sb.WriteRune(ch)
			sb.WriteRune(ch)
		}
		s = sb.String()
	}
	if len(s) == 6 {
		s += "ff"
	}
	if len(s) != 8 {
		return nil, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return nil, false
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, true
}
