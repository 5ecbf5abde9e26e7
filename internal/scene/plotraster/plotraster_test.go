package plotraster

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/saucemap/internal/scene"
)

func testScene() *scene.Scene {
	s := scene.New(320, 240)
	s.WorldScale = 1
	s.Defs.Append(scene.NewPath("road-path-1", "M0,0 L100,0", []r2.Vec{{X: -100, Y: 0}, {X: 100, Y: 0}}))
	s.Roads.Gutters.Append(scene.NewUse("#road-path-1", "road"))
	s.Roads.SurfacesLow.Append(scene.NewUse("#road-path-1", "road"))
	s.Roads.SurfacesMid.Append(scene.NewUse("#road-path-1", "road", "active"))

	m := scene.NewMarker("1", "entity", "athlete", "watching")
	m.Translate = r2.Vec{X: 20, Y: 0}
	s.Ents.Append(m)

	pin := scene.NewPin("1")
	pin.Content = "Rider"
	pin.Translate = r2.Vec{X: 180, Y: 110}
	s.Pins.Append(pin)
	return s
}

func TestBackend_RenderPNG(t *testing.T) {
	t.Parallel()

	s := testScene()
	bg := image.NewRGBA(image.Rect(0, 0, 8, 8))
	bg.Set(0, 0, color.White)
	s.Background.Image = bg
	s.Background.Size = r2.Vec{X: 80, Y: 80}

	var buf bytes.Buffer
	require.NoError(t, New().Render(&buf, s))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.InDelta(t, 320, img.Bounds().Dx(), 1)
	assert.InDelta(t, 240, img.Bounds().Dy(), 1)
}

func TestBackend_RenderEmptyViewport(t *testing.T) {
	t.Parallel()

	s := scene.New(0, 0)
	err := New().Render(&bytes.Buffer{}, s)
	assert.Error(t, err)
}

func TestParseColor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want color.Color
		ok   bool
	}{
		{"#000a", color.NRGBA{A: 0xaa}, true},
		{"#ff8800", color.NRGBA{R: 0xff, G: 0x88, A: 0xff}, true},
		{"#40ba", color.NRGBA{R: 0x44, G: 0x00, B: 0xbb, A: 0xaa}, true},
		{"gold", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseColor(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
