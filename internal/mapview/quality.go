package mapview

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/saucemap/internal/monitoring"
)

// Canvas pixel budgets: RGBA at 4 bytes per pixel, 4 MiB (about 1024²) up
// to 192 MiB (about 7094²).
const (
	pixelMegabyte = 1024 * 1024 / 4
	lowBudget     = 4 * pixelMegabyte
	highBudget    = 192 * pixelMegabyte
	scaleSteps    = 15
)

// QualityToCanvasScale maps a quality in [0, 1] to a canvas scale for a
// background of the given pixel count. Unknown sizes use a coarse step
// table.
func QualityToCanvasScale(quality float64, pixels int) float64 {
	if pixels <= 0 {
		switch {
		case quality < 0.5:
			return 0.25
		case quality < 0.85:
			return 0.5
		default:
			return 1
		}
	}
	ratio := math.Sqrt(((highBudget-lowBudget)*quality + lowBudget) / float64(pixels))
	return math.Min(1, math.Round(ratio*scaleSteps)/scaleSteps)
}

func (v *Viewport) qualityToCanvasScale(quality float64) float64 {
	pixels := v.bgNatural[0] * v.bgNatural[1]
	if pixels == 0 {
		monitoring.Diagf("using naive canvas scale for quality %.2f", quality)
	}
	return QualityToCanvasScale(quality, pixels)
}

// applyCanvasScale derives the canvas and map scales for the current world
// and background and forces a layer rescale.
func (v *Viewport) applyCanvasScale() {
	m := v.meta
	v.canvasScale = v.qualityToCanvasScale(v.quality)
	v.mapScale = 1 / (m.TileScale / m.MapScale / v.canvasScale)
	v.adjustLayerScale(true)
}

// adjustLayerScale recomputes the quarter step layer scale and the tilt
// parameters. It reports whether the layer scale was applied, in which case
// the view has already been brought up to date.
func (v *Viewport) adjustLayerScale(force bool) bool {
	if v.canvasScale == 0 {
		return false
	}
	quality := v.quality
	if v.tiltShift != 0 {
		// Tilting shows more landscape, so the budget shrinks past 30 degrees.
		tiltFactor := 1.0
		if v.zoomPriorityTilt {
			tiltFactor = math.Min(1, (v.zoom+1)/v.zoomMax)
		}
		v.tiltAngle = v.tiltShift * v.maxTiltAngle * tiltFactor
		quality *= math.Min(1, 20/math.Max(0, v.tiltAngle-30))
	} else {
		v.tiltAngle = 0
	}
	scale := math.Max(0.05, math.Round(v.zoom*quality/v.canvasScale/0.25)*0.25)
	if v.tiltShift != 0 {
		v.tiltHeight = perspective * v.canvasScale / (v.zoom / scale)
	} else {
		v.tiltHeight = 0
	}
	if !force && v.layerScale == scale {
		return false
	}
	v.incPause()
	defer v.decPause()
	v.layerScale = scale
	bg := v.scene.Background
	bg.Size = r2.Vec{
		X: float64(v.bgNatural[0]) * v.canvasScale * scale,
		Y: float64(v.bgNatural[1]) * v.canvasScale * scale,
	}
	bg.ToggleClass("hidden", v.portal)
	v.scene.EntsOffset = r2.Vec{
		X: v.anchorXY[0] * scale * v.mapScale,
		Y: v.anchorXY[1] * scale * v.mapScale,
	}
	v.scene.WorldScale = v.mapScale * scale
	v.markAllPending()
	monitoring.Tracef("layer scale %.2f canvas %.3f zoom %.3f", scale, v.canvasScale, v.zoom)
	return true
}
