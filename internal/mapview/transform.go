package mapview

import "math"

func (v *Viewport) rotateWorldPos(x, y float64) [2]float64 {
	if v.rotateCoordinates {
		x, y = RotateCoordinates(x, y)
	}
	return [2]float64{x, y}
}

func (v *Viewport) unrotateWorldPos(x, y float64) [2]float64 {
	if v.rotateCoordinates {
		x, y = unrotateCoordinates(x, y)
	}
	return [2]float64{x, y}
}

// rotation is handed to entities when they attach.
func (v *Viewport) rotation() Rotation {
	if v.rotateCoordinates {
		return RotateCoordinates
	}
	return nil
}

// SetHeading rotates the view, in degrees.
func (v *Viewport) SetHeading(h float64) {
	v.update(func() {
		v.setHeading(h)
		v.fullUpdateAsNeeded()
	})
}

// SetHeadingOffset biases the heading, in degrees.
func (v *Viewport) SetHeadingOffset(h float64) {
	v.update(func() { v.setHeadingOffset(h) })
}

func (v *Viewport) setHeadingOffset(h float64) {
	v.headingOffset = h
	v.setHeading(v.heading)
	v.fullUpdateAsNeeded()
}

// setHeading keeps the fed rotation continuous across the 0/360 wrap by
// counting whole turns.
func (v *Viewport) setHeading(h float64) {
	if d := v.heading - h; math.Abs(d) > 180 {
		if d > 0 {
			v.headingRotations++
		} else {
			v.headingRotations--
		}
	}
	mapAdj := -90.0
	if v.rotateCoordinates {
		mapAdj = 0
	}
	v.adjHeading = h + v.headingOffset + float64(v.headingRotations)*360 + mapAdj
	v.heading = h
}

// SetCenter centres the view on a world position.
func (v *Viewport) SetCenter(x, y float64) {
	v.update(func() {
		v.setCenter(x, y)
		v.fullUpdateAsNeeded()
	})
}

func (v *Viewport) setCenter(x, y float64) {
	v.center = [2]float64{x, y}
	v.centerXY = v.rotateWorldPos(x, y)
}

// SetDragOffset sets the user pan offset in world units.
func (v *Viewport) SetDragOffset(x, y float64) {
	v.update(func() { v.setDragOffset(x, y) })
}

func (v *Viewport) setDragOffset(x, y float64) {
	v.dragOffset = [2]float64{x, y}
	v.dragXY = v.rotateWorldPos(x, y)
	v.fullUpdateAsNeeded()
}

// updateGlobalTransform feeds the map transition one target for every view
// dimension so they animate together.
func (v *Viewport) updateGlobalTransform() {
	if v.layerScale == 0 {
		return
	}
	scale := v.zoom / v.layerScale
	relX := (v.anchorXY[0] + v.centerXY[0] - v.dragXY[0]) * v.mapScale
	relY := (v.anchorXY[1] + v.centerXY[1] - v.dragXY[1]) * v.mapScale
	tX := -relX * v.layerScale
	tY := -relY * v.layerScale
	originX := relX * v.layerScale
	originY := relY * v.layerScale
	vertOffset := 0.0
	if v.verticalOffset != 0 {
		height := v.scene.Height * v.layerScale / v.zoom * v.canvasScale
		vertOffset = v.verticalOffset * height
	}
	v.mapTransition.SetValues([]float64{
		originX, originY,
		tX, tY,
		scale,
		v.tiltHeight, v.tiltAngle,
		vertOffset,
		v.adjHeading,
	})
}
