package mapview

import "math"

// ewma is an exponentially weighted moving average over roughly size
// samples, starting at seed.
type ewma struct {
	prev float64
	next float64
	avg  float64
}

func newEWMA(size, seed float64) *ewma {
	prev := math.Exp(-1 / size)
	return &ewma{prev: prev, next: 1 - prev, avg: seed}
}

// update folds v into the average and returns the new average.
func (e *ewma) update(v float64) float64 {
	e.avg = e.avg*e.prev + v*e.next
	return e.avg
}

func (e *ewma) value() float64 { return e.avg }
