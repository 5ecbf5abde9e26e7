// Package transition animates N-dimensional numeric vectors between targets
// over wall-clock time.
//
// A Transition is sampled on demand, never ticked. Retargeting mid-flight
// starts from the currently displayed value so motion never jumps, and the
// whole thing can be frozen (disabled) and thawed without losing the
// in-flight destination. A Transition is not safe for concurrent use; its
// owner serialises access.
package transition

import (
	"math"
	"time"

	"github.com/banshee-data/saucemap/internal/timeutil"
)

// Epsilon is the distance below which a component is considered to already
// be at its new destination (float32 mantissa precision).
const Epsilon = 1.0 / 0x800000

// DefaultDuration is used by New when no duration is given.
const DefaultDuration = time.Second

// Transition linearly interpolates from a source vector to a destination
// vector over Duration.
type Transition struct {
	clock    timeutil.Clock
	duration time.Duration

	src []float64
	cur []float64
	dst []float64

	start time.Time
	end   time.Time

	disabled  RefCount
	remaining time.Duration
	playing   bool
}

// New returns an empty transition. A non-positive duration selects
// DefaultDuration; use SetDuration(0) for instantaneous updates.
func New(clock timeutil.Clock, duration time.Duration) *Transition {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Transition{
		clock:    clock,
		duration: duration,
		disabled: RefCount{Name: "transition disabled"},
	}
}

// Duration returns the animation length applied to the next target.
func (t *Transition) Duration() time.Duration { return t.duration }

// Playing reports whether the transition is moving toward its destination.
func (t *Transition) Playing() bool { return t.playing }

// Disabled reports whether the transition is frozen.
func (t *Transition) Disabled() bool { return t.disabled.Held() }

// SetDuration changes the animation speed. An in-flight animation is rebased
// at the current value and its end time shifted by the difference, so the
// displayed value does not jump.
func (t *Transition) SetDuration(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if !t.Disabled() {
		now := t.clock.Now()
		t.recalc(now)
		if t.playing {
			t.src = clone(t.cur)
			t.start = now
			t.end = t.end.Add(d - t.duration)
		}
	} else if t.remaining > 0 {
		t.remaining += d - t.duration
		if t.remaining < 0 {
			t.remaining = 0
		}
	}
	t.duration = d
}

// SetValues sets a new destination.
//
// The first value (or one with a different dimension) is applied
// immediately. While disabled the value is applied without motion. Otherwise
// the animation starts from the current value if the previous destination
// has not been reached, or from the previous destination if it has.
func (t *Transition) SetValues(values []float64) {
	if t.dst == nil || len(values) != len(t.dst) {
		t.snap(values)
		return
	}
	if t.Disabled() {
		t.snap(values)
		return
	}
	now := t.clock.Now()
	if now.Before(t.end) {
		t.recalc(now)
		src := make([]float64, len(values))
		for i, x := range t.cur {
			if math.Abs(values[i]-x) < Epsilon {
				src[i] = values[i]
			} else {
				src[i] = x
			}
		}
		t.src = src
	} else {
		t.src = t.dst
	}
	t.dst = clone(values)
	t.cur = clone(t.src)
	t.start = now
	t.end = now.Add(t.duration)
	t.playing = true
}

func (t *Transition) snap(values []float64) {
	t.dst = clone(values)
	t.cur = clone(values)
	t.src = clone(values)
	t.remaining = 0
	t.playing = false
	t.start, t.end = time.Time{}, time.Time{}
}

// IncDisabled freezes the transition at its current value. Nested calls are
// counted; only the first one freezes.
func (t *Transition) IncDisabled() {
	if !t.disabled.Acquire() {
		return
	}
	now := t.clock.Now()
	t.recalc(now)
	if t.playing {
		t.remaining = t.end.Sub(now)
	} else {
		t.remaining = 0
	}
	t.playing = false
	t.start, t.end = time.Time{}, time.Time{}
}

// DecDisabled releases one freeze. The last release resumes a pending
// destination from the frozen value with the remaining time it had when it
// was frozen. Calling it without a matching IncDisabled panics.
func (t *Transition) DecDisabled() {
	if !t.disabled.Release() {
		return
	}
	if t.remaining > 0 && t.dst != nil {
		now := t.clock.Now()
		t.src = clone(t.cur)
		t.start = now
		t.end = now.Add(t.remaining)
		t.playing = true
	}
	t.remaining = 0
}

// WithDisabled runs fn with the transition frozen.
func (t *Transition) WithDisabled(fn func()) {
	Hold(t.IncDisabled, t.DecDisabled, fn)
}

// Sample returns the value to display now, or nil if no value was ever set.
// The returned slice is owned by the caller.
func (t *Transition) Sample() []float64 {
	if t.dst == nil {
		return nil
	}
	if !t.Disabled() && t.playing {
		t.recalc(t.clock.Now())
	}
	return clone(t.cur)
}

// Values returns the destination, or nil if no value was ever set.
func (t *Transition) Values() []float64 {
	if t.dst == nil {
		return nil
	}
	return clone(t.dst)
}

func (t *Transition) recalc(now time.Time) {
	if !t.playing {
		return
	}
	total := t.end.Sub(t.start)
	if total <= 0 || !now.Before(t.end) {
		t.cur = clone(t.dst)
		t.playing = false
		return
	}
	progress := float64(now.Sub(t.start)) / float64(total)
	if progress < 0 {
		progress = 0
	}
	for i := range t.dst {
		t.cur[i] = t.src[i] + (t.dst[i]-t.src[i])*progress
	}
}

func clone(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
