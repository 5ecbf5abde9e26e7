package mapview

import (
	"context"
	"sort"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/saucemap/internal/monitoring"
	"github.com/banshee-data/saucemap/internal/scene"
)

// entitySet is an insertion ordered set of entities.
type entitySet struct {
	seq   uint64
	items map[*Entity]uint64
}

func (s *entitySet) add(e *Entity) {
	if s.items == nil {
		s.items = make(map[*Entity]uint64)
	}
	if _, ok := s.items[e]; ok {
		return
	}
	s.seq++
	s.items[e] = s.seq
}

func (s *entitySet) remove(e *Entity) { delete(s.items, e) }

func (s *entitySet) has(e *Entity) bool {
	_, ok := s.items[e]
	return ok
}

func (s *entitySet) len() int { return len(s.items) }

func (s *entitySet) clear() { s.items = nil }

func (s *entitySet) list() []*Entity {
	out := make([]*Entity, 0, len(s.items))
	for e := range s.items {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return s.items[out[i]] < s.items[out[j]] })
	return out
}

func (v *Viewport) markPending(e *Entity) {
	v.trackMu.Lock()
	v.pending.add(e)
	v.trackMu.Unlock()
}

func (v *Viewport) markAllPending() {
	v.trackMu.Lock()
	defer v.trackMu.Unlock()
	for _, e := range v.ents {
		v.pending.add(e)
	}
}

// FrameStat describes one rendered frame.
type FrameStat struct {
	At        time.Time     `json:"at"`
	Duration  time.Duration `json:"duration"`
	Entities  int           `json:"entities"`
	Pins      int           `json:"pins"`
	Animating bool          `json:"animating"`
}

const frameStatsSize = 300

// frameStats is a fixed size ring of recent frames.
type frameStats struct {
	buf  []FrameStat
	next int
	full bool
}

func newFrameStats(n int) frameStats { return frameStats{buf: make([]FrameStat, n)} }

func (f *frameStats) add(s FrameStat) {
	f.buf[f.next] = s
	f.next = (f.next + 1) % len(f.buf)
	if f.next == 0 {
		f.full = true
	}
}

func (f *frameStats) list() []FrameStat {
	if !f.full {
		return append([]FrameStat(nil), f.buf[:f.next]...)
	}
	out := make([]FrameStat, 0, len(f.buf))
	out = append(out, f.buf[f.next:]...)
	return append(out, f.buf[:f.next]...)
}

// FrameStats returns recent frames, oldest first.
func (v *Viewport) FrameStats() []FrameStat {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats.list()
}

// Run drives the viewport from the clock at the configured refresh rate
// until ctx is done.
func (v *Viewport) Run(ctx context.Context) error {
	ticker := v.clock.NewTicker(v.refresh)
	defer ticker.Stop()
	monitoring.Opsf("render loop started at %v per tick", v.refresh)
	for {
		select {
		case <-ctx.Done():
			monitoring.Opsf("render loop stopped")
			return nil
		case now := <-ticker.C():
			v.Tick(now)
		}
	}
}

// Tick does one display refresh: pending frame callbacks, the wheel grace
// deadline, a frame if the rate cap allows it, and the stale entity scan
// when due.
func (v *Viewport) Tick(now time.Time) {
	v.update(func() {
		v.runFrameCallbacks(now)
		v.checkWheelGrace(now)
		if v.msPerFrame == 0 || now.Sub(v.lastFrame) >= v.msPerFrame {
			v.lastFrame = now
			if !v.pause.Held() {
				v.renderFrame()
			}
		}
		if !now.Before(v.nextGC) {
			v.nextGC = now.Add(v.gcInterval)
			v.collect(now)
		}
	})
}

type pinWrite struct {
	ent *Entity
	at  r2.Vec
}

// renderFrame writes sampled transforms into the scene.
func (v *Viewport) renderFrame() {
	start := v.clock.Now()
	var affected []*Entity
	mt := v.mapTransition
	animating := mt.Disabled() || mt.Playing()
	if animating {
		if t := mt.Sample(); t != nil {
			v.renderedRotate = t[8]
			v.scene.View = scene.View{
				Origin:         r2.Vec{X: t[0], Y: t[1]},
				Translate:      r2.Vec{X: t[2], Y: t[3]},
				Scale:          t[4] / v.canvasScale,
				TiltHeight:     t[5],
				TiltAngle:      t[6],
				VerticalOffset: t[7],
				Rotate:         t[8],
			}
			v.trackMu.Lock()
			affected = v.pinned.list()
			v.trackMu.Unlock()
		} else {
			animating = false
		}
	}

	v.trackMu.Lock()
	pending := v.pending.list()
	v.pending.clear()
	v.trackMu.Unlock()

	scale := v.mapScale * v.layerScale
	var still []*Entity
	for _, ent := range pending {
		if v.ents[ent.id] != ent {
			continue
		}
		view := ent.view()
		node := ent.node
		if view.pos != nil {
			node.Translate = r2.Vec{X: view.pos[0] * scale, Y: view.pos[1] * scale}
			if !animating && view.pinned {
				affected = append(affected, ent)
			}
		}
		v.syncNode(ent, view)
		if ent.isNew {
			v.scene.Ents.Append(node)
			ent.isNew = false
		}
		if view.playing {
			still = append(still, ent)
		}
	}
	if len(still) > 0 {
		v.trackMu.Lock()
		for _, ent := range still {
			v.pending.add(ent)
		}
		v.trackMu.Unlock()
	}

	// Project every pin before moving any of them.
	writes := make([]pinWrite, 0, len(affected))
	for _, ent := range affected {
		if ent.pinNode == nil || ent.node == nil {
			continue
		}
		at, _ := v.scene.Project(v.scene.MarkerToLayer(ent.node))
		writes = append(writes, pinWrite{ent: ent, at: at})
	}
	for _, w := range writes {
		w.ent.pinNode.Translate = w.at
	}

	stat := FrameStat{
		At:        start,
		Duration:  v.clock.Since(start),
		Entities:  len(pending),
		Pins:      len(writes),
		Animating: animating,
	}
	v.stats.add(stat)
	if monitoring.TraceEnabled() {
		monitoring.Tracef("frame entities=%d pins=%d animating=%t took=%v",
			stat.Entities, stat.Pins, stat.Animating, stat.Duration)
	}
}

// syncNode copies an entity's decoration into its marker and pin nodes.
func (v *Viewport) syncNode(ent *Entity, view entityView) {
	node := ent.node
	classes := append([]string{"entity", string(ent.kind)}, view.tags...)
	node.SetClasses(classes)
	node.ClearAttrs()
	for k, val := range view.data {
		node.SetAttr("data-"+k, val)
	}
	node.Hidden = view.hidden
	switch {
	case view.pinned:
		if ent.pinNode == nil {
			ent.pinNode = scene.NewPin(ent.id)
		}
		if ent.pinNode.Parent() == nil {
			v.scene.Pins.Append(ent.pinNode)
		}
		ent.pinNode.Content = view.pinContent
		ent.pinNode.Hidden = !view.pinVisible
	case ent.pinNode != nil:
		ent.pinNode.Remove()
		ent.pinNode = nil
	}
}
