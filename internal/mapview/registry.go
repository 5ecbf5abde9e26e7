package mapview

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/saucemap/internal/monitoring"
	"github.com/banshee-data/saucemap/internal/scene"
)

// NewEntity returns a detached entity animated on the viewport clock.
func (v *Viewport) NewEntity(id string, kind Kind) *Entity {
	return NewEntity(v.clock, id, kind)
}

// AddEntity registers ent. Ids must be unique.
func (v *Viewport) AddEntity(ent *Entity) error {
	var err error
	v.update(func() {
		if _, ok := v.ents[ent.id]; ok {
			err = fmt.Errorf("entity %s: %w", ent.id, ErrDuplicateEntity)
			return
		}
		v.addEntity(ent)
	})
	return err
}

func (v *Viewport) addEntity(ent *Entity) {
	ent.attach(v.rotation())
	ent.node = scene.NewMarker(ent.id, "entity", string(ent.kind))
	v.ents[ent.id] = ent
	v.unsub[ent.id] = ent.Subscribe(v.entityHandler(ent))
	v.markPending(ent)
}

// entityHandler tracks an entity's pending and pinned state. It only takes
// trackMu so entities may publish while the viewport lock is held.
func (v *Viewport) entityHandler(ent *Entity) Handler {
	return func(ev Event) {
		v.trackMu.Lock()
		defer v.trackMu.Unlock()
		if p, ok := ev.(PinnedEvent); ok {
			if p.Visible {
				v.pinned.add(ent)
			} else {
				v.pinned.remove(ent)
			}
		}
		v.pending.add(ent)
	}
}

// RemoveEntity unregisters the entity with id, evicting its pin and scene
// node. It reports whether the entity existed.
func (v *Viewport) RemoveEntity(id string) bool {
	var ok bool
	v.update(func() {
		var ent *Entity
		if ent, ok = v.ents[id]; ok {
			v.removeEntity(ent)
		}
	})
	return ok
}

func (v *Viewport) removeEntity(ent *Entity) {
	delete(v.ents, ent.id)
	if unsub := v.unsub[ent.id]; unsub != nil {
		unsub()
		delete(v.unsub, ent.id)
	}
	v.trackMu.Lock()
	v.pinned.remove(ent)
	v.pending.remove(ent)
	v.trackMu.Unlock()
	ent.TogglePin(PinOff)
	if ent.node != nil {
		ent.node.Remove()
	}
	if ent.pinNode != nil {
		ent.pinNode.Remove()
		ent.pinNode = nil
	}
	ent.isNew = true
}

// Entity returns the registered entity with id, or nil.
func (v *Viewport) Entity(id string) *Entity {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ents[id]
}

// AddPoint places a marker that moves without animation.
func (v *Viewport) AddPoint(x, y float64, class string) (*Entity, error) {
	ent := NewEntity(v.clock, uuid.NewString(), KindPoint)
	ent.SetDuration(0)
	if err := ent.SetPosition(x, y); err != nil {
		return nil, err
	}
	if class != "" {
		ent.SetTag(class, true)
	}
	if err := v.AddEntity(ent); err != nil {
		return nil, err
	}
	return ent, nil
}

// ClickEntity toggles the pin of the entity with id and reports whether it
// is pinned afterwards.
func (v *Viewport) ClickEntity(id string) (bool, error) {
	ent := v.Entity(id)
	if ent == nil {
		return false, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	return ent.TogglePin(PinToggle), nil
}

// EntityInfo is a read-only summary of an entity.
type EntityInfo struct {
	ID       string            `json:"id"`
	Kind     Kind              `json:"kind"`
	X        float64           `json:"x"`
	Y        float64           `json:"y"`
	Tags     []string          `json:"tags,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
	Hidden   bool              `json:"hidden,omitempty"`
	Pinned   bool              `json:"pinned,omitempty"`
	Pin      string            `json:"pin,omitempty"`
	GC       bool              `json:"gc,omitempty"`
	LastSeen time.Time         `json:"lastSeen,omitempty"`
	Playing  bool              `json:"playing,omitempty"`
}

// Entities lists registered entities sorted by id.
func (v *Viewport) Entities() []EntityInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]EntityInfo, 0, len(v.ents))
	for _, ent := range v.ents {
		ent.mu.Lock()
		info := EntityInfo{
			ID:       ent.id,
			Kind:     ent.kind,
			Tags:     ent.tagsLocked(),
			Hidden:   ent.hidden,
			Pinned:   ent.pinned,
			Pin:      ent.pinContent,
			GC:       ent.gc,
			LastSeen: ent.lastSeen,
			Playing:  ent.transition.Playing(),
		}
		if ent.position != nil {
			info.X, info.Y = ent.position[0], ent.position[1]
		}
		if len(ent.data) > 0 {
			info.Data = make(map[string]string, len(ent.data))
			for k, val := range ent.data {
				info.Data[k] = val
			}
		}
		ent.mu.Unlock()
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// collect removes collectable entities not seen within the stale window.
func (v *Viewport) collect(now time.Time) {
	var stale []*Entity
	for _, ent := range v.ents {
		if ent.gc && now.Sub(ent.lastSeen) > v.staleAfter {
			stale = append(stale, ent)
		}
	}
	for _, ent := range stale {
		v.removeEntity(ent)
	}
	if len(stale) > 0 {
		monitoring.Diagf("collected %d stale entities, %d remain", len(stale), len(v.ents))
	}
}

// CollectStale runs the stale entity scan now.
func (v *Viewport) CollectStale() {
	v.update(func() { v.collect(v.clock.Now()) })
}
