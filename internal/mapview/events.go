package mapview

import (
	"sync"

	"github.com/google/uuid"
)

// Event is a notification published by an entity or a viewport. Payloads are
// values and never change after publication.
type Event interface {
	event()
}

// PositionEvent reports a new (un-rotated) entity position.
type PositionEvent struct {
	ID   string
	X, Y float64
}

// PinnedEvent reports that an entity pin was created or removed.
type PinnedEvent struct {
	ID      string
	Visible bool
}

// ChangeEvent reports a change to an entity's decoration: tags, data,
// visibility or pin content.
type ChangeEvent struct {
	ID string
}

// ZoomEvent reports a user visible zoom change.
type ZoomEvent struct {
	Zoom float64
}

// DragEvent reports a pointer drag. Drag is set for pans; HeadingOffset and
// TiltShift are set for modifier drags.
type DragEvent struct {
	Drag          *[2]float64
	HeadingOffset *float64
	TiltShift     *float64
}

func (PositionEvent) event() {}
func (PinnedEvent) event()   {}
func (ChangeEvent) event()   {}
func (ZoomEvent) event()     {}
func (DragEvent) event()     {}

// Handler receives events synchronously on the goroutine that caused them.
// Handlers must not block and must not call back into the publisher.
type Handler func(Event)

type subscriber struct {
	id uuid.UUID
	fn Handler
}

// observers is a subscriber list safe for concurrent use.
type observers struct {
	mu   sync.Mutex
	subs []subscriber
}

func (o *observers) subscribe(fn Handler) func() {
	id := uuid.New()
	o.mu.Lock()
	o.subs = append(o.subs, subscriber{id: id, fn: fn})
	o.mu.Unlock()
	return func() { o.unsubscribe(id) }
}

func (o *observers) unsubscribe(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subs {
		if s.id == id {
			o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
			return
		}
	}
}

func (o *observers) emit(evs ...Event) {
	if len(evs) == 0 {
		return
	}
	o.mu.Lock()
	subs := append([]subscriber(nil), o.subs...)
	o.mu.Unlock()
	for _, ev := range evs {
		for _, s := range subs {
			s.fn(ev)
		}
	}
}

func (o *observers) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}
